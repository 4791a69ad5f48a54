package kex

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"

	"github.com/google/go-cmp/cmp"
	"github.com/tuneinsight/noisykex/utils/bignum"
)

const (
	// DefaultLogMargin is the minimum number of bits separating the modulus from
	// the largest noise contribution to a shared value.
	DefaultLogMargin = 32

	// DefaultNoiseBound is the noise bound of the reference configuration:
	// noise terms are drawn in {-1, 0, 1}.
	DefaultNoiseBound = 1

	// MaxNoiseBound is the largest supported noise bound.
	MaxNoiseBound = 1 << 30
)

// DefaultParametersLiteral is the reference configuration: a 256-bit prime
// modulus (2^256 - 189), 40-bit secrets, ternary noise and 256 dimensions.
var DefaultParametersLiteral = ParametersLiteral{
	Modulus:        new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(189)),
	LogSecretBound: 40,
	NoiseBound:     DefaultNoiseBound,
	Dimension:      256,
}

// ParametersLiteral is a literal representation of the exchange parameters. It has public
// fields and is used to express unchecked user-defined parameters literally into Go programs.
// The [NewParametersFromLiteral] function is used to generate the actual checked parameters
// from the literal representation.
//
// Users must set the modulus, by either setting Modulus or LogModulus (which yields the
// odd modulus 2^LogModulus - 1), and the secret bound, by either setting SecretBound or
// LogSecretBound.
//
// If left unset, Dimension defaults to the bit-length of the modulus and LogMargin
// to [DefaultLogMargin]. A zero NoiseBound yields a noiseless exchange.
//
// Setting Unsafe disables the margin checks. Such parameters do not guarantee
// key agreement and are only meant to measure the failure rate of the exchange.
type ParametersLiteral struct {
	Modulus        *big.Int `json:",omitempty"`
	LogModulus     int      `json:",omitempty"`
	SecretBound    *big.Int `json:",omitempty"`
	LogSecretBound int      `json:",omitempty"`
	NoiseBound     int64    `json:",omitempty"`
	Dimension      int      `json:",omitempty"`
	LogMargin      int      `json:",omitempty"`
	Unsafe         bool     `json:",omitempty"`
}

// Parameters represents a set of checked exchange parameters. Its fields are private and
// immutable. See [ParametersLiteral] for user-specified parameters.
type Parameters struct {
	modulus     *big.Int
	secretBound *big.Int
	noiseBound  int64
	dimension   int
	logMargin   int
	unsafe      bool
}

// NewParameters returns a new set of parameters from the given modulus, secret bound,
// noise bound and dimension, checked against [DefaultLogMargin]. It returns the empty
// parameters [Parameters]{} and an error wrapping [ErrInvalidParameters] if the
// specified parameters are invalid.
func NewParameters(modulus, secretBound *big.Int, noiseBound int64, dimension int) (params Parameters, err error) {
	return NewParametersFromLiteral(ParametersLiteral{
		Modulus:     modulus,
		SecretBound: secretBound,
		NoiseBound:  noiseBound,
		Dimension:   dimension,
	})
}

// NewParametersFromLiteral instantiate a set of parameters from a [ParametersLiteral] specification.
// It returns the empty parameters [Parameters]{} and an error wrapping [ErrInvalidParameters] if the
// specified parameters are invalid.
func NewParametersFromLiteral(paramDef ParametersLiteral) (params Parameters, err error) {

	switch {
	case paramDef.Modulus == nil && paramDef.LogModulus == 0:
		return Parameters{}, fmt.Errorf("%w: both Modulus and LogModulus fields are empty", ErrInvalidParameters)
	case paramDef.Modulus != nil && paramDef.LogModulus != 0:
		return Parameters{}, fmt.Errorf("%w: both Modulus and LogModulus fields are set", ErrInvalidParameters)
	case paramDef.SecretBound == nil && paramDef.LogSecretBound == 0:
		return Parameters{}, fmt.Errorf("%w: both SecretBound and LogSecretBound fields are empty", ErrInvalidParameters)
	case paramDef.SecretBound != nil && paramDef.LogSecretBound != 0:
		return Parameters{}, fmt.Errorf("%w: both SecretBound and LogSecretBound fields are set", ErrInvalidParameters)
	}

	params = Parameters{
		noiseBound: paramDef.NoiseBound,
		dimension:  paramDef.Dimension,
		logMargin:  paramDef.LogMargin,
		unsafe:     paramDef.Unsafe,
	}

	if paramDef.Modulus != nil {
		params.modulus = new(big.Int).Set(paramDef.Modulus)
	} else {
		if paramDef.LogModulus < 3 {
			return Parameters{}, fmt.Errorf("%w: LogModulus=%d is smaller than 3", ErrInvalidParameters, paramDef.LogModulus)
		}
		params.modulus = new(big.Int).Lsh(big.NewInt(1), uint(paramDef.LogModulus))
		params.modulus.Sub(params.modulus, big.NewInt(1))
	}

	if paramDef.SecretBound != nil {
		params.secretBound = new(big.Int).Set(paramDef.SecretBound)
	} else {
		if paramDef.LogSecretBound < 1 {
			return Parameters{}, fmt.Errorf("%w: LogSecretBound=%d is smaller than 1", ErrInvalidParameters, paramDef.LogSecretBound)
		}
		params.secretBound = new(big.Int).Lsh(big.NewInt(1), uint(paramDef.LogSecretBound))
	}

	if params.dimension == 0 {
		params.dimension = params.modulus.BitLen()
	}

	if params.logMargin == 0 {
		params.logMargin = DefaultLogMargin
	}

	if err = params.check(); err != nil {
		return Parameters{}, err
	}

	return params, nil
}

func (p Parameters) check() (err error) {

	if p.modulus.Cmp(big.NewInt(3)) <= 0 {
		return fmt.Errorf("%w: modulus %v must be greater than 3", ErrInvalidParameters, p.modulus)
	}

	if p.modulus.Bit(0) != 1 {
		return fmt.Errorf("%w: modulus %v must be odd", ErrInvalidParameters, p.modulus)
	}

	if p.secretBound.Cmp(big.NewInt(2)) < 0 || p.secretBound.Cmp(p.modulus) >= 0 {
		return fmt.Errorf("%w: secret bound %v must be in [2, modulus)", ErrInvalidParameters, p.secretBound)
	}

	if p.dimension < 1 {
		return fmt.Errorf("%w: dimension=%d must be at least 1", ErrInvalidParameters, p.dimension)
	}

	if p.noiseBound < 0 || p.noiseBound > MaxNoiseBound {
		return fmt.Errorf("%w: noise bound %d must be in [0, %d]", ErrInvalidParameters, p.noiseBound, MaxNoiseBound)
	}

	// |e| < q/2 ensures that value + e + q never wraps twice
	if halfQ := new(big.Int).Rsh(p.modulus, 1); big.NewInt(p.noiseBound).Cmp(halfQ) >= 0 {
		return fmt.Errorf("%w: noise bound %d must be smaller than modulus/2", ErrInvalidParameters, p.noiseBound)
	}

	if p.logMargin < 0 {
		return fmt.Errorf("%w: LogMargin=%d must be positive", ErrInvalidParameters, p.logMargin)
	}

	if p.unsafe {
		return nil
	}

	logQ := bignum.Log2Int(p.modulus)

	if logS2 := 2 * bignum.Log2Int(p.secretBound); logQ-logS2 < float64(p.logMargin) {
		return fmt.Errorf("%w: log2(modulus)-log2(secretBound^2)=%.2f is smaller than the margin %d",
			ErrInvalidParameters, logQ-logS2, p.logMargin)
	}

	if margin := p.LogMargin(); margin < float64(p.logMargin) {
		return fmt.Errorf("%w: log2(modulus)-log2(2*noiseBound*secretBound)=%.2f is smaller than the margin %d",
			ErrInvalidParameters, margin, p.logMargin)
	}

	return nil
}

// Modulus returns a copy of the modulus q.
func (p Parameters) Modulus() *big.Int {
	return new(big.Int).Set(p.modulus)
}

// LogModulus returns the bit-length of the modulus, which is also the
// width of the shared values from which key bits are extracted.
func (p Parameters) LogModulus() int {
	return p.modulus.BitLen()
}

// SecretBound returns a copy of the exclusive upper bound of the secrets.
func (p Parameters) SecretBound() *big.Int {
	return new(big.Int).Set(p.secretBound)
}

// NoiseBound returns the bound B of the noise, sampled in [-B, B].
func (p Parameters) NoiseBound() int64 {
	return p.noiseBound
}

// Dimension returns the number of independent sub-exchanges, i.e. the
// length in bits of the derived key.
func (p Parameters) Dimension() int {
	return p.dimension
}

// Unsafe returns true if the margin checks were disabled.
func (p Parameters) Unsafe() bool {
	return p.unsafe
}

// LogMargin returns log2(q / (2*noiseBound*secretBound)), the number of bits separating
// the modulus from the largest possible difference between both parties' shared values.
// The probability that a key bit differs is about 2^(1-LogMargin).
// It returns +Inf for noiseless parameters.
func (p Parameters) LogMargin() float64 {

	if p.noiseBound == 0 {
		return math.Inf(1)
	}

	diff := new(big.Int).Mul(p.secretBound, big.NewInt(2*p.noiseBound))

	return bignum.Log2Int(p.modulus) - bignum.Log2Int(diff)
}

// ParametersLiteral returns the [ParametersLiteral] of the target [Parameters].
func (p Parameters) ParametersLiteral() ParametersLiteral {
	return ParametersLiteral{
		Modulus:     p.Modulus(),
		SecretBound: p.SecretBound(),
		NoiseBound:  p.noiseBound,
		Dimension:   p.dimension,
		LogMargin:   p.logMargin,
		Unsafe:      p.unsafe,
	}
}

// Equal checks two Parameter structs for equality.
func (p Parameters) Equal(other *Parameters) bool {
	return cmp.Equal(p.ParametersLiteral(), other.ParametersLiteral(), cmp.Comparer(func(a, b *big.Int) bool {
		if a == nil || b == nil {
			return a == b
		}
		return a.Cmp(b) == 0
	}))
}

// MarshalBinary returns a []byte representation of the parameter set.
func (p Parameters) MarshalBinary() ([]byte, error) {
	return p.MarshalJSON()
}

// UnmarshalBinary decodes a []byte into a parameter set struct.
func (p *Parameters) UnmarshalBinary(data []byte) (err error) {
	return p.UnmarshalJSON(data)
}

// MarshalJSON returns a JSON representation of this parameter set. See [json.Marshal].
func (p Parameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.ParametersLiteral())
}

// UnmarshalJSON reads a JSON representation of a parameter set into the receiver Parameter. See [json.Unmarshal].
func (p *Parameters) UnmarshalJSON(data []byte) (err error) {
	var params ParametersLiteral
	if err = json.Unmarshal(data, &params); err != nil {
		return
	}
	*p, err = NewParametersFromLiteral(params)
	return
}
