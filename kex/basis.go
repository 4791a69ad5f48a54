package kex

import (
	"fmt"
	"math/big"

	"github.com/tuneinsight/noisykex/utils/sampling"
)

// Basis is the public vector of generators shared by both parties:
// one value uniformly distributed in [0, q) per dimension.
type Basis []*big.Int

// GenBasis samples a new [Basis] from src.
func GenBasis(params Parameters, src *sampling.Source) (Basis, error) {

	basis := make(Basis, params.Dimension())

	for i := range basis {
		var err error
		if basis[i], err = src.Uniform(params.modulus); err != nil {
			return nil, fmt.Errorf("cannot GenBasis: %w", err)
		}
	}

	return basis, nil
}

// GenBasisFromSeed expands a public seed into a [Basis]. The seed keys a
// [sampling.KeyedPRNG], which acts as a common reference string: both parties
// derive the same basis from the same seed, so only the seed has to be agreed on.
func GenBasisFromSeed(params Parameters, seed []byte) (Basis, error) {

	crs, err := sampling.NewKeyedPRNG(seed)
	if err != nil {
		return nil, fmt.Errorf("cannot GenBasisFromSeed: %w", err)
	}

	return GenBasis(params, sampling.NewSource(crs))
}

// NewBasis checks that values is a valid basis for params and returns a copy of it.
func NewBasis(params Parameters, values []*big.Int) (Basis, error) {

	if err := checkVector(params, "basis", values); err != nil {
		return nil, err
	}

	return Basis(values).CopyNew(), nil
}

// CopyNew returns a deep copy of the basis.
func (b Basis) CopyNew() Basis {
	cpy := make(Basis, len(b))
	for i := range b {
		cpy[i] = new(big.Int).Set(b[i])
	}
	return cpy
}

// Equal returns true if both basis hold the same values.
func (b Basis) Equal(other Basis) bool {
	return equalVectors(b, other)
}

func equalVectors(a, b []*big.Int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Cmp(b[i]) != 0 {
			return false
		}
	}
	return true
}

// checkVector returns an error wrapping [ErrInvalidParameters] unless values
// holds exactly Dimension non-nil values in [0, modulus).
func checkVector(params Parameters, name string, values []*big.Int) error {

	if len(values) != params.Dimension() {
		return fmt.Errorf("%w: %s has %d values but dimension is %d", ErrInvalidParameters, name, len(values), params.Dimension())
	}

	for i, v := range values {
		if v == nil || v.Sign() < 0 || v.Cmp(params.modulus) >= 0 {
			return fmt.Errorf("%w: %s value %d is not in [0, modulus)", ErrInvalidParameters, name, i)
		}
	}

	return nil
}
