// Package bignum implements arbitrary precision arithmetic helpers.
package bignum

import (
	"fmt"
	"math/big"

	"github.com/ALTree/bigfloat"
)

// DefaultPrecision is the precision, in bits, used by the integer helpers of this package.
const DefaultPrecision = 128

const ln2 = "0.69314718055994530941723212145817656807550013436025525412068000949339362196969471560586332699641868754200148102057068573368552023"

// Ln2 returns ln(2) with prec bits of precision.
func Ln2(prec uint) *big.Float {
	ln2, _ := new(big.Float).SetPrec(prec).SetString(ln2)
	return ln2
}

// NewFloat creates a new big.Float element with "prec" bits of precision.
// Valide types for x are: int, int64, uint, uint64, float64, *big.Int or *big.Float.
func NewFloat(x interface{}, prec uint) (y *big.Float) {

	y = new(big.Float)
	y.SetPrec(prec)

	if x == nil {
		return
	}

	switch x := x.(type) {
	case int:
		y.SetInt64(int64(x))
	case int64:
		y.SetInt64(x)
	case uint:
		y.SetUint64(uint64(x))
	case uint64:
		y.SetUint64(x)
	case float64:
		y.SetFloat64(x)
	case *big.Int:
		y.SetInt(x)
	case *big.Float:
		y.Set(x)
	default:
		panic(fmt.Errorf("invalid x.(type): valide types are int, int64, uint, uint64, float64, *big.Int or *big.Float but is %T", x))
	}

	return
}

// Log return ln(x) with x.Prec() bits.
func Log(x *big.Float) (ln *big.Float) {
	return bigfloat.Log(x)
}

// Log2 returns log2(x) with x.Prec() bits.
// x must be strictly positive.
func Log2(x *big.Float) (y *big.Float) {
	y = Log(x)
	return y.Quo(y, Ln2(x.Prec()))
}

// Log2Int returns log2(x) as a float64, computed with [DefaultPrecision] bits.
// Unlike math.Log2, it does not lose precision on integers wider than 53 bits
// nor overflow on integers wider than 1024 bits.
// It panics if x is not strictly positive.
func Log2Int(x *big.Int) float64 {
	if x.Sign() <= 0 {
		panic(fmt.Errorf("invalid Log2Int argument: %v is not strictly positive", x))
	}
	f, _ := Log2(NewFloat(x, DefaultPrecision)).Float64()
	return f
}
