package kex

import (
	"fmt"
	"math/big"

	"github.com/tuneinsight/noisykex/utils"
	"github.com/tuneinsight/noisykex/utils/sampling"
)

// NoiseSampler is an interface for samplers of small signed noise terms.
type NoiseSampler interface {
	Sample() (e int64, err error)
}

// UniformNoiseSampler samples noise terms uniformly in [-Bound, Bound].
// With Bound = 1, the three outcomes {-1, 0, 1} are equiprobable.
type UniformNoiseSampler struct {
	src   *sampling.Source
	bound int64
}

// NewNoiseSampler creates a new [UniformNoiseSampler] drawing from src.
func NewNoiseSampler(src *sampling.Source, bound int64) *UniformNoiseSampler {
	return &UniformNoiseSampler{src: src, bound: utils.Abs(bound)}
}

// Bound returns the bound of the sampler.
func (ns *UniformNoiseSampler) Bound() int64 {
	return ns.bound
}

// Sample returns a noise term uniformly distributed in [-Bound, Bound].
func (ns *UniformNoiseSampler) Sample() (e int64, err error) {

	var r uint64
	if r, err = ns.src.UniformUint64(uint64(2*ns.bound + 1)); err != nil {
		return 0, fmt.Errorf("cannot Sample: %w", err)
	}

	return int64(r) - ns.bound, nil
}

// AddNoise returns (value + e + q) mod q.
// The result is non-negative as long as |e| < q.
func AddNoise(value *big.Int, e int64, q *big.Int) *big.Int {
	out := new(big.Int).Add(value, big.NewInt(e))
	out.Add(out, q)
	return out.Mod(out, q)
}

// Perturb draws a noise term from ns and returns (value + e + q) mod q.
func Perturb(ns NoiseSampler, value, q *big.Int) (*big.Int, error) {
	e, err := ns.Sample()
	if err != nil {
		return nil, err
	}
	return AddNoise(value, e, q), nil
}
