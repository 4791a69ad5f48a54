// Package sampling implements secure sampling of bytes and integers.
package sampling

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"math/bits"
)

// ErrUnavailable is returned when the underlying byte source cannot
// provide the requested randomness.
var ErrUnavailable = errors.New("random source unavailable")

// Source draws uniformly distributed integers from a [PRNG].
// A Source holds no state besides its PRNG, hence it is safe for
// concurrent use whenever the PRNG is.
type Source struct {
	prng PRNG
}

// NewSource creates a new [Source] reading from prng.
func NewSource(prng PRNG) *Source {
	return &Source{prng: prng}
}

// NewSecureSource returns a [Source] backed by the operating system's
// cryptographically secure generator.
func NewSecureSource() (*Source, error) {
	prng, err := NewPRNG()
	if err != nil {
		return nil, err
	}
	return NewSource(prng), nil
}

// Read fills b with random bytes. It never returns short reads.
func (s *Source) Read(b []byte) (n int, err error) {
	if n, err = io.ReadFull(s.prng, b); err != nil {
		return n, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return n, nil
}

// Uniform returns an integer uniformly distributed in [0, bound).
//
// The value is sampled by rejection: ceil(bitlen(bound-1)/8) bytes are read,
// the excess high bits are masked off and the draw is repeated until the
// candidate falls below bound. Each draw succeeds with probability > 1/2.
func (s *Source) Uniform(bound *big.Int) (*big.Int, error) {

	if bound == nil || bound.Sign() <= 0 {
		return nil, fmt.Errorf("cannot Uniform: bound must be positive")
	}

	max := new(big.Int).Sub(bound, big.NewInt(1))
	bitLen := max.BitLen()

	if bitLen == 0 {
		return new(big.Int), nil
	}

	buf := make([]byte, (bitLen+7)>>3)

	// Mask for the most significant byte
	mask := byte(0xFF)
	if r := bitLen & 7; r != 0 {
		mask = byte(1<<r) - 1
	}

	n := new(big.Int)
	for {
		if _, err := s.Read(buf); err != nil {
			return nil, fmt.Errorf("cannot Uniform: %w", err)
		}

		buf[0] &= mask

		if n.SetBytes(buf).Cmp(bound) < 0 {
			return n, nil
		}
	}
}

// UniformUint64 returns an integer uniformly distributed in [0, bound).
func (s *Source) UniformUint64(bound uint64) (uint64, error) {

	if bound == 0 {
		return 0, fmt.Errorf("cannot UniformUint64: bound must be positive")
	}

	bitLen := bits.Len64(bound - 1)

	if bitLen == 0 {
		return 0, nil
	}

	// wraps to 0xFFFFFFFFFFFFFFFF for bitLen = 64
	var mask uint64 = 1<<bitLen - 1

	size := (bitLen + 7) >> 3
	buf := make([]byte, size)

	for {
		if _, err := s.Read(buf); err != nil {
			return 0, fmt.Errorf("cannot UniformUint64: %w", err)
		}

		var randomUint uint64
		for i := range buf {
			randomUint = randomUint<<8 | uint64(buf[i])
		}

		if randomUint &= mask; randomUint < bound {
			return randomUint, nil
		}
	}
}
