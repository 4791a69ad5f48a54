package kex

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"math/bits"
)

// Key is the shared secret derived by the exchange: a fixed-length
// sequence of bits, the first dimension being the most significant bit.
type Key struct {
	n     int
	value *big.Int
}

// AssembleKey concatenates bits, most significant first, into a [Key] of len(bits) bits.
// Only the least significant bit of each element is used.
func AssembleKey(bits []uint) Key {
	value := new(big.Int)
	for _, b := range bits {
		value.Lsh(value, 1)
		value.SetBit(value, 0, b&1)
	}
	return Key{n: len(bits), value: value}
}

// KeyFromHex decodes a key of n bits from its fixed-width hexadecimal
// representation, as produced by [Key.Hex].
func KeyFromHex(s string, n int) (Key, error) {

	if n < 0 {
		return Key{}, fmt.Errorf("cannot KeyFromHex: negative length %d", n)
	}

	if len(s) != hexWidth(n) {
		return Key{}, fmt.Errorf("cannot KeyFromHex: expected %d hexadecimal digits but got %d", hexWidth(n), len(s))
	}

	value := new(big.Int)

	if n == 0 {
		return Key{value: value}, nil
	}

	// digits only: no sign, prefix or separator
	if len(s)&1 == 1 {
		s = "0" + s
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("cannot KeyFromHex: %w", err)
	}

	value.SetBytes(b)

	if value.BitLen() > n {
		return Key{}, fmt.Errorf("cannot KeyFromHex: value exceeds %d bits", n)
	}

	return Key{n: n, value: value}, nil
}

func hexWidth(n int) int {
	return (n + 3) >> 2
}

// Len returns the length of the key in bits.
func (k Key) Len() int {
	return k.n
}

// Bit returns the i-th bit of the key, the bit 0 being the most significant.
func (k Key) Bit(i int) uint {
	if i < 0 || i >= k.n {
		panic(fmt.Errorf("key bit index %d out of range [0, %d)", i, k.n))
	}
	return k.value.Bit(k.n - 1 - i)
}

// Bits returns the bits of the key, most significant first.
func (k Key) Bits() []uint {
	out := make([]uint, k.n)
	for i := range out {
		out[i] = k.Bit(i)
	}
	return out
}

// BigInt returns the key as an unsigned integer of Len bits.
func (k Key) BigInt() *big.Int {
	if k.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(k.value)
}

// Bytes returns the key in big-endian on ceil(Len/8) bytes.
func (k Key) Bytes() []byte {
	return k.BigInt().FillBytes(make([]byte, (k.n+7)>>3))
}

// Hex returns the key as a fixed-width hexadecimal string of ceil(Len/4) digits.
func (k Key) Hex() string {
	if k.n == 0 {
		return ""
	}
	return fmt.Sprintf("%0*x", hexWidth(k.n), k.BigInt())
}

// String implements [fmt.Stringer].
func (k Key) String() string {
	return k.Hex()
}

// Equal returns true if both keys have the same length and bits.
func (k Key) Equal(other *Key) bool {
	return k.n == other.n && k.BigInt().Cmp(other.BigInt()) == 0
}

// HammingDistance returns the number of bits that differ between both keys.
// Keys of different lengths are compared on their leading bits, the extra
// bits of the longest key being all counted as different.
func (k Key) HammingDistance(other Key) (d int) {

	a, b := k, other
	if a.n < b.n {
		a, b = b, a
	}

	prefix := new(big.Int).Rsh(a.BigInt(), uint(a.n-b.n))
	diff := prefix.Xor(prefix, b.BigInt())

	for _, w := range diff.Bits() {
		d += bits.OnesCount(uint(w))
	}

	return d + a.n - b.n
}
