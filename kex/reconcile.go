package kex

import (
	"math/big"
)

// ExtractBit returns the most significant bit of shared, read as a
// non-negative integer of the bit-length of q.
//
// For valid parameters both parties' shared values differ by much less
// than q/2, so this bit agrees unless the value lies within that distance
// of 0 or 2^(bitlen(q)-1), which happens with negligible probability.
func ExtractBit(shared, q *big.Int) uint {
	return shared.Bit(q.BitLen() - 1)
}

// Reconcile extracts one key bit per shared value and assembles them into
// a [Key], the first value giving the most significant bit.
func Reconcile(shared []*big.Int, q *big.Int) Key {
	bits := make([]uint, len(shared))
	for i := range shared {
		bits[i] = ExtractBit(shared[i], q)
	}
	return AssembleKey(bits)
}
