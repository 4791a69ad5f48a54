/*
Package kex implements a minimal noisy key exchange in the style of the
Learning-With-Errors problem.

Two parties share a public basis b. Each party samples small secrets s and
publishes, per dimension, the noisy value p = b*s + e mod q where e is drawn
from a small symmetric interval. Each party then multiplies the other party's
noisy value by its own secret:

	Alice: (b*sB + eB)*sA = b*sA*sB + eB*sA mod q
	Bob:   (b*sA + eA)*sB = b*sA*sB + eA*sB mod q

Both shared values differ by at most 2*noiseBound*secretBound, which is
negligible with respect to q, so their most significant bit agrees except
with probability about 4*noiseBound*secretBound/q. One key bit is extracted
per dimension.

The construction is deliberately small and insecure: secrets are short enough
to be enumerated and the exchange is not authenticated.
*/
package kex

import (
	"errors"

	"github.com/tuneinsight/noisykex/utils/sampling"
)

var (
	// ErrRandomSourceUnavailable is returned when the secure random source fails.
	// Secrets cannot be generated without it and the exchange must be aborted.
	ErrRandomSourceUnavailable = sampling.ErrUnavailable

	// ErrInvalidParameters is returned when a parameter set is malformed or does not
	// leave a sufficient margin between the noise and the modulus.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrKeyMismatch is returned when both parties derive different keys.
	// It never occurs with valid parameters and a sound random source, it is
	// an assertion failure and must not be retried.
	ErrKeyMismatch = errors.New("key mismatch")

	// ErrInvalidState is returned when a party operation is called out of order.
	ErrInvalidState = errors.New("invalid party state")
)
