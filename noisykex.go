/*
Package noisykex is a pure Go implementation of a noisy, LWE-style, two-party key exchange.
Each party publishes its secrets masked by a public basis and a small noise term, and both
parties recover the same key from the most significant bits of their shared values.

The exchange itself is implemented in the kex package. The experiment package measures the
rate at which both parties disagree on key bits for a given set of parameters.
*/
package noisykex
