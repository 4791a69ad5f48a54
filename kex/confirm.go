package kex

import (
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

const (
	confirmationContext = "noisykex 2024 key confirmation"
	sessionKeyInfo      = "noisykex 2024 session key"

	// TagSize is the size in bytes of a confirmation tag and of a transcript digest.
	TagSize = 32
)

// Transcript returns a digest of the public view of an exchange: the
// parameters, the basis and both messages, in that order.
func Transcript(params Parameters, basis Basis, alice, bob PublicMessage) ([]byte, error) {

	hasher := blake3.New()

	data, err := params.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("cannot Transcript: %w", err)
	}

	if _, err = hasher.Write(data); err != nil {
		return nil, fmt.Errorf("cannot Transcript: %w", err)
	}

	// values are re-encoded on the modulus width so that the digest does not
	// depend on how the messages were decoded
	for _, values := range [][]*big.Int{basis, alice.Values, bob.Values} {
		if _, err = NewPublicMessage(params, values).WriteTo(hasher); err != nil {
			return nil, fmt.Errorf("cannot Transcript: %w", err)
		}
	}

	return hasher.Sum(nil)[:TagSize], nil
}

// ConfirmationTag returns a MAC of the transcript keyed by the reconciled key.
// Parties exchange their tags to detect a key mismatch without revealing
// their keys.
func ConfirmationTag(key Key, transcript []byte) ([]byte, error) {

	macKey := make([]byte, TagSize)
	blake3.DeriveKey(confirmationContext, key.Bytes(), macKey)

	hasher, err := blake3.NewKeyed(macKey)
	if err != nil {
		return nil, fmt.Errorf("cannot ConfirmationTag: %w", err)
	}

	if _, err = hasher.Write(transcript); err != nil {
		return nil, fmt.Errorf("cannot ConfirmationTag: %w", err)
	}

	return hasher.Sum(nil)[:TagSize], nil
}

// VerifyConfirmation checks in constant time that tag was produced from
// the same key and transcript. A failed check means the parties' keys
// differ, i.e. [ErrKeyMismatch].
func VerifyConfirmation(key Key, transcript, tag []byte) error {

	expected, err := ConfirmationTag(key, transcript)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare(expected, tag) != 1 {
		return fmt.Errorf("%w: confirmation tag does not match", ErrKeyMismatch)
	}

	return nil
}

// SessionKey whitens the reconciled key into size uniformly random bytes
// bound to the transcript, using HKDF over SHA3-256.
func SessionKey(key Key, transcript []byte, size int) ([]byte, error) {

	if size <= 0 {
		return nil, fmt.Errorf("cannot SessionKey: invalid size %d", size)
	}

	kdf := hkdf.New(sha3.New256, key.Bytes(), transcript, []byte(sessionKeyInfo))

	out := make([]byte, size)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, fmt.Errorf("cannot SessionKey: %w", err)
	}

	return out, nil
}
