package kex

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/tuneinsight/noisykex/utils/sampling"
)

// Protocol orchestrates a single round of the exchange between two parties
// over a shared public basis.
type Protocol struct {
	params Parameters
	basis  Basis
}

// Result stores the public view and the outcome of an exchange.
type Result struct {
	// Alice and Bob are the messages sent by each party.
	Alice, Bob PublicMessage

	// SharedAlice and SharedBob are the shared values computed locally by each party.
	SharedAlice, SharedBob []*big.Int

	// KeyAlice and KeyBob are the keys reconciled by each party.
	KeyAlice, KeyBob Key
}

// NewProtocol creates a new [Protocol] instance for the given parameters and basis.
func NewProtocol(params Parameters, basis Basis) (*Protocol, error) {

	basis, err := NewBasis(params, basis)
	if err != nil {
		return nil, fmt.Errorf("cannot NewProtocol: %w", err)
	}

	return &Protocol{params: params, basis: basis}, nil
}

// Parameters returns the parameters of the protocol.
func (p *Protocol) Parameters() Parameters {
	return p.params
}

// Basis returns a copy of the public basis of the protocol.
func (p *Protocol) Basis() Basis {
	return p.basis.CopyNew()
}

// GenMessage computes the public values of party and perturbs them with noise
// drawn from ns. The returned message is the only data the party sends.
func (p *Protocol) GenMessage(party *Party, ns NoiseSampler) (PublicMessage, error) {

	public, err := party.PublicValues(p.basis)
	if err != nil {
		return PublicMessage{}, err
	}

	return party.NoisyPublicValues(public, ns)
}

// Run executes the exchange between two parties holding secrets.
//
// Both messages are computed concurrently, exchanged, then both keys are derived
// concurrently. If the keys differ, Run returns the full [Result] along with an
// error wrapping [ErrKeyMismatch]; this signals invalid parameters or a defective
// random source and must not be retried.
func (p *Protocol) Run(alice, bob *Party, nsAlice, nsBob NoiseSampler) (res Result, err error) {

	var wg sync.WaitGroup
	var errAlice, errBob error

	wg.Add(2)
	go func() {
		defer wg.Done()
		res.Alice, errAlice = p.GenMessage(alice, nsAlice)
	}()
	go func() {
		defer wg.Done()
		res.Bob, errBob = p.GenMessage(bob, nsBob)
	}()
	wg.Wait()

	if err = errors.Join(errAlice, errBob); err != nil {
		return Result{}, fmt.Errorf("cannot Run: %w", err)
	}

	// Messages crossed the channel: each party now only sees the other's message.
	wg.Add(2)
	go func() {
		defer wg.Done()
		res.SharedAlice, res.KeyAlice, errAlice = alice.derive(res.Bob)
	}()
	go func() {
		defer wg.Done()
		res.SharedBob, res.KeyBob, errBob = bob.derive(res.Alice)
	}()
	wg.Wait()

	if err = errors.Join(errAlice, errBob); err != nil {
		return Result{}, fmt.Errorf("cannot Run: %w", err)
	}

	if !res.KeyAlice.Equal(&res.KeyBob) {
		return res, fmt.Errorf("%w: %d of %d bits differ", ErrKeyMismatch, res.KeyAlice.HammingDistance(res.KeyBob), res.KeyAlice.Len())
	}

	return res, nil
}

// Exchange runs a complete single-shot exchange: a fresh basis, fresh secrets
// for both parties and all noise terms are drawn from src. The result is a
// deterministic function of the bytes read from src.
func Exchange(params Parameters, src *sampling.Source) (Result, error) {

	basis, err := GenBasis(params, src)
	if err != nil {
		return Result{}, fmt.Errorf("cannot Exchange: %w", err)
	}

	proto, err := NewProtocol(params, basis)
	if err != nil {
		return Result{}, fmt.Errorf("cannot Exchange: %w", err)
	}

	alice, bob := NewParty(params), NewParty(params)

	for _, party := range []*Party{alice, bob} {
		if err = party.GenSecrets(src); err != nil {
			return Result{}, fmt.Errorf("cannot Exchange: %w", err)
		}
	}

	// Run samples both parties' noise concurrently: each party gets its own
	// stream, keyed from src, so that the exchange only depends on src.
	var ns [2]NoiseSampler
	for i := range ns {
		if ns[i], err = newKeyedNoiseSampler(src, params.NoiseBound()); err != nil {
			return Result{}, fmt.Errorf("cannot Exchange: %w", err)
		}
	}

	return proto.Run(alice, bob, ns[0], ns[1])
}

// NoiseSeedSize is the size in bytes of the seeds of the per-party noise streams.
const NoiseSeedSize = 32

func newKeyedNoiseSampler(src *sampling.Source, bound int64) (NoiseSampler, error) {

	seed := make([]byte, NoiseSeedSize)
	if _, err := src.Read(seed); err != nil {
		return nil, err
	}

	prng, err := sampling.NewKeyedPRNG(seed)
	if err != nil {
		return nil, err
	}

	return NewNoiseSampler(sampling.NewSource(prng), bound), nil
}
