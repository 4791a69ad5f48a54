package kex

import (
	"fmt"
	"math/big"

	"github.com/tuneinsight/noisykex/utils/sampling"
)

// State is the progress of a [Party] through the exchange.
type State int

const (
	// Uninitialized parties hold no secret.
	Uninitialized State = iota
	// SecretsGenerated parties can compute their public values and shared values.
	SecretsGenerated
	// KeyDerived parties have reconciled a key from the other party's message.
	KeyDerived
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case SecretsGenerated:
		return "SecretsGenerated"
	case KeyDerived:
		return "KeyDerived"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Party holds one side's per-dimension secrets. The secrets never leave
// the party: only the noisy public values computed from them are released.
//
// A Party is not safe for concurrent use, but distinct parties share no state.
type Party struct {
	params  Parameters
	state   State
	secrets []*big.Int
}

// NewParty creates a new [Party] in the [Uninitialized] state.
func NewParty(params Parameters) *Party {
	return &Party{params: params}
}

// NewPartyWithSecrets creates a new [Party] holding a copy of the given secrets.
// Each secret must be in [0, secretBound).
func NewPartyWithSecrets(params Parameters, secrets []*big.Int) (*Party, error) {

	if len(secrets) != params.Dimension() {
		return nil, fmt.Errorf("%w: %d secrets given but dimension is %d", ErrInvalidParameters, len(secrets), params.Dimension())
	}

	p := NewParty(params)
	p.secrets = make([]*big.Int, len(secrets))

	for i, s := range secrets {
		if s == nil || s.Sign() < 0 || s.Cmp(params.secretBound) >= 0 {
			return nil, fmt.Errorf("%w: secret %d is not in [0, secretBound)", ErrInvalidParameters, i)
		}
		p.secrets[i] = new(big.Int).Set(s)
	}

	p.state = SecretsGenerated

	return p, nil
}

// State returns the current state of the party.
func (p *Party) State() State {
	return p.state
}

// Parameters returns the parameters of the party.
func (p *Party) Parameters() Parameters {
	return p.params
}

// GenSecrets samples one secret per dimension, uniformly in [0, secretBound).
// Secrets are generated once: calling GenSecrets on a party that already
// holds secrets returns an error wrapping [ErrInvalidState].
func (p *Party) GenSecrets(src *sampling.Source) (err error) {

	if p.state != Uninitialized {
		return fmt.Errorf("cannot GenSecrets: %w: party is %s", ErrInvalidState, p.state)
	}

	secrets := make([]*big.Int, p.params.Dimension())
	for i := range secrets {
		if secrets[i], err = src.Uniform(p.params.secretBound); err != nil {
			return fmt.Errorf("cannot GenSecrets: %w", err)
		}
	}

	p.secrets = secrets
	p.state = SecretsGenerated

	return nil
}

// PublicValues returns the noiseless public values basis[i]*s[i] mod q.
// It is a pure function of the secrets and the basis.
func (p *Party) PublicValues(basis Basis) ([]*big.Int, error) {

	if err := p.checkSecrets("PublicValues"); err != nil {
		return nil, err
	}

	if err := checkVector(p.params, "basis", basis); err != nil {
		return nil, fmt.Errorf("cannot PublicValues: %w", err)
	}

	return p.mulSecrets(basis), nil
}

// NoisyPublicValues perturbs each public value with an independent noise
// term drawn from ns and returns them as the message to send to the other party.
func (p *Party) NoisyPublicValues(public []*big.Int, ns NoiseSampler) (PublicMessage, error) {

	if err := checkVector(p.params, "public values", public); err != nil {
		return PublicMessage{}, fmt.Errorf("cannot NoisyPublicValues: %w", err)
	}

	noisy := make([]*big.Int, len(public))
	for i := range public {
		var err error
		if noisy[i], err = Perturb(ns, public[i], p.params.modulus); err != nil {
			return PublicMessage{}, fmt.Errorf("cannot NoisyPublicValues: %w", err)
		}
	}

	return NewPublicMessage(p.params, noisy), nil
}

// SharedValues returns, for each dimension, other[i]*s[i] mod q where other
// is the message received from the other party.
// Calling it several times with the same message yields the same values.
func (p *Party) SharedValues(other PublicMessage) ([]*big.Int, error) {

	if err := p.checkSecrets("SharedValues"); err != nil {
		return nil, err
	}

	if err := other.Check(p.params); err != nil {
		return nil, fmt.Errorf("cannot SharedValues: %w", err)
	}

	return p.mulSecrets(other.Values), nil
}

// DeriveKey computes the shared values from the other party's message and
// reconciles them into a key of Dimension bits.
func (p *Party) DeriveKey(other PublicMessage) (Key, error) {
	_, key, err := p.derive(other)
	return key, err
}

func (p *Party) derive(other PublicMessage) (shared []*big.Int, key Key, err error) {

	if shared, err = p.SharedValues(other); err != nil {
		return nil, Key{}, err
	}

	p.state = KeyDerived

	return shared, Reconcile(shared, p.params.modulus), nil
}

func (p *Party) checkSecrets(op string) error {
	if p.state == Uninitialized {
		return fmt.Errorf("cannot %s: %w: party is %s", op, ErrInvalidState, p.state)
	}
	return nil
}

func (p *Party) mulSecrets(values []*big.Int) []*big.Int {
	q := p.params.modulus
	out := make([]*big.Int, len(values))
	for i := range values {
		out[i] = new(big.Int).Mul(values[i], p.secrets[i])
		out[i].Mod(out[i], q)
	}
	return out
}
