package kex

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/require"

	"github.com/tuneinsight/noisykex/utils/sampling"
)

var flagParamString = flag.String("params", "", "specify the test parameters as a JSON string. Overrides the default test suite.")

var testParametersLiteral = []ParametersLiteral{
	DefaultParametersLiteral,
	{
		Modulus:     big.NewInt(1<<61 - 1),
		SecretBound: big.NewInt(1 << 12),
		NoiseBound:  1,
		Dimension:   32,
		LogMargin:   16,
	},
	{
		LogModulus:     128,
		LogSecretBound: 20,
		NoiseBound:     1,
		Dimension:      64,
	},
	{
		LogModulus:     192,
		LogSecretBound: 32,
		NoiseBound:     4,
		Dimension:      96,
	},
}

func testString(params Parameters, opname string) string {
	return fmt.Sprintf("%s/logQ=%d/logS=%d/B=%d/n=%d",
		opname,
		params.LogModulus(),
		params.SecretBound().BitLen()-1,
		params.NoiseBound(),
		params.Dimension())
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("entropy pool exhausted")
}

// fixedNoiseSampler cycles through a fixed noise sequence.
type fixedNoiseSampler struct {
	values []int64
	i      int
}

func (ns *fixedNoiseSampler) Sample() (int64, error) {
	e := ns.values[ns.i%len(ns.values)]
	ns.i++
	return e, nil
}

func TestKex(t *testing.T) {

	var err error

	paramsLiterals := testParametersLiteral

	if *flagParamString != "" {
		var jsonParams ParametersLiteral
		if err = json.Unmarshal([]byte(*flagParamString), &jsonParams); err != nil {
			t.Fatal(err)
		}
		paramsLiterals = []ParametersLiteral{jsonParams}
	}

	src, err := sampling.NewSecureSource()
	require.NoError(t, err)

	for _, paramsLit := range paramsLiterals {

		var params Parameters
		if params, err = NewParametersFromLiteral(paramsLit); err != nil {
			t.Fatal(err)
		}

		for _, testSet := range []func(params Parameters, src *sampling.Source, t *testing.T){
			testBasis,
			testParty,
			testExchange,
			testStability,
		} {
			testSet(params, src, t)
		}
	}

	testNoiseSampler(src, t)
	testScenarios(t)
	testMismatch(t)
	testDeterminism(t)
	testConcurrentRuns(t)
	testRandomSourceUnavailable(t)
}

func testBasis(params Parameters, src *sampling.Source, t *testing.T) {

	t.Run(testString(params, "Basis/GenBasis"), func(t *testing.T) {
		basis, err := GenBasis(params, src)
		require.NoError(t, err)
		require.Len(t, basis, params.Dimension())

		q := params.Modulus()
		for _, b := range basis {
			require.True(t, b.Sign() >= 0 && b.Cmp(q) < 0)
		}

		cpy := basis.CopyNew()
		require.True(t, basis.Equal(cpy))
		cpy[0].Add(cpy[0], big.NewInt(1))
		require.False(t, basis.Equal(cpy))
	})

	t.Run(testString(params, "Basis/GenBasisFromSeed"), func(t *testing.T) {
		seed := []byte("public basis seed")

		b0, err := GenBasisFromSeed(params, seed)
		require.NoError(t, err)
		b1, err := GenBasisFromSeed(params, seed)
		require.NoError(t, err)
		require.True(t, b0.Equal(b1))

		b2, err := GenBasisFromSeed(params, []byte("another seed"))
		require.NoError(t, err)
		require.False(t, b0.Equal(b2))
	})

	t.Run(testString(params, "Basis/NewBasis"), func(t *testing.T) {
		basis, err := GenBasis(params, src)
		require.NoError(t, err)

		_, err = NewBasis(params, basis[1:])
		require.ErrorIs(t, err, ErrInvalidParameters)

		bad := basis.CopyNew()
		bad[0] = params.Modulus()
		_, err = NewBasis(params, bad)
		require.ErrorIs(t, err, ErrInvalidParameters)

		_, err = NewProtocol(params, bad)
		require.ErrorIs(t, err, ErrInvalidParameters)
	})
}

func testParty(params Parameters, src *sampling.Source, t *testing.T) {

	t.Run(testString(params, "Party/States"), func(t *testing.T) {

		basis, err := GenBasis(params, src)
		require.NoError(t, err)

		party := NewParty(params)
		require.Equal(t, Uninitialized, party.State())

		_, err = party.PublicValues(basis)
		require.ErrorIs(t, err, ErrInvalidState)

		_, err = party.SharedValues(NewPublicMessage(params, basis))
		require.ErrorIs(t, err, ErrInvalidState)

		require.NoError(t, party.GenSecrets(src))
		require.Equal(t, SecretsGenerated, party.State())
		require.ErrorIs(t, party.GenSecrets(src), ErrInvalidState)

		_, err = party.DeriveKey(NewPublicMessage(params, basis))
		require.NoError(t, err)
		require.Equal(t, KeyDerived, party.State())
		require.Equal(t, "KeyDerived", party.State().String())
	})

	t.Run(testString(params, "Party/Secrets"), func(t *testing.T) {

		party := NewParty(params)
		require.NoError(t, party.GenSecrets(src))
		require.Len(t, party.secrets, params.Dimension())

		bound := params.SecretBound()
		for _, s := range party.secrets {
			require.True(t, s.Sign() >= 0 && s.Cmp(bound) < 0)
		}

		_, err := NewPartyWithSecrets(params, party.secrets[1:])
		require.ErrorIs(t, err, ErrInvalidParameters)

		bad := make([]*big.Int, params.Dimension())
		for i := range bad {
			bad[i] = big.NewInt(1)
		}
		bad[0] = params.SecretBound()
		_, err = NewPartyWithSecrets(params, bad)
		require.ErrorIs(t, err, ErrInvalidParameters)
	})

	t.Run(testString(params, "Party/PublicValues"), func(t *testing.T) {

		basis, err := GenBasis(params, src)
		require.NoError(t, err)

		party := NewParty(params)
		require.NoError(t, party.GenSecrets(src))

		public, err := party.PublicValues(basis)
		require.NoError(t, err)

		q := params.Modulus()
		for i := range public {
			expected := new(big.Int).Mul(basis[i], party.secrets[i])
			require.Zero(t, expected.Mod(expected, q).Cmp(public[i]))
		}

		// pure: the same inputs give the same outputs
		again, err := party.PublicValues(basis)
		require.NoError(t, err)
		require.True(t, equalVectors(public, again))

		// noise stays within [-B, B] modulo q
		msg, err := party.NoisyPublicValues(public, NewNoiseSampler(src, params.NoiseBound()))
		require.NoError(t, err)
		require.NoError(t, msg.Check(params))

		for i := range public {
			diff := new(big.Int).Sub(msg.Values[i], public[i])
			diff.Add(diff, big.NewInt(params.NoiseBound()))
			diff.Mod(diff, q)
			require.True(t, diff.Cmp(big.NewInt(2*params.NoiseBound())) <= 0)
		}

		_, err = party.NoisyPublicValues(public[1:], NewNoiseSampler(src, params.NoiseBound()))
		require.ErrorIs(t, err, ErrInvalidParameters)

		_, err = party.PublicValues(basis[1:])
		require.ErrorIs(t, err, ErrInvalidParameters)

		// a basis that did not go through NewBasis is still checked
		for _, v := range []*big.Int{nil, params.Modulus(), big.NewInt(-1)} {
			bad := basis.CopyNew()
			bad[1] = v
			_, err = party.PublicValues(bad)
			require.ErrorIs(t, err, ErrInvalidParameters)

			_, err = party.NoisyPublicValues(bad, NewNoiseSampler(src, params.NoiseBound()))
			require.ErrorIs(t, err, ErrInvalidParameters)
		}
	})
}

func testExchange(params Parameters, src *sampling.Source, t *testing.T) {

	t.Run(testString(params, "Exchange"), func(t *testing.T) {
		for i := 0; i < 4; i++ {
			res, err := Exchange(params, src)
			require.NoError(t, err)
			require.Equal(t, params.Dimension(), res.KeyAlice.Len())
			require.True(t, res.KeyAlice.Equal(&res.KeyBob))
			require.Zero(t, res.KeyAlice.HammingDistance(res.KeyBob))
		}
	})

	t.Run(testString(params, "Protocol/Run"), func(t *testing.T) {

		basis, err := GenBasis(params, src)
		require.NoError(t, err)

		proto, err := NewProtocol(params, basis)
		require.NoError(t, err)
		protoParams := proto.Parameters()
		require.True(t, params.Equal(&protoParams))
		require.True(t, basis.Equal(proto.Basis()))

		alice, bob := NewParty(params), NewParty(params)
		require.NoError(t, alice.GenSecrets(src))
		require.NoError(t, bob.GenSecrets(src))

		res, err := proto.Run(alice, bob, NewNoiseSampler(src, params.NoiseBound()), NewNoiseSampler(src, params.NoiseBound()))
		require.NoError(t, err)
		require.True(t, res.KeyAlice.Equal(&res.KeyBob))

		// shared values are numerically close but generally not equal
		q := params.Modulus()
		maxDiff := new(big.Int).Mul(params.SecretBound(), big.NewInt(2*params.NoiseBound()))
		for i := range res.SharedAlice {
			d := new(big.Int).Sub(res.SharedAlice[i], res.SharedBob[i])
			d.Mod(d, q)
			if dNeg := new(big.Int).Sub(q, d); dNeg.Cmp(d) < 0 {
				d = dNeg
			}
			require.True(t, d.Cmp(maxDiff) <= 0)
		}

		// parties without secrets cannot run
		_, err = proto.Run(NewParty(params), bob, NewNoiseSampler(src, 1), NewNoiseSampler(src, 1))
		require.ErrorIs(t, err, ErrInvalidState)
	})
}

func testStability(params Parameters, src *sampling.Source, t *testing.T) {

	t.Run(testString(params, "Reconcile/Stability"), func(t *testing.T) {

		res, alice, _ := runFresh(t, params, src)

		shared, err := alice.SharedValues(res.Bob)
		require.NoError(t, err)
		require.True(t, equalVectors(res.SharedAlice, shared))

		key, err := alice.DeriveKey(res.Bob)
		require.NoError(t, err)
		require.True(t, key.Equal(&res.KeyAlice))

		q := params.Modulus()
		for i := range shared {
			require.Equal(t, ExtractBit(shared[i], q), key.Bit(i))
		}
	})

	t.Run(testString(params, "Reconcile/Independence"), func(t *testing.T) {

		res, alice, _ := runFresh(t, params, src)

		// tampering with one dimension leaves all the others untouched
		j := params.Dimension() / 2

		tampered := res.Bob.CopyNew()
		tampered.Values[j].Add(tampered.Values[j], new(big.Int).Rsh(params.Modulus(), 1))
		tampered.Values[j].Mod(tampered.Values[j], params.Modulus())

		shared, err := alice.SharedValues(tampered)
		require.NoError(t, err)

		for i := range shared {
			if i != j {
				require.Zero(t, shared[i].Cmp(res.SharedAlice[i]), "dimension %d changed", i)
			}
		}
	})
}

func runFresh(t *testing.T, params Parameters, src *sampling.Source) (Result, *Party, *Party) {

	basis, err := GenBasis(params, src)
	require.NoError(t, err)

	proto, err := NewProtocol(params, basis)
	require.NoError(t, err)

	alice, bob := NewParty(params), NewParty(params)
	require.NoError(t, alice.GenSecrets(src))
	require.NoError(t, bob.GenSecrets(src))

	res, err := proto.Run(alice, bob, NewNoiseSampler(src, params.NoiseBound()), NewNoiseSampler(src, params.NoiseBound()))
	require.NoError(t, err)

	return res, alice, bob
}

func testNoiseSampler(src *sampling.Source, t *testing.T) {

	t.Run("NoiseSampler/Ternary", func(t *testing.T) {

		const draws = 30000

		ns := NewNoiseSampler(src, 1)
		require.Equal(t, int64(1), ns.Bound())

		counts := map[int64]float64{}
		values := make(stats.Float64Data, draws)

		for i := range values {
			e, err := ns.Sample()
			require.NoError(t, err)
			require.Contains(t, []int64{-1, 0, 1}, e)
			counts[e]++
			values[i] = float64(e)
		}

		for _, e := range []int64{-1, 0, 1} {
			require.InDelta(t, 1.0/3, counts[e]/draws, 0.02, "noise %d", e)
		}

		mean, err := stats.Mean(values)
		require.NoError(t, err)
		require.InDelta(t, 0, mean, 0.03)

		variance, err := stats.PopulationVariance(values)
		require.NoError(t, err)
		require.InDelta(t, 2.0/3, variance, 0.03)
	})

	t.Run("NoiseSampler/Bounded", func(t *testing.T) {
		ns := NewNoiseSampler(src, -4)
		require.Equal(t, int64(4), ns.Bound())

		for i := 0; i < 1000; i++ {
			e, err := ns.Sample()
			require.NoError(t, err)
			require.True(t, e >= -4 && e <= 4)
		}

		e, err := NewNoiseSampler(src, 0).Sample()
		require.NoError(t, err)
		require.Zero(t, e)
	})

	t.Run("NoiseSampler/Perturb", func(t *testing.T) {
		q := big.NewInt(1<<31 - 1)

		require.Zero(t, AddNoise(big.NewInt(0), -1, q).Cmp(big.NewInt(1<<31-2)))
		require.Zero(t, AddNoise(big.NewInt(1<<31-2), 1, q).Cmp(big.NewInt(0)))
		require.Zero(t, AddNoise(big.NewInt(5), 0, q).Cmp(big.NewInt(5)))

		v, err := Perturb(&fixedNoiseSampler{values: []int64{-1}}, big.NewInt(0), q)
		require.NoError(t, err)
		require.True(t, v.Sign() >= 0)

		_, err = Perturb(NewNoiseSampler(sampling.NewSource(failingReader{}), 1), big.NewInt(0), q)
		require.ErrorIs(t, err, ErrRandomSourceUnavailable)
	})
}

// testScenarios runs the exchange on a small 31-bit modulus with fixed secrets
// and a forced noise sequence.
func testScenarios(t *testing.T) {

	q := big.NewInt(1<<31 - 1)

	params, err := NewParametersFromLiteral(ParametersLiteral{
		Modulus:     q,
		SecretBound: big.NewInt(256),
		NoiseBound:  1,
		Dimension:   8,
		LogMargin:   8,
	})
	require.NoError(t, err)

	toBigInts := func(v []int64) (out []*big.Int) {
		out = make([]*big.Int, len(v))
		for i := range v {
			out[i] = big.NewInt(v[i])
		}
		return
	}

	basis, err := NewBasis(params, toBigInts([]int64{1234567891, 987654321, 2000000011, 55555555, 1431655765, 123456789, 1717171717, 999999937}))
	require.NoError(t, err)

	secretsAlice := toBigInts([]int64{17, 200, 3, 255, 128, 77, 91, 250})
	secretsBob := toBigInts([]int64{201, 5, 166, 99, 31, 240, 13, 64})

	// key derived without any perturbation: MSB of basis[i]*sA[i]*sB[i] mod q
	direct := make([]uint, params.Dimension())
	for i := range direct {
		v := new(big.Int).Mul(basis[i], secretsAlice[i])
		v.Mul(v, secretsBob[i])
		direct[i] = ExtractBit(v.Mod(v, q), q)
	}
	directKey := AssembleKey(direct)
	require.Equal(t, "63", directKey.Hex())

	run := func(noise []int64) Result {
		alice, err := NewPartyWithSecrets(params, secretsAlice)
		require.NoError(t, err)
		bob, err := NewPartyWithSecrets(params, secretsBob)
		require.NoError(t, err)

		proto, err := NewProtocol(params, basis)
		require.NoError(t, err)

		res, err := proto.Run(alice, bob, &fixedNoiseSampler{values: noise}, &fixedNoiseSampler{values: noise})
		require.NoError(t, err)
		return res
	}

	t.Run("Scenario/ZeroNoise", func(t *testing.T) {
		res := run([]int64{0})
		require.True(t, equalVectors(res.SharedAlice, res.SharedBob))
		require.True(t, res.KeyAlice.Equal(&directKey))
		require.True(t, res.KeyBob.Equal(&directKey))
	})

	t.Run("Scenario/AlternatingNoise", func(t *testing.T) {
		res := run([]int64{1, -1})
		require.False(t, equalVectors(res.SharedAlice, res.SharedBob))
		require.True(t, res.KeyAlice.Equal(&res.KeyBob))
		require.Equal(t, "63", res.KeyAlice.Hex())
	})
}

// testMismatch forces a key bit flip with parameters that violate the margin.
func testMismatch(t *testing.T) {

	t.Run("Protocol/Run/KeyMismatch", func(t *testing.T) {

		params, err := NewParametersFromLiteral(ParametersLiteral{
			Modulus:     big.NewInt(255),
			SecretBound: big.NewInt(100),
			NoiseBound:  1,
			Dimension:   1,
			Unsafe:      true,
		})
		require.NoError(t, err)

		basis, err := NewBasis(params, []*big.Int{big.NewInt(51)})
		require.NoError(t, err)

		alice, err := NewPartyWithSecrets(params, []*big.Int{big.NewInt(11)})
		require.NoError(t, err)
		bob, err := NewPartyWithSecrets(params, []*big.Int{big.NewInt(27)})
		require.NoError(t, err)

		proto, err := NewProtocol(params, basis)
		require.NoError(t, err)

		res, err := proto.Run(alice, bob, &fixedNoiseSampler{values: []int64{1}}, &fixedNoiseSampler{values: []int64{1}})
		require.ErrorIs(t, err, ErrKeyMismatch)

		require.Zero(t, big.NewInt(113).Cmp(res.SharedAlice[0]))
		require.Zero(t, big.NewInt(129).Cmp(res.SharedBob[0]))
		require.Equal(t, 1, res.KeyAlice.HammingDistance(res.KeyBob))
	})
}

// testDeterminism checks that the exchange is a deterministic function of its randomness.
func testDeterminism(t *testing.T) {

	t.Run("Protocol/Run/Deterministic", func(t *testing.T) {

		params, err := NewParametersFromLiteral(DefaultParametersLiteral)
		require.NoError(t, err)

		newSource := func(key string) *sampling.Source {
			prng, err := sampling.NewKeyedPRNG([]byte(key))
			require.NoError(t, err)
			return sampling.NewSource(prng)
		}

		run := func() Result {
			basis, err := GenBasisFromSeed(params, []byte("seed"))
			require.NoError(t, err)

			proto, err := NewProtocol(params, basis)
			require.NoError(t, err)

			alice, bob := NewParty(params), NewParty(params)
			require.NoError(t, alice.GenSecrets(newSource("alice secrets")))
			require.NoError(t, bob.GenSecrets(newSource("bob secrets")))

			res, err := proto.Run(alice, bob,
				NewNoiseSampler(newSource("alice noise"), 1),
				NewNoiseSampler(newSource("bob noise"), 1))
			require.NoError(t, err)
			return res
		}

		r0, r1 := run(), run()
		require.True(t, r0.Alice.Equal(&r1.Alice))
		require.True(t, r0.Bob.Equal(&r1.Bob))
		require.True(t, r0.KeyAlice.Equal(&r1.KeyAlice))
	})

	t.Run("Exchange/Deterministic", func(t *testing.T) {

		params, err := NewParametersFromLiteral(ParametersLiteral{
			LogModulus:     128,
			LogSecretBound: 20,
			NoiseBound:     1,
			Dimension:      64,
		})
		require.NoError(t, err)

		exchange := func() Result {
			prng, err := sampling.NewKeyedPRNG([]byte("exchange seed"))
			require.NoError(t, err)
			res, err := Exchange(params, sampling.NewSource(prng))
			require.NoError(t, err)
			return res
		}

		r0 := exchange()

		// both parties sample their noise concurrently: repeat to catch
		// any dependency on the scheduling
		for i := 0; i < 32; i++ {
			r1 := exchange()
			require.True(t, r0.Alice.Equal(&r1.Alice), "run %d", i)
			require.True(t, r0.Bob.Equal(&r1.Bob), "run %d", i)
			require.True(t, r0.KeyAlice.Equal(&r1.KeyAlice), "run %d", i)
		}

		require.False(t, r0.Alice.Equal(&r0.Bob))
	})
}

// testConcurrentRuns checks that independent exchanges do not interfere.
func testConcurrentRuns(t *testing.T) {

	t.Run("Exchange/Concurrent", func(t *testing.T) {

		params, err := NewParametersFromLiteral(DefaultParametersLiteral)
		require.NoError(t, err)

		const runs = 8

		results := make([]Result, runs)
		errs := make([]error, runs)

		var wg sync.WaitGroup
		for i := 0; i < runs; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				prng, err := sampling.NewKeyedPRNG([]byte(fmt.Sprintf("run %d", i)))
				if err != nil {
					errs[i] = err
					return
				}
				results[i], errs[i] = Exchange(params, sampling.NewSource(prng))
			}(i)
		}
		wg.Wait()

		for i := 0; i < runs; i++ {
			require.NoError(t, errs[i])
			require.True(t, results[i].KeyAlice.Equal(&results[i].KeyBob))
		}

		// distinct runs yield distinct keys
		require.False(t, results[0].KeyAlice.Equal(&results[1].KeyAlice))
	})
}

func testRandomSourceUnavailable(t *testing.T) {

	t.Run("Exchange/RandomSourceUnavailable", func(t *testing.T) {

		params, err := NewParametersFromLiteral(DefaultParametersLiteral)
		require.NoError(t, err)

		broken := sampling.NewSource(failingReader{})

		_, err = Exchange(params, broken)
		require.ErrorIs(t, err, ErrRandomSourceUnavailable)

		require.ErrorIs(t, NewParty(params).GenSecrets(broken), ErrRandomSourceUnavailable)

		_, err = GenBasis(params, broken)
		require.ErrorIs(t, err, ErrRandomSourceUnavailable)
	})
}
