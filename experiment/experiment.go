// Package experiment measures how often both parties of the exchange derive
// different keys, by running many independent exchanges.
package experiment

import (
	"errors"
	"fmt"
	"sync"

	"github.com/montanaflynn/stats"

	"github.com/tuneinsight/noisykex/kex"
	"github.com/tuneinsight/noisykex/utils/sampling"
)

// Report aggregates the outcome of repeated exchanges.
type Report struct {
	Params kex.Parameters

	// Trials is the number of exchanges run.
	Trials int
	// FailedTrials is the number of exchanges whose keys differ.
	FailedTrials int
	// Bits is the total number of key bits compared.
	Bits int
	// Mismatches is the total number of key bits that differ.
	Mismatches int

	// Rates is the per-trial fraction of differing bits.
	Rates stats.Float64Data

	MeanRate   float64
	StdDevRate float64
	MaxRate    float64
}

// MismatchRate returns the fraction of key bits that differed over all trials.
func (r Report) MismatchRate() float64 {
	if r.Bits == 0 {
		return 0
	}
	return float64(r.Mismatches) / float64(r.Bits)
}

// Run executes trials independent exchanges with the given parameters, spread over
// workers goroutines, all randomness being drawn from src.
//
// A key mismatch is not an error here: it is counted in the [Report]. Any other
// error, such as [kex.ErrRandomSourceUnavailable], aborts the run.
func Run(params kex.Parameters, trials, workers int, src *sampling.Source) (Report, error) {

	if trials < 1 {
		return Report{}, fmt.Errorf("cannot Run: trials=%d must be positive", trials)
	}

	if workers < 1 {
		workers = 1
	}

	rates := make(stats.Float64Data, trials)
	mismatches := make([]int, trials)
	errs := make([]error, trials)

	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				mismatches[i], errs[i] = trial(params, src)
				rates[i] = float64(mismatches[i]) / float64(params.Dimension())
			}
		}()
	}

	for i := 0; i < trials; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return Report{}, fmt.Errorf("cannot Run: %w", err)
	}

	report := Report{
		Params: params,
		Trials: trials,
		Bits:   trials * params.Dimension(),
		Rates:  rates,
	}

	for _, m := range mismatches {
		report.Mismatches += m
		if m != 0 {
			report.FailedTrials++
		}
	}

	var err error
	if report.MeanRate, err = stats.Mean(rates); err != nil {
		return Report{}, fmt.Errorf("cannot Run: %w", err)
	}

	if report.StdDevRate, err = stats.StandardDeviation(rates); err != nil {
		return Report{}, fmt.Errorf("cannot Run: %w", err)
	}

	if report.MaxRate, err = stats.Max(rates); err != nil {
		return Report{}, fmt.Errorf("cannot Run: %w", err)
	}

	return report, nil
}

func trial(params kex.Parameters, src *sampling.Source) (mismatches int, err error) {

	res, err := kex.Exchange(params, src)

	switch {
	case err == nil:
		return 0, nil
	case errors.Is(err, kex.ErrKeyMismatch):
		return res.KeyAlice.HammingDistance(res.KeyBob), nil
	default:
		return 0, err
	}
}

// SampleNoise draws n noise terms from ns and returns the number of
// occurrences of each value.
func SampleNoise(ns kex.NoiseSampler, n int) (histogram map[int64]int, err error) {

	histogram = map[int64]int{}

	for i := 0; i < n; i++ {
		var e int64
		if e, err = ns.Sample(); err != nil {
			return nil, fmt.Errorf("cannot SampleNoise: %w", err)
		}
		histogram[e]++
	}

	return histogram, nil
}
