package surrogate

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"gotrend/domain/core"
	"gotrend/domain/series"
	"gotrend/domain/trend"
	"gotrend/internal/rng"
)

// IAAFTConfig configures iterated amplitude-adjusted Fourier transform
// synthesis for evenly spaced series.
type IAAFTConfig struct {
	N       int     // ensemble size
	MaxIter int     // iteration cap per realization
	Tol     float64 // convergence threshold on relative squared change
	Seed    int64
}

func (cfg *IAAFTConfig) applyDefaults() {
	if cfg.N == 0 {
		cfg.N = 99
	}
	if cfg.MaxIter == 0 {
		cfg.MaxIter = 100
	}
	if cfg.Tol == 0 {
		cfg.Tol = 1e-8
	}
}

// iterPhase is the state of the IAAFT refinement loop.
type iterPhase int

const (
	phaseInitializing iterPhase = iota
	phaseIterating
	phaseConverged
	phaseStalled
	phaseMaxIterReached
)

// iterTracker decides, from one observed change value at a time, whether
// the refinement should continue. Pure state transitions, no numeric work.
type iterTracker struct {
	phase      iterPhase
	tol        float64
	maxIter    int
	iter       int
	lastChange float64
}

func newIterTracker(tol float64, maxIter int) *iterTracker {
	return &iterTracker{phase: phaseInitializing, tol: tol, maxIter: maxIter}
}

// observe feeds the relative squared change of the latest iterate and
// returns the resulting phase. Stalling means the change stopped
// decreasing; the caller keeps the better prior iterate in that case.
func (t *iterTracker) observe(change float64) iterPhase {
	t.iter++
	switch {
	case change < t.tol:
		t.phase = phaseConverged
	case t.phase == phaseIterating && change >= t.lastChange:
		t.phase = phaseStalled
	case t.iter >= t.maxIter:
		t.phase = phaseMaxIterReached
	default:
		t.phase = phaseIterating
	}
	t.lastChange = change
	return t.phase
}

func (t *iterTracker) done() bool {
	return t.phase == phaseConverged || t.phase == phaseStalled || t.phase == phaseMaxIterReached
}

// GenerateIAAFT builds an ensemble of surrogates for an evenly spaced
// series. Each realization starts from a random permutation of the input
// and alternates two projections until convergence: onto the set of series
// with the original's FFT magnitudes, then onto the set with the original's
// exact value multiset.
func GenerateIAAFT(ts series.TimeSeries, cfg IAAFTConfig) (*Ensemble, error) {
	if err := ts.Validate(2); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	variance := ts.Variance()
	if variance == 0 {
		return constantEnsemble(ts.Values, cfg.N, trend.MethodIAAFT), nil
	}

	n := len(ts.Values)
	fft := fourier.NewFFT(n)

	// Target spectrum: FFT magnitudes of the original.
	targetMag := make([]float64, n/2+1)
	for k, c := range fft.Coefficients(nil, ts.Values) {
		targetMag[k] = cmplx.Abs(c)
	}
	sortedVals := sortedCopy(ts.Values)

	ensemble := &Ensemble{
		ID:           core.EnsembleID(core.NewID()),
		Realizations: make([][]float64, cfg.N),
		Method:       trend.MethodIAAFT,
	}

	stalled := 0
	for r := 0; r < cfg.N; r++ {
		stream := rng.Stream(rng.Derive(cfg.Seed, uint64(r)))

		// Random permutation start: right amplitudes, scrambled spectrum.
		cur := make([]float64, n)
		for i, p := range stream.Perm(n) {
			cur[i] = ts.Values[p]
		}

		tracker := newIterTracker(cfg.Tol, cfg.MaxIter)
		prev := make([]float64, n)
		coeff := make([]complex128, n/2+1)
		for !tracker.done() {
			copy(prev, cur)
			iaaftStep(fft, coeff, targetMag, sortedVals, cur)

			change := 0.0
			for i := range cur {
				d := cur[i] - prev[i]
				change += d * d
			}
			change /= float64(n) * variance

			if tracker.observe(change) == phaseStalled {
				// The previous iterate was closer; keep it.
				copy(cur, prev)
				stalled++
			}
		}

		ensemble.Realizations[r] = cur
	}

	if stalled > 0 {
		ensemble.Notes = append(ensemble.Notes, trend.NewNote(trend.NoteIAAFTStalled,
			"%d of %d realizations stalled before tol=%g; kept the better prior iterate", stalled, cfg.N, cfg.Tol))
	}
	return ensemble, nil
}

// iaaftStep performs one IAAFT iteration in place: spectrum substitution
// followed by rank substitution. coeff is scratch space of length n/2+1.
func iaaftStep(fft *fourier.FFT, coeff []complex128, targetMag, sortedVals, cur []float64) {
	coeff = fft.Coefficients(coeff, cur)
	for k, c := range coeff {
		mag := cmplx.Abs(c)
		if mag == 0 {
			coeff[k] = complex(targetMag[k], 0)
			continue
		}
		// Keep the current phase, impose the original magnitude.
		coeff[k] = c * complex(targetMag[k]/mag, 0)
	}

	seq := fft.Sequence(cur, coeff)
	// gonum's transform pair is unnormalized: Sequence(Coefficients(x))
	// returns n*x.
	scale := 1.0 / float64(len(seq))
	for i := range seq {
		seq[i] *= scale
	}

	rankSubstitute(seq, sortedVals)
}

// DominantFrequencyIndex returns the index of the largest nonzero-frequency
// FFT magnitude, a diagnostic used to check spectrum preservation.
func DominantFrequencyIndex(values []float64) int {
	fft := fourier.NewFFT(len(values))
	coeff := fft.Coefficients(nil, values)
	best, bestMag := 1, math.Inf(-1)
	for k := 1; k < len(coeff); k++ {
		if mag := cmplx.Abs(coeff[k]); mag > bestMag {
			best, bestMag = k, mag
		}
	}
	return best
}
