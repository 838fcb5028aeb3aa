package surrogate

import (
	"math"

	"gotrend/domain/core"
	"gotrend/domain/series"
	"gotrend/domain/trend"
	"gotrend/internal/rng"
	"gotrend/ports"
)

// synthesisChunk bounds how many sample points are accumulated per pass of
// the synthesis loop. Memory stays O(chunk) regardless of series length or
// frequency-grid size.
const synthesisChunk = 256

// ampCorrectionExponent damps the iterative spectral-amplitude correction.
// Retained from observed behavior rather than derived; a full-strength
// correction (exponent 1) oscillates on steep spectra.
const ampCorrectionExponent = 0.8

// SpectralConfig configures periodogram-based synthesis for unevenly
// spaced series.
type SpectralConfig struct {
	N          int
	FreqMethod ports.FreqGridMethod
	Norm       ports.Normalization
	FitMean    bool
	CenterData bool
	MaxIter    int // >1 enables iterative amplitude correction
	Seed       int64
	Dy         []float64 // optional per-point measurement errors
}

func (cfg *SpectralConfig) applyDefaults() {
	if cfg.N == 0 {
		cfg.N = 99
	}
	if cfg.MaxIter == 0 {
		cfg.MaxIter = 1
	}
}

// GenerateSpectral builds an ensemble of surrogates for an irregularly
// sampled series. A reference periodogram fixes the target spectrum; each
// realization draws independent uniform phases per frequency bin, is
// synthesized at the original sample times and rank-substituted to the
// original value multiset. With MaxIter>1 the input amplitudes are
// iteratively corrected toward the target spectrum.
func GenerateSpectral(ts series.TimeSeries, provider ports.Periodogram, cfg SpectralConfig) (*Ensemble, error) {
	if err := ts.Validate(2); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	// Zero-variance input never reaches the periodogram, which divides by
	// variance.
	if ts.Variance() == 0 {
		return constantEnsemble(ts.Values, cfg.N, trend.MethodSpectral), nil
	}
	if provider == nil {
		return nil, core.ErrNoPeriodogram
	}

	freqs, err := provider.AutoFrequencies(ts.Times, cfg.FreqMethod)
	if err != nil {
		return nil, err
	}
	if len(freqs) == 0 {
		return nil, core.ErrNoAmplitudes
	}

	target, err := provider.Power(ports.PeriodogramRequest{
		Times:       ts.Times,
		Values:      ts.Values,
		Dy:          cfg.Dy,
		Frequencies: freqs,
		Norm:        cfg.Norm,
		FitMean:     cfg.FitMean,
		Center:      cfg.CenterData,
	})
	if err != nil {
		return nil, err
	}

	// Shift times by their minimum before forming phase arguments so the
	// synthesis is invariant to absolute time offset.
	t0 := ts.Times[0]
	for _, t := range ts.Times {
		if t < t0 {
			t0 = t
		}
	}
	shifted := make([]float64, len(ts.Times))
	for i, t := range ts.Times {
		shifted[i] = t - t0
	}

	sortedVals := sortedCopy(ts.Values)
	ensemble := &Ensemble{
		ID:           core.EnsembleID(core.NewID()),
		Realizations: make([][]float64, cfg.N),
		Method:       trend.MethodSpectral,
	}

	for r := 0; r < cfg.N; r++ {
		stream := rng.Stream(rng.Derive(cfg.Seed, uint64(r)))

		phases := make([]float64, len(freqs))
		for k := range phases {
			phases[k] = 2 * math.Pi * stream.Float64()
		}

		amps := make([]float64, len(freqs))
		for k, p := range target {
			if p > 0 {
				amps[k] = math.Sqrt(p)
			}
		}

		cur := make([]float64, len(shifted))
		synthesize(cur, shifted, freqs, amps, phases)
		rankSubstitute(cur, sortedVals)

		for iter := 1; iter < cfg.MaxIter; iter++ {
			achieved, err := provider.Power(ports.PeriodogramRequest{
				Times:       ts.Times,
				Values:      cur,
				Dy:          cfg.Dy,
				Frequencies: freqs,
				Norm:        cfg.Norm,
				FitMean:     cfg.FitMean,
				Center:      cfg.CenterData,
			})
			if err != nil {
				return nil, err
			}

			// Damped multiplicative correction toward the target spectrum.
			for k := range amps {
				if target[k] <= 0 || achieved[k] <= 0 {
					continue
				}
				ratio := math.Pow(target[k]/achieved[k], ampCorrectionExponent)
				if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
					continue
				}
				amps[k] *= ratio
			}

			synthesize(cur, shifted, freqs, amps, phases)
			rankSubstitute(cur, sortedVals)
		}

		ensemble.Realizations[r] = cur
	}

	return ensemble, nil
}

// synthesize evaluates sum_k amp[k]*cos(2*pi*f[k]*t + phase[k]) at each
// shifted sample time, writing into out. Samples are processed in fixed
// chunks so no samples-by-frequencies matrix is ever materialized.
func synthesize(out, shiftedTimes, freqs, amps, phases []float64) {
	for start := 0; start < len(shiftedTimes); start += synthesisChunk {
		end := start + synthesisChunk
		if end > len(shiftedTimes) {
			end = len(shiftedTimes)
		}
		for i := start; i < end; i++ {
			sum := 0.0
			t := shiftedTimes[i]
			for k, f := range freqs {
				if amps[k] == 0 {
					continue
				}
				sum += amps[k] * math.Cos(2*math.Pi*f*t+phases[k])
			}
			out[i] = sum
		}
	}
}
