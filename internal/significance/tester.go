// Package significance composes the surrogate synthesizer, the censoring
// propagator and an external rank statistic into a hypothesis test: is the
// observed trend score distinguishable from what serially-correlated noise
// with the same amplitude distribution and spectrum produces?
package significance

import (
	"context"
	"math"

	"github.com/montanaflynn/stats"

	"gotrend/domain/core"
	"gotrend/domain/series"
	"gotrend/domain/trend"
	"gotrend/internal"
	"gotrend/internal/config"
	"gotrend/internal/surrogate"
	"gotrend/ports"
)

// defaultAlpha is the fixed significance threshold on the surrogate p-value.
const defaultAlpha = 0.05

// uniformSpacingTol is the relative tolerance on successive time deltas
// under which a grid still counts as evenly spaced for method selection.
const uniformSpacingTol = 1e-6

// Default censoring substitution multipliers: a "<L" point enters the null
// synthesis as L/2, a ">R" point as 1.1*R.
const (
	DefaultLeftMultiplier  = 0.5
	DefaultRightMultiplier = 1.1
)

// Config configures one surrogate significance test.
type Config struct {
	Method      trend.NoiseMethod
	NSurrogates int
	Seed        int64

	// Censoring substitution multipliers; zero means the default.
	LeftMultiplier  float64
	RightMultiplier float64

	// IAAFT controls.
	MaxIter int
	Tol     float64

	// Spectral controls, ignored on the IAAFT path.
	FreqMethod ports.FreqGridMethod
	Norm       ports.Normalization
	FitMean    bool
	CenterData bool
	Dy         []float64
}

// DefaultConfig seeds a test configuration from the application engine
// settings. Per-call fields (method, seed, multipliers) keep their zero
// values for the caller to fill.
func DefaultConfig(e config.EngineConfig) Config {
	return Config{NSurrogates: e.NSurrogates}
}

func (cfg *Config) applyDefaults() {
	if cfg.LeftMultiplier == 0 {
		cfg.LeftMultiplier = DefaultLeftMultiplier
	}
	if cfg.RightMultiplier == 0 {
		cfg.RightMultiplier = DefaultRightMultiplier
	}
}

// Tester runs surrogate-data significance tests.
type Tester struct {
	statistic   ports.Statistic
	periodogram ports.Periodogram // nil disables the spectral path
	logger      *internal.Logger
}

// New creates a tester. periodogram may be nil; the spectral method then
// fails with a missing-capability error and 'auto' falls back to IAAFT
// with a note.
func New(statistic ports.Statistic, periodogram ports.Periodogram) *Tester {
	return &Tester{
		statistic:   statistic,
		periodogram: periodogram,
		logger:      internal.DefaultLogger,
	}
}

// Test computes the two-sided surrogate p-value and z-score for the
// observed trend statistic.
//
// The observed statistic is always computed on the raw series with its
// censoring flags, while the null ensemble is built from the
// limit-multiplier-imputed series. When the imputation changes the
// statistic the asymmetry is surfaced as a note; it is intentional, not
// resolved silently.
func (t *Tester) Test(ctx context.Context, ts series.TimeSeries, cfg Config) (*trend.SignificanceResult, error) {
	if cfg.NSurrogates <= 0 {
		return nil, core.NewInvalidArgumentError("n_surrogates", "must be > 0")
	}
	if err := ts.Validate(2); err != nil {
		return nil, err
	}
	if t.statistic == nil {
		return nil, core.ErrNoStatistic
	}
	cfg.applyDefaults()

	censoring := ts.CensoringOrNone()

	observed, err := t.statistic.Score(ts.Values, ts.Times, censoring)
	if err != nil {
		return nil, err
	}

	var notes trend.Notes

	method := cfg.Method
	if method == trend.MethodAuto {
		method = t.selectMethod(ts, &notes)
	}

	// Constant input has a well-defined degenerate answer, handled locally.
	if ts.IsConstant() {
		notes = append(notes, trend.NewNote(trend.NoteDegenerateInput, "constant input: no trend is detectable"))
		return newResult(method, 0, make([]float64, cfg.NSurrogates), notes), nil
	}

	imputed, changed := t.imputeCensored(ts, cfg)
	if changed {
		notes = append(notes, trend.NewNote(trend.NoteImputationChanged,
			"censored-value substitution changed the observed statistic; null ensemble uses the imputed series, the tested statistic the raw one"))
		t.logger.Warn("significance: censored-value imputation changed the observed statistic")
	}

	ensemble, err := t.generate(imputed, method, cfg)
	if err != nil {
		return nil, err
	}
	notes = append(notes, ensemble.Notes...)

	cmap := surrogate.NewCensoringMap(imputed.Values, imputed.Censoring)
	scores := make([]float64, ensemble.Size())
	for i, realization := range ensemble.Realizations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		flags := cmap.Propagate(realization)
		r, err := t.statistic.Score(realization, ts.Times, flags)
		if err != nil {
			return nil, err
		}
		scores[i] = r.Score
	}
	ensemble.Scores = scores

	return newResult(method, observed.Score, scores, notes), nil
}

// selectMethod implements the 'auto' policy: spectral for non-uniform time
// grids when a provider exists, IAAFT otherwise.
func (t *Tester) selectMethod(ts series.TimeSeries, notes *trend.Notes) trend.NoiseMethod {
	if ts.HasUniformSpacing(uniformSpacingTol) {
		return trend.MethodIAAFT
	}
	if t.periodogram == nil {
		*notes = append(*notes, trend.NewNote(trend.NoteMethodFallback,
			"irregular sampling but no periodogram provider: falling back to IAAFT"))
		t.logger.Warn("significance: no periodogram provider for irregular data, using IAAFT")
		return trend.MethodIAAFT
	}
	return trend.MethodSpectral
}

// imputeCensored substitutes censored values with limit*multiplier and
// reports whether the substitution moves the rank statistic.
func (t *Tester) imputeCensored(ts series.TimeSeries, cfg Config) (series.TimeSeries, bool) {
	if ts.CensoredCount() == 0 {
		return ts, false
	}

	imputed := ts.Clone()
	for i, c := range imputed.Censoring {
		if !c.Flag {
			continue
		}
		switch c.Kind {
		case series.KindLeft:
			imputed.Values[i] *= cfg.LeftMultiplier
		case series.KindRight:
			imputed.Values[i] *= cfg.RightMultiplier
		}
	}

	raw, errRaw := t.statistic.Score(ts.Values, ts.Times, ts.Censoring)
	sub, errSub := t.statistic.Score(imputed.Values, imputed.Times, nil)
	changed := errRaw == nil && errSub == nil && raw.Score != sub.Score
	return imputed, changed
}

func (t *Tester) generate(ts series.TimeSeries, method trend.NoiseMethod, cfg Config) (*surrogate.Ensemble, error) {
	switch method {
	case trend.MethodSpectral:
		return surrogate.GenerateSpectral(ts, t.periodogram, surrogate.SpectralConfig{
			N:          cfg.NSurrogates,
			FreqMethod: cfg.FreqMethod,
			Norm:       cfg.Norm,
			FitMean:    cfg.FitMean,
			CenterData: cfg.CenterData,
			MaxIter:    cfg.MaxIter,
			Seed:       cfg.Seed,
			Dy:         cfg.Dy,
		})
	default:
		return surrogate.GenerateIAAFT(ts, surrogate.IAAFTConfig{
			N:       cfg.NSurrogates,
			MaxIter: cfg.MaxIter,
			Tol:     cfg.Tol,
			Seed:    cfg.Seed,
		})
	}
}

// newResult assembles the immutable result object: add-one-smoothed
// two-sided p-value, z-score against the null, and distribution summary.
func newResult(method trend.NoiseMethod, observed float64, surrogateScores []float64, notes trend.Notes) *trend.SignificanceResult {
	n := len(surrogateScores)

	extreme := 0
	for _, s := range surrogateScores {
		if math.Abs(s) >= math.Abs(observed) {
			extreme++
		}
	}
	// Add-one smoothing: the p-value is never exactly zero.
	pValue := float64(1+extreme) / float64(1+n)

	mean, _ := stats.Mean(surrogateScores)
	sd, _ := stats.StandardDeviationSample(surrogateScores)
	z := 0.0
	if sd > 0 {
		z = (observed - mean) / sd
	}

	return &trend.SignificanceResult{
		RunID:           core.RunID(core.NewID()),
		Method:          method,
		OriginalScore:   observed,
		SurrogateScores: surrogateScores,
		PValue:          pValue,
		ZScore:          z,
		NSurrogates:     n,
		Significant:     pValue < defaultAlpha,
		NullSummary:     summarizeNull(surrogateScores),
		Notes:           notes,
		CreatedAt:       core.Now(),
	}
}

func summarizeNull(scores []float64) trend.NullDistributionSummary {
	if len(scores) == 0 {
		return trend.NullDistributionSummary{}
	}
	mean, _ := stats.Mean(scores)
	sd, _ := stats.StandardDeviationSample(scores)
	min, _ := stats.Min(scores)
	max, _ := stats.Max(scores)
	p95, _ := stats.Percentile(scores, 95)
	p99, _ := stats.Percentile(scores, 99)
	return trend.NullDistributionSummary{
		Mean:         mean,
		StdDev:       sd,
		Min:          min,
		Max:          max,
		Percentile95: p95,
		Percentile99: p99,
	}
}
