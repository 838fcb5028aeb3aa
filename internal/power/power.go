// Package power estimates detection power and the minimum detectable trend
// by Monte Carlo: noise realizations drawn from the surrogate synthesizer,
// candidate slopes injected, and the surrogate significance test run on
// every (slope, simulation) pair.
package power

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/stat"

	"gotrend/domain/core"
	"gotrend/domain/series"
	"gotrend/domain/trend"
	"gotrend/internal"
	"gotrend/internal/config"
	"gotrend/internal/rng"
	"gotrend/internal/significance"
	"gotrend/internal/surrogate"
	"gotrend/ports"
)

// targetPower is the detection rate defining the minimum detectable trend.
const targetPower = 0.8

// costWarnThreshold is the estimated unit-work count above which a sweep
// gets a performance note instead of silently grinding.
const costWarnThreshold = 1e9

// uniformSpacingTol mirrors the significance tester's method selection.
const uniformSpacingTol = 1e-6

// errUnitNotRun marks sweep units the worker pool never executed.
var errUnitNotRun = errors.New("sweep unit not executed")

// SlopeUnit is the closed set of caller-facing slope scalings.
type SlopeUnit string

const (
	UnitNone   SlopeUnit = "none"
	UnitSecond SlopeUnit = "second"
	UnitMinute SlopeUnit = "minute"
	UnitHour   SlopeUnit = "hour"
	UnitDay    SlopeUnit = "day"
	UnitWeek   SlopeUnit = "week"
	UnitMonth  SlopeUnit = "month"
	UnitYear   SlopeUnit = "year"
)

// secondsPer converts a slope expressed per unit into value per second.
// The year is the Julian year, so "per year" is leap-year stable; the
// month is one twelfth of that.
var secondsPer = map[SlopeUnit]float64{
	UnitNone:   1,
	UnitSecond: 1,
	UnitMinute: 60,
	UnitHour:   3600,
	UnitDay:    86400,
	UnitWeek:   604800,
	UnitMonth:  2629800,
	UnitYear:   31557600,
}

// ConvertSlope rescales a caller-unit slope to internal value-per-second.
func ConvertSlope(slope float64, unit SlopeUnit) (float64, error) {
	divisor, ok := secondsPer[unit]
	if !ok {
		return 0, core.NewInvalidUnitError(string(unit))
	}
	return slope / divisor, nil
}

// Config configures one power sweep.
type Config struct {
	CandidateSlopes  []float64
	NSimulations     int
	NSurrogatesInner int
	Alpha            float64
	SlopeUnit        SlopeUnit
	DetrendInput     bool
	Method           trend.NoiseMethod
	Seed             int64
	// Workers caps concurrent (slope, simulation) units; 0 means NumCPU.
	Workers int
}

// DefaultConfig seeds a sweep configuration from the application engine
// settings; the candidate slopes and simulation count stay with the caller.
func DefaultConfig(e config.EngineConfig) Config {
	return Config{
		NSurrogatesInner: e.NSurrogates,
		Alpha:            e.Alpha,
		Workers:          e.Workers,
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Alpha == 0 {
		cfg.Alpha = 0.05
	}
	if cfg.SlopeUnit == "" {
		cfg.SlopeUnit = UnitNone
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
}

// Analyzer runs Monte Carlo power sweeps.
type Analyzer struct {
	statistic   ports.Statistic
	periodogram ports.Periodogram
	logger      *internal.Logger
}

// New creates a power analyzer. periodogram may be nil; irregular templates
// then fall back to IAAFT like the significance tester.
func New(statistic ports.Statistic, periodogram ports.Periodogram) *Analyzer {
	return &Analyzer{
		statistic:   statistic,
		periodogram: periodogram,
		logger:      internal.DefaultLogger,
	}
}

// PowerCurve estimates the detection rate for each candidate slope and the
// minimum detectable trend at 80% power.
//
// One top-level seed deterministically derives the noise-bank seed and an
// independent sub-seed per (slope, simulation) pair, so an identical seed
// reproduces the curve bit for bit. On context cancellation the sweep
// aborts between units: completed rows keep their rates, incomplete rows
// report NaN, and the partial result is returned alongside the context
// error.
func (a *Analyzer) PowerCurve(ctx context.Context, ts series.TimeSeries, cfg Config) (*trend.PowerResult, error) {
	cfg.applyDefaults()
	if err := ts.Validate(3); err != nil {
		return nil, err
	}
	if cfg.NSimulations <= 0 {
		return nil, core.NewInvalidArgumentError("n_simulations", "must be > 0")
	}
	if cfg.NSurrogatesInner <= 0 {
		return nil, core.NewInvalidArgumentError("n_surrogates_inner", "must be > 0")
	}
	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		return nil, core.NewInvalidArgumentError("alpha", "must be in (0, 1)")
	}

	var notes trend.Notes

	template := a.prepareTemplate(ts, cfg.DetrendInput)
	method := a.resolveMethod(template, cfg.Method, &notes)

	if len(cfg.CandidateSlopes) == 0 {
		return a.newResult(nil, nil, method, cfg, notes), nil
	}

	// Convert candidate slopes to internal value-per-second. NaN slopes
	// stay in the sweep as NaN rows rather than being silently dropped.
	internalSlopes := make([]float64, len(cfg.CandidateSlopes))
	for i, s := range cfg.CandidateSlopes {
		if math.IsNaN(s) {
			internalSlopes[i] = math.NaN()
			notes = append(notes, trend.NewNote(trend.NoteNaNCandidateSlope,
				"candidate slope at index %d is NaN; its detection rate is reported as NaN", i))
			continue
		}
		converted, err := ConvertSlope(s, cfg.SlopeUnit)
		if err != nil {
			return nil, err
		}
		internalSlopes[i] = converted
	}

	if cost := a.estimateCost(ts.Len(), cfg); cost > costWarnThreshold {
		notes = append(notes, trend.NewNote(trend.NotePerformanceCost,
			"estimated sweep cost %.2g units exceeds %.2g; consider fewer simulations or inner surrogates", cost, float64(costWarnThreshold)))
		a.logger.Warn("power: estimated sweep cost %.2g units", cost)
	}

	bank, err := a.drawNoiseBank(template, method, cfg)
	if err != nil {
		return nil, err
	}
	notes = append(notes, bank.Notes...)

	tMean := stat.Mean(ts.Times, nil)

	rates, sweepErr := a.sweep(ctx, ts, method, cfg, internalSlopes, bank, tMean)
	if sweepErr != nil {
		// Only cancellation yields a usable partial result; a hard unit
		// failure means the curve is wrong, not truncated.
		if !errors.Is(sweepErr, context.Canceled) && !errors.Is(sweepErr, context.DeadlineExceeded) {
			return nil, sweepErr
		}
		notes = append(notes, trend.NewNote(trend.NotePartialAbort,
			"sweep aborted between iterations: %v; incomplete rows report NaN", sweepErr))
		return a.newResult(cfg.CandidateSlopes, rates, method, cfg, notes), sweepErr
	}

	return a.newResult(cfg.CandidateSlopes, rates, method, cfg, notes), nil
}

// estimateCost approximates the number of statistic evaluations times the
// sample count for one sweep.
func (a *Analyzer) estimateCost(samples int, cfg Config) float64 {
	return float64(samples) * float64(cfg.NSurrogatesInner) *
		float64(cfg.NSimulations) * float64(len(cfg.CandidateSlopes))
}

// prepareTemplate optionally removes an existing linear trend by least
// squares so real trend power is not mistaken for noise power, which would
// suppress detectability.
func (a *Analyzer) prepareTemplate(ts series.TimeSeries, detrend bool) series.TimeSeries {
	if !detrend {
		return ts
	}
	template := ts.Clone()
	intercept, slope := stat.LinearRegression(template.Times, template.Values, nil, false)
	for i := range template.Values {
		template.Values[i] -= intercept + slope*template.Times[i]
	}
	return template
}

func (a *Analyzer) resolveMethod(ts series.TimeSeries, method trend.NoiseMethod, notes *trend.Notes) trend.NoiseMethod {
	if method != trend.MethodAuto {
		return method
	}
	if ts.HasUniformSpacing(uniformSpacingTol) {
		return trend.MethodIAAFT
	}
	if a.periodogram == nil {
		*notes = append(*notes, trend.NewNote(trend.NoteMethodFallback,
			"irregular sampling but no periodogram provider: noise bank uses IAAFT"))
		return trend.MethodIAAFT
	}
	return trend.MethodSpectral
}

// drawNoiseBank generates the NSimulations noise realizations all slopes
// share. Its seed derives from the top-level seed on a path disjoint from
// every per-unit sub-seed.
func (a *Analyzer) drawNoiseBank(template series.TimeSeries, method trend.NoiseMethod, cfg Config) (*surrogate.Ensemble, error) {
	bankSeed := rng.Derive(cfg.Seed, 0)
	switch method {
	case trend.MethodSpectral:
		return surrogate.GenerateSpectral(template, a.periodogram, surrogate.SpectralConfig{
			N:    cfg.NSimulations,
			Seed: bankSeed,
		})
	default:
		return surrogate.GenerateIAAFT(template, surrogate.IAAFTConfig{
			N:    cfg.NSimulations,
			Seed: bankSeed,
		})
	}
}

// sweep runs the inner significance test for every (slope, simulation)
// pair on a bounded worker pool. Each unit gets a pre-derived seed; no
// worker shares RNG state, so results are independent of scheduling order.
func (a *Analyzer) sweep(ctx context.Context, ts series.TimeSeries, method trend.NoiseMethod, cfg Config, internalSlopes []float64, bank *surrogate.Ensemble, tMean float64) ([]float64, error) {
	tester := significance.New(a.statistic, a.periodogram)

	type cell struct {
		detected bool
		err      error
	}
	// Cells start as not-run so an aborted launch loop cannot leave a unit
	// masquerading as a completed non-detection.
	results := make([][]cell, len(internalSlopes))
	completed := make([]int, len(internalSlopes))
	for i := range results {
		results[i] = make([]cell, cfg.NSimulations)
		for j := range results[i] {
			results[i][j] = cell{err: errUnitNotRun}
		}
	}

	sem := semaphore.NewWeighted(int64(cfg.Workers))
	var wg sync.WaitGroup
	var abortErr error

launch:
	for si, slope := range internalSlopes {
		if math.IsNaN(slope) {
			continue
		}
		for sim := 0; sim < cfg.NSimulations; sim++ {
			if err := sem.Acquire(ctx, 1); err != nil {
				abortErr = err
				break launch
			}

			wg.Add(1)
			go func(si, sim int, slope float64) {
				defer wg.Done()
				defer sem.Release(1)

				injected := series.TimeSeries{
					Times:  ts.Times,
					Values: make([]float64, len(ts.Times)),
				}
				realization := bank.Realizations[sim]
				for j := range injected.Values {
					injected.Values[j] = realization[j] + slope*(ts.Times[j]-tMean)
				}

				subSeed := rng.Derive(cfg.Seed, 1, uint64(si), uint64(sim))
				result, err := tester.Test(ctx, injected, significance.Config{
					Method:      method,
					NSurrogates: cfg.NSurrogatesInner,
					Seed:        subSeed,
				})
				if err != nil {
					results[si][sim] = cell{err: err}
					return
				}
				results[si][sim] = cell{detected: result.PValue < cfg.Alpha}
			}(si, sim, slope)
		}
	}

	wg.Wait()

	rates := make([]float64, len(internalSlopes))
	for si, slope := range internalSlopes {
		if math.IsNaN(slope) {
			rates[si] = math.NaN()
			continue
		}
		detections := 0
		for sim := 0; sim < cfg.NSimulations; sim++ {
			c := results[si][sim]
			if c.err != nil {
				// Cancellation can hit a unit in flight after the launch
				// loop finished; it leaves the row incomplete, while any
				// other unit error fails the whole sweep.
				if errors.Is(c.err, context.Canceled) || errors.Is(c.err, context.DeadlineExceeded) || c.err == errUnitNotRun {
					if abortErr == nil && c.err != errUnitNotRun {
						abortErr = c.err
					}
					continue
				}
				if abortErr == nil {
					return nil, c.err
				}
				continue
			}
			if c.detected {
				detections++
			}
			completed[si]++
		}
		rates[si] = float64(detections) / float64(cfg.NSimulations)
	}

	if abortErr != nil {
		// Rows the pool never finished are unreliable, so they report NaN.
		for si := range rates {
			if !math.IsNaN(internalSlopes[si]) && completed[si] < cfg.NSimulations {
				rates[si] = math.NaN()
			}
		}
		return rates, abortErr
	}

	return rates, nil
}

// newResult assembles the PowerResult, including the interpolated minimum
// detectable trend. method is the resolved synthesis method, never 'auto'.
func (a *Analyzer) newResult(slopes, rates []float64, method trend.NoiseMethod, cfg Config, notes trend.Notes) *trend.PowerResult {
	return &trend.PowerResult{
		RunID:              core.RunID(core.NewID()),
		CandidateSlopes:    slopes,
		DetectionRate:      rates,
		MinDetectableTrend: minDetectableTrend(slopes, rates),
		NSimulations:       cfg.NSimulations,
		NSurrogatesInner:   cfg.NSurrogatesInner,
		NoiseMethod:        method,
		Notes:              notes,
		CreatedAt:          core.Now(),
	}
}

// minDetectableTrend linearly interpolates along the slope axis at the
// first crossing of the target detection rate. NaN when the target is
// never reached.
func minDetectableTrend(slopes, rates []float64) float64 {
	for i := range rates {
		if math.IsNaN(rates[i]) || rates[i] < targetPower {
			continue
		}
		if i == 0 || math.IsNaN(rates[i-1]) || rates[i]-rates[i-1] == 0 {
			return slopes[i]
		}
		frac := (targetPower - rates[i-1]) / (rates[i] - rates[i-1])
		return slopes[i-1] + frac*(slopes[i]-slopes[i-1])
	}
	return math.NaN()
}
