// Package bootstrap implements a moving-block bootstrap null model for the
// trend score and the slope confidence interval. Resampling contiguous
// blocks of detrended residuals preserves the short-range serial dependence
// that an independence-assuming test ignores.
package bootstrap

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/montanaflynn/stats"

	"gotrend/domain/core"
	"gotrend/domain/series"
	"gotrend/domain/trend"
	"gotrend/internal/config"
	"gotrend/internal/rng"
	"gotrend/ports"
)

// acfCutoff is the autocorrelation magnitude below which a lag counts as
// decorrelated when choosing the block size.
const acfCutoff = 0.1

// ACF computes the autocorrelation function of values for lags 0..maxLag,
// normalized by the lag-0 variance. Returns nil for degenerate input.
func ACF(values []float64, maxLag int) []float64 {
	n := len(values)
	if maxLag >= n {
		maxLag = n - 1
	}
	if maxLag < 0 {
		return nil
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	if variance == 0 {
		return nil
	}

	acf := make([]float64, maxLag+1)
	for k := 0; k <= maxLag; k++ {
		sum := 0.0
		for i := k; i < n; i++ {
			sum += (values[i] - mean) * (values[i-k] - mean)
		}
		acf[k] = sum / variance
	}
	return acf
}

// OptimalBlockSize chooses a block length from the residual ACF: twice the
// first decorrelated lag, clamped to [3, ceil(sqrt(n))].
func OptimalBlockSize(n int, acf []float64) int {
	lag := 1
	found := false
	for l := 1; l < len(acf); l++ {
		if math.Abs(acf[l]) < acfCutoff {
			lag = l
			found = true
			break
		}
	}
	if !found {
		lag = 1
	}

	blockSize := 2 * lag
	maxBlock := int(math.Ceil(math.Sqrt(float64(n))))
	if blockSize < 3 {
		blockSize = 3
	}
	if blockSize > maxBlock {
		blockSize = maxBlock
	}
	if blockSize < 1 {
		blockSize = 1
	}
	return blockSize
}

// ResampleIndices tiles contiguous blocks of blockSize consecutive indices,
// block starts drawn uniformly from [0, n-blockSize], concatenated to
// length n with the final block truncated. blockSize >= n yields the
// identity resample.
func ResampleIndices(r *rand.Rand, n, blockSize int) ([]int, error) {
	if blockSize < 1 {
		return nil, core.NewInvalidArgumentError("block_size", "must be >= 1")
	}
	if n <= 0 {
		return nil, core.NewInvalidArgumentError("n", "must be > 0")
	}

	indices := make([]int, 0, n)
	if blockSize >= n {
		for i := 0; i < n; i++ {
			indices = append(indices, i)
		}
		return indices, nil
	}

	for len(indices) < n {
		start := r.Intn(n - blockSize + 1)
		for b := 0; b < blockSize && len(indices) < n; b++ {
			indices = append(indices, start+b)
		}
	}
	return indices, nil
}

// ScoreResult is the outcome of the block-bootstrap score test.
type ScoreResult struct {
	ObservedScore   float64
	BootstrapScores []float64
	PValue          float64
	BlockSize       int
	NBootstrap      int
	Notes           trend.Notes
}

// DefaultParams builds bootstrap parameters from the application engine
// settings, leaving the block size on automatic selection.
func DefaultParams(e config.EngineConfig) trend.BootstrapParams {
	return trend.BootstrapParams{NBootstrap: e.NBootstrap}
}

// Tester runs block-bootstrap null models against the external statistic
// and slope collaborators.
type Tester struct {
	statistic ports.Statistic
	slope     ports.SlopeEstimator
}

// New creates a bootstrap tester.
func New(statistic ports.Statistic, slope ports.SlopeEstimator) *Tester {
	return &Tester{statistic: statistic, slope: slope}
}

// chronological holds a series sorted into time order. Autocorrelation
// structure is only meaningful along the time axis, so every resampling
// operation works on this view regardless of the caller's row order.
type chronological struct {
	times     []float64
	values    []float64
	censoring []series.Censoring
}

func sortChronological(ts series.TimeSeries) chronological {
	n := ts.Len()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return ts.Times[order[a]] < ts.Times[order[b]] })

	censoring := ts.CensoringOrNone()
	out := chronological{
		times:     make([]float64, n),
		values:    make([]float64, n),
		censoring: make([]series.Censoring, n),
	}
	for k, idx := range order {
		out.times[k] = ts.Times[idx]
		out.values[k] = ts.Values[idx]
		out.censoring[k] = censoring[idx]
	}
	return out
}

// detrended is the chronological series split into a Sen's-slope line about
// the time median and its residuals.
type detrended struct {
	chron     chronological
	slope     float64
	tMedian   float64
	residuals []float64
}

func (t *Tester) detrend(ts series.TimeSeries) (*detrended, error) {
	chron := sortChronological(ts)

	slope, err := t.slope.Slope(chron.values, chron.times, chron.censoring)
	if err != nil {
		return nil, err
	}

	tMedian, err := stats.Median(chron.times)
	if err != nil {
		return nil, err
	}

	residuals := make([]float64, len(chron.values))
	for i := range residuals {
		residuals[i] = chron.values[i] - slope*(chron.times[i]-tMedian)
	}

	return &detrended{chron: chron, slope: slope, tMedian: tMedian, residuals: residuals}, nil
}

// resolveBlockSize applies the auto rule when the caller did not fix one.
func (d *detrended) resolveBlockSize(params trend.BootstrapParams) int {
	if params.BlockSize > 0 {
		return params.BlockSize
	}
	n := len(d.residuals)
	maxLag := n / 2
	return OptimalBlockSize(n, ACF(d.residuals, maxLag))
}

// recombine rebuilds a series from resampled residuals: the (residual,
// censoring) pair moves as one atomic unit, the time vector never moves.
func (d *detrended) recombine(indices []int) ([]float64, []series.Censoring) {
	values := make([]float64, len(indices))
	censoring := make([]series.Censoring, len(indices))
	for i, idx := range indices {
		values[i] = d.residuals[idx] + d.slope*(d.chron.times[i]-d.tMedian)
		censoring[i] = d.chron.censoring[idx]
	}
	return values, censoring
}

// TestScore runs the moving-block bootstrap of the trend score and returns
// the two-sided p-value P(|bootstrap S| >= |observed S|).
func (t *Tester) TestScore(ctx context.Context, ts series.TimeSeries, params trend.BootstrapParams, seed int64) (*ScoreResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := ts.Validate(3); err != nil {
		return nil, err
	}

	d, err := t.detrend(ts)
	if err != nil {
		return nil, err
	}

	observed, err := t.statistic.Score(d.chron.values, d.chron.times, d.chron.censoring)
	if err != nil {
		return nil, err
	}

	blockSize := d.resolveBlockSize(params)
	stream := rng.NamedStream("block-bootstrap-score", seed)

	scores := make([]float64, params.NBootstrap)
	extreme := 0
	for b := 0; b < params.NBootstrap; b++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		indices, err := ResampleIndices(stream, len(d.residuals), blockSize)
		if err != nil {
			return nil, err
		}
		values, censoring := d.recombine(indices)
		r, err := t.statistic.Score(values, d.chron.times, censoring)
		if err != nil {
			return nil, err
		}
		scores[b] = r.Score
		if math.Abs(r.Score) >= math.Abs(observed.Score) {
			extreme++
		}
	}

	return &ScoreResult{
		ObservedScore:   observed.Score,
		BootstrapScores: scores,
		PValue:          float64(extreme) / float64(params.NBootstrap),
		BlockSize:       blockSize,
		NBootstrap:      params.NBootstrap,
	}, nil
}

// ConfidenceInterval applies the identical residual-block-bootstrap to the
// slope estimator and returns the (alpha/2, 1-alpha/2) percentile interval.
func (t *Tester) ConfidenceInterval(ctx context.Context, ts series.TimeSeries, params trend.BootstrapParams, alpha float64, seed int64) (*trend.SlopeInterval, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, core.NewInvalidArgumentError("alpha", "must be in (0, 1)")
	}
	if err := ts.Validate(3); err != nil {
		return nil, err
	}

	d, err := t.detrend(ts)
	if err != nil {
		return nil, err
	}

	blockSize := d.resolveBlockSize(params)
	stream := rng.NamedStream("block-bootstrap-slope", seed)

	slopes := make([]float64, params.NBootstrap)
	for b := 0; b < params.NBootstrap; b++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		indices, err := ResampleIndices(stream, len(d.residuals), blockSize)
		if err != nil {
			return nil, err
		}
		values, censoring := d.recombine(indices)
		s, err := t.slope.Slope(values, d.chron.times, censoring)
		if err != nil {
			return nil, err
		}
		slopes[b] = s
	}

	lower, err := stats.Percentile(slopes, 100*alpha/2)
	if err != nil {
		return nil, err
	}
	upper, err := stats.Percentile(slopes, 100*(1-alpha/2))
	if err != nil {
		return nil, err
	}

	return &trend.SlopeInterval{
		Slope:      d.slope,
		Lower:      lower,
		Upper:      upper,
		Alpha:      alpha,
		NBootstrap: params.NBootstrap,
	}, nil
}
