package power

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotrend/adapters/lombscargle"
	"gotrend/adapters/mannkendall"
	"gotrend/domain/core"
	"gotrend/domain/series"
	"gotrend/domain/trend"
	"gotrend/internal/config"
	"gotrend/internal/rng"
	"gotrend/ports"
)

func newAnalyzer() *Analyzer {
	return New(mannkendall.NewStatistic(), lombscargle.New())
}

func noiseTemplate(n int, seed int64) series.TimeSeries {
	stream := rng.Stream(seed)
	times := make([]float64, n)
	values := make([]float64, n)
	for i := range values {
		times[i] = float64(i)
		values[i] = stream.NormFloat64()
	}
	return series.TimeSeries{Times: times, Values: values}
}

func TestConvertSlope(t *testing.T) {
	cases := []struct {
		unit SlopeUnit
		want float64
	}{
		{UnitNone, 5.0},
		{UnitSecond, 5.0},
		{UnitMinute, 5.0 / 60},
		{UnitHour, 5.0 / 3600},
		{UnitDay, 5.0 / 86400},
		{UnitWeek, 5.0 / 604800},
		{UnitMonth, 5.0 / 2629800},
		{UnitYear, 5.0 / 31557600},
	}
	for _, tc := range cases {
		got, err := ConvertSlope(5.0, tc.unit)
		require.NoError(t, err)
		assert.InDelta(t, tc.want, got, 1e-15, "unit %s", tc.unit)
	}

	// The Julian-year month: exactly one twelfth of the year.
	assert.Equal(t, secondsPer[UnitYear]/12, secondsPer[UnitMonth])
}

func TestConvertSlopeInvalidUnit(t *testing.T) {
	_, err := ConvertSlope(1.0, SlopeUnit("fortnight"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidUnit)
}

func TestDefaultConfigFromEngine(t *testing.T) {
	cfg := DefaultConfig(config.EngineConfig{NSurrogates: 499, Alpha: 0.01, Workers: 4})
	assert.Equal(t, 499, cfg.NSurrogatesInner)
	assert.Equal(t, 0.01, cfg.Alpha)
	assert.Equal(t, 4, cfg.Workers)
}

func TestPowerCurveEmptySlopes(t *testing.T) {
	ts := noiseTemplate(40, 1)
	result, err := newAnalyzer().PowerCurve(context.Background(), ts, Config{
		NSimulations:     5,
		NSurrogatesInner: 9,
	})
	require.NoError(t, err)
	assert.Empty(t, result.CandidateSlopes)
	assert.Empty(t, result.DetectionRate)
	assert.True(t, math.IsNaN(result.MinDetectableTrend))
}

func TestPowerCurveInvalidArguments(t *testing.T) {
	ts := noiseTemplate(40, 1)

	_, err := newAnalyzer().PowerCurve(context.Background(), ts, Config{
		CandidateSlopes: []float64{0.1}, NSimulations: 0, NSurrogatesInner: 9,
	})
	assert.True(t, core.IsInvalidArgument(err))

	_, err = newAnalyzer().PowerCurve(context.Background(), ts, Config{
		CandidateSlopes: []float64{0.1}, NSimulations: 5, NSurrogatesInner: 0,
	})
	assert.True(t, core.IsInvalidArgument(err))

	_, err = newAnalyzer().PowerCurve(context.Background(), ts, Config{
		CandidateSlopes: []float64{0.1}, NSimulations: 5, NSurrogatesInner: 9, Alpha: 1.5,
	})
	assert.True(t, core.IsInvalidArgument(err))

	short := series.TimeSeries{Times: []float64{0, 1}, Values: []float64{1, 2}}
	_, err = newAnalyzer().PowerCurve(context.Background(), short, Config{
		CandidateSlopes: []float64{0.1}, NSimulations: 5, NSurrogatesInner: 9,
	})
	assert.True(t, core.IsInvalidArgument(err))
}

func TestPowerCurveNaNSlope(t *testing.T) {
	ts := noiseTemplate(40, 1)
	result, err := newAnalyzer().PowerCurve(context.Background(), ts, Config{
		CandidateSlopes:  []float64{0.0, math.NaN(), 0.5},
		NSimulations:     5,
		NSurrogatesInner: 9,
		Method:           trend.MethodIAAFT,
		Seed:             3,
	})
	require.NoError(t, err)
	require.Len(t, result.DetectionRate, 3)
	assert.False(t, math.IsNaN(result.DetectionRate[0]))
	assert.True(t, math.IsNaN(result.DetectionRate[1]))
	assert.False(t, math.IsNaN(result.DetectionRate[2]))
	assert.True(t, result.Notes.Has(trend.NoteNaNCandidateSlope))
}

func TestPowerCurveDeterministicBySeed(t *testing.T) {
	ts := noiseTemplate(40, 7)
	cfg := Config{
		CandidateSlopes:  []float64{0.0, 0.05, 0.2},
		NSimulations:     10,
		NSurrogatesInner: 19,
		Method:           trend.MethodIAAFT,
		Seed:             99,
		Workers:          4,
	}

	a, err := newAnalyzer().PowerCurve(context.Background(), ts, cfg)
	require.NoError(t, err)
	b, err := newAnalyzer().PowerCurve(context.Background(), ts, cfg)
	require.NoError(t, err)
	assert.Equal(t, a.DetectionRate, b.DetectionRate)

	// Worker count must not change the answer, only the wall time.
	cfg.Workers = 1
	c, err := newAnalyzer().PowerCurve(context.Background(), ts, cfg)
	require.NoError(t, err)
	assert.Equal(t, a.DetectionRate, c.DetectionRate)
}

func TestPowerCurveMonotoneDetection(t *testing.T) {
	if testing.Short() {
		t.Skip("monte carlo sweep skipped in short mode")
	}

	ts := noiseTemplate(50, 11)
	result, err := newAnalyzer().PowerCurve(context.Background(), ts, Config{
		CandidateSlopes:  []float64{0.0, 0.05, 0.5},
		NSimulations:     20,
		NSurrogatesInner: 49,
		Method:           trend.MethodIAAFT,
		Seed:             5,
	})
	require.NoError(t, err)

	require.Len(t, result.DetectionRate, 3)
	// Zero slope yields roughly the false-positive rate; a strong slope
	// must be detected essentially always.
	assert.Less(t, result.DetectionRate[0], 0.35)
	assert.Greater(t, result.DetectionRate[2], 0.9)
	assert.GreaterOrEqual(t, result.DetectionRate[2], result.DetectionRate[0])
	assert.False(t, math.IsNaN(result.MinDetectableTrend))
	assert.LessOrEqual(t, result.MinDetectableTrend, 0.5)
}

func TestPowerCurveReportsResolvedMethod(t *testing.T) {
	ts := noiseTemplate(40, 1)
	result, err := newAnalyzer().PowerCurve(context.Background(), ts, Config{
		CandidateSlopes:  []float64{0.0},
		NSimulations:     3,
		NSurrogatesInner: 9,
		Method:           trend.MethodAuto,
		Seed:             2,
	})
	require.NoError(t, err)
	assert.Equal(t, trend.MethodIAAFT, result.NoiseMethod,
		"even grid under 'auto' must report the method actually used")

	stream := rng.Stream(17)
	for i := range ts.Times {
		ts.Times[i] = float64(i) + 0.4*stream.Float64()
	}
	result, err = newAnalyzer().PowerCurve(context.Background(), ts, Config{
		NSimulations:     3,
		NSurrogatesInner: 9,
		Method:           trend.MethodAuto,
	})
	require.NoError(t, err)
	assert.Equal(t, trend.MethodSpectral, result.NoiseMethod)
}

type brokenStatistic struct{}

func (brokenStatistic) Score(values, times []float64, censoring []series.Censoring) (ports.StatisticResult, error) {
	return ports.StatisticResult{}, errors.New("statistic overflow")
}

func TestPowerCurveHardUnitFailure(t *testing.T) {
	ts := noiseTemplate(40, 3)
	_, err := New(brokenStatistic{}, nil).PowerCurve(context.Background(), ts, Config{
		CandidateSlopes:  []float64{0.1},
		NSimulations:     3,
		NSurrogatesInner: 9,
		Method:           trend.MethodIAAFT,
		Seed:             2,
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "statistic overflow")
	assert.NotErrorIs(t, err, context.Canceled,
		"a unit failure is a hard error, not a cancellation")
}

func TestPowerCurveCancellation(t *testing.T) {
	ts := noiseTemplate(40, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newAnalyzer().PowerCurve(ctx, ts, Config{
		CandidateSlopes:  []float64{0.0, 0.1},
		NSimulations:     5,
		NSurrogatesInner: 9,
		Method:           trend.MethodIAAFT,
		Seed:             2,
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result, "partial result accompanies the abort error")
	assert.True(t, result.Notes.Has(trend.NotePartialAbort))
	for _, rate := range result.DetectionRate {
		assert.True(t, math.IsNaN(rate), "incomplete rows must report NaN")
	}
}

func TestMinDetectableTrend(t *testing.T) {
	// Interpolated crossing between 0.6 at slope 0.1 and 0.9 at slope 0.2:
	// frac = (0.8-0.6)/(0.9-0.6) = 2/3.
	got := minDetectableTrend([]float64{0.0, 0.1, 0.2}, []float64{0.1, 0.6, 0.9})
	assert.InDelta(t, 0.1+2.0/3.0*0.1, got, 1e-12)

	// First rate already at target: no interpolation.
	got = minDetectableTrend([]float64{0.0, 0.1}, []float64{0.85, 0.9})
	assert.Equal(t, 0.0, got)

	// Target never reached.
	assert.True(t, math.IsNaN(minDetectableTrend([]float64{0.0, 0.1}, []float64{0.1, 0.5})))

	// NaN predecessor falls back to the crossing slope itself.
	got = minDetectableTrend([]float64{0.0, 0.1, 0.2}, []float64{0.1, math.NaN(), 0.9})
	assert.Equal(t, 0.2, got)

	assert.True(t, math.IsNaN(minDetectableTrend(nil, nil)))
}

func TestCostNote(t *testing.T) {
	ts := noiseTemplate(40, 1)
	cost := newAnalyzer().estimateCost(ts.Len(), Config{
		CandidateSlopes:  make([]float64, 100),
		NSimulations:     10000,
		NSurrogatesInner: 10000,
	})
	assert.Greater(t, cost, float64(costWarnThreshold))
}
