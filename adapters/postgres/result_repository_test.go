package postgres

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotrend/domain/core"
	"gotrend/domain/trend"
	"gotrend/internal/config"
)

func TestMarshalFloatsNaNAsNull(t *testing.T) {
	data, err := marshalFloats([]float64{1.5, math.NaN(), -2})
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, null, -2]`, string(data))

	back, err := unmarshalFloats(data)
	require.NoError(t, err)
	require.Len(t, back, 3)
	assert.Equal(t, 1.5, back[0])
	assert.True(t, math.IsNaN(back[1]))
	assert.Equal(t, -2.0, back[2])
}

func TestMarshalFloatsEmpty(t *testing.T) {
	data, err := marshalFloats(nil)
	require.NoError(t, err)

	back, err := unmarshalFloats(data)
	require.NoError(t, err)
	assert.Empty(t, back)
}

func testRepository(t *testing.T) *ResultRepository {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	if cfg.Database.URL == "" {
		t.Skip("DATABASE_URL not set, skipping postgres integration test")
	}
	db, err := Connect(cfg.Database.URL)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewResultRepository(db)
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func TestSignificanceRoundTrip(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	saved := &trend.SignificanceResult{
		RunID:           core.RunID(core.NewID()),
		Method:          trend.MethodIAAFT,
		OriginalScore:   42,
		SurrogateScores: []float64{1, -3, 7},
		PValue:          0.02,
		ZScore:          2.4,
		NSurrogates:     3,
		Significant:     true,
		NullSummary:     trend.NullDistributionSummary{Mean: 1.2, StdDev: 3.4},
		Notes:           trend.Notes{trend.NewNote(trend.NoteIAAFTStalled, "1 of 3 stalled")},
		CreatedAt:       core.Now(),
	}
	require.NoError(t, repo.SaveSignificance(ctx, saved))

	loaded, err := repo.GetSignificance(ctx, saved.RunID)
	require.NoError(t, err)
	assert.Equal(t, saved.RunID, loaded.RunID)
	assert.Equal(t, trend.MethodIAAFT, loaded.Method)
	assert.Equal(t, saved.OriginalScore, loaded.OriginalScore)
	assert.Equal(t, saved.SurrogateScores, loaded.SurrogateScores)
	assert.Equal(t, saved.PValue, loaded.PValue)
	assert.True(t, loaded.Significant)
	assert.Equal(t, saved.NullSummary, loaded.NullSummary)
	assert.True(t, loaded.Notes.Has(trend.NoteIAAFTStalled))
}

func TestPowerRoundTripWithNaN(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	saved := &trend.PowerResult{
		RunID:              core.RunID(core.NewID()),
		CandidateSlopes:    []float64{0, math.NaN(), 0.2},
		DetectionRate:      []float64{0.05, math.NaN(), 0.91},
		MinDetectableTrend: math.NaN(),
		NSimulations:       20,
		NSurrogatesInner:   99,
		NoiseMethod:        trend.MethodSpectral,
		Notes:              trend.Notes{trend.NewNote(trend.NoteNaNCandidateSlope, "index 1 is NaN")},
		CreatedAt:          core.Now(),
	}
	require.NoError(t, repo.SavePower(ctx, saved))

	loaded, err := repo.GetPower(ctx, saved.RunID)
	require.NoError(t, err)
	assert.Equal(t, saved.RunID, loaded.RunID)
	assert.True(t, math.IsNaN(loaded.MinDetectableTrend))
	assert.True(t, math.IsNaN(loaded.CandidateSlopes[1]))
	assert.True(t, math.IsNaN(loaded.DetectionRate[1]))
	assert.Equal(t, 0.91, loaded.DetectionRate[2])
	assert.Equal(t, trend.MethodSpectral, loaded.NoiseMethod)
	assert.True(t, loaded.Notes.Has(trend.NoteNaNCandidateSlope))
}

func TestGetMissingResult(t *testing.T) {
	repo := testRepository(t)

	_, err := repo.GetSignificance(context.Background(), core.RunID("no-such-run"))
	assert.Error(t, err)
}
