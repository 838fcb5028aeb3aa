// Package postgres persists significance and power results for reporting
// layers. The engines never depend on it succeeding: a computed result is
// valid whether or not the save lands.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"gotrend/domain/core"
	"gotrend/domain/trend"
	apperrors "gotrend/internal/errors"
	"gotrend/ports"
)

// marshalFloats encodes a float slice as JSON with NaN mapped to null,
// since JSON has no NaN literal.
func marshalFloats(vals []float64) ([]byte, error) {
	out := make([]*float64, len(vals))
	for i := range vals {
		if !math.IsNaN(vals[i]) {
			v := vals[i]
			out[i] = &v
		}
	}
	return json.Marshal(out)
}

// unmarshalFloats reverses marshalFloats, mapping null back to NaN.
func unmarshalFloats(data []byte) ([]float64, error) {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]float64, len(raw))
	for i, p := range raw {
		if p == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *p
		}
	}
	return out, nil
}

// ResultRepository stores trend-test results in Postgres.
type ResultRepository struct {
	db *sqlx.DB
}

var _ ports.ResultRepository = (*ResultRepository)(nil)

// NewResultRepository creates a repository over an open connection.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Connect opens a Postgres connection pool.
func Connect(url string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to connect to postgres", err)
	}
	return db, nil
}

// Migrate creates the result tables when they do not exist.
func (r *ResultRepository) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS significance_results (
			run_id           TEXT PRIMARY KEY,
			method           TEXT NOT NULL,
			original_score   DOUBLE PRECISION NOT NULL,
			surrogate_scores JSONB NOT NULL,
			p_value          DOUBLE PRECISION NOT NULL,
			z_score          DOUBLE PRECISION NOT NULL,
			n_surrogates     INTEGER NOT NULL,
			significant      BOOLEAN NOT NULL,
			null_summary     JSONB NOT NULL,
			notes            JSONB NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS power_results (
			run_id               TEXT PRIMARY KEY,
			candidate_slopes     JSONB NOT NULL,
			detection_rate       JSONB NOT NULL,
			min_detectable_trend DOUBLE PRECISION,
			n_simulations        INTEGER NOT NULL,
			n_surrogates_inner   INTEGER NOT NULL,
			noise_method         TEXT NOT NULL,
			notes                JSONB NOT NULL,
			created_at           TIMESTAMPTZ NOT NULL
		);`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return apperrors.DatabaseError("failed to create result tables", err)
	}
	return nil
}

// SaveSignificance inserts one significance result.
func (r *ResultRepository) SaveSignificance(ctx context.Context, result *trend.SignificanceResult) error {
	scores, err := json.Marshal(result.SurrogateScores)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal surrogate scores")
	}
	summary, err := json.Marshal(result.NullSummary)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal null summary")
	}
	notes, err := json.Marshal(result.Notes)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal notes")
	}

	query := `
		INSERT INTO significance_results (
			run_id, method, original_score, surrogate_scores, p_value,
			z_score, n_surrogates, significant, null_summary, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.ExecContext(ctx, query,
		result.RunID.String(),
		result.Method.String(),
		result.OriginalScore,
		scores,
		result.PValue,
		result.ZScore,
		result.NSurrogates,
		result.Significant,
		summary,
		notes,
		result.CreatedAt.Time(),
	)
	if err != nil {
		return apperrors.DatabaseError("failed to insert significance result", err)
	}
	return nil
}

// SavePower inserts one power-analysis result.
func (r *ResultRepository) SavePower(ctx context.Context, result *trend.PowerResult) error {
	slopes, err := marshalFloats(result.CandidateSlopes)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal candidate slopes")
	}
	rates, err := marshalFloats(result.DetectionRate)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal detection rates")
	}
	notes, err := json.Marshal(result.Notes)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal notes")
	}

	// NaN has no JSON or SQL float representation; store NULL.
	var mdt sql.NullFloat64
	if !math.IsNaN(result.MinDetectableTrend) {
		mdt = sql.NullFloat64{Float64: result.MinDetectableTrend, Valid: true}
	}

	query := `
		INSERT INTO power_results (
			run_id, candidate_slopes, detection_rate, min_detectable_trend,
			n_simulations, n_surrogates_inner, noise_method, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.ExecContext(ctx, query,
		result.RunID.String(),
		slopes,
		rates,
		mdt,
		result.NSimulations,
		result.NSurrogatesInner,
		result.NoiseMethod.String(),
		notes,
		result.CreatedAt.Time(),
	)
	if err != nil {
		return apperrors.DatabaseError("failed to insert power result", err)
	}
	return nil
}

type significanceRow struct {
	RunID           string       `db:"run_id"`
	Method          string       `db:"method"`
	OriginalScore   float64      `db:"original_score"`
	SurrogateScores []byte       `db:"surrogate_scores"`
	PValue          float64      `db:"p_value"`
	ZScore          float64      `db:"z_score"`
	NSurrogates     int          `db:"n_surrogates"`
	Significant     bool         `db:"significant"`
	NullSummary     []byte       `db:"null_summary"`
	Notes           []byte       `db:"notes"`
	CreatedAt       sql.NullTime `db:"created_at"`
}

// GetSignificance loads a stored significance result by run ID.
func (r *ResultRepository) GetSignificance(ctx context.Context, id core.RunID) (*trend.SignificanceResult, error) {
	var row significanceRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM significance_results WHERE run_id = $1`, id.String())
	if err != nil {
		return nil, apperrors.DatabaseError(fmt.Sprintf("failed to load significance result %s", id), err)
	}

	runID, err := core.ParseRunID(row.RunID)
	if err != nil {
		return nil, err
	}
	method, err := trend.ParseNoiseMethod(row.Method)
	if err != nil {
		return nil, err
	}

	result := &trend.SignificanceResult{
		RunID:         runID,
		Method:        method,
		OriginalScore: row.OriginalScore,
		PValue:        row.PValue,
		ZScore:        row.ZScore,
		NSurrogates:   row.NSurrogates,
		Significant:   row.Significant,
		CreatedAt:     core.NewTimestamp(row.CreatedAt.Time),
	}
	if err := json.Unmarshal(row.SurrogateScores, &result.SurrogateScores); err != nil {
		return nil, apperrors.Wrapf(err, "failed to unmarshal surrogate scores for run %s", id)
	}
	if err := json.Unmarshal(row.NullSummary, &result.NullSummary); err != nil {
		return nil, apperrors.Wrapf(err, "failed to unmarshal null summary for run %s", id)
	}
	if err := json.Unmarshal(row.Notes, &result.Notes); err != nil {
		return nil, apperrors.Wrapf(err, "failed to unmarshal notes for run %s", id)
	}
	return result, nil
}

type powerRow struct {
	RunID              string          `db:"run_id"`
	CandidateSlopes    []byte          `db:"candidate_slopes"`
	DetectionRate      []byte          `db:"detection_rate"`
	MinDetectableTrend sql.NullFloat64 `db:"min_detectable_trend"`
	NSimulations       int             `db:"n_simulations"`
	NSurrogatesInner   int             `db:"n_surrogates_inner"`
	NoiseMethod        string          `db:"noise_method"`
	Notes              []byte          `db:"notes"`
	CreatedAt          sql.NullTime    `db:"created_at"`
}

// GetPower loads a stored power result by run ID.
func (r *ResultRepository) GetPower(ctx context.Context, id core.RunID) (*trend.PowerResult, error) {
	var row powerRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM power_results WHERE run_id = $1`, id.String())
	if err != nil {
		return nil, apperrors.DatabaseError(fmt.Sprintf("failed to load power result %s", id), err)
	}

	runID, err := core.ParseRunID(row.RunID)
	if err != nil {
		return nil, err
	}
	method, err := trend.ParseNoiseMethod(row.NoiseMethod)
	if err != nil {
		return nil, err
	}

	result := &trend.PowerResult{
		RunID:            runID,
		NSimulations:     row.NSimulations,
		NSurrogatesInner: row.NSurrogatesInner,
		NoiseMethod:      method,
		CreatedAt:        core.NewTimestamp(row.CreatedAt.Time),
	}
	if row.MinDetectableTrend.Valid {
		result.MinDetectableTrend = row.MinDetectableTrend.Float64
	} else {
		result.MinDetectableTrend = math.NaN()
	}
	if result.CandidateSlopes, err = unmarshalFloats(row.CandidateSlopes); err != nil {
		return nil, apperrors.Wrapf(err, "failed to unmarshal candidate slopes for run %s", id)
	}
	if result.DetectionRate, err = unmarshalFloats(row.DetectionRate); err != nil {
		return nil, apperrors.Wrapf(err, "failed to unmarshal detection rates for run %s", id)
	}
	if err := json.Unmarshal(row.Notes, &result.Notes); err != nil {
		return nil, apperrors.Wrapf(err, "failed to unmarshal notes for run %s", id)
	}
	return result, nil
}
