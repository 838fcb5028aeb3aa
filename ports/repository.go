package ports

import (
	"context"

	"gotrend/domain/core"
	"gotrend/domain/trend"
)

// ResultRepository persists finished test and power-analysis results for
// later reporting. Persistence is best-effort from the engines' point of
// view: a failed save never invalidates the computed result.
type ResultRepository interface {
	SaveSignificance(ctx context.Context, result *trend.SignificanceResult) error
	SavePower(ctx context.Context, result *trend.PowerResult) error
	GetSignificance(ctx context.Context, id core.RunID) (*trend.SignificanceResult, error)
	GetPower(ctx context.Context, id core.RunID) (*trend.PowerResult, error)
}
