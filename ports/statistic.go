package ports

import (
	"gotrend/domain/series"
)

// StatisticResult carries the outputs of a rank-correlation trend statistic.
type StatisticResult struct {
	Score    float64 // e.g. Mann-Kendall S
	Variance float64 // variance of the score under the independence null
	TieCount int     // number of tied comparisons
	Tau      float64 // normalized score in [-1, 1]
}

// Statistic computes a monotone-trend score from time-ordered comparisons.
// Implementations must be pure and deterministic functions of their explicit
// inputs: the engines call them thousands of times under resampling, so any
// hidden state would poison the null distribution.
type Statistic interface {
	Score(values, times []float64, censoring []series.Censoring) (StatisticResult, error)
}

// SlopeEstimator estimates a robust trend slope (value per second), e.g.
// Sen's slope. Same purity contract as Statistic.
type SlopeEstimator interface {
	Slope(values, times []float64, censoring []series.Censoring) (float64, error)
}
