// Package mannkendall provides reference implementations of the two
// statistic collaborators the trend engines depend on: the Mann-Kendall
// rank statistic and the Sen's slope estimator, both aware of left/right
// censored observations.
package mannkendall

import (
	"math"
	"sort"

	"gotrend/domain/series"
	apperrors "gotrend/internal/errors"
	"gotrend/ports"
)

// Statistic computes the Mann-Kendall S score with censoring-aware
// pairwise comparisons. Pure and deterministic: safe to call under
// resampling.
type Statistic struct{}

// NewStatistic creates the reference rank statistic.
func NewStatistic() *Statistic {
	return &Statistic{}
}

var _ ports.Statistic = (*Statistic)(nil)

// compare orders two observations under censoring. Returns +1 when b > a,
// -1 when b < a, 0 when tied or ambiguous. A "<L" value is only known to
// be below L; a ">R" value only above R. Pairs whose order cannot be
// determined count as ties.
func compare(a, b float64, ca, cb series.Censoring) int {
	ak, bk := series.KindNone, series.KindNone
	if ca.Flag {
		ak = ca.Kind
	}
	if cb.Flag {
		bk = cb.Kind
	}

	switch {
	case ak == series.KindNone && bk == series.KindNone:
		if b > a {
			return 1
		}
		if b < a {
			return -1
		}
		return 0

	case ak == series.KindLeft && bk == series.KindNone:
		// a < limit(a); determinate only when b is at or above the limit.
		if b >= a {
			return 1
		}
		return 0
	case ak == series.KindNone && bk == series.KindLeft:
		if a >= b {
			return -1
		}
		return 0

	case ak == series.KindRight && bk == series.KindNone:
		if b <= a {
			return -1
		}
		return 0
	case ak == series.KindNone && bk == series.KindRight:
		if a <= b {
			return 1
		}
		return 0

	case ak == series.KindLeft && bk == series.KindRight:
		// a below its limit, b above its limit.
		if a <= b {
			return 1
		}
		return 0
	case ak == series.KindRight && bk == series.KindLeft:
		if b <= a {
			return -1
		}
		return 0

	default:
		// Same-side censored pairs are always ambiguous.
		return 0
	}
}

// Score computes the Mann-Kendall statistic over all time-ordered pairs.
func (mk *Statistic) Score(values, times []float64, censoring []series.Censoring) (ports.StatisticResult, error) {
	n := len(values)
	if n < 2 {
		return ports.StatisticResult{}, apperrors.InvalidArgument("Mann-Kendall requires at least 2 observations")
	}
	if len(times) != n {
		return ports.StatisticResult{}, apperrors.InvalidArgument("times and values length mismatch")
	}
	if censoring == nil {
		censoring = make([]series.Censoring, n)
	}

	// Evaluate pairs in chronological order; equal-time pairs are skipped.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return times[order[a]] < times[order[b]] })

	s := 0
	ties := 0
	for a := 0; a < n-1; a++ {
		for b := a + 1; b < n; b++ {
			i, j := order[a], order[b]
			if times[i] == times[j] {
				continue
			}
			c := compare(values[i], values[j], censoring[i], censoring[j])
			s += c
			if c == 0 {
				ties++
			}
		}
	}

	variance := scoreVariance(values, censoring)
	pairs := float64(n*(n-1)) / 2
	tau := 0.0
	if pairs > 0 {
		tau = float64(s) / pairs
	}

	return ports.StatisticResult{
		Score:    float64(s),
		Variance: variance,
		TieCount: ties,
		Tau:      tau,
	}, nil
}

// scoreVariance is the null variance of S with the tie-group correction.
// Ambiguous censored comparisons are folded into tie groups keyed by the
// recorded value, which is the usual simplification for censored data.
func scoreVariance(values []float64, censoring []series.Censoring) float64 {
	n := len(values)
	variance := float64(n*(n-1)*(2*n+5)) / 18.0

	groups := map[float64]int{}
	for i, v := range values {
		if censoring[i].Flag {
			// Censored points at the same limit tie with each other.
			groups[v]++
			continue
		}
		groups[v]++
	}
	for _, t := range groups {
		if t > 1 {
			variance -= float64(t*(t-1)*(2*t+5)) / 18.0
		}
	}
	if variance < 0 {
		variance = 0
	}
	return variance
}

// SenSlope estimates the robust trend slope as the median of pairwise
// slopes, in value per second.
type SenSlope struct{}

// NewSenSlope creates the reference slope estimator.
func NewSenSlope() *SenSlope {
	return &SenSlope{}
}

var _ ports.SlopeEstimator = (*SenSlope)(nil)

// Slope implements ports.SlopeEstimator. Pairs with a censored endpoint
// carry ambiguous magnitudes, so they are excluded when enough uncensored
// pairs exist; otherwise all pairs contribute with their recorded values.
func (se *SenSlope) Slope(values, times []float64, censoring []series.Censoring) (float64, error) {
	n := len(values)
	if n < 2 {
		return 0, apperrors.InvalidArgument("Sen's slope requires at least 2 observations")
	}
	if len(times) != n {
		return 0, apperrors.InvalidArgument("times and values length mismatch")
	}
	if censoring == nil {
		censoring = make([]series.Censoring, n)
	}

	slopes := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			if times[j] == times[i] {
				continue
			}
			if censoring[i].Flag || censoring[j].Flag {
				continue
			}
			slopes = append(slopes, (values[j]-values[i])/(times[j]-times[i]))
		}
	}

	if len(slopes) == 0 {
		// Heavily censored input: fall back to the recorded limits.
		for i := 0; i < n-1; i++ {
			for j := i + 1; j < n; j++ {
				if times[j] == times[i] {
					continue
				}
				slopes = append(slopes, (values[j]-values[i])/(times[j]-times[i]))
			}
		}
	}
	if len(slopes) == 0 {
		return 0, apperrors.InvalidArgument("no time-separated pairs for slope estimation")
	}

	sort.Float64s(slopes)
	mid := len(slopes) / 2
	if len(slopes)%2 == 1 {
		return slopes[mid], nil
	}
	return (slopes[mid-1] + slopes[mid]) / 2, nil
}

// ZScore converts an S score and its variance into the continuity-corrected
// normal approximation used for naive (independence-assuming) testing.
func ZScore(s, variance float64) float64 {
	if variance <= 0 {
		return 0
	}
	sd := math.Sqrt(variance)
	switch {
	case s > 0:
		return (s - 1) / sd
	case s < 0:
		return (s + 1) / sd
	default:
		return 0
	}
}
