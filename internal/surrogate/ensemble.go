// Package surrogate generates ensembles of synthetic series that share the
// original series' amplitude distribution and (approximate) power spectrum
// while randomizing the temporal structure under test. The ensembles are
// the empirical null distributions the significance tester compares
// against.
package surrogate

import (
	"sort"

	"gotrend/domain/core"
	"gotrend/domain/series"
	"gotrend/domain/trend"
)

// Ensemble holds N independent noise realizations plus, once the tester has
// run, their rank-statistic scores. A single realization has no meaning
// outside its ensemble. The ID tags the ensemble in diagnostics output.
type Ensemble struct {
	ID           core.EnsembleID
	Realizations [][]float64
	Scores       []float64
	Method       trend.NoiseMethod
	Notes        trend.Notes
}

// Size returns the number of realizations.
func (e *Ensemble) Size() int {
	return len(e.Realizations)
}

// stableOrder returns the permutation that sorts values ascending, ties
// broken by original occurrence order. Both rank substitution and censoring
// propagation must use this exact ordering so duplicate values map
// consistently.
func stableOrder(values []float64) []int {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return values[order[a]] < values[order[b]]
	})
	return order
}

// sortedCopy returns the values in ascending order.
func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

// rankSubstitute overwrites dst in place so that its k-th smallest element
// becomes sortedTarget[k]. This is the exact-amplitude-distribution step:
// after it, sorted(dst) == sortedTarget element for element.
func rankSubstitute(dst []float64, sortedTarget []float64) {
	order := stableOrder(dst)
	for k, idx := range order {
		dst[idx] = sortedTarget[k]
	}
}

// constantEnsemble is the zero-variance short-circuit shared by both
// synthesis algorithms: n copies of the constant series. The spectral path
// must take it before ever touching the periodogram, which divides by
// variance.
func constantEnsemble(values []float64, n int, method trend.NoiseMethod) *Ensemble {
	realizations := make([][]float64, n)
	for i := range realizations {
		realizations[i] = append([]float64(nil), values...)
	}
	return &Ensemble{
		ID:           core.EnsembleID(core.NewID()),
		Realizations: realizations,
		Method:       method,
		Notes: trend.Notes{
			trend.NewNote(trend.NoteDegenerateInput, "zero-variance input: surrogates are constant copies"),
		},
	}
}

// CensoringMap is the precomputed rank-to-censoring lookup for one original
// series. Because rank substitution reassigns the exact original value
// multiset, the i-th smallest realization value always corresponds to the
// i-th smallest (value, censoring) pair of the original.
type CensoringMap struct {
	byRank []series.Censoring
}

// NewCensoringMap computes the lookup once for an original series.
func NewCensoringMap(originalValues []float64, originalCensoring []series.Censoring) *CensoringMap {
	if originalCensoring == nil {
		originalCensoring = make([]series.Censoring, len(originalValues))
	}
	order := stableOrder(originalValues)
	byRank := make([]series.Censoring, len(order))
	for k, idx := range order {
		byRank[k] = originalCensoring[idx]
	}
	return &CensoringMap{byRank: byRank}
}

// Propagate maps each realization point's censoring from the original pair
// at the matching rank. The censored-point count of the result always
// equals the original's, duplicates included.
func (m *CensoringMap) Propagate(realization []float64) []series.Censoring {
	order := stableOrder(realization)
	flags := make([]series.Censoring, len(realization))
	for k, idx := range order {
		flags[idx] = m.byRank[k]
	}
	return flags
}
