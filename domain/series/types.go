// Package series defines the time-series value types shared by the
// surrogate, bootstrap and power engines. A TimeSeries is caller-owned:
// nothing in this module mutates one after construction.
package series

import (
	"math"

	"gotrend/domain/core"
)

// CensoringKind is a closed set of censoring variants. A censored point is
// one recorded only as below (left) or above (right) a detection limit.
type CensoringKind int

const (
	KindNone CensoringKind = iota
	KindLeft
	KindRight
)

// String returns the wire representation used in persisted results.
func (k CensoringKind) String() string {
	switch k {
	case KindLeft:
		return "left"
	case KindRight:
		return "right"
	default:
		return "none"
	}
}

// Censoring records whether a point is censored and how.
type Censoring struct {
	Flag bool
	Kind CensoringKind
}

// TimeSeries is an ordered sequence of observations. Times are expressed in
// seconds (epoch or relative, the engines only use differences). Censoring
// may be nil, meaning no point is censored.
type TimeSeries struct {
	Times     []float64
	Values    []float64
	Censoring []Censoring
}

// Len returns the number of observations.
func (ts TimeSeries) Len() int {
	return len(ts.Values)
}

// Validate checks the structural invariants every engine relies on.
func (ts TimeSeries) Validate(minLen int) error {
	if len(ts.Values) < minLen {
		return core.NewInsufficientDataError(len(ts.Values), minLen)
	}
	if len(ts.Times) != len(ts.Values) {
		return core.NewInvalidArgumentError("times", "length mismatch with values")
	}
	if ts.Censoring != nil && len(ts.Censoring) != len(ts.Values) {
		return core.NewInvalidArgumentError("censoring", "length mismatch with values")
	}
	return nil
}

// CensoringOrNone returns the censoring slice, materializing an all-none
// slice when the caller supplied nil.
func (ts TimeSeries) CensoringOrNone() []Censoring {
	if ts.Censoring != nil {
		return ts.Censoring
	}
	return make([]Censoring, len(ts.Values))
}

// CensoredCount returns the number of flagged points.
func (ts TimeSeries) CensoredCount() int {
	count := 0
	for _, c := range ts.Censoring {
		if c.Flag {
			count++
		}
	}
	return count
}

// Variance returns the population variance of the values. Zero-variance
// input is a degenerate case every engine short-circuits on.
func (ts TimeSeries) Variance() float64 {
	n := len(ts.Values)
	if n == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range ts.Values {
		mean += v
	}
	mean /= float64(n)

	sumSq := 0.0
	for _, v := range ts.Values {
		diff := v - mean
		sumSq += diff * diff
	}
	return sumSq / float64(n)
}

// IsConstant reports whether all values are (numerically) identical.
func (ts TimeSeries) IsConstant() bool {
	return ts.Variance() == 0
}

// HasUniformSpacing reports whether successive time deltas are uniform
// within a relative tolerance of the mean delta. Drives the 'auto' method
// selection between IAAFT and spectral synthesis.
func (ts TimeSeries) HasUniformSpacing(relTol float64) bool {
	n := len(ts.Times)
	if n < 3 {
		return true
	}

	meanDelta := (ts.Times[n-1] - ts.Times[0]) / float64(n-1)
	if meanDelta == 0 {
		return true
	}

	for i := 1; i < n; i++ {
		delta := ts.Times[i] - ts.Times[i-1]
		if math.Abs(delta-meanDelta) > relTol*math.Abs(meanDelta) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy. Engines copy before any in-place arithmetic so
// the caller's series stays untouched.
func (ts TimeSeries) Clone() TimeSeries {
	out := TimeSeries{
		Times:  make([]float64, len(ts.Times)),
		Values: make([]float64, len(ts.Values)),
	}
	copy(out.Times, ts.Times)
	copy(out.Values, ts.Values)
	if ts.Censoring != nil {
		out.Censoring = make([]Censoring, len(ts.Censoring))
		copy(out.Censoring, ts.Censoring)
	}
	return out
}
