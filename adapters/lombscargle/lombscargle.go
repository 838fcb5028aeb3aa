// Package lombscargle implements the ports.Periodogram capability with a
// generalized (floating-mean) Lomb-Scargle estimator, valid for irregularly
// sampled series.
package lombscargle

import (
	"math"

	"gotrend/domain/core"
	apperrors "gotrend/internal/errors"
	"gotrend/ports"
)

// Oversample controls the density of the automatic frequency grid relative
// to the independent-frequency spacing 1/T.
const Oversample = 5

// logGridSize is the number of bins on the logarithmic grid.
const logGridSize = 200

// constantTol is the relative weighted variance below which centered input
// counts as constant. Centering in floating point leaves O(eps) residue on
// a constant series, so an exact zero test misses it and the quadratic form
// would amplify rounding noise into O(1) power.
const constantTol = 1e-12

// Provider computes Lomb-Scargle periodograms.
type Provider struct{}

// New creates a periodogram provider.
func New() *Provider {
	return &Provider{}
}

var _ ports.Periodogram = (*Provider)(nil)

// AutoFrequencies builds a frequency grid spanning 1/(Oversample·T) up to
// the average pseudo-Nyquist frequency n/(2T).
func (p *Provider) AutoFrequencies(times []float64, method ports.FreqGridMethod) ([]float64, error) {
	n := len(times)
	if n < 2 {
		return nil, apperrors.InvalidArgument("need at least 2 sample times for a frequency grid")
	}

	tMin, tMax := times[0], times[0]
	for _, t := range times {
		if t < tMin {
			tMin = t
		}
		if t > tMax {
			tMax = t
		}
	}
	baseline := tMax - tMin
	if baseline <= 0 {
		return nil, apperrors.InvalidArgument("sample times span zero baseline")
	}

	fMax := float64(n) / (2 * baseline)

	switch method {
	case ports.FreqLog:
		fMin := 1.0 / baseline
		ratio := math.Pow(fMax/fMin, 1.0/float64(logGridSize-1))
		freqs := make([]float64, logGridSize)
		for i := range freqs {
			freqs[i] = fMin * math.Pow(ratio, float64(i))
		}
		return freqs, nil
	default:
		df := 1.0 / (Oversample * baseline)
		count := int(fMax/df) + 1
		freqs := make([]float64, 0, count)
		for f := df; f <= fMax; f += df {
			freqs = append(freqs, f)
		}
		return freqs, nil
	}
}

// Power evaluates the periodogram at each requested frequency.
//
// With NormPSD the returned power at a frequency carrying a pure sinusoid
// of amplitude A approaches A²/2, so sqrt(2·power) recovers the amplitude.
// With NormStandard power is divided by the weighted variance and peaks
// near 1 for a noise-free sinusoid.
func (p *Provider) Power(req ports.PeriodogramRequest) ([]float64, error) {
	n := len(req.Values)
	if n < 2 {
		return nil, apperrors.InvalidArgument("need at least 2 observations for a periodogram")
	}
	if len(req.Times) != n {
		return nil, apperrors.InvalidArgument("times and values length mismatch")
	}
	if req.Dy != nil && len(req.Dy) != n {
		return nil, apperrors.InvalidArgument("dy and values length mismatch")
	}
	if len(req.Frequencies) == 0 {
		return nil, apperrors.InvalidArgument("empty frequency grid")
	}

	// Inverse-variance weights normalized to sum 1. Unweighted input gets
	// uniform weights.
	w := make([]float64, n)
	if req.Dy == nil {
		for i := range w {
			w[i] = 1.0 / float64(n)
		}
	} else {
		sum := 0.0
		for i, dy := range req.Dy {
			if dy <= 0 || math.IsNaN(dy) {
				return nil, apperrors.InvalidArgument("measurement errors must be positive")
			}
			w[i] = 1.0 / (dy * dy)
			sum += w[i]
		}
		for i := range w {
			w[i] /= sum
		}
	}

	nanCount := 0
	for _, v := range req.Values {
		if math.IsNaN(v) {
			nanCount++
		}
	}
	if nanCount == n {
		return nil, core.ErrAllNaN
	}

	// Shift times by their minimum so the trig arguments stay small;
	// the periodogram itself is shift-invariant.
	tMin := req.Times[0]
	for _, t := range req.Times {
		if t < tMin {
			tMin = t
		}
	}

	y := make([]float64, n)
	copy(y, req.Values)
	if req.Center || req.FitMean {
		mean := 0.0
		for i, v := range y {
			mean += w[i] * v
		}
		for i := range y {
			y[i] -= mean
		}
	}

	// Weighted sum of squares of the (centered) values, compared against
	// the raw sum of squares so the degenerate check is relative.
	yy := 0.0
	raw := 0.0
	for i, v := range y {
		yy += w[i] * v * v
	}
	for i, v := range req.Values {
		raw += w[i] * v * v
	}
	if yy <= constantTol*raw {
		// Constant input: flat zero spectrum.
		return make([]float64, len(req.Frequencies)), nil
	}

	power := make([]float64, len(req.Frequencies))
	for k, f := range req.Frequencies {
		omega := 2 * math.Pi * f

		var c, s, yc, ys, cc, ss, cs float64
		for i := range y {
			arg := omega * (req.Times[i] - tMin)
			cosA, sinA := math.Cos(arg), math.Sin(arg)
			c += w[i] * cosA
			s += w[i] * sinA
			yc += w[i] * y[i] * cosA
			ys += w[i] * y[i] * sinA
			cc += w[i] * cosA * cosA
			ss += w[i] * sinA * sinA
			cs += w[i] * cosA * sinA
		}

		if req.FitMean {
			// Floating-mean correction (generalized Lomb-Scargle).
			cc -= c * c
			ss -= s * s
			cs -= c * s
		}

		d := cc*ss - cs*cs
		if d == 0 {
			power[k] = 0
			continue
		}

		q := (ss*yc*yc + cc*ys*ys - 2*cs*yc*ys) / d

		switch req.Norm {
		case ports.NormStandard:
			power[k] = q / yy
		default:
			power[k] = q
		}
		if math.IsNaN(power[k]) || math.IsInf(power[k], 0) {
			power[k] = 0
		}
	}

	return power, nil
}
