package ports

// Normalization is the closed set of periodogram normalization modes.
type Normalization int

const (
	// NormStandard normalizes power by the sample variance (Lomb's classic
	// normalization, power is dimensionless).
	NormStandard Normalization = iota
	// NormPSD leaves power in squared-amplitude units. Surrogate synthesis
	// wants this so sqrt(power) is directly an amplitude.
	NormPSD
)

// FreqGridMethod selects how the periodogram frequency grid is built.
type FreqGridMethod int

const (
	// FreqAuto spaces frequencies linearly from 1/baseline up to an
	// average pseudo-Nyquist limit with oversampling.
	FreqAuto FreqGridMethod = iota
	// FreqLog spaces frequencies logarithmically over the same range,
	// concentrating resolution at long periods.
	FreqLog
)

// PeriodogramRequest describes one power-spectrum evaluation.
type PeriodogramRequest struct {
	Times  []float64
	Values []float64
	// Dy holds optional per-point measurement errors; nil means unweighted.
	Dy          []float64
	Frequencies []float64
	Norm        Normalization
	FitMean     bool
	Center      bool
}

// Periodogram estimates a power spectrum on an irregular time grid
// (Lomb-Scargle or equivalent). The spectral synthesis path requires one;
// a nil provider is a missing capability, never a silent degradation.
type Periodogram interface {
	// Power evaluates spectral power at each requested frequency.
	Power(req PeriodogramRequest) ([]float64, error)

	// AutoFrequencies builds a frequency grid for the given time vector.
	AutoFrequencies(times []float64, method FreqGridMethod) ([]float64, error)
}
