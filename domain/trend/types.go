// Package trend defines the immutable result objects produced by the
// significance, bootstrap and power engines.
package trend

import (
	"fmt"

	"gotrend/domain/core"
)

// NoiseMethod is the closed set of surrogate synthesis algorithms.
type NoiseMethod int

const (
	// MethodAuto selects spectral synthesis for unevenly spaced series when
	// a periodogram provider is available, IAAFT otherwise.
	MethodAuto NoiseMethod = iota
	MethodIAAFT
	MethodSpectral
)

// String returns the persisted representation of the method.
func (m NoiseMethod) String() string {
	switch m {
	case MethodIAAFT:
		return "iaaft"
	case MethodSpectral:
		return "spectral"
	default:
		return "auto"
	}
}

// ParseNoiseMethod converts a configuration string into a NoiseMethod.
func ParseNoiseMethod(s string) (NoiseMethod, error) {
	switch s {
	case "auto", "":
		return MethodAuto, nil
	case "iaaft":
		return MethodIAAFT, nil
	case "spectral":
		return MethodSpectral, nil
	default:
		return MethodAuto, core.NewInvalidArgumentError("method", fmt.Sprintf("unknown noise method %q", s))
	}
}

// NoteCode is the closed set of machine-readable warning codes attached to
// results. Automated callers branch on the code, humans read the message.
type NoteCode string

const (
	NoteMethodFallback    NoteCode = "METHOD_FALLBACK"
	NoteImputationChanged NoteCode = "IMPUTATION_CHANGED_STATISTIC"
	NoteIAAFTStalled      NoteCode = "IAAFT_STALLED"
	NoteDegenerateInput   NoteCode = "DEGENERATE_INPUT"
	NotePerformanceCost   NoteCode = "PERFORMANCE_COST"
	NoteNaNCandidateSlope NoteCode = "NAN_CANDIDATE_SLOPE"
	NotePartialAbort      NoteCode = "PARTIAL_ABORT"
)

// Note is a structured, non-fatal warning attached to a result object.
type Note struct {
	Code    NoteCode `json:"code"`
	Message string   `json:"message"`
}

// NewNote builds a formatted note.
func NewNote(code NoteCode, format string, args ...interface{}) Note {
	return Note{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Notes is a list of notes with lookup helpers.
type Notes []Note

// Has reports whether any note carries the given code.
func (ns Notes) Has(code NoteCode) bool {
	for _, n := range ns {
		if n.Code == code {
			return true
		}
	}
	return false
}

// Messages returns the human-readable strings, for logging.
func (ns Notes) Messages() []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = fmt.Sprintf("%s: %s", n.Code, n.Message)
	}
	return out
}

// NullDistributionSummary captures the shape of an empirical null
// distribution for diagnostics and falsification logs.
type NullDistributionSummary struct {
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Percentile95 float64 `json:"percentile_95"`
	Percentile99 float64 `json:"percentile_99"`
}

// SignificanceResult is the outcome of testing an observed trend statistic
// against a surrogate null distribution. Immutable value object.
type SignificanceResult struct {
	RunID           core.RunID              `json:"run_id"`
	Method          NoiseMethod             `json:"method"`
	OriginalScore   float64                 `json:"original_score"`
	SurrogateScores []float64               `json:"surrogate_scores"`
	PValue          float64                 `json:"p_value"`
	ZScore          float64                 `json:"z_score"`
	NSurrogates     int                     `json:"n_surrogates"`
	Significant     bool                    `json:"significant"`
	NullSummary     NullDistributionSummary `json:"null_summary"`
	Notes           Notes                   `json:"notes"`
	CreatedAt       core.Timestamp          `json:"created_at"`
}

// PowerResult is the outcome of a Monte Carlo power sweep.
type PowerResult struct {
	RunID              core.RunID     `json:"run_id"`
	CandidateSlopes    []float64      `json:"candidate_slopes"`
	DetectionRate      []float64      `json:"detection_rate"`
	MinDetectableTrend float64        `json:"min_detectable_trend"`
	NSimulations       int            `json:"n_simulations"`
	NSurrogatesInner   int            `json:"n_surrogates_inner"`
	NoiseMethod        NoiseMethod    `json:"noise_method"`
	Notes              Notes          `json:"notes"`
	CreatedAt          core.Timestamp `json:"created_at"`
}

// SlopeInterval is a bootstrap confidence interval for the trend slope.
type SlopeInterval struct {
	Slope      float64 `json:"slope"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Alpha      float64 `json:"alpha"`
	NBootstrap int     `json:"n_bootstrap"`
}

// BootstrapParams configures the moving-block bootstrap. BlockSize zero
// means automatic selection from the residual autocorrelation.
type BootstrapParams struct {
	BlockSize  int
	NBootstrap int
}

// Validate checks the parameter ranges.
func (p BootstrapParams) Validate() error {
	if p.BlockSize < 0 {
		return core.NewInvalidArgumentError("block_size", "must be >= 1 or 0 for auto")
	}
	if p.NBootstrap <= 0 {
		return core.NewInvalidArgumentError("n_bootstrap", "must be > 0")
	}
	return nil
}
