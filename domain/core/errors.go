package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Input validation errors
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidUnit      = errors.New("unrecognized slope unit")

	// Capability errors
	ErrMissingCapability = errors.New("required capability unavailable")
	ErrNoPeriodogram     = fmt.Errorf("%w: periodogram provider", ErrMissingCapability)
	ErrNoStatistic       = fmt.Errorf("%w: rank statistic", ErrMissingCapability)

	// Numerical errors
	ErrNumerical    = errors.New("numerical failure")
	ErrAllNaN       = fmt.Errorf("%w: input is all NaN", ErrNumerical)
	ErrNoAmplitudes = fmt.Errorf("%w: empty amplitude spectrum", ErrNumerical)
)

// Error constructors with context
func NewInvalidArgumentError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidArgument, field, reason)
}

func NewInsufficientDataError(got, need int) error {
	return fmt.Errorf("%w: got %d observations, need at least %d", ErrInsufficientData, got, need)
}

func NewInvalidUnitError(unit string) error {
	return fmt.Errorf("%w: %q is not a supported slope unit", ErrInvalidUnit, unit)
}

// Error checking helpers
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrInvalidUnit)
}

func IsMissingCapability(err error) bool {
	return errors.Is(err, ErrMissingCapability)
}

func IsNumerical(err error) bool {
	return errors.Is(err, ErrNumerical)
}
