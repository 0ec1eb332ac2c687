package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidReading is matched by every meter reading rejection.
	ErrInvalidReading = errors.New("billing: invalid reading")
	// ErrNonMonotonic is matched by rejections of a reading lower than the previous one.
	ErrNonMonotonic = errors.New("billing: reading lower than previous")
	// ErrOutOfRange is matched by rejections of implausible readings.
	ErrOutOfRange = errors.New("billing: reading out of range")
)

// RejectionReason names why a reading was refused.
type RejectionReason string

// Rejection reasons.
const (
	ReasonNonMonotonic RejectionReason = "non_monotonic"
	ReasonOutOfRange   RejectionReason = "out_of_range"
)

// powerHeadroom lets a point briefly exceed its rated power before readings are refused.
const powerHeadroom = 1.1

// Reading is a cumulative meter value in kWh observed at a point in time.
type Reading struct {
	Value decimal.Decimal
	At    time.Time
}

// ReadingError describes a rejected meter reading.
type ReadingError struct {
	Reason    RejectionReason
	Previous  decimal.Decimal
	Candidate decimal.Decimal
	Limit     decimal.Decimal
}

func (e *ReadingError) Error() string {
	switch e.Reason {
	case ReasonNonMonotonic:
		return fmt.Sprintf("billing: reading %s is lower than previous %s", e.Candidate, e.Previous)
	default:
		return fmt.Sprintf("billing: reading %s out of range (previous %s, max delta %s)", e.Candidate, e.Previous, e.Limit)
	}
}

// Is lets errors.Is match both the generic and the reason specific sentinel.
func (e *ReadingError) Is(target error) bool {
	switch target {
	case ErrInvalidReading:
		return true
	case ErrNonMonotonic:
		return e.Reason == ReasonNonMonotonic
	case ErrOutOfRange:
		return e.Reason == ReasonOutOfRange
	}
	return false
}

// MeterValidator guards billing against readings that go backwards or jump implausibly.
type MeterValidator struct {
	// MaxPowerKW bounds the energy that can be delivered per hour of wall-clock time.
	// Zero disables the rate check.
	MaxPowerKW float64
	// Tolerance is always allowed on top of the rate bound to absorb clock jitter.
	Tolerance decimal.Decimal
}

// NewMeterValidator builds a validator.
func NewMeterValidator(maxPowerKW, toleranceKWh float64) MeterValidator {
	return MeterValidator{
		MaxPowerKW: maxPowerKW,
		Tolerance:  decimal.NewFromFloat(toleranceKWh),
	}
}

// WithPowerCap narrows the rate bound to the rated power of a specific point.
func (v MeterValidator) WithPowerCap(ratedKW float64) MeterValidator {
	if ratedKW <= 0 {
		return v
	}
	capped := ratedKW * powerHeadroom
	if v.MaxPowerKW <= 0 || capped < v.MaxPowerKW {
		v.MaxPowerKW = capped
	}
	return v
}

// Validate accepts candidate if it does not go below previous and the delta is plausible for
// the elapsed time. It has no side effects.
func (v MeterValidator) Validate(previous, candidate Reading) (Reading, error) {
	if candidate.Value.IsNegative() {
		return Reading{}, &ReadingError{
			Reason:    ReasonOutOfRange,
			Previous:  previous.Value,
			Candidate: candidate.Value,
		}
	}
	if candidate.Value.LessThan(previous.Value) {
		return Reading{}, &ReadingError{
			Reason:    ReasonNonMonotonic,
			Previous:  previous.Value,
			Candidate: candidate.Value,
		}
	}

	if v.MaxPowerKW > 0 {
		limit := v.maxDelta(previous.At, candidate.At)
		if candidate.Value.Sub(previous.Value).GreaterThan(limit) {
			return Reading{}, &ReadingError{
				Reason:    ReasonOutOfRange,
				Previous:  previous.Value,
				Candidate: candidate.Value,
				Limit:     limit,
			}
		}
	}
	return candidate, nil
}

func (v MeterValidator) maxDelta(from, to time.Time) decimal.Decimal {
	elapsed := to.Sub(from)
	if from.IsZero() || to.IsZero() || elapsed < 0 {
		elapsed = 0
	}
	hours := decimal.NewFromFloat(elapsed.Hours())
	return decimal.NewFromFloat(v.MaxPowerKW).Mul(hours).Add(v.Tolerance)
}
