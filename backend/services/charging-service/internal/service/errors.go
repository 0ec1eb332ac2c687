package service

import (
	"errors"

	"chargeflow/backend/services/charging-service/internal/billing"
)

var (
	ErrPointUnavailable         = errors.New("sessions: point unavailable")
	ErrDuplicateActiveSession   = errors.New("sessions: user already has an active session")
	ErrSessionNotActive         = errors.New("sessions: session is not active")
	ErrSessionNotCompleted      = errors.New("invoices: session is not completed")
	ErrInternalFault            = errors.New("sessions: internal fault")
	ErrInvalidInput             = errors.New("sessions: invalid input")
	ErrSessionNotFound          = errors.New("sessions: session not found")
	ErrPointNotFound            = errors.New("points: point not found")
	ErrStationNotFound          = errors.New("points: station not found")
	ErrInvoiceNotFound          = errors.New("invoices: invoice not found")
	ErrInvoiceExists            = errors.New("invoices: invoice already exists for session")
	ErrInvalidInvoiceTransition = errors.New("invoices: invalid status transition")
	ErrNoTariff                 = errors.New("tariff: no tariff configured")
)

// Error kinds reported to callers. The names are part of the API contract.
const (
	KindPointUnavailable         = "PointUnavailable"
	KindDuplicateActiveSession   = "DuplicateActiveSession"
	KindInvalidReading           = "InvalidReading"
	KindSessionNotActive         = "SessionNotActive"
	KindSessionNotCompleted      = "SessionNotCompleted"
	KindInternalFault            = "InternalFault"
	KindInvalidInput             = "InvalidInput"
	KindNotFound                 = "NotFound"
	KindInvalidInvoiceTransition = "InvalidInvoiceTransition"
)

// ErrorKind maps err to its kind name. Unknown errors are reported as InternalFault.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrPointUnavailable):
		return KindPointUnavailable
	case errors.Is(err, ErrDuplicateActiveSession):
		return KindDuplicateActiveSession
	case errors.Is(err, billing.ErrInvalidReading):
		return KindInvalidReading
	case errors.Is(err, ErrSessionNotActive):
		return KindSessionNotActive
	case errors.Is(err, ErrSessionNotCompleted):
		return KindSessionNotCompleted
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrPointNotFound),
		errors.Is(err, ErrStationNotFound), errors.Is(err, ErrInvoiceNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInvoiceTransition):
		return KindInvalidInvoiceTransition
	}
	return KindInternalFault
}

// ErrorReason returns the subtype of an InvalidReading error, or "" for other errors.
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, billing.ErrNonMonotonic):
		return "NonMonotonic"
	case errors.Is(err, billing.ErrOutOfRange):
		return "OutOfRange"
	}
	return ""
}
