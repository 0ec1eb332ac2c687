package service

import (
	"context"

	"chargeflow/backend/services/charging-service/internal/models"
)

// SessionStore persists sessions. Sessions are never deleted.
// Create reports ErrDuplicateActiveSession or ErrPointUnavailable when a second active session
// for the same user or point would be stored; lookups report ErrSessionNotFound.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	ActiveByUser(ctx context.Context, userID string) (*models.Session, error)
	ActiveByPoint(ctx context.Context, pointID string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Session, error)
}

// InvoiceStore persists invoices. Create reports ErrInvoiceExists when the session already has one.
type InvoiceStore interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	Update(ctx context.Context, invoice *models.Invoice) error
	Get(ctx context.Context, id string) (*models.Invoice, error)
	GetBySession(ctx context.Context, sessionID string) (*models.Invoice, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Invoice, error)
}

// PointStore reads stations and points and records point status changes.
type PointStore interface {
	GetPoint(ctx context.Context, id string) (*models.ChargingPoint, error)
	SetPointStatus(ctx context.Context, id string, status models.PointStatus, bookingID string) error
	GetStation(ctx context.Context, id string) (*models.Station, error)
	ListStations(ctx context.Context) ([]models.Station, error)
	ListPointsByStation(ctx context.Context, stationID string) ([]models.ChargingPoint, error)
}

// ActiveSessionCache keeps the active session of each user for quick lookups.
// Get returns nil, nil on a miss.
type ActiveSessionCache interface {
	Save(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, userID string) (*models.Session, error)
	Delete(ctx context.Context, userID string) error
}

// Locker serialises work on the given keys. Keys are acquired in sorted order; the returned
// func releases all of them.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (func(), error)
}

// EventType names a session lifecycle event.
type EventType string

// Session events.
const (
	EventStarted   EventType = "session.started"
	EventMeter     EventType = "session.meter_updated"
	EventCompleted EventType = "session.completed"
	EventFailed    EventType = "session.failed"
	// EventSnapshot is sent once when a live feed opens.
	EventSnapshot  EventType = "session.snapshot"
)

// SessionEvent is pushed to live subscribers of a session.
type SessionEvent struct {
	Type       EventType   `json:"type"`
	Projection *Projection `json:"data"`
}

// SessionPublisher fans session events out to subscribers. Publish must not block.
type SessionPublisher interface {
	Publish(event SessionEvent)
}

// Metrics records engine counters.
type Metrics interface {
	SessionStarted()
	SessionFinished(status models.SessionStatus, energyKWh float64)
	ReadingRejected(reason string)
	InvoiceIssued()
}

type noopMetrics struct{}

func (noopMetrics) SessionStarted() {}
func (noopMetrics) SessionFinished(models.SessionStatus, float64) {}
func (noopMetrics) ReadingRejected(string) {}
func (noopMetrics) InvoiceIssued() {}

type noopPublisher struct{}

func (noopPublisher) Publish(SessionEvent) {}
