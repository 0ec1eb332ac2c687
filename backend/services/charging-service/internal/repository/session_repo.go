package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chargeflow/backend/services/charging-service/internal/models"
	"chargeflow/backend/services/charging-service/internal/service"
)

const sessionColumns = `
	id, user_id, vehicle_id, point_id, station_id, booking_id, status, error_reason,
	start_time, end_time, meter_start, meter_current, last_reading_at, meter_advanced_at,
	rated_power_kw, idle_started_at, idle_seconds, price_per_kwh, idle_fee_per_minute, currency,
	battery_initial_percent, battery_target_percent, battery_capacity_kwh, battery_reported_percent,
	energy_cost, idle_fee, total_cost, created_at, updated_at`

// SessionRepository handles persistence of charging sessions. The partial unique indexes on
// active sessions back the one-active-session rules.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	const query = `
		INSERT INTO charging_sessions (
			id, user_id, vehicle_id, point_id, station_id, booking_id, status, error_reason,
			start_time, end_time, meter_start, meter_current, last_reading_at, meter_advanced_at,
			rated_power_kw, idle_started_at, idle_seconds, price_per_kwh, idle_fee_per_minute, currency,
			battery_initial_percent, battery_target_percent, battery_capacity_kwh, battery_reported_percent,
			energy_cost, idle_fee, total_cost, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25, $26, $27, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.ID,
		s.UserID,
		s.VehicleID,
		s.PointID,
		s.StationID,
		s.BookingID,
		s.Status,
		s.ErrorReason,
		s.StartTime,
		s.EndTime,
		s.MeterStart,
		s.MeterCurrent,
		s.LastReadingAt,
		s.MeterAdvancedAt,
		s.RatedPowerKW,
		s.IdleStartedAt,
		s.IdleSeconds,
		s.Tariff.PricePerKWh,
		s.Tariff.IdleFeePerMinute,
		s.Tariff.Currency,
		s.Battery.InitialPercent,
		s.Battery.TargetPercent,
		s.Battery.CapacityKWh,
		s.Battery.ReportedPercent,
		s.EnergyCost,
		s.IdleFee,
		s.TotalCost,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err == nil {
		return nil
	}
	if constraint, ok := constraintViolation(err, codeUniqueViolation); ok {
		switch constraint {
		case "charging_sessions_active_user_uq":
			return service.ErrDuplicateActiveSession
		case "charging_sessions_active_point_uq":
			return service.ErrPointUnavailable
		}
	}
	if _, ok := constraintViolation(err, codeForeignKeyViolation); ok {
		return service.ErrPointNotFound
	}
	return fmt.Errorf("sessions: insert: %w", err)
}

// Update overwrites the mutable fields of a session that is still active.
func (r *SessionRepository) Update(ctx context.Context, s *models.Session) error {
	const query = `
		UPDATE charging_sessions
		SET status = $2,
		    error_reason = $3,
		    end_time = $4,
		    meter_current = $5,
		    last_reading_at = $6,
		    meter_advanced_at = $7,
		    idle_started_at = $8,
		    idle_seconds = $9,
		    battery_reported_percent = $10,
		    energy_cost = $11,
		    idle_fee = $12,
		    total_cost = $13,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.ID,
		s.Status,
		s.ErrorReason,
		s.EndTime,
		s.MeterCurrent,
		s.LastReadingAt,
		s.MeterAdvancedAt,
		s.IdleStartedAt,
		s.IdleSeconds,
		s.Battery.ReportedPercent,
		s.EnergyCost,
		s.IdleFee,
		s.TotalCost,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r.updateMiss(ctx, s.ID)
	}
	if err != nil {
		return fmt.Errorf("sessions: update: %w", err)
	}
	return nil
}

// updateMiss tells a missing session from one that already left the active state.
func (r *SessionRepository) updateMiss(ctx context.Context, id string) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM charging_sessions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sessions: update: %w", err)
	}
	if !exists {
		return service.ErrSessionNotFound
	}
	return service.ErrSessionNotActive
}

// Get loads a session by id.
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	return r.one(ctx, `SELECT `+sessionColumns+` FROM charging_sessions WHERE id = $1`, id)
}

// ActiveByUser returns the active session of a user.
func (r *SessionRepository) ActiveByUser(ctx context.Context, userID string) (*models.Session, error) {
	return r.one(ctx, `SELECT `+sessionColumns+` FROM charging_sessions WHERE user_id = $1 AND status = 'active'`, userID)
}

// ActiveByPoint returns the active session on a point.
func (r *SessionRepository) ActiveByPoint(ctx context.Context, pointID string) (*models.Session, error) {
	return r.one(ctx, `SELECT `+sessionColumns+` FROM charging_sessions WHERE point_id = $1 AND status = 'active'`, pointID)
}

// ListByUser returns last N sessions for user.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + sessionColumns + `
		FROM charging_sessions
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sessions: list: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepository) one(ctx context.Context, query string, arg string) (*models.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: select: %w", err)
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.VehicleID,
		&s.PointID,
		&s.StationID,
		&s.BookingID,
		&s.Status,
		&s.ErrorReason,
		&s.StartTime,
		&s.EndTime,
		&s.MeterStart,
		&s.MeterCurrent,
		&s.LastReadingAt,
		&s.MeterAdvancedAt,
		&s.RatedPowerKW,
		&s.IdleStartedAt,
		&s.IdleSeconds,
		&s.Tariff.PricePerKWh,
		&s.Tariff.IdleFeePerMinute,
		&s.Tariff.Currency,
		&s.Battery.InitialPercent,
		&s.Battery.TargetPercent,
		&s.Battery.CapacityKWh,
		&s.Battery.ReportedPercent,
		&s.EnergyCost,
		&s.IdleFee,
		&s.TotalCost,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	normalizeTimes(&s.StartTime, &s.LastReadingAt, &s.MeterAdvancedAt, &s.CreatedAt, &s.UpdatedAt)
	normalizeTimes(s.EndTime, s.IdleStartedAt)
	return &s, nil
}

func normalizeTimes(ts ...*time.Time) {
	for _, t := range ts {
		if t != nil {
			*t = t.UTC()
		}
	}
}
