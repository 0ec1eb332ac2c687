package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chargeflow/backend/services/charging-service/internal/models"
	"chargeflow/backend/services/charging-service/internal/service"
)

const pointColumns = `id, station_id, power_kw, connector_type, status, reserved_booking_id,
	price_per_kwh, idle_fee_per_minute, last_seen, updated_at`

// PointRepository stores stations and charging points.
type PointRepository struct {
	db *sql.DB
}

// NewPointRepository returns repository.
func NewPointRepository(db *sql.DB) *PointRepository {
	return &PointRepository{db: db}
}

// UpsertStation persists station info.
func (r *PointRepository) UpsertStation(ctx context.Context, st models.Station) error {
	const query = `
		INSERT INTO stations (id, name, maintenance, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			maintenance = EXCLUDED.maintenance,
			updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, st.ID, st.Name, st.Maintenance); err != nil {
		return fmt.Errorf("points: upsert station: %w", err)
	}
	return nil
}

// UpsertPoint persists point metadata. The status of an existing point is kept, since it is
// owned by the session lifecycle once the point is in service.
func (r *PointRepository) UpsertPoint(ctx context.Context, p models.ChargingPoint) error {
	const query = `
		INSERT INTO charging_points (id, station_id, power_kw, connector_type, status, reserved_booking_id,
			price_per_kwh, idle_fee_per_minute, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			station_id = EXCLUDED.station_id,
			power_kw = EXCLUDED.power_kw,
			connector_type = EXCLUDED.connector_type,
			price_per_kwh = EXCLUDED.price_per_kwh,
			idle_fee_per_minute = EXCLUDED.idle_fee_per_minute,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.StationID,
		p.PowerKW,
		p.ConnectorType,
		p.Status,
		p.ReservedBookingID,
		p.PricePerKWh,
		p.IdleFeePerMinute,
	)
	if _, ok := constraintViolation(err, codeForeignKeyViolation); ok {
		return service.ErrStationNotFound
	}
	if err != nil {
		return fmt.Errorf("points: upsert point: %w", err)
	}
	return nil
}

// GetPoint loads a point by id.
func (r *PointRepository) GetPoint(ctx context.Context, id string) (*models.ChargingPoint, error) {
	p, err := scanPoint(r.db.QueryRowContext(ctx, `SELECT `+pointColumns+` FROM charging_points WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrPointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("points: select: %w", err)
	}
	return p, nil
}

// SetPointStatus updates the operational status of a point.
func (r *PointRepository) SetPointStatus(ctx context.Context, id string, status models.PointStatus, bookingID string) error {
	const query = `
		UPDATE charging_points
		SET status = $2,
		    reserved_booking_id = $3,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, status, bookingID)
	if err != nil {
		return fmt.Errorf("points: update status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return service.ErrPointNotFound
	}
	return nil
}

// GetStation loads a station by id.
func (r *PointRepository) GetStation(ctx context.Context, id string) (*models.Station, error) {
	var st models.Station
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, maintenance, updated_at FROM stations WHERE id = $1`, id,
	).Scan(&st.ID, &st.Name, &st.Maintenance, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrStationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("points: select station: %w", err)
	}
	st.UpdatedAt = st.UpdatedAt.UTC()
	return &st, nil
}

// ListStations returns all stations ordered by id.
func (r *PointRepository) ListStations(ctx context.Context) ([]models.Station, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, maintenance, updated_at FROM stations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("points: list stations: %w", err)
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.ID, &st.Name, &st.Maintenance, &st.UpdatedAt); err != nil {
			return nil, err
		}
		st.UpdatedAt = st.UpdatedAt.UTC()
		stations = append(stations, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stations, nil
}

// ListPointsByStation returns the points of a station ordered by id.
func (r *PointRepository) ListPointsByStation(ctx context.Context, stationID string) ([]models.ChargingPoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pointColumns+` FROM charging_points WHERE station_id = $1 ORDER BY id`, stationID)
	if err != nil {
		return nil, fmt.Errorf("points: list: %w", err)
	}
	defer rows.Close()

	var points []models.ChargingPoint
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

func scanPoint(row rowScanner) (*models.ChargingPoint, error) {
	var p models.ChargingPoint
	if err := row.Scan(
		&p.ID,
		&p.StationID,
		&p.PowerKW,
		&p.ConnectorType,
		&p.Status,
		&p.ReservedBookingID,
		&p.PricePerKWh,
		&p.IdleFeePerMinute,
		&p.LastSeen,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	normalizeTimes(&p.UpdatedAt, p.LastSeen)
	return &p, nil
}
