package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"chargeflow/backend/services/charging-service/internal/models"
	"chargeflow/backend/services/charging-service/internal/service"
)

// PointRepository is an in-memory station and point store.
type PointRepository struct {
	mu       sync.RWMutex
	stations map[string]models.Station
	points   map[string]models.ChargingPoint
}

// NewPointRepository constructs a repository.
func NewPointRepository() *PointRepository {
	return &PointRepository{
		stations: make(map[string]models.Station),
		points:   make(map[string]models.ChargingPoint),
	}
}

// PutStation inserts or replaces a station.
func (r *PointRepository) PutStation(station models.Station) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stations[station.ID] = station
}

// PutPoint inserts or replaces a point.
func (r *PointRepository) PutPoint(point models.ChargingPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points[point.ID] = point
}

// UpsertStation stores station info.
func (r *PointRepository) UpsertStation(ctx context.Context, station models.Station) error {
	_ = ctx
	r.PutStation(station)
	return nil
}

// UpsertPoint stores point metadata, keeping the status of a known point.
func (r *PointRepository) UpsertPoint(ctx context.Context, point models.ChargingPoint) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stations[point.StationID]; !ok {
		return service.ErrStationNotFound
	}
	if existing, ok := r.points[point.ID]; ok {
		point.Status = existing.Status
		point.ReservedBookingID = existing.ReservedBookingID
	}
	r.points[point.ID] = point
	return nil
}

// GetPoint loads a point by id.
func (r *PointRepository) GetPoint(ctx context.Context, id string) (*models.ChargingPoint, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.points[id]
	if !ok {
		return nil, service.ErrPointNotFound
	}
	return &p, nil
}

// SetPointStatus updates the operational status of a point.
func (r *PointRepository) SetPointStatus(ctx context.Context, id string, status models.PointStatus, bookingID string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.points[id]
	if !ok {
		return service.ErrPointNotFound
	}
	p.Status = status
	p.ReservedBookingID = bookingID
	p.UpdatedAt = time.Now().UTC()
	r.points[id] = p
	return nil
}

// GetStation loads a station by id.
func (r *PointRepository) GetStation(ctx context.Context, id string) (*models.Station, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stations[id]
	if !ok {
		return nil, service.ErrStationNotFound
	}
	return &st, nil
}

// ListStations returns all stations ordered by id.
func (r *PointRepository) ListStations(ctx context.Context) ([]models.Station, error) {
	_ = ctx
	r.mu.RLock()
	result := make([]models.Station, 0, len(r.stations))
	for _, st := range r.stations {
		result = append(result, st)
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListPointsByStation returns the points of a station ordered by id.
func (r *PointRepository) ListPointsByStation(ctx context.Context, stationID string) ([]models.ChargingPoint, error) {
	_ = ctx
	r.mu.RLock()
	result := make([]models.ChargingPoint, 0)
	for _, p := range r.points {
		if p.StationID == stationID {
			result = append(result, p)
		}
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
