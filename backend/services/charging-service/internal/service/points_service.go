package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chargeflow/backend/services/charging-service/internal/availability"
	"chargeflow/backend/services/charging-service/internal/billing"
	"chargeflow/backend/services/charging-service/internal/models"
)

// PointsService serves availability read models and staff status changes.
type PointsService struct {
	points     PointStore
	sessions   SessionStore
	classifier availability.Classifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewPointsService builds service. Only WithClock applies.
func NewPointsService(points PointStore, sessions SessionStore, classifier availability.Classifier, logger *zap.Logger, opts ...Option) *PointsService {
	o := buildOptions(opts)
	return &PointsService{
		points:     points,
		sessions:   sessions,
		classifier: classifier,
		logger:     logger,
		now:        o.now,
	}
}

// PointAvailability is the classified view of one point.
type PointAvailability struct {
	Point                *models.ChargingPoint       `json:"point"`
	PredictedFreeMinutes *int                        `json:"predicted_free_minutes,omitempty"`
	Classification       availability.Classification `json:"classification"`
}

// StationAvailability is the classified view of a station and its points.
type StationAvailability struct {
	Station        *models.Station             `json:"station"`
	Classification availability.Classification `json:"classification"`
	Points         []PointAvailability         `json:"points"`
}

// Point classifies a single point. vehicle may be nil.
func (s *PointsService) Point(ctx context.Context, pointID string, vehicle *availability.Vehicle) (*PointAvailability, error) {
	point, err := s.points.GetPoint(ctx, pointID)
	if err != nil {
		return nil, err
	}
	view, err := s.view(ctx, *point, s.now())
	if err != nil {
		return nil, err
	}
	return &PointAvailability{
		Point:                point,
		PredictedFreeMinutes: view.PredictedFreeMinutes,
		Classification:       s.classifier.Classify(availability.PointSnapshot(view), vehicle),
	}, nil
}

// Station classifies a station and its points. Points are ordered by display priority.
func (s *PointsService) Station(ctx context.Context, stationID string, vehicle *availability.Vehicle) (*StationAvailability, error) {
	station, err := s.points.GetStation(ctx, stationID)
	if err != nil {
		return nil, err
	}
	return s.station(ctx, station, vehicle, s.now())
}

// Stations classifies every station, ordered by display priority.
func (s *PointsService) Stations(ctx context.Context, vehicle *availability.Vehicle) ([]StationAvailability, error) {
	stations, err := s.points.ListStations(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	byID := make(map[string]StationAvailability, len(stations))
	ranked := make([]availability.Ranked, 0, len(stations))
	for i := range stations {
		sa, err := s.station(ctx, &stations[i], vehicle, now)
		if err != nil {
			return nil, err
		}
		byID[stations[i].ID] = *sa
		ranked = append(ranked, availability.Ranked{ID: stations[i].ID, Classification: sa.Classification})
	}
	availability.Rank(ranked)

	result := make([]StationAvailability, 0, len(ranked))
	for _, r := range ranked {
		result = append(result, byID[r.ID])
	}
	return result, nil
}

// SetStatus records a staff status change. In-use is owned by the session lifecycle and
// cannot be set by hand; a point with an active session can only be taken out of service.
func (s *PointsService) SetStatus(ctx context.Context, pointID string, status models.PointStatus, bookingID string) (*models.ChargingPoint, error) {
	if !status.Valid() || status == models.PointStatusInUse {
		return nil, fmt.Errorf("%w: status %q cannot be set", ErrInvalidInput, status)
	}
	if status == models.PointStatusReserved && bookingID == "" {
		return nil, fmt.Errorf("%w: booking id is required to reserve a point", ErrInvalidInput)
	}
	if status != models.PointStatusReserved {
		bookingID = ""
	}

	if _, err := s.points.GetPoint(ctx, pointID); err != nil {
		return nil, err
	}
	if status == models.PointStatusAvailable || status == models.PointStatusReserved {
		if _, err := s.sessions.ActiveByPoint(ctx, pointID); err == nil {
			return nil, ErrPointUnavailable
		} else if !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
	}

	if err := s.points.SetPointStatus(ctx, pointID, status, bookingID); err != nil {
		return nil, err
	}
	s.logger.Info("point status changed", zap.String("point_id", pointID), zap.String("status", string(status)))
	return s.points.GetPoint(ctx, pointID)
}

func (s *PointsService) station(ctx context.Context, station *models.Station, vehicle *availability.Vehicle, now time.Time) (*StationAvailability, error) {
	points, err := s.points.ListPointsByStation(ctx, station.ID)
	if err != nil {
		return nil, err
	}

	views := make([]availability.PointView, 0, len(points))
	byID := make(map[string]PointAvailability, len(points))
	ranked := make([]availability.Ranked, 0, len(points))
	for i := range points {
		view, err := s.view(ctx, points[i], now)
		if err != nil {
			return nil, err
		}
		views = append(views, view)

		pa := PointAvailability{
			Point:                &points[i],
			PredictedFreeMinutes: view.PredictedFreeMinutes,
			Classification:       s.classifier.Classify(availability.PointSnapshot(view), vehicle),
		}
		if station.Maintenance {
			pa.Classification = s.classifier.Classify(availability.Snapshot{Operational: availability.OperationalMaintenance}, vehicle)
		}
		byID[points[i].ID] = pa
		ranked = append(ranked, availability.Ranked{ID: points[i].ID, Classification: pa.Classification})
	}
	availability.Rank(ranked)

	result := &StationAvailability{
		Station:        station,
		Classification: s.classifier.Classify(availability.StationSnapshot(*station, views), vehicle),
		Points:         make([]PointAvailability, 0, len(ranked)),
	}
	for _, r := range ranked {
		result.Points = append(result.Points, byID[r.ID])
	}
	return result, nil
}

// view attaches the expected wait of an in-use point, derived from the battery progress of the
// session charging on it.
func (s *PointsService) view(ctx context.Context, point models.ChargingPoint, now time.Time) (availability.PointView, error) {
	view := availability.PointView{Point: point}
	if point.Status != models.PointStatusInUse {
		return view, nil
	}

	session, err := s.sessions.ActiveByPoint(ctx, point.ID)
	if errors.Is(err, ErrSessionNotFound) {
		return view, nil
	}
	if err != nil {
		return view, err
	}
	view.PredictedFreeMinutes = billing.EstimateBattery(session, now).MinutesRemaining
	return view, nil
}
