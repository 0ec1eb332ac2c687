package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"chargeflow/backend/services/charging-service/internal/models"
	"chargeflow/backend/services/charging-service/internal/service"
)

type pointStatusRequest struct {
	Status    models.PointStatus `json:"status"`
	BookingID string             `json:"booking_id"`
}

// NewPointAvailabilityHandler returns GET /api/points/{id}/availability handler.
func NewPointAvailabilityHandler(svc *service.PointsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.Point(r.Context(), r.PathValue("id"), vehicleFromQuery(r))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// NewStationAvailabilityHandler returns GET /api/stations/{id}/availability handler.
func NewStationAvailabilityHandler(svc *service.PointsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.Station(r.Context(), r.PathValue("id"), vehicleFromQuery(r))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// NewStationsAvailabilityHandler returns GET /api/stations/availability handler.
func NewStationsAvailabilityHandler(svc *service.PointsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stations, err := svc.Stations(r.Context(), vehicleFromQuery(r))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"stations": stations,
		})
	}
}

// NewPointStatusHandler returns PUT /api/points/{id}/status handler.
func NewPointStatusHandler(svc *service.PointsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pointStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		point, err := svc.SetStatus(r.Context(), r.PathValue("id"), req.Status, req.BookingID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, point)
	}
}
