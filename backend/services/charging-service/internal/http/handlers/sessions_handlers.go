package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chargeflow/backend/services/charging-service/internal/http/middleware"
	"chargeflow/backend/services/charging-service/internal/models"
	"chargeflow/backend/services/charging-service/internal/service"
	"chargeflow/backend/services/charging-service/internal/ws"
)

type startSessionRequest struct {
	PointID    string          `json:"point_id"`
	VehicleID  string          `json:"vehicle_id"`
	BookingID  string          `json:"booking_id"`
	MeterStart decimal.Decimal `json:"meter_start"`
	Battery    *struct {
		InitialPercent *float64 `json:"initial_percent"`
		TargetPercent  *float64 `json:"target_percent"`
		CapacityKWh    *float64 `json:"capacity_kwh"`
	} `json:"battery"`
	Timestamp *time.Time `json:"timestamp"`
}

type meterUpdateRequest struct {
	Reading        decimal.Decimal `json:"reading"`
	BatteryPercent *float64        `json:"battery_percent"`
	Timestamp      *time.Time      `json:"timestamp"`
}

type stopSessionRequest struct {
	MeterEnd    decimal.Decimal  `json:"meter_end"`
	IdleMinutes *decimal.Decimal `json:"idle_minutes"`
	Timestamp   *time.Time       `json:"timestamp"`
}

type abortSessionRequest struct {
	Reason string `json:"reason"`
}

// NewStartSessionHandler returns POST /api/sessions handler. The session belongs to the caller.
func NewStartSessionHandler(svc *service.SessionsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		var req startSessionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if !operatorField(w, r, "timestamp", req.Timestamp != nil) {
			return
		}

		input := service.StartInput{
			UserID:     userID,
			PointID:    req.PointID,
			VehicleID:  req.VehicleID,
			BookingID:  req.BookingID,
			MeterStart: req.MeterStart,
			At:         timeOrZero(req.Timestamp),
		}
		if req.Battery != nil {
			input.Battery = models.Battery{
				InitialPercent: req.Battery.InitialPercent,
				TargetPercent:  req.Battery.TargetPercent,
				CapacityKWh:    req.Battery.CapacityKWh,
			}
		}

		session, err := svc.Start(r.Context(), input)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, svc.Project(session))
	}
}

// NewMeterUpdateHandler returns PUT /api/sessions/{id}/meter handler.
func NewMeterUpdateHandler(svc *service.SessionsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := ownedSession(w, r, svc, logger)
		if !ok {
			return
		}
		var req meterUpdateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if !operatorField(w, r, "timestamp", req.Timestamp != nil) {
			return
		}

		result, err := svc.UpdateMeter(r.Context(), session.ID, service.MeterUpdate{
			Reading:        req.Reading,
			BatteryPercent: req.BatteryPercent,
			At:             timeOrZero(req.Timestamp),
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// NewStopSessionHandler returns PUT /api/sessions/{id}/stop handler.
func NewStopSessionHandler(svc *service.SessionsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := ownedSession(w, r, svc, logger)
		if !ok {
			return
		}
		var req stopSessionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if !operatorField(w, r, "timestamp", req.Timestamp != nil) || !operatorField(w, r, "idle_minutes", req.IdleMinutes != nil) {
			return
		}

		stopped, err := svc.Stop(r.Context(), session.ID, service.StopInput{
			MeterEnd:            req.MeterEnd,
			IdleMinutesOverride: req.IdleMinutes,
			At:                  timeOrZero(req.Timestamp),
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, svc.Project(stopped))
	}
}

// NewAbortSessionHandler returns POST /api/sessions/{id}/abort handler.
func NewAbortSessionHandler(svc *service.SessionsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req abortSessionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Reason == "" {
			req.Reason = "aborted by operator"
		}
		session, err := svc.Abort(r.Context(), r.PathValue("id"), req.Reason)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, svc.Project(session))
	}
}

// NewSessionHandler returns GET /api/sessions/{id} handler.
func NewSessionHandler(svc *service.SessionsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := ownedSession(w, r, svc, logger)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, svc.Project(session))
	}
}

// NewActiveSessionHandler returns GET /api/sessions/active handler.
func NewActiveSessionHandler(svc *service.SessionsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		session, err := svc.ActiveForUser(r.Context(), userID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, svc.Project(session))
	}
}

// NewSessionsMeHandler returns GET /api/sessions/me handler.
func NewSessionsMeHandler(svc *service.SessionsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		limit, err := parseLimit(r)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		sessions, err := svc.History(r.Context(), userID, limit)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"sessions": sessions,
		})
	}
}

// NewSessionFeedHandler returns GET /ws/sessions/{id} handler. The first frame is a snapshot of
// the current projection; later frames are lifecycle events.
func NewSessionFeedHandler(svc *service.SessionsService, feed *ws.Server, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := ownedSession(w, r, svc, logger)
		if !ok {
			return
		}
		initial, err := json.Marshal(service.SessionEvent{
			Type:       service.EventSnapshot,
			Projection: svc.Project(session),
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		feed.ServeSession(w, r, session.ID, initial)
	}
}

func ownedSession(w http.ResponseWriter, r *http.Request, svc *service.SessionsService, logger *zap.Logger) (*models.Session, bool) {
	session, err := svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, logger, err)
		return nil, false
	}
	if !authorizeOwner(w, r, session.UserID) {
		return nil, false
	}
	return session, true
}

// operatorField refuses a request field that only staff may send. Customers are billed on the
// server clock and the detected idle time.
func operatorField(w http.ResponseWriter, r *http.Request, field string, set bool) bool {
	if !set || middleware.IsOperator(r.Context()) {
		return true
	}
	writeError(w, http.StatusBadRequest, service.KindInvalidInput, field+" may only be set by staff")
	return false
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
