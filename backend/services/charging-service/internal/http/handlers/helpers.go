package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"chargeflow/backend/services/charging-service/internal/availability"
	"chargeflow/backend/services/charging-service/internal/http/middleware"
	"chargeflow/backend/services/charging-service/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxBodyBytes     = 1 << 20
)

// errorBody is the error payload of every endpoint.
type errorBody struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: kind, Message: message})
}

// writeServiceError maps err to its kind and status. Messages of unexpected errors are not
// exposed.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	kind := service.ErrorKind(err)
	body := errorBody{Error: kind, Reason: service.ErrorReason(err), Message: err.Error()}

	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		if !errors.Is(err, service.ErrInternalFault) {
			body.Message = "internal error"
		}
	}
	writeJSON(w, status, body)
}

func statusForKind(kind string) int {
	switch kind {
	case service.KindInvalidInput:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidReading:
		return http.StatusUnprocessableEntity
	case service.KindPointUnavailable, service.KindDuplicateActiveSession,
		service.KindSessionNotActive, service.KindSessionNotCompleted,
		service.KindInvalidInvoiceTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, service.KindInvalidInput, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "missing user id")
		return "", false
	}
	return userID, true
}

// authorizeOwner allows the resource owner and operators. Other callers get NotFound so ids of
// foreign resources are not confirmed.
func authorizeOwner(w http.ResponseWriter, r *http.Request, ownerID string) bool {
	userID, ok := currentUser(w, r)
	if !ok {
		return false
	}
	if userID == ownerID || middleware.IsOperator(r.Context()) {
		return true
	}
	writeError(w, http.StatusNotFound, service.KindNotFound, "not found")
	return false
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("%w: invalid limit", service.ErrInvalidInput)
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}

func vehicleFromQuery(r *http.Request) *availability.Vehicle {
	connector := strings.TrimSpace(r.URL.Query().Get("connector"))
	if connector == "" {
		return nil
	}
	return &availability.Vehicle{ConnectorType: connector}
}
