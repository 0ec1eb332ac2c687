package httpserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chargeflow/backend/services/charging-service/internal/http/handlers"
	"chargeflow/backend/services/charging-service/internal/http/middleware"
	"chargeflow/backend/services/charging-service/internal/service"
	"chargeflow/backend/services/charging-service/internal/ws"
)

// RouterDeps groups dependencies for router.
type RouterDeps struct {
	Sessions     *service.SessionsService
	Invoices     *service.InvoiceService
	Points       *service.PointsService
	Feed         *ws.Server
	JWTSecret    string
	Gatherer     prometheus.Gatherer
	HealthChecks map[string]handlers.HealthCheck
	Logger       *zap.Logger
}

// NewRouter registers endpoints.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.AuthMiddleware(deps.JWTSecret)
	operator := middleware.RequireRole(middleware.RoleStaff, middleware.RoleAdmin)
	logger := deps.Logger

	protected := func(h http.Handler) http.Handler {
		return middleware.Chain(h, auth)
	}
	staffOnly := func(h http.Handler) http.Handler {
		return middleware.Chain(h, auth, operator)
	}

	mux.Handle("/health", method(http.MethodGet, handlers.NewHealthHandler(deps.HealthChecks)))
	if deps.Gatherer != nil {
		mux.Handle("/metrics", method(http.MethodGet, promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}).ServeHTTP))
	}

	mux.Handle("/api/sessions", protected(method(http.MethodPost, handlers.NewStartSessionHandler(deps.Sessions, logger))))
	mux.Handle("/api/sessions/active", protected(method(http.MethodGet, handlers.NewActiveSessionHandler(deps.Sessions, logger))))
	mux.Handle("/api/sessions/me", protected(method(http.MethodGet, handlers.NewSessionsMeHandler(deps.Sessions, logger))))
	mux.Handle("/api/sessions/{id}", protected(method(http.MethodGet, handlers.NewSessionHandler(deps.Sessions, logger))))
	mux.Handle("/api/sessions/{id}/meter", protected(method(http.MethodPut, handlers.NewMeterUpdateHandler(deps.Sessions, logger))))
	mux.Handle("/api/sessions/{id}/stop", protected(method(http.MethodPut, handlers.NewStopSessionHandler(deps.Sessions, logger))))
	mux.Handle("/api/sessions/{id}/abort", staffOnly(method(http.MethodPost, handlers.NewAbortSessionHandler(deps.Sessions, logger))))
	mux.Handle("/api/sessions/{id}/invoice", protected(method(http.MethodPost, handlers.NewIssueInvoiceHandler(deps.Invoices, deps.Sessions, logger))))

	mux.Handle("/api/invoices/me", protected(method(http.MethodGet, handlers.NewInvoicesMeHandler(deps.Invoices, logger))))
	mux.Handle("/api/invoices/{id}", protected(method(http.MethodGet, handlers.NewInvoiceHandler(deps.Invoices, logger))))
	mux.Handle("/api/invoices/{id}/pay", staffOnly(method(http.MethodPost, handlers.NewPayInvoiceHandler(deps.Invoices, logger))))
	mux.Handle("/api/invoices/{id}/cancel", staffOnly(method(http.MethodPost, handlers.NewCancelInvoiceHandler(deps.Invoices, logger))))

	mux.Handle("/api/points/{id}/availability", method(http.MethodGet, handlers.NewPointAvailabilityHandler(deps.Points, logger)))
	mux.Handle("/api/points/{id}/status", staffOnly(method(http.MethodPut, handlers.NewPointStatusHandler(deps.Points, logger))))
	mux.Handle("/api/stations/availability", method(http.MethodGet, handlers.NewStationsAvailabilityHandler(deps.Points, logger)))
	mux.Handle("/api/stations/{id}/availability", method(http.MethodGet, handlers.NewStationAvailabilityHandler(deps.Points, logger)))

	if deps.Feed != nil {
		mux.Handle("/ws/sessions/{id}", protected(method(http.MethodGet, handlers.NewSessionFeedHandler(deps.Sessions, deps.Feed, logger))))
	}

	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
