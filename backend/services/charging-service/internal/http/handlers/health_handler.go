package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// NewHealthHandler returns GET /health handler. Any failing check turns the response into 503.
func NewHealthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)

		status := http.StatusOK
		result := map[string]string{"status": "ok"}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = http.StatusServiceUnavailable
				result["status"] = "degraded"
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		writeJSON(w, status, result)
	}
}
