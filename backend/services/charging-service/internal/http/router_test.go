package httpserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chargeflow/backend/services/charging-service/internal/availability"
	"chargeflow/backend/services/charging-service/internal/billing"
	httpserver "chargeflow/backend/services/charging-service/internal/http"
	"chargeflow/backend/services/charging-service/internal/http/middleware"
	"chargeflow/backend/services/charging-service/internal/lock"
	"chargeflow/backend/services/charging-service/internal/metrics"
	"chargeflow/backend/services/charging-service/internal/models"
	"chargeflow/backend/services/charging-service/internal/repository/memory"
	"chargeflow/backend/services/charging-service/internal/service"
	"chargeflow/backend/services/charging-service/internal/ws"
)

const secret = "test-secret"

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testAPI struct {
	server *httptest.Server
	hub    *ws.Hub
	clock  *testClock
}

// testClock is the server clock; requests from customers are stamped with it.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	points := memory.NewPointRepository()
	points.PutStation(models.Station{ID: "st1", Name: "Central"})
	points.PutStation(models.Station{ID: "st2", Name: "Harbour"})
	points.PutPoint(models.ChargingPoint{ID: "p1", StationID: "st1", PowerKW: 50, ConnectorType: "CCS2", Status: models.PointStatusAvailable})
	points.PutPoint(models.ChargingPoint{ID: "p3", StationID: "st2", PowerKW: 22, ConnectorType: "Type2", Status: models.PointStatusAvailable})
	sessions := memory.NewSessionRepository()
	invoices := memory.NewInvoiceRepository()

	logger := zap.NewNop()
	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(registry)
	require.NoError(t, err)
	hub := ws.NewHub(16, logger)
	locker := lock.NewKeyedMutex()
	clock := &testClock{now: t0}
	opts := []service.Option{
		service.WithClock(clock.Now),
		service.WithMetrics(recorder),
		service.WithPublisher(hub),
	}

	engine := service.Engine{
		Meter: billing.NewMeterValidator(350, 0.5),
		Idle:  billing.NewIdleDetector(10 * time.Minute),
		Cost:  billing.NewCostCalculator(0, decimal.Zero),
	}
	tariffs := service.NewTariffService(models.Tariff{
		PricePerKWh:      decimal.RequireFromString("5000"),
		IdleFeePerMinute: decimal.RequireFromString("1000"),
		Currency:         "VND",
	})

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Sessions:  service.NewSessionsService(sessions, points, tariffs, locker, engine, logger, opts...),
		Invoices:  service.NewInvoiceService(invoices, sessions, locker, logger, opts...),
		Points:    service.NewPointsService(points, sessions, availability.NewClassifier(15*time.Minute), logger, opts...),
		Feed:      ws.NewServer(hub, time.Second, logger),
		JWTSecret: secret,
		Gatherer:  registry,
		Logger:    logger,
	})

	srv := httptest.NewServer(middleware.Chain(router, middleware.RecoveryMiddleware(logger), middleware.LoggingMiddleware(logger)))
	t.Cleanup(srv.Close)
	return &testAPI{server: srv, hub: hub, clock: clock}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (a *testAPI) do(t *testing.T, method, path, tok string, body interface{}) (int, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, buf.Bytes()
}

type errorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func decodeInto[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	alice := token(t, "alice", middleware.RoleCustomer)
	bob := token(t, "bob", middleware.RoleCustomer)
	staff := token(t, "ops", middleware.RoleStaff)

	status, body := api.do(t, http.MethodPost, "/api/sessions", alice, map[string]interface{}{
		"point_id":    "p1",
		"meter_start": "1000",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	started := decodeInto[service.Projection](t, body)
	require.NotNil(t, started.Session)
	sessionID := started.Session.ID
	assert.Equal(t, models.SessionStatusActive, started.Session.Status)
	assert.Equal(t, "alice", started.Session.UserID)

	status, body = api.do(t, http.MethodPost, "/api/sessions", alice, map[string]interface{}{
		"point_id":    "p3",
		"meter_start": "10",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, service.KindDuplicateActiveSession, decodeInto[errorResponse](t, body).Error)

	api.clock.Set(t0.Add(10 * time.Minute))
	status, _ = api.do(t, http.MethodPut, "/api/sessions/"+sessionID+"/meter", bob, map[string]interface{}{
		"reading": "1005",
	})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = api.do(t, http.MethodPut, "/api/sessions/"+sessionID+"/meter", alice, map[string]interface{}{
		"reading": "1005.5", "timestamp": t0.Add(50 * time.Minute),
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, service.KindInvalidInput, decodeInto[errorResponse](t, body).Error)

	status, body = api.do(t, http.MethodPut, "/api/sessions/"+sessionID+"/meter", alice, map[string]interface{}{
		"reading": "1005.5",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	update := decodeInto[service.MeterUpdateResult](t, body)
	assert.True(t, update.AcceptedReading.Equal(decimal.RequireFromString("1005.5")))

	api.clock.Set(t0.Add(11 * time.Minute))
	status, body = api.do(t, http.MethodPut, "/api/sessions/"+sessionID+"/meter", alice, map[string]interface{}{
		"reading": "1004",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	rejected := decodeInto[errorResponse](t, body)
	assert.Equal(t, service.KindInvalidReading, rejected.Error)
	assert.Equal(t, "NonMonotonic", rejected.Reason)

	status, body = api.do(t, http.MethodGet, "/api/sessions/active", alice, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, sessionID, decodeInto[service.Projection](t, body).Session.ID)

	api.clock.Set(t0.Add(30 * time.Minute))
	status, body = api.do(t, http.MethodPut, "/api/sessions/"+sessionID+"/stop", alice, map[string]interface{}{
		"meter_end": "1012.5",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	stopped := decodeInto[service.Projection](t, body)
	assert.Equal(t, models.SessionStatusCompleted, stopped.Session.Status)
	require.NotNil(t, stopped.Session.TotalCost)
	assert.True(t, stopped.Session.TotalCost.Equal(decimal.RequireFromString("62500")), stopped.Session.TotalCost.String())

	api.clock.Set(t0.Add(31 * time.Minute))
	status, body = api.do(t, http.MethodPut, "/api/sessions/"+sessionID+"/stop", alice, map[string]interface{}{
		"meter_end": "1013",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, service.KindSessionNotActive, decodeInto[errorResponse](t, body).Error)

	status, body = api.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/invoice", alice, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	first := decodeInto[models.Invoice](t, body)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("62500")))
	assert.Equal(t, "VND", first.Currency)

	status, body = api.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/invoice", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, first.ID, decodeInto[models.Invoice](t, body).ID)

	status, _ = api.do(t, http.MethodGet, "/api/invoices/"+first.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = api.do(t, http.MethodGet, "/api/invoices/"+first.ID, staff, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = api.do(t, http.MethodPost, "/api/invoices/"+first.ID+"/cancel", alice, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = api.do(t, http.MethodPost, "/api/invoices/"+first.ID+"/pay", alice, map[string]string{"payment_id": "made-up"})
	assert.Equal(t, http.StatusForbidden, status)
	status, body = api.do(t, http.MethodGet, "/api/invoices/"+first.ID, alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.InvoiceStatusIssued, decodeInto[models.Invoice](t, body).Status)

	status, body = api.do(t, http.MethodPost, "/api/invoices/"+first.ID+"/pay", staff, map[string]string{"payment_id": "pay-1"})
	require.Equal(t, http.StatusOK, status, string(body))
	paid := decodeInto[models.Invoice](t, body)
	assert.Equal(t, models.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, "pay-1", paid.PaymentID)

	status, body = api.do(t, http.MethodGet, "/api/invoices/me", alice, nil)
	require.Equal(t, http.StatusOK, status)
	list := decodeInto[struct {
		Invoices []models.Invoice `json:"invoices"`
	}](t, body)
	assert.Len(t, list.Invoices, 1)

	status, body = api.do(t, http.MethodGet, "/api/sessions/me", alice, nil)
	require.Equal(t, http.StatusOK, status)
	history := decodeInto[struct {
		Sessions []models.Session `json:"sessions"`
	}](t, body)
	assert.Len(t, history.Sessions, 1)
}

func TestAuthAndRoles(t *testing.T) {
	api := newTestAPI(t)

	status, _ := api.do(t, http.MethodGet, "/api/sessions/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "alice"}).SignedString([]byte("other"))
	require.NoError(t, err)
	status, _ = api.do(t, http.MethodGet, "/api/sessions/me", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(t, http.MethodPut, "/api/points/p1/status", token(t, "alice", middleware.RoleCustomer),
		map[string]string{"status": "maintenance"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body := api.do(t, http.MethodPut, "/api/points/p1/status", token(t, "ops", middleware.RoleAdmin),
		map[string]string{"status": "maintenance"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, models.PointStatusMaintenance, decodeInto[models.ChargingPoint](t, body).Status)

	status, _ = api.do(t, http.MethodGet, "/api/sessions/active", token(t, "alice", middleware.RoleCustomer), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(t, http.MethodDelete, "/api/sessions", token(t, "alice", middleware.RoleCustomer), nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestAvailabilityEndpoints(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(t, http.MethodGet, "/api/stations/availability?connector=type2", "", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	ranked := decodeInto[struct {
		Stations []service.StationAvailability `json:"stations"`
	}](t, body)
	require.Len(t, ranked.Stations, 2)
	assert.Equal(t, "st2", ranked.Stations[0].Station.ID)
	assert.Equal(t, availability.ClassAvailable, ranked.Stations[0].Classification.Class)
	assert.Equal(t, availability.ClassIncompatible, ranked.Stations[1].Classification.Class)

	status, body = api.do(t, http.MethodGet, "/api/points/p1/availability", "", nil)
	require.Equal(t, http.StatusOK, status)
	point := decodeInto[service.PointAvailability](t, body)
	assert.Equal(t, availability.ClassAvailable, point.Classification.Class)
	assert.Equal(t, "green", point.Classification.Color)

	status, body = api.do(t, http.MethodGet, "/api/stations/nope/availability", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, service.KindNotFound, decodeInto[errorResponse](t, body).Error)
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	alice := token(t, "alice", middleware.RoleCustomer)
	status, _ = api.do(t, http.MethodPost, "/api/sessions", alice, map[string]interface{}{
		"point_id": "p1", "meter_start": "0",
	})
	require.Equal(t, http.StatusCreated, status)

	status, body = api.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "charging_sessions_started_total 1")
}

func TestSessionFeed(t *testing.T) {
	api := newTestAPI(t)
	alice := token(t, "alice", middleware.RoleCustomer)

	status, body := api.do(t, http.MethodPost, "/api/sessions", alice, map[string]interface{}{
		"point_id": "p1", "meter_start": "0",
	})
	require.Equal(t, http.StatusCreated, status)
	sessionID := decodeInto[service.Projection](t, body).Session.ID

	url := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/ws/sessions/" + sessionID + "?access_token=" + alice
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	snapshot := decodeInto[service.SessionEvent](t, msg)
	assert.Equal(t, service.EventSnapshot, snapshot.Type)

	require.Eventually(t, func() bool { return api.hub.Subscribers(sessionID) == 1 }, time.Second, 10*time.Millisecond)
	api.clock.Set(t0.Add(5 * time.Minute))
	status, _ = api.do(t, http.MethodPut, "/api/sessions/"+sessionID+"/meter", alice, map[string]interface{}{
		"reading": "2",
	})
	require.Equal(t, http.StatusOK, status)

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, service.EventMeter, decodeInto[service.SessionEvent](t, msg).Type)
}

func TestStopOverridesAreStaffOnly(t *testing.T) {
	api := newTestAPI(t)
	alice := token(t, "alice", middleware.RoleCustomer)
	staff := token(t, "ops", middleware.RoleStaff)

	status, body := api.do(t, http.MethodPost, "/api/sessions", alice, map[string]interface{}{
		"point_id": "p1", "meter_start": "0", "timestamp": t0.Add(-time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = api.do(t, http.MethodPost, "/api/sessions", alice, map[string]interface{}{
		"point_id": "p1", "meter_start": "0",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	sessionID := decodeInto[service.Projection](t, body).Session.ID

	// flat meter for an hour: idle from the 10 minute stale mark on
	api.clock.Set(t0.Add(time.Hour))
	for _, req := range []map[string]interface{}{
		{"meter_end": "0", "idle_minutes": "0"},
		{"meter_end": "0", "timestamp": t0.Add(5 * time.Minute)},
	} {
		status, body = api.do(t, http.MethodPut, "/api/sessions/"+sessionID+"/stop", alice, req)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, service.KindInvalidInput, decodeInto[errorResponse](t, body).Error)
	}

	status, body = api.do(t, http.MethodPut, "/api/sessions/"+sessionID+"/stop", alice, map[string]interface{}{
		"meter_end": "0",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	stopped := decodeInto[service.Projection](t, body)
	assert.Equal(t, int64(50*60), stopped.Session.IdleSeconds)
	require.NotNil(t, stopped.Session.TotalCost)
	assert.True(t, stopped.Session.TotalCost.Equal(decimal.RequireFromString("50000")), stopped.Session.TotalCost.String())

	// staff reconciling a charger report may set both
	status, body = api.do(t, http.MethodPost, "/api/sessions", alice, map[string]interface{}{
		"point_id": "p1", "meter_start": "0",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	second := decodeInto[service.Projection](t, body).Session.ID

	status, body = api.do(t, http.MethodPut, "/api/sessions/"+second+"/stop", staff, map[string]interface{}{
		"meter_end": "0", "idle_minutes": "5", "timestamp": t0.Add(70 * time.Minute),
	})
	require.Equal(t, http.StatusOK, status, string(body))
	reconciled := decodeInto[service.Projection](t, body)
	require.NotNil(t, reconciled.Session.TotalCost)
	assert.True(t, reconciled.Session.TotalCost.Equal(decimal.RequireFromString("5000")), reconciled.Session.TotalCost.String())
	require.NotNil(t, reconciled.Session.EndTime)
	assert.Equal(t, t0.Add(70*time.Minute), reconciled.Session.EndTime.UTC())
}
