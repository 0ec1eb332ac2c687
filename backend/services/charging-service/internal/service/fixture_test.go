package service_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chargeflow/backend/services/charging-service/internal/availability"
	"chargeflow/backend/services/charging-service/internal/billing"
	"chargeflow/backend/services/charging-service/internal/lock"
	"chargeflow/backend/services/charging-service/internal/models"
	"chargeflow/backend/services/charging-service/internal/repository/memory"
	"chargeflow/backend/services/charging-service/internal/service"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pct(v float64) *float64 { return &v }

type fixture struct {
	sessions *memory.SessionRepository
	invoices *memory.InvoiceRepository
	points   *memory.PointRepository

	svc      *service.SessionsService
	invoice  *service.InvoiceService
	pointSvc *service.PointsService
}

type fixtureOption func(*service.Engine, *[]service.Option)

func withCeiling(ceiling string) fixtureOption {
	return func(e *service.Engine, _ *[]service.Option) {
		e.Cost = billing.NewCostCalculator(0, dec(ceiling))
	}
}

func withServiceOption(opt service.Option) fixtureOption {
	return func(_ *service.Engine, opts *[]service.Option) {
		*opts = append(*opts, opt)
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		sessions: memory.NewSessionRepository(),
		invoices: memory.NewInvoiceRepository(),
		points:   memory.NewPointRepository(),
	}
	f.points.PutStation(models.Station{ID: "st1", Name: "Central"})
	f.points.PutStation(models.Station{ID: "st2", Name: "Harbour"})
	for _, p := range []models.ChargingPoint{
		{ID: "p1", StationID: "st1", PowerKW: 50, ConnectorType: "CCS2", Status: models.PointStatusAvailable},
		{ID: "p2", StationID: "st1", PowerKW: 50, ConnectorType: "CCS2", Status: models.PointStatusAvailable},
		{ID: "p3", StationID: "st2", PowerKW: 22, ConnectorType: "Type2", Status: models.PointStatusAvailable},
	} {
		f.points.PutPoint(p)
	}

	engine := service.Engine{
		Meter: billing.NewMeterValidator(350, 0.5),
		Idle:  billing.NewIdleDetector(10 * time.Minute),
		Cost:  billing.NewCostCalculator(0, decimal.Zero),
	}
	var svcOpts []service.Option
	for _, opt := range opts {
		opt(&engine, &svcOpts)
	}

	tariffs := service.NewTariffService(models.Tariff{
		PricePerKWh:      dec("5000"),
		IdleFeePerMinute: dec("1000"),
		Currency:         "VND",
	})
	locker := lock.NewKeyedMutex()
	logger := zap.NewNop()

	f.svc = service.NewSessionsService(f.sessions, f.points, tariffs, locker, engine, logger, svcOpts...)
	f.invoice = service.NewInvoiceService(f.invoices, f.sessions, locker, logger, svcOpts...)
	f.pointSvc = service.NewPointsService(f.points, f.sessions, availability.NewClassifier(15*time.Minute), logger, svcOpts...)
	return f
}
