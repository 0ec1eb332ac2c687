package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "chargeflow/backend/libs/db"
	libredis "chargeflow/backend/libs/redis"
	"chargeflow/backend/services/charging-service/internal/availability"
	"chargeflow/backend/services/charging-service/internal/billing"
	"chargeflow/backend/services/charging-service/internal/config"
	"chargeflow/backend/services/charging-service/internal/db/migrations"
	httpserver "chargeflow/backend/services/charging-service/internal/http"
	"chargeflow/backend/services/charging-service/internal/http/handlers"
	"chargeflow/backend/services/charging-service/internal/http/middleware"
	"chargeflow/backend/services/charging-service/internal/lock"
	"chargeflow/backend/services/charging-service/internal/metrics"
	redisstore "chargeflow/backend/services/charging-service/internal/redis"
	"chargeflow/backend/services/charging-service/internal/repository"
	"chargeflow/backend/services/charging-service/internal/repository/memory"
	"chargeflow/backend/services/charging-service/internal/service"
	"chargeflow/backend/services/charging-service/internal/ws"
)

// App wires charging-service dependencies.
type App struct {
	server      *httpserver.Server
	handler     http.Handler
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

type stores struct {
	sessions service.SessionStore
	invoices service.InvoiceStore
	points   service.PointStore
	catalog  catalogStore
}

// New constructs the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	st, err := a.openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Seed.File != "" {
		catalog, err := LoadCatalog(cfg.Seed.File)
		if err != nil {
			return nil, err
		}
		if err := catalog.Apply(ctx, st.catalog, logger); err != nil {
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub(cfg.Feed.Buffer, logger)
	opts := []service.Option{
		service.WithMetrics(recorder),
		service.WithPublisher(hub),
	}

	var locker service.Locker = lock.NewKeyedMutex()
	healthChecks := map[string]handlers.HealthCheck{}
	if a.db != nil {
		healthChecks["postgres"] = a.db.PingContext
	}
	if cfg.RedisEnabled() {
		a.redisClient, err = libredis.NewRedisClient(libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		opts = append(opts, service.WithActiveCache(redisstore.NewStore(a.redisClient, cfg.ActiveSessionTTL())))
		if cfg.Redis.LockEnabled {
			locker = redisstore.NewLocker(a.redisClient, cfg.LockTTL(), logger)
		}
		client := a.redisClient
		healthChecks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	tariff, err := cfg.DefaultTariff()
	if err != nil {
		return nil, err
	}
	ceiling, err := cfg.CostCeiling()
	if err != nil {
		return nil, err
	}
	engine := service.Engine{
		Meter: billing.NewMeterValidator(cfg.Meter.MaxPowerKW, cfg.Meter.ToleranceKWh),
		Idle:  billing.NewIdleDetector(cfg.IdleStaleWindow()),
		Cost:  billing.NewCostCalculator(cfg.Billing.Precision, ceiling),
	}

	sessionsService := service.NewSessionsService(st.sessions, st.points, service.NewTariffService(tariff), locker, engine, logger, opts...)
	invoiceService := service.NewInvoiceService(st.invoices, st.sessions, locker, logger, opts...)
	pointsService := service.NewPointsService(st.points, st.sessions, availability.NewClassifier(cfg.SoonThreshold()), logger, opts...)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Sessions:     sessionsService,
		Invoices:     invoiceService,
		Points:       pointsService,
		Feed:         ws.NewServer(hub, cfg.FeedWriteTimeout(), logger),
		JWTSecret:    cfg.Auth.JWTSecret,
		Gatherer:     registry,
		HealthChecks: healthChecks,
		Logger:       logger,
	})
	a.handler = router
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)

	ok = true
	return a, nil
}

func (a *App) openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		a.logger.Warn("using in-memory storage, data is lost on restart")
		points := memory.NewPointRepository()
		return &stores{
			sessions: memory.NewSessionRepository(),
			invoices: memory.NewInvoiceRepository(),
			points:   points,
			catalog:  points,
		}, nil
	}

	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN, libdb.PoolOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		ConnLifetime: cfg.ConnLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.db = sqlDB

	if cfg.Database.AutoMigrate {
		if _, err := migrations.Migrate(ctx, sqlDB, a.logger); err != nil {
			return nil, err
		}
	}

	points := repository.NewPointRepository(sqlDB)
	return &stores{
		sessions: repository.NewSessionRepository(sqlDB),
		invoices: repository.NewInvoiceRepository(sqlDB),
		points:   points,
		catalog:  points,
	}, nil
}

// Handler returns the routed handler without server middleware.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}

// Migrate applies database migrations and exits.
func Migrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Storage.Driver != config.StoragePostgres {
		return fmt.Errorf("migrate: storage driver %q has no schema", cfg.Storage.Driver)
	}
	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN, libdb.PoolOptions{})
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer sqlDB.Close()

	applied, err := migrations.Migrate(ctx, sqlDB, logger)
	if err != nil {
		return err
	}
	logger.Info("migrations complete", zap.Int("applied", len(applied)))
	return nil
}
