package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chargeflow/backend/services/charging-service/internal/billing"
	"chargeflow/backend/services/charging-service/internal/models"
)

// SessionsService owns the session lifecycle: Active to Completed or Error, nothing else.
type SessionsService struct {
	sessions  SessionStore
	points    PointStore
	tariffs   *TariffService
	locker    Locker
	engine    Engine
	cache     ActiveSessionCache
	publisher SessionPublisher
	metrics   Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// Option customises a service.
type Option func(*options)

type options struct {
	cache     ActiveSessionCache
	publisher SessionPublisher
	metrics   Metrics
	now       func() time.Time
}

// WithActiveCache enables the active session cache.
func WithActiveCache(cache ActiveSessionCache) Option {
	return func(o *options) { o.cache = cache }
}

// WithPublisher pushes lifecycle events to live subscribers.
func WithPublisher(p SessionPublisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithMetrics records engine counters.
func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides the clock used when callers omit timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{
		publisher: noopPublisher{},
		metrics:   noopMetrics{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewSessionsService builds service.
func NewSessionsService(
	sessions SessionStore,
	points PointStore,
	tariffs *TariffService,
	locker Locker,
	engine Engine,
	logger *zap.Logger,
	opts ...Option,
) *SessionsService {
	o := buildOptions(opts)
	return &SessionsService{
		sessions:  sessions,
		points:    points,
		tariffs:   tariffs,
		locker:    locker,
		engine:    engine,
		cache:     o.cache,
		publisher: o.publisher,
		metrics:   o.metrics,
		logger:    logger,
		now:       o.now,
	}
}

// StartInput is a request to begin charging.
type StartInput struct {
	UserID     string
	PointID    string
	VehicleID  string
	BookingID  string
	MeterStart decimal.Decimal
	Battery    models.Battery
	At         time.Time
}

// MeterUpdate is a cumulative meter reading, optionally with the vehicle's reported charge.
type MeterUpdate struct {
	Reading        decimal.Decimal
	BatteryPercent *float64
	At             time.Time
}

// MeterUpdateResult is the outcome of an accepted reading.
type MeterUpdateResult struct {
	AcceptedReading decimal.Decimal `json:"accepted_reading"`
	*Projection
}

// StopInput finalises a session. IdleMinutesOverride replaces the detected idle time.
type StopInput struct {
	MeterEnd            decimal.Decimal
	IdleMinutesOverride *decimal.Decimal
	At                  time.Time
}

// Start opens a session on an available point. A user with an active session gets
// ErrDuplicateActiveSession; a point that is not available, or reserved for another booking,
// gets ErrPointUnavailable.
func (s *SessionsService) Start(ctx context.Context, input StartInput) (*models.Session, error) {
	if input.UserID == "" || input.PointID == "" {
		return nil, fmt.Errorf("%w: user id and point id are required", ErrInvalidInput)
	}
	if input.MeterStart.IsNegative() {
		return nil, &billing.ReadingError{Reason: billing.ReasonOutOfRange, Candidate: input.MeterStart}
	}
	if err := validateBattery(input.Battery); err != nil {
		return nil, err
	}
	at := s.timestamp(input.At)

	unlock, err := s.locker.Lock(ctx, "user:"+input.UserID, "point:"+input.PointID)
	if err != nil {
		return nil, fmt.Errorf("sessions: acquire start lock: %w", err)
	}
	defer unlock()

	if _, err := s.sessions.ActiveByUser(ctx, input.UserID); err == nil {
		return nil, ErrDuplicateActiveSession
	} else if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	point, err := s.points.GetPoint(ctx, input.PointID)
	if err != nil {
		return nil, err
	}
	if !startable(point, input.BookingID) {
		return nil, ErrPointUnavailable
	}
	if _, err := s.sessions.ActiveByPoint(ctx, point.ID); err == nil {
		return nil, ErrPointUnavailable
	} else if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	tariff, err := s.tariffs.ForPoint(point)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:              uuid.NewString(),
		UserID:          input.UserID,
		VehicleID:       input.VehicleID,
		PointID:         point.ID,
		StationID:       point.StationID,
		BookingID:       input.BookingID,
		Status:          models.SessionStatusActive,
		StartTime:       at,
		MeterStart:      input.MeterStart,
		MeterCurrent:    input.MeterStart,
		LastReadingAt:   at,
		MeterAdvancedAt: at,
		RatedPowerKW:    point.PowerKW,
		Tariff:          tariff,
		Battery:         input.Battery,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := s.points.SetPointStatus(ctx, point.ID, models.PointStatusInUse, ""); err != nil {
		s.logger.Error("failed to mark point in use", zap.String("point_id", point.ID), zap.Error(err))
		if failErr := s.fail(ctx, session, "point status update failed", at); failErr != nil {
			s.logger.Error("failed to move session to error", zap.String("session_id", session.ID), zap.Error(failErr))
		}
		return nil, fmt.Errorf("%w: mark point in use: %v", ErrInternalFault, err)
	}

	s.cacheSave(ctx, session)
	s.metrics.SessionStarted()
	s.publish(EventStarted, session, at)
	s.logger.Info("session started",
		zap.String("session_id", session.ID),
		zap.String("user_id", session.UserID),
		zap.String("point_id", session.PointID),
		zap.String("meter_start", session.MeterStart.String()),
	)
	return session.Clone(), nil
}

// UpdateMeter accepts a new cumulative reading for an active session and returns the live
// estimate. A rejected reading leaves the session untouched.
func (s *SessionsService) UpdateMeter(ctx context.Context, sessionID string, update MeterUpdate) (*MeterUpdateResult, error) {
	if update.BatteryPercent != nil && !validPercent(*update.BatteryPercent) {
		return nil, fmt.Errorf("%w: battery percent out of range", ErrInvalidInput)
	}
	at := s.timestamp(update.At)

	unlock, err := s.locker.Lock(ctx, "session:"+sessionID)
	if err != nil {
		return nil, fmt.Errorf("sessions: acquire session lock: %w", err)
	}
	defer unlock()

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, ErrSessionNotActive
	}

	accepted, err := s.acceptReading(session, update.Reading, at)
	if err != nil {
		return nil, err
	}
	if update.BatteryPercent != nil {
		pct := *update.BatteryPercent
		session.Battery.ReportedPercent = &pct
		foldIdle(session, s.engine.Idle.Evaluate(session, at))
	}
	session.UpdatedAt = at

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	s.cacheSave(ctx, session)

	projection := s.engine.Project(session.Clone(), at)
	if projection.Cost == nil {
		s.logger.Warn("cost estimate unavailable", zap.String("session_id", session.ID))
	}
	s.publisher.Publish(SessionEvent{Type: EventMeter, Projection: projection})
	return &MeterUpdateResult{AcceptedReading: accepted.Value, Projection: projection}, nil
}

// Stop finalises an active session: last reading, idle time, frozen cost, point released.
// Stopping a session that is no longer active fails with ErrSessionNotActive so retries never
// bill twice. A fault while pricing moves the session to Error and returns ErrInternalFault.
func (s *SessionsService) Stop(ctx context.Context, sessionID string, input StopInput) (*models.Session, error) {
	if input.IdleMinutesOverride != nil && input.IdleMinutesOverride.IsNegative() {
		return nil, fmt.Errorf("%w: idle minutes must not be negative", ErrInvalidInput)
	}
	at := s.timestamp(input.At)

	unlock, err := s.locker.Lock(ctx, "session:"+sessionID)
	if err != nil {
		return nil, fmt.Errorf("sessions: acquire session lock: %w", err)
	}
	defer unlock()

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, ErrSessionNotActive
	}

	if _, err := s.acceptReading(session, input.MeterEnd, at); err != nil {
		return nil, err
	}

	idleMinutes := s.finalIdle(session, input.IdleMinutesOverride, at)
	cost, err := s.engine.Cost.Compute(session.EnergyKWh(), session.Tariff.PricePerKWh, idleMinutes, session.Tariff.IdleFeePerMinute)
	if err != nil {
		s.logger.Error("session pricing failed", zap.String("session_id", session.ID), zap.Error(err))
		if failErr := s.fail(ctx, session, err.Error(), at); failErr != nil {
			s.logger.Error("failed to move session to error", zap.String("session_id", session.ID), zap.Error(failErr))
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	session.EnergyCost = &cost.EnergyCost
	session.IdleFee = &cost.IdleFee
	session.TotalCost = &cost.TotalCost
	session.Status = models.SessionStatusCompleted
	session.EndTime = &at
	session.UpdatedAt = at

	if err := s.sessions.Update(ctx, session); err != nil {
		if errors.Is(err, ErrSessionNotActive) {
			s.logger.Warn("session finalised concurrently", zap.String("session_id", session.ID))
			return nil, err
		}
		s.logger.Error("failed to persist completed session", zap.String("session_id", session.ID), zap.Error(err))
		if failErr := s.fail(ctx, session, "persist completed session: "+err.Error(), at); failErr != nil {
			s.logger.Error("failed to move session to error", zap.String("session_id", session.ID), zap.Error(failErr))
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalFault, err)
	}

	s.release(ctx, session)
	s.metrics.SessionFinished(models.SessionStatusCompleted, session.EnergyKWh().InexactFloat64())
	s.publish(EventCompleted, session, at)
	s.logger.Info("session completed",
		zap.String("session_id", session.ID),
		zap.String("energy_kwh", session.EnergyKWh().String()),
		zap.String("total_cost", cost.TotalCost.String()),
		zap.Int64("idle_seconds", session.IdleSeconds),
	)
	return session.Clone(), nil
}

// Abort moves an active session to Error out of band, e.g. when an operational timeout fires
// or staff flag it for reconciliation.
func (s *SessionsService) Abort(ctx context.Context, sessionID, reason string) (*models.Session, error) {
	if reason == "" {
		reason = "aborted"
	}
	at := s.now()

	unlock, err := s.locker.Lock(ctx, "session:"+sessionID)
	if err != nil {
		return nil, fmt.Errorf("sessions: acquire session lock: %w", err)
	}
	defer unlock()

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, ErrSessionNotActive
	}
	if at.Before(session.LastReadingAt) {
		at = session.LastReadingAt
	}
	if err := s.fail(ctx, session, reason, at); err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

// Get returns a session by id.
func (s *SessionsService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// ActiveForUser returns the user's active session, consulting the cache first.
func (s *SessionsService) ActiveForUser(ctx context.Context, userID string) (*models.Session, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("failed to read active session cache", zap.String("user_id", userID), zap.Error(err))
		} else if cached != nil && cached.Status == models.SessionStatusActive {
			return cached, nil
		}
	}

	session, err := s.sessions.ActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheSave(ctx, session)
	return session, nil
}

// History returns the user's sessions, newest first.
func (s *SessionsService) History(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	return s.sessions.ListByUser(ctx, userID, limit)
}

// Project returns the live view of session now.
func (s *SessionsService) Project(session *models.Session) *Projection {
	return s.engine.Project(session, s.now())
}

// acceptReading validates candidate against the last accepted reading and applies it,
// folding any idle window that the reading opens or closes. A reading that advances the
// meter counts the time since the previous reading as charging. Readings timed before the
// previous one are refused.
func (s *SessionsService) acceptReading(session *models.Session, candidate decimal.Decimal, at time.Time) (billing.Reading, error) {
	if at.Before(session.StartTime) {
		return billing.Reading{}, fmt.Errorf("%w: timestamp %s precedes session start %s",
			ErrInvalidInput, at.Format(time.RFC3339), session.StartTime.Format(time.RFC3339))
	}
	if at.Before(session.LastReadingAt) {
		return billing.Reading{}, fmt.Errorf("%w: timestamp %s precedes last reading at %s",
			ErrInvalidInput, at.Format(time.RFC3339), session.LastReadingAt.Format(time.RFC3339))
	}

	previous := billing.Reading{Value: session.MeterCurrent, At: session.LastReadingAt}
	accepted, err := s.engine.Meter.WithPowerCap(session.RatedPowerKW).Validate(previous, billing.Reading{Value: candidate, At: at})
	if err != nil {
		var rerr *billing.ReadingError
		if errors.As(err, &rerr) {
			s.metrics.ReadingRejected(string(rerr.Reason))
		}
		s.logger.Info("meter reading rejected", zap.String("session_id", session.ID), zap.Error(err))
		return billing.Reading{}, err
	}

	if accepted.Value.GreaterThan(session.MeterCurrent) && at.After(session.MeterAdvancedAt) {
		session.MeterAdvancedAt = at
	}
	session.MeterCurrent = accepted.Value
	if at.After(session.LastReadingAt) {
		session.LastReadingAt = at
	}

	foldIdle(session, s.engine.Idle.Evaluate(session, at))
	return accepted, nil
}

// finalIdle closes the open idle window and returns the billable idle minutes.
func (s *SessionsService) finalIdle(session *models.Session, override *decimal.Decimal, at time.Time) decimal.Decimal {
	if override != nil {
		session.IdleSeconds = override.Mul(decimal.NewFromInt(60)).IntPart()
		session.IdleStartedAt = nil
		return *override
	}

	ev := s.engine.Idle.Evaluate(session, at)
	session.IdleSeconds += seconds(ev.OpenWindow + ev.ClosedWindow)
	session.IdleStartedAt = nil
	return billing.IdleMinutes(session.IdleSeconds)
}

// fail moves session to Error, frees its point and notifies observers.
func (s *SessionsService) fail(ctx context.Context, session *models.Session, reason string, at time.Time) error {
	session.Status = models.SessionStatusError
	session.ErrorReason = reason
	session.EndTime = &at
	session.IdleStartedAt = nil
	session.EnergyCost = nil
	session.IdleFee = nil
	session.TotalCost = nil
	session.UpdatedAt = at

	if err := s.sessions.Update(ctx, session); err != nil {
		return err
	}
	s.release(ctx, session)
	s.metrics.SessionFinished(models.SessionStatusError, session.EnergyKWh().InexactFloat64())
	s.publish(EventFailed, session, at)
	s.logger.Warn("session moved to error",
		zap.String("session_id", session.ID),
		zap.String("reason", reason),
	)
	return nil
}

// release puts the point back to available unless staff changed its status meanwhile.
func (s *SessionsService) release(ctx context.Context, session *models.Session) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, session.UserID); err != nil {
			s.logger.Warn("failed to delete active session cache", zap.String("user_id", session.UserID), zap.Error(err))
		}
	}

	point, err := s.points.GetPoint(ctx, session.PointID)
	if err != nil {
		s.logger.Warn("failed to load point for release", zap.String("point_id", session.PointID), zap.Error(err))
		return
	}
	if point.Status != models.PointStatusInUse {
		return
	}
	if err := s.points.SetPointStatus(ctx, point.ID, models.PointStatusAvailable, ""); err != nil {
		s.logger.Warn("failed to release point", zap.String("point_id", point.ID), zap.Error(err))
	}
}

func (s *SessionsService) cacheSave(ctx context.Context, session *models.Session) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Save(ctx, session); err != nil {
		s.logger.Warn("failed to cache active session", zap.String("session_id", session.ID), zap.Error(err))
	}
}

func (s *SessionsService) publish(typ EventType, session *models.Session, at time.Time) {
	s.publisher.Publish(SessionEvent{Type: typ, Projection: s.engine.Project(session.Clone(), at)})
}

func (s *SessionsService) timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t.UTC()
}

// startable reports whether a session may start on point for the given booking.
func startable(point *models.ChargingPoint, bookingID string) bool {
	switch point.Status {
	case models.PointStatusAvailable:
		return true
	case models.PointStatusReserved:
		return bookingID != "" && point.ReservedBookingID == bookingID
	}
	return false
}

func validateBattery(b models.Battery) error {
	for _, p := range []*float64{b.InitialPercent, b.TargetPercent, b.ReportedPercent} {
		if p != nil && !validPercent(*p) {
			return fmt.Errorf("%w: battery percent out of range", ErrInvalidInput)
		}
	}
	if b.CapacityKWh != nil && *b.CapacityKWh <= 0 {
		return fmt.Errorf("%w: battery capacity must be positive", ErrInvalidInput)
	}
	return nil
}

func validPercent(p float64) bool {
	return p >= 0 && p <= 100
}
