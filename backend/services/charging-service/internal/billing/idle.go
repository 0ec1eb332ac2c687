package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"chargeflow/backend/services/charging-service/internal/models"
)

// IdleDetector decides whether a connected session has stopped drawing useful power.
type IdleDetector struct {
	// StaleWindow is how long the meter may stand still before the session counts as idle.
	// Zero disables stale detection.
	StaleWindow time.Duration
}

// NewIdleDetector builds a detector.
func NewIdleDetector(staleWindow time.Duration) IdleDetector {
	return IdleDetector{StaleWindow: staleWindow}
}

// IdleEvaluation is the outcome of one detector pass.
type IdleEvaluation struct {
	IsIdle bool
	// StartedAt is the start of the open idle window after this pass, nil when not idle.
	StartedAt *time.Time
	// OpenWindow is the idle time accrued so far in the open window.
	OpenWindow time.Duration
	// ClosedWindow is the length of a window that ended in this pass because charging resumed.
	ClosedWindow time.Duration
}

// IdleMinutesDelta is the idle time this pass adds on top of the session's accumulated idle time.
func (e IdleEvaluation) IdleMinutesDelta() decimal.Decimal {
	return durationMinutes(e.OpenWindow + e.ClosedWindow)
}

// Evaluate inspects s at now. It never mutates s; the caller folds ClosedWindow into the
// accumulated idle time and stores StartedAt.
func (d IdleDetector) Evaluate(s *models.Session, now time.Time) IdleEvaluation {
	if s == nil || s.Status != models.SessionStatusActive {
		return IdleEvaluation{}
	}

	idle, since := d.condition(s, now)
	if s.IdleStartedAt != nil {
		start := *s.IdleStartedAt
		if idle {
			return IdleEvaluation{IsIdle: true, StartedAt: &start, OpenWindow: nonNegative(now.Sub(start))}
		}
		return IdleEvaluation{ClosedWindow: nonNegative(now.Sub(start))}
	}

	if !idle {
		return IdleEvaluation{}
	}
	return IdleEvaluation{IsIdle: true, StartedAt: &since, OpenWindow: nonNegative(now.Sub(since))}
}

// condition reports whether s is idle at now and since when the condition holds.
func (d IdleDetector) condition(s *models.Session, now time.Time) (bool, time.Time) {
	var (
		idle  bool
		since = now
	)

	if s.Battery.Tracking() && EstimateBattery(s, now).Reached() {
		idle = true
		if !s.LastReadingAt.IsZero() && s.LastReadingAt.Before(since) {
			since = s.LastReadingAt
		}
	}

	if d.StaleWindow > 0 && !s.MeterAdvancedAt.IsZero() && now.Sub(s.MeterAdvancedAt) > d.StaleWindow {
		idle = true
		if staleSince := s.MeterAdvancedAt.Add(d.StaleWindow); staleSince.Before(since) {
			since = staleSince
		}
	}
	return idle, since
}

// IdleMinutes converts accumulated idle seconds to minutes.
func IdleMinutes(seconds int64) decimal.Decimal {
	return decimal.NewFromInt(seconds).Div(decimal.NewFromInt(60))
}

func durationMinutes(d time.Duration) decimal.Decimal {
	return IdleMinutes(int64(d / time.Second))
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
