package service

import (
	"time"

	"github.com/shopspring/decimal"

	"chargeflow/backend/services/charging-service/internal/billing"
	"chargeflow/backend/services/charging-service/internal/models"
)

// Engine bundles the pure billing components a session is evaluated with.
type Engine struct {
	Meter billing.MeterValidator
	Idle  billing.IdleDetector
	Cost  billing.CostCalculator
}

// IdleProjection is the idle state of a session at a given instant.
type IdleProjection struct {
	IsIdle    bool            `json:"is_idle"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	Minutes   decimal.Decimal `json:"minutes"`
}

// Projection is the read-side view of a session: the stored state plus derived energy, idle,
// battery and cost figures. For active sessions the cost is an estimate computed exactly like
// the final one.
type Projection struct {
	Session   *models.Session         `json:"session"`
	EnergyKWh decimal.Decimal         `json:"energy_kwh"`
	Cost      *billing.Cost           `json:"cost,omitempty"`
	Estimated bool                    `json:"estimated"`
	Idle      IdleProjection          `json:"idle"`
	Battery   billing.BatteryEstimate `json:"battery"`
}

// Project derives the view of session at now. It has no side effects.
func (e Engine) Project(session *models.Session, now time.Time) *Projection {
	p := &Projection{
		Session:   session,
		EnergyKWh: session.EnergyKWh(),
	}

	if session.Status != models.SessionStatusActive {
		p.Idle.Minutes = billing.IdleMinutes(session.IdleSeconds)
		if session.TotalCost != nil {
			p.Cost = &billing.Cost{
				EnergyCost: decimalOrZero(session.EnergyCost),
				IdleFee:    decimalOrZero(session.IdleFee),
				TotalCost:  *session.TotalCost,
			}
		}
		return p
	}

	ev := e.Idle.Evaluate(session, now)
	p.Idle = IdleProjection{
		IsIdle:    ev.IsIdle,
		StartedAt: ev.StartedAt,
		Minutes:   billing.IdleMinutes(session.IdleSeconds).Add(ev.IdleMinutesDelta()),
	}
	p.Battery = billing.EstimateBattery(session, now)
	p.Estimated = true
	if cost, err := e.Cost.Compute(p.EnergyKWh, session.Tariff.PricePerKWh, p.Idle.Minutes, session.Tariff.IdleFeePerMinute); err == nil {
		p.Cost = &cost
	}
	return p
}

// foldIdle applies one detector pass to session: a window that closed is added to the
// accumulated seconds and the open window start is recorded or cleared.
func foldIdle(session *models.Session, ev billing.IdleEvaluation) {
	if ev.ClosedWindow > 0 {
		session.IdleSeconds += seconds(ev.ClosedWindow)
	}
	if ev.IsIdle {
		session.IdleStartedAt = ev.StartedAt
	} else {
		session.IdleStartedAt = nil
	}
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
