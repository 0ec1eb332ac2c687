package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of a charging session.
type SessionStatus string

// Session statuses. Completed and Error are terminal.
const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusError     SessionStatus = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusError
}

// Tariff is the price context frozen onto a session when it starts.
type Tariff struct {
	PricePerKWh      decimal.Decimal `json:"price_per_kwh"`
	IdleFeePerMinute decimal.Decimal `json:"idle_fee_per_minute"`
	Currency         string          `json:"currency"`
}

// Battery holds optional state-of-charge tracking inputs.
type Battery struct {
	InitialPercent  *float64 `json:"initial_percent,omitempty"`
	TargetPercent   *float64 `json:"target_percent,omitempty"`
	CapacityKWh     *float64 `json:"capacity_kwh,omitempty"`
	ReportedPercent *float64 `json:"reported_percent,omitempty"`
}

// Tracking reports whether a target state of charge is being tracked.
func (b Battery) Tracking() bool {
	return b.TargetPercent != nil && (b.ReportedPercent != nil || (b.InitialPercent != nil && b.CapacityKWh != nil))
}

// Session represents one charge-delivery episode.
type Session struct {
	ID        string `db:"id" json:"id"`
	UserID    string `db:"user_id" json:"user_id"`
	VehicleID string `db:"vehicle_id" json:"vehicle_id,omitempty"`
	PointID   string `db:"point_id" json:"point_id"`
	StationID string `db:"station_id" json:"station_id,omitempty"`
	BookingID string `db:"booking_id" json:"booking_id,omitempty"`

	Status      SessionStatus `db:"status" json:"status"`
	ErrorReason string        `db:"error_reason" json:"error_reason,omitempty"`

	StartTime time.Time  `db:"start_time" json:"start_time"`
	EndTime   *time.Time `db:"end_time" json:"end_time,omitempty"`

	MeterStart      decimal.Decimal `db:"meter_start" json:"meter_start"`
	MeterCurrent    decimal.Decimal `db:"meter_current" json:"meter_current"`
	LastReadingAt   time.Time       `db:"last_reading_at" json:"last_reading_at"`
	MeterAdvancedAt time.Time       `db:"meter_advanced_at" json:"meter_advanced_at"`
	RatedPowerKW    float64         `db:"rated_power_kw" json:"rated_power_kw,omitempty"`

	IdleStartedAt *time.Time `db:"idle_started_at" json:"idle_started_at,omitempty"`
	IdleSeconds   int64      `db:"idle_seconds" json:"idle_seconds"`

	Tariff  Tariff  `json:"tariff"`
	Battery Battery `json:"battery"`

	EnergyCost *decimal.Decimal `db:"energy_cost" json:"energy_cost,omitempty"`
	IdleFee    *decimal.Decimal `db:"idle_fee" json:"idle_fee,omitempty"`
	TotalCost  *decimal.Decimal `db:"total_cost" json:"total_cost,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EnergyKWh returns meter-current minus meter-start, never negative.
func (s *Session) EnergyKWh() decimal.Decimal {
	energy := s.MeterCurrent.Sub(s.MeterStart)
	if energy.IsNegative() {
		return decimal.Zero
	}
	return energy
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.EndTime = cloneTime(s.EndTime)
	c.IdleStartedAt = cloneTime(s.IdleStartedAt)
	c.EnergyCost = cloneDecimal(s.EnergyCost)
	c.IdleFee = cloneDecimal(s.IdleFee)
	c.TotalCost = cloneDecimal(s.TotalCost)
	c.Battery = Battery{
		InitialPercent:  cloneFloat(s.Battery.InitialPercent),
		TargetPercent:   cloneFloat(s.Battery.TargetPercent),
		CapacityKWh:     cloneFloat(s.Battery.CapacityKWh),
		ReportedPercent: cloneFloat(s.Battery.ReportedPercent),
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
