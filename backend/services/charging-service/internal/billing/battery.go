package billing

import (
	"math"
	"time"

	"chargeflow/backend/services/charging-service/internal/models"
)

// BatteryEstimate is a read-side projection of state-of-charge progress.
type BatteryEstimate struct {
	CurrentPercent        *float64   `json:"current_percent,omitempty"`
	TargetPercent         *float64   `json:"target_percent,omitempty"`
	EstimatedCompletionAt *time.Time `json:"estimated_completion_at,omitempty"`
	MinutesRemaining      *int       `json:"minutes_remaining,omitempty"`
}

// Reached reports whether the current charge is at or above the target.
func (b BatteryEstimate) Reached() bool {
	return b.CurrentPercent != nil && b.TargetPercent != nil && *b.CurrentPercent >= *b.TargetPercent
}

// EstimateBattery derives the current charge and time to target for s at now. A reported
// percentage wins over one derived from delivered energy and battery capacity.
func EstimateBattery(s *models.Session, now time.Time) BatteryEstimate {
	var est BatteryEstimate
	if s == nil {
		return est
	}
	est.TargetPercent = s.Battery.TargetPercent

	current, ok := currentPercent(s)
	if !ok {
		return est
	}
	est.CurrentPercent = &current

	if s.Battery.TargetPercent == nil {
		return est
	}
	target := *s.Battery.TargetPercent
	if current >= target {
		zero := 0
		est.MinutesRemaining = &zero
		at := now
		est.EstimatedCompletionAt = &at
		return est
	}

	if s.Battery.CapacityKWh == nil || *s.Battery.CapacityKWh <= 0 {
		return est
	}
	rate := chargingRateKW(s, now)
	if rate <= 0 {
		return est
	}
	capacity := *s.Battery.CapacityKWh
	remainingKWh := (target - current) / 100 * capacity
	minutes := int(math.Ceil(remainingKWh / rate * 60))
	at := now.Add(time.Duration(minutes) * time.Minute)
	est.MinutesRemaining = &minutes
	est.EstimatedCompletionAt = &at
	return est
}

func currentPercent(s *models.Session) (float64, bool) {
	if s.Battery.ReportedPercent != nil {
		return clampPercent(*s.Battery.ReportedPercent), true
	}
	if s.Battery.InitialPercent == nil || s.Battery.CapacityKWh == nil || *s.Battery.CapacityKWh <= 0 {
		return 0, false
	}
	capacity := *s.Battery.CapacityKWh
	delivered := s.EnergyKWh().InexactFloat64()
	return clampPercent(*s.Battery.InitialPercent + delivered/capacity*100), true
}

// chargingRateKW is the average power since start, falling back to the rated power.
func chargingRateKW(s *models.Session, now time.Time) float64 {
	elapsed := now.Sub(s.StartTime).Hours()
	energy := s.EnergyKWh().InexactFloat64()
	if elapsed > 0 && energy > 0 {
		return energy / elapsed
	}
	return s.RatedPowerKW
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
