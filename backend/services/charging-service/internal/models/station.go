package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PointStatus is the operational status of a physical charging point.
type PointStatus string

// Point statuses.
const (
	PointStatusAvailable   PointStatus = "available"
	PointStatusInUse       PointStatus = "in_use"
	PointStatusReserved    PointStatus = "reserved"
	PointStatusMaintenance PointStatus = "maintenance"
	PointStatusOffline     PointStatus = "offline"
)

// Valid reports whether s is a known status.
func (s PointStatus) Valid() bool {
	switch s {
	case PointStatusAvailable, PointStatusInUse, PointStatusReserved, PointStatusMaintenance, PointStatusOffline:
		return true
	}
	return false
}

// ChargingPoint is a delivery point owned by a station.
type ChargingPoint struct {
	ID                string           `db:"id" json:"id"`
	StationID         string           `db:"station_id" json:"station_id"`
	PowerKW           float64          `db:"power_kw" json:"power_kw"`
	ConnectorType     string           `db:"connector_type" json:"connector_type"`
	Status            PointStatus      `db:"status" json:"status"`
	ReservedBookingID string           `db:"reserved_booking_id" json:"reserved_booking_id,omitempty"`
	PricePerKWh       *decimal.Decimal `db:"price_per_kwh" json:"price_per_kwh,omitempty"`
	IdleFeePerMinute  *decimal.Decimal `db:"idle_fee_per_minute" json:"idle_fee_per_minute,omitempty"`
	LastSeen          *time.Time       `db:"last_seen" json:"last_seen,omitempty"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// Station groups charging points at one site.
type Station struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Maintenance bool      `db:"maintenance" json:"maintenance"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
