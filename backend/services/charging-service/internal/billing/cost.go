package billing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNegativeInput is returned when any cost input is negative.
	ErrNegativeInput = errors.New("billing: negative cost input")
	// ErrCostOverflow is returned when the total exceeds the configured ceiling.
	ErrCostOverflow = errors.New("billing: cost exceeds ceiling")
)

// Cost is the breakdown of a session charge.
type Cost struct {
	EnergyCost decimal.Decimal `json:"energy_cost"`
	IdleFee    decimal.Decimal `json:"idle_fee"`
	TotalCost  decimal.Decimal `json:"total_cost"`
}

// CostCalculator prices energy and idle time. The same value is used for live estimates and
// for the final charge, so both agree for the same inputs.
type CostCalculator struct {
	// Precision is the number of minor-unit digits kept after rounding (0 for VND, 2 for EUR).
	Precision int32
	// Ceiling rejects totals above it. Zero means no ceiling.
	Ceiling decimal.Decimal
}

// NewCostCalculator builds a calculator.
func NewCostCalculator(precision int32, ceiling decimal.Decimal) CostCalculator {
	return CostCalculator{Precision: precision, Ceiling: ceiling}
}

// Compute returns energy cost, idle fee and their sum. Energy cost is rounded half-up to the
// minor unit; idle minutes are floored to whole minutes before the fee is applied.
func (c CostCalculator) Compute(energyKWh, pricePerKWh, idleMinutes, idleFeePerMinute decimal.Decimal) (Cost, error) {
	if energyKWh.IsNegative() || pricePerKWh.IsNegative() || idleMinutes.IsNegative() || idleFeePerMinute.IsNegative() {
		return Cost{}, ErrNegativeInput
	}

	// inputs are non-negative so Round (half away from zero) is half-up here
	energyCost := energyKWh.Mul(pricePerKWh).Round(c.Precision)
	idleFee := idleMinutes.Floor().Mul(idleFeePerMinute).Round(c.Precision)
	total := energyCost.Add(idleFee)

	if c.Ceiling.IsPositive() && total.GreaterThan(c.Ceiling) {
		return Cost{}, ErrCostOverflow
	}

	return Cost{
		EnergyCost: energyCost,
		IdleFee:    idleFee,
		TotalCost:  total,
	}, nil
}
