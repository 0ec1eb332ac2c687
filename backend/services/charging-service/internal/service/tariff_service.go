package service

import (
	"chargeflow/backend/services/charging-service/internal/models"
)

// TariffService resolves the price context of a point, falling back to the configured default.
type TariffService struct {
	defaultTariff models.Tariff
}

// NewTariffService returns service instance.
func NewTariffService(defaultTariff models.Tariff) *TariffService {
	return &TariffService{defaultTariff: defaultTariff}
}

// ForPoint returns the tariff that a session started on point is billed with.
func (s *TariffService) ForPoint(point *models.ChargingPoint) (models.Tariff, error) {
	tariff := s.defaultTariff
	if point != nil && point.PricePerKWh != nil {
		tariff.PricePerKWh = *point.PricePerKWh
	}
	if point != nil && point.IdleFeePerMinute != nil {
		tariff.IdleFeePerMinute = *point.IdleFeePerMinute
	}

	if !tariff.PricePerKWh.IsPositive() || tariff.IdleFeePerMinute.IsNegative() {
		return models.Tariff{}, ErrNoTariff
	}
	return tariff, nil
}
