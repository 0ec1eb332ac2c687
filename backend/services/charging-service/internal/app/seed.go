package app

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"chargeflow/backend/services/charging-service/internal/models"
)

// Catalog is the station and point inventory loaded from the seed file.
type Catalog struct {
	Stations []struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Maintenance bool   `yaml:"maintenance"`
		Points      []struct {
			ID               string  `yaml:"id"`
			PowerKW          float64 `yaml:"powerKw"`
			ConnectorType    string  `yaml:"connectorType"`
			Status           string  `yaml:"status"`
			PricePerKWh      string  `yaml:"pricePerKwh"`
			IdleFeePerMinute string  `yaml:"idleFeePerMinute"`
		} `yaml:"points"`
	} `yaml:"stations"`
}

type catalogStore interface {
	UpsertStation(ctx context.Context, station models.Station) error
	UpsertPoint(ctx context.Context, point models.ChargingPoint) error
}

// LoadCatalog parses a seed file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read file: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("seed: decode yaml: %w", err)
	}
	return &c, nil
}

// Apply upserts every station and point. Points that already exist keep their status.
func (c *Catalog) Apply(ctx context.Context, store catalogStore, logger *zap.Logger) error {
	var points int
	for _, st := range c.Stations {
		if st.ID == "" {
			return fmt.Errorf("seed: station without id")
		}
		if err := store.UpsertStation(ctx, models.Station{ID: st.ID, Name: st.Name, Maintenance: st.Maintenance}); err != nil {
			return err
		}
		for _, p := range st.Points {
			point := models.ChargingPoint{
				ID:            p.ID,
				StationID:     st.ID,
				PowerKW:       p.PowerKW,
				ConnectorType: p.ConnectorType,
				Status:        models.PointStatus(p.Status),
			}
			if point.Status == "" {
				point.Status = models.PointStatusAvailable
			}
			if point.ID == "" || !point.Status.Valid() || point.Status == models.PointStatusInUse {
				return fmt.Errorf("seed: invalid point %q in station %q", p.ID, st.ID)
			}
			var err error
			if point.PricePerKWh, err = optionalDecimal(p.PricePerKWh); err != nil {
				return fmt.Errorf("seed: point %s price: %w", p.ID, err)
			}
			if point.IdleFeePerMinute, err = optionalDecimal(p.IdleFeePerMinute); err != nil {
				return fmt.Errorf("seed: point %s idle fee: %w", p.ID, err)
			}
			if err := store.UpsertPoint(ctx, point); err != nil {
				return err
			}
			points++
		}
	}
	logger.Info("catalog seeded", zap.Int("stations", len(c.Stations)), zap.Int("points", points))
	return nil
}

func optionalDecimal(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
