package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	libconfig "chargeflow/backend/libs/config"
	"chargeflow/backend/services/charging-service/internal/models"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config defines charging service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"CHARGING_HTTP_PORT"`
	} `yaml:"http"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"CHARGING_JWT_SECRET"`
	} `yaml:"auth"`
	Storage struct {
		Driver string `yaml:"driver" env:"CHARGING_STORAGE_DRIVER"`
	} `yaml:"storage"`
	Database struct {
		DSN                string `yaml:"dsn" env:"CHARGING_POSTGRES_DSN"`
		MaxOpenConns       int    `yaml:"maxOpenConns" env:"CHARGING_POSTGRES_MAX_OPEN_CONNS"`
		MaxIdleConns       int    `yaml:"maxIdleConns" env:"CHARGING_POSTGRES_MAX_IDLE_CONNS"`
		ConnLifetimeSecond int    `yaml:"connLifetimeSeconds" env:"CHARGING_POSTGRES_CONN_LIFETIME"`
		AutoMigrate        bool   `yaml:"autoMigrate" env:"CHARGING_POSTGRES_AUTO_MIGRATE"`
	} `yaml:"database"`
	Seed struct {
		File string `yaml:"file" env:"CHARGING_SEED_FILE"`
	} `yaml:"seed"`
	Redis struct {
		Addr        string `yaml:"addr" env:"CHARGING_REDIS_ADDR"`
		Password    string `yaml:"password" env:"CHARGING_REDIS_PASSWORD"`
		DB          int    `yaml:"db" env:"CHARGING_REDIS_DB"`
		TTL         int    `yaml:"ttlSeconds" env:"CHARGING_REDIS_TTL"`
		LockTTL     int    `yaml:"lockTtlSeconds" env:"CHARGING_REDIS_LOCK_TTL"`
		LockEnabled bool   `yaml:"lockEnabled" env:"CHARGING_REDIS_LOCK_ENABLED"`
	} `yaml:"redis"`
	Billing struct {
		Currency         string `yaml:"currency" env:"CHARGING_CURRENCY"`
		PricePerKWh      string `yaml:"pricePerKwh" env:"CHARGING_PRICE_PER_KWH"`
		IdleFeePerMinute string `yaml:"idleFeePerMinute" env:"CHARGING_IDLE_FEE_PER_MINUTE"`
		Precision        int32  `yaml:"precision" env:"CHARGING_COST_PRECISION"`
		Ceiling          string `yaml:"ceiling" env:"CHARGING_COST_CEILING"`
	} `yaml:"billing"`
	Meter struct {
		MaxPowerKW   float64 `yaml:"maxPowerKw" env:"CHARGING_METER_MAX_POWER_KW"`
		ToleranceKWh float64 `yaml:"toleranceKwh" env:"CHARGING_METER_TOLERANCE_KWH"`
	} `yaml:"meter"`
	Idle struct {
		StaleWindowSeconds int `yaml:"staleWindowSeconds" env:"CHARGING_IDLE_STALE_WINDOW"`
	} `yaml:"idle"`
	Availability struct {
		SoonThresholdMinutes int `yaml:"soonThresholdMinutes" env:"CHARGING_SOON_THRESHOLD_MINUTES"`
	} `yaml:"availability"`
	Feed struct {
		WriteTimeoutSeconds int `yaml:"writeTimeoutSeconds" env:"CHARGING_FEED_WRITE_TIMEOUT"`
		Buffer              int `yaml:"buffer" env:"CHARGING_FEED_BUFFER"`
	} `yaml:"feed"`
}

// Default returns configuration with every optional setting filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = "8085"
	cfg.Storage.Driver = StoragePostgres
	cfg.Database.MaxOpenConns = 25
	cfg.Database.MaxIdleConns = 5
	cfg.Database.ConnLifetimeSecond = 3600
	cfg.Redis.TTL = 86400
	cfg.Redis.LockTTL = 30
	cfg.Redis.LockEnabled = true
	cfg.Billing.Currency = "VND"
	cfg.Billing.PricePerKWh = "3500"
	cfg.Billing.IdleFeePerMinute = "1000"
	cfg.Meter.MaxPowerKW = 350
	cfg.Meter.ToleranceKWh = 0.5
	cfg.Idle.StaleWindowSeconds = 600
	cfg.Availability.SoonThresholdMinutes = 15
	cfg.Feed.WriteTimeoutSeconds = 10
	cfg.Feed.Buffer = 16
	return cfg
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfigFrom(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case StoragePostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database dsn required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("jwt secret required")
	}
	if strings.TrimSpace(c.Billing.Currency) == "" {
		return errors.New("currency required")
	}
	if _, err := c.DefaultTariff(); err != nil {
		return err
	}
	if _, err := c.CostCeiling(); err != nil {
		return err
	}
	if c.Billing.Precision < 0 {
		return errors.New("cost precision must not be negative")
	}
	if c.Meter.MaxPowerKW < 0 || c.Meter.ToleranceKWh < 0 {
		return errors.New("meter bounds must not be negative")
	}
	if c.Idle.StaleWindowSeconds <= 0 {
		return errors.New("idle stale window must be positive")
	}
	if c.Availability.SoonThresholdMinutes < 0 {
		return errors.New("soon threshold must not be negative")
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8085"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// RedisEnabled reports whether a redis address is configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// ActiveSessionTTL returns ttl as duration.
func (c *Config) ActiveSessionTTL() time.Duration {
	return seconds(c.Redis.TTL, 24*time.Hour)
}

// LockTTL returns the distributed lock lease.
func (c *Config) LockTTL() time.Duration {
	return seconds(c.Redis.LockTTL, 30*time.Second)
}

// ConnLifetime returns the postgres connection lifetime.
func (c *Config) ConnLifetime() time.Duration {
	return seconds(c.Database.ConnLifetimeSecond, time.Hour)
}

// IdleStaleWindow returns how long the meter may stay flat before the session counts as idle.
func (c *Config) IdleStaleWindow() time.Duration {
	return seconds(c.Idle.StaleWindowSeconds, 10*time.Minute)
}

// SoonThreshold returns the longest wait still shown as soon available.
func (c *Config) SoonThreshold() time.Duration {
	return time.Duration(c.Availability.SoonThresholdMinutes) * time.Minute
}

// FeedWriteTimeout returns the websocket write deadline.
func (c *Config) FeedWriteTimeout() time.Duration {
	return seconds(c.Feed.WriteTimeoutSeconds, 10*time.Second)
}

// DefaultTariff returns the tariff applied to points without their own prices.
func (c *Config) DefaultTariff() (models.Tariff, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(c.Billing.PricePerKWh))
	if err != nil {
		return models.Tariff{}, fmt.Errorf("invalid price per kwh: %w", err)
	}
	fee, err := decimal.NewFromString(strings.TrimSpace(c.Billing.IdleFeePerMinute))
	if err != nil {
		return models.Tariff{}, fmt.Errorf("invalid idle fee: %w", err)
	}
	if !price.IsPositive() || fee.IsNegative() {
		return models.Tariff{}, errors.New("price must be positive and idle fee not negative")
	}
	return models.Tariff{
		PricePerKWh:      price,
		IdleFeePerMinute: fee,
		Currency:         strings.ToUpper(strings.TrimSpace(c.Billing.Currency)),
	}, nil
}

// CostCeiling returns the largest total cost accepted. Zero disables the check.
func (c *Config) CostCeiling() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Billing.Ceiling)
	if raw == "" {
		return decimal.Zero, nil
	}
	ceiling, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid cost ceiling: %w", err)
	}
	if ceiling.IsNegative() {
		return decimal.Zero, errors.New("cost ceiling must not be negative")
	}
	return ceiling, nil
}

func seconds(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}
