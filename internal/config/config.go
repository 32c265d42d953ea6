// Package config loads the application configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"regimelab/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Postgres   PostgresConfig   `yaml:"postgres"`
	Clickhouse ClickhouseConfig `yaml:"clickhouse"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Signals    SignalsConfig    `yaml:"signals"`
	Comovement ComovementConfig `yaml:"comovement"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// PostgresConfig holds the relational store connection settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// ClickhouseConfig holds the timeseries store connection settings.
type ClickhouseConfig struct {
	DSN string `yaml:"dsn"`
}

// RefreshConfig bounds one refresh run.
type RefreshConfig struct {
	// Assets are the asset ids to process; each is one partition.
	Assets []string `yaml:"assets"`

	// Workers is the number of partitions processed concurrently.
	Workers int `yaml:"workers"`

	// FeatureTier selects the enabled regime layers.
	FeatureTier string `yaml:"feature_tier"`

	// EmaPeriods are the EMA lookbacks computed per timeframe.
	EmaPeriods []int `yaml:"ema_periods"`

	// Timeframes are the registry keys to refresh.
	Timeframes []string `yaml:"timeframes"`

	// MaxGapDays is the largest tolerated hole in a daily series before
	// the partition fails; 0 disables the check.
	MaxGapDays int `yaml:"max_gap_days"`
}

// SignalsConfig configures the crossover rule.
type SignalsConfig struct {
	FastPeriod int  `yaml:"fast_period"`
	SlowPeriod int  `yaml:"slow_period"`
	LongOnly   bool `yaml:"long_only"`
}

// ComovementConfig bounds the pairwise series comparison.
type ComovementConfig struct {
	WindowBars int `yaml:"window_bars"`
	MaxLag     int `yaml:"max_lag"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Refresh: RefreshConfig{
			Workers:     4,
			FeatureTier: string(domain.TierStandard),
			EmaPeriods:  []int{20, 50, 200},
			Timeframes:  []string{"1D", "1W_CAL", "1M_CAL"},
			MaxGapDays:  7,
		},
		Signals: SignalsConfig{
			FastPeriod: 20,
			SlowPeriod: 50,
			LongOnly:   true,
		},
		Comovement: ComovementConfig{
			WindowBars: 60,
			MaxLag:     5,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

func (c *Config) validate() error {
	if c.Refresh.Workers <= 0 {
		return fmt.Errorf("refresh.workers must be positive, got %d", c.Refresh.Workers)
	}
	switch domain.FeatureTier(c.Refresh.FeatureTier) {
	case domain.TierLite, domain.TierStandard, domain.TierFull:
	default:
		return fmt.Errorf("unknown feature tier %q", c.Refresh.FeatureTier)
	}
	if len(c.Refresh.EmaPeriods) == 0 {
		return fmt.Errorf("refresh.ema_periods must not be empty")
	}
	for _, p := range c.Refresh.EmaPeriods {
		if p <= 0 {
			return fmt.Errorf("ema period must be positive, got %d", p)
		}
	}
	if c.Signals.FastPeriod >= c.Signals.SlowPeriod {
		return fmt.Errorf("signals.fast_period %d must be below slow_period %d", c.Signals.FastPeriod, c.Signals.SlowPeriod)
	}
	for _, p := range []int{c.Signals.FastPeriod, c.Signals.SlowPeriod} {
		found := false
		for _, q := range c.Refresh.EmaPeriods {
			if p == q {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("signal period %d not in refresh.ema_periods %v", p, c.Refresh.EmaPeriods)
		}
	}
	return nil
}

// Tier returns the typed feature tier.
func (c *Config) Tier() domain.FeatureTier {
	return domain.FeatureTier(c.Refresh.FeatureTier)
}
