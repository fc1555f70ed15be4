package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Gatewise configuration.
type Config struct {
	DBPath     string                `yaml:"db_path"`
	Budget     BudgetConfig          `yaml:"budget"`
	Cache      CacheConfig           `yaml:"cache"`
	Predictor  PredictorConfig       `yaml:"predictor"`
	Metrics    MetricsConfig         `yaml:"metrics"`
	Tiers      map[string]TierConfig `yaml:"tiers"`
	Capability CapabilityConfig      `yaml:"capability"`
	Callers    []CallerConfig        `yaml:"callers"`
}

// BudgetConfig controls hard budget enforcement.
type BudgetConfig struct {
	Limit float64 `yaml:"limit"`
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// PredictorConfig controls the cost model.
type PredictorConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// MetricsConfig controls rolling metric aggregation.
type MetricsConfig struct {
	Window     time.Duration `yaml:"window"`
	MaxSamples int           `yaml:"max_samples"`
}

// TierConfig defines a subscription tier's cost multiplier.
type TierConfig struct {
	Multiplier float64 `yaml:"multiplier"`
}

// CapabilityConfig holds the per-unit rate card and complexity base factors
// keyed by request type.
type CapabilityConfig struct {
	Costs      map[string]float64 `yaml:"costs"`
	Complexity map[string]float64 `yaml:"complexity"`
}

// CallerConfig pre-registers a caller at startup.
type CallerConfig struct {
	Name         string   `yaml:"name"`
	Capabilities []string `yaml:"capabilities"`
	Tier         string   `yaml:"tier"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath: "gatewise.db",
		Budget: BudgetConfig{
			Limit: 1000.0,
		},
		Cache: CacheConfig{
			MaxEntries: 1000,
		},
		Predictor: PredictorConfig{
			BatchSize: 100,
		},
		Metrics: MetricsConfig{
			Window:     24 * time.Hour,
			MaxSamples: 512,
		},
		Tiers: map[string]TierConfig{
			"basic":      {Multiplier: 1.0},
			"premium":    {Multiplier: 0.8},
			"enterprise": {Multiplier: 0.6},
		},
		Capability: CapabilityConfig{
			Costs: map[string]float64{
				"text_generation": 0.0004,
				"embedding":       0.0002,
				"classification":  0.0001,
				"translation":     0.0003,
				"custom_model":    0.0006,
			},
			Complexity: map[string]float64{
				"text_generation": 2.0,
				"embedding":       1.5,
				"classification":  1.0,
			},
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Budget.Limit <= 0 {
		return fmt.Errorf("budget limit must be positive, got %v", c.Budget.Limit)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max_entries must be positive, got %d", c.Cache.MaxEntries)
	}
	for name, t := range c.Tiers {
		if t.Multiplier <= 0 {
			return fmt.Errorf("tier %q: multiplier must be positive", name)
		}
	}
	return nil
}
