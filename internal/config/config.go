// Package config loads mdbox settings from a YAML file with MDBOX_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/TrevorS/mdevents"
)

// Config holds all mdbox configuration.
type Config struct {
	Dimensions []DimensionConfig `yaml:"dimensions" validate:"omitempty,unique=Name,dive"`
	Controller ControllerConfig  `yaml:"controller"`
	Ingest     IngestConfig      `yaml:"ingest"`
	Log        LogConfig         `yaml:"log"`
	Store      StoreConfig       `yaml:"store"`
}

// DimensionConfig describes one axis of the workspace.
type DimensionConfig struct {
	Name    string  `yaml:"name" validate:"required"`
	Units   string  `yaml:"units"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max" validate:"gtfield=Min"`
	NumBins int     `yaml:"num_bins" validate:"gte=0"`
}

// ControllerConfig holds the box splitting policy.
type ControllerConfig struct {
	SplitInto      uint32 `yaml:"split_into" validate:"gte=2"`
	SplitThreshold uint64 `yaml:"split_threshold" validate:"gte=1"`
	MaxDepth       uint32 `yaml:"max_depth" validate:"gte=1"`
}

// IngestConfig holds ingestion worker settings.
type IngestConfig struct {
	Workers     int    `yaml:"workers" validate:"gte=0"`
	BatchSize   int    `yaml:"batch_size" validate:"gte=0"`
	TaskSize    int    `yaml:"task_size" validate:"gte=1"`
	EventType   string `yaml:"event_type" validate:"oneof=lean full"`
	AutoRefresh bool   `yaml:"auto_refresh"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
}

// StoreConfig holds persistence settings. An empty Path disables saving.
type StoreConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

var validate = validator.New()

// Default returns the settings used when no file is given: the controller
// defaults of the library and no dimensions, which a file must supply for
// ingestion.
func Default() Config {
	return Config{
		Controller: ControllerConfig{
			SplitInto:      mdevents.DefaultSplitInto,
			SplitThreshold: mdevents.DefaultSplitThreshold,
			MaxDepth:       mdevents.DefaultMaxDepth,
		},
		Ingest: IngestConfig{
			BatchSize: mdevents.DefaultBatchSize,
			TaskSize:  100_000,
			EventType: "lean",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration from path (if non-empty), applies MDBOX_*
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := loadFromEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the struct tags. Dimensions may be empty here; commands
// that build a workspace call RequireDimensions as well.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// RequireDimensions fails when no dimensions are configured.
func (c *Config) RequireDimensions() error {
	if err := validate.Var(c.Dimensions, "required,min=1"); err != nil {
		return errors.New("invalid config: at least one dimension is required")
	}
	return nil
}

func loadFromEnv(cfg *Config) error {
	var errs []error
	parseUint := func(key string, bits int, set func(uint64)) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.ParseUint(v, 10, bits)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			set(n)
		}
	}
	parseInt := func(key string, set func(int)) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			set(n)
		}
	}

	parseUint("MDBOX_SPLIT_INTO", 32, func(n uint64) { cfg.Controller.SplitInto = uint32(n) })
	parseUint("MDBOX_SPLIT_THRESHOLD", 64, func(n uint64) { cfg.Controller.SplitThreshold = n })
	parseUint("MDBOX_MAX_DEPTH", 32, func(n uint64) { cfg.Controller.MaxDepth = uint32(n) })
	parseInt("MDBOX_WORKERS", func(n int) { cfg.Ingest.Workers = n })
	parseInt("MDBOX_BATCH_SIZE", func(n int) { cfg.Ingest.BatchSize = n })

	if v := os.Getenv("MDBOX_EVENT_TYPE"); v != "" {
		cfg.Ingest.EventType = v
	}
	if v := os.Getenv("MDBOX_AUTO_REFRESH"); v != "" {
		cfg.Ingest.AutoRefresh = v == "true" || v == "1"
	}
	if v := os.Getenv("MDBOX_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MDBOX_LOG_JSON"); v != "" {
		cfg.Log.JSON = v == "true" || v == "1"
	}
	if v := os.Getenv("MDBOX_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	return errors.Join(errs...)
}

// WorkspaceDimensions converts the configured axes.
func (c *Config) WorkspaceDimensions() []mdevents.Dimension {
	dims := make([]mdevents.Dimension, len(c.Dimensions))
	for i, d := range c.Dimensions {
		dims[i] = mdevents.Dimension{
			Name:    d.Name,
			Units:   d.Units,
			Min:     d.Min,
			Max:     d.Max,
			NumBins: d.NumBins,
		}
	}
	return dims
}

// WorkspaceConfig returns the library settings for a new workspace. Logger,
// Metrics and ID are left for the caller.
func (c *Config) WorkspaceConfig() mdevents.Config {
	return mdevents.Config{
		SplitInto:      c.Controller.SplitInto,
		SplitThreshold: c.Controller.SplitThreshold,
		MaxDepth:       c.Controller.MaxDepth,
		Workers:        c.Ingest.Workers,
		AutoRefresh:    c.Ingest.AutoRefresh,
	}
}
