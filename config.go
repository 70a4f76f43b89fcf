package mdevents

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/google/uuid"
)

// Config controls how a workspace splits boxes and runs its passes.
// Start with [DefaultConfig] and override the fields you need.
type Config struct {
	// SplitInto is the number of equal intervals each dimension is cut into
	// when a box splits, so a split creates SplitInto^D children.
	// Must be >= 2. Default: 5.
	SplitInto uint32

	// SplitThreshold is the number of events a leaf may hold before a split
	// pass splits it. Must be >= 1. Default: 1500.
	SplitThreshold uint64

	// MaxDepth is the deepest level a box can be created at; the root is
	// depth 0. Leaves at MaxDepth are never split and may hold any number of
	// events. Must be >= 1. Default: 20.
	MaxDepth uint32

	// Workers bounds the goroutines used by split and refresh passes.
	// 0 means runtime.NumCPU(); 1 runs the passes sequentially.
	Workers int

	// AutoRefresh makes aggregate queries run RefreshCache themselves when
	// the cache is stale. When false (the default) they return ErrStaleCache.
	AutoRefresh bool

	// Logger receives debug records for rejected events and split passes.
	// Default: slog.Default().
	Logger *slog.Logger

	// Metrics, if set, receives counters and tree-shape gauges.
	Metrics *Metrics

	// ID names the workspace, e.g. as its persistence key. The zero UUID
	// means a random one is generated.
	ID uuid.UUID
}

// DefaultConfig returns a Config with the settings used for 4-D
// momentum/energy workspaces.
func DefaultConfig() Config {
	return Config{
		SplitInto:      DefaultSplitInto,
		SplitThreshold: DefaultSplitThreshold,
		MaxDepth:       DefaultMaxDepth,
	}
}

// applyDefaults fills in zero-valued ambient fields. The split policy is left
// alone so a zero value is reported rather than silently replaced.
func applyDefaults(cfg *Config) {
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
}

// validateConfig checks that cfg fields are valid and returns a descriptive
// error wrapping ErrConfiguration if not.
func validateConfig(cfg *Config) error {
	if err := validateSplitInto(cfg.SplitInto); err != nil {
		return err
	}
	if err := validateSplitThreshold(cfg.SplitThreshold); err != nil {
		return err
	}
	if err := validateMaxDepth(cfg.MaxDepth); err != nil {
		return err
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("%w: Workers must be >= 0, got %d", ErrConfiguration, cfg.Workers)
	}
	return nil
}
