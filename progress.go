package mdevents

import (
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Progress receives increment counts as ingestion proceeds. Report is called
// from many workers at once and must be safe for concurrent use. An error
// from Report is logged and otherwise ignored; it never stops ingestion.
type Progress interface {
	Report(n int, msg string) error
}

// ProgressFunc adapts a plain function into a Progress.
type ProgressFunc func(n int, msg string) error

func (f ProgressFunc) Report(n int, msg string) error { return f(n, msg) }

// LogProgress logs the running total through slog, at most once per
// interval.
type LogProgress struct {
	logger   *slog.Logger
	expected uint64
	done     atomic.Uint64
	limiter  *rate.Limiter
}

// NewLogProgress returns a LogProgress expecting the given total, which may
// be 0 when unknown. every <= 0 logs on every report.
func NewLogProgress(logger *slog.Logger, expected uint64, every time.Duration) *LogProgress {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	return &LogProgress{
		logger:   logger,
		expected: expected,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

func (p *LogProgress) Report(n int, msg string) error {
	done := p.done.Add(uint64(n))
	if !p.limiter.Allow() {
		return nil
	}
	attrs := []any{"done", done}
	if p.expected > 0 {
		attrs = append(attrs, "expected", p.expected,
			"percent", float64(done)*100/float64(p.expected))
	}
	p.logger.Info(msg, attrs...)
	return nil
}

// Done returns the total reported so far.
func (p *LogProgress) Done() uint64 { return p.done.Load() }
