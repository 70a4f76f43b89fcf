package mdevents

import "errors"

var (
	// ErrConfiguration reports an invalid dimension or box-controller setup.
	// It is returned at setup time and is never worth retrying.
	ErrConfiguration = errors.New("mdevents: invalid configuration")

	// ErrDimensionMismatch reports that a workspace's dimensions differ from
	// the ones a caller wants to append with. It wraps ErrConfiguration.
	ErrDimensionMismatch = wrapConfig("dimension mismatch")

	// ErrControllerLocked is returned by BoxController setters once the tree
	// has been split. It wraps ErrConfiguration.
	ErrControllerLocked = wrapConfig("box controller is locked after the first split")

	// ErrOutOfBounds reports a position outside the root box. Ingestion never
	// returns it; out-of-bounds events are counted as rejected instead.
	ErrOutOfBounds = errors.New("mdevents: position outside workspace bounds")

	// ErrStaleCache is returned by aggregate queries when events were added or
	// boxes split since the last RefreshCache and AutoRefresh is off.
	ErrStaleCache = errors.New("mdevents: cached aggregates are stale, call RefreshCache")

	// ErrConcurrencyContract is returned when a structural pass (split,
	// refresh, clear) overlaps an in-flight AddEvents call, or two structural
	// passes overlap.
	ErrConcurrencyContract = errors.New("mdevents: ingestion and structural passes overlap")
)

type configError struct{ msg string }

func (e *configError) Error() string { return "mdevents: " + e.msg }
func (e *configError) Unwrap() error { return ErrConfiguration }

func wrapConfig(msg string) error { return &configError{msg: msg} }
