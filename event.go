package mdevents

// Event is one weighted point observation. Implementations must be
// immutable after construction: Center returns the stored coordinates and
// callers must not modify them.
//
// A workspace holds a single event type, chosen when it is created, so leaf
// buffers are homogeneous slices rather than slices of interfaces.
type Event interface {
	Center() []float64
	Signal() float32
	ErrorSquared() float32
}

// LeanEvent carries only a position, a signal and its squared error.
type LeanEvent struct {
	center       []float64
	signal       float32
	errorSquared float32
}

// NewLeanEvent copies center and returns a LeanEvent.
func NewLeanEvent(signal, errorSquared float32, center ...float64) LeanEvent {
	c := make([]float64, len(center))
	copy(c, center)
	return LeanEvent{center: c, signal: signal, errorSquared: errorSquared}
}

func (e LeanEvent) Center() []float64     { return e.center }
func (e LeanEvent) Signal() float32       { return e.signal }
func (e LeanEvent) ErrorSquared() float32 { return e.errorSquared }

// FullEvent is a LeanEvent that also remembers which run and which detector
// produced it.
type FullEvent struct {
	LeanEvent
	runIndex   uint16
	detectorID int32
}

// NewFullEvent copies center and returns a FullEvent.
func NewFullEvent(signal, errorSquared float32, runIndex uint16, detectorID int32, center ...float64) FullEvent {
	return FullEvent{
		LeanEvent:  NewLeanEvent(signal, errorSquared, center...),
		runIndex:   runIndex,
		detectorID: detectorID,
	}
}

func (e FullEvent) RunIndex() uint16  { return e.runIndex }
func (e FullEvent) DetectorID() int32 { return e.detectorID }
