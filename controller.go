package mdevents

import (
	"fmt"
	"math"
	"math/bits"
	"sync"
	"sync/atomic"
)

// Default box-controller settings, matching what the reduction algorithms
// configure for a fresh 4-D workspace.
const (
	DefaultSplitInto      = 5
	DefaultSplitThreshold = 1500
	DefaultMaxDepth       = 20
)

// BoxController holds the splitting policy and the box-id namespace of one
// workspace, plus workspace-wide counters. Every box in the tree is governed
// by the same controller; boxes do not store it, the workspace passes it down
// when it walks the tree.
//
// The policy can be changed until the first split. After that the setters
// return ErrControllerLocked: existing subtrees were cut with the old fan-out
// and a mixed tree would no longer match the per-depth statistics.
//
// Thread Safety: NextID and all counters are atomics and may be used from any
// goroutine. Setters take an internal lock distinct from the per-leaf locks.
type BoxController struct {
	mu             sync.RWMutex
	splitInto      uint32
	splitThreshold uint64
	maxDepth       uint32
	locked         bool

	nextID          atomic.Uint64
	totalBoxes      atomic.Uint64
	totalLeafBoxes  atomic.Uint64
	totalEvents     atomic.Uint64
	rejectedEvents  atomic.Uint64
	maxDepthReached atomic.Uint32
}

// splitPolicy is a snapshot of the controller settings taken once per pass.
type splitPolicy struct {
	splitInto      int
	splitThreshold uint64
	maxDepth       uint32
}

// NewBoxController validates the settings and returns a controller with no
// boxes registered.
func NewBoxController(splitInto uint32, splitThreshold uint64, maxDepth uint32) (*BoxController, error) {
	if err := validateSplitInto(splitInto); err != nil {
		return nil, err
	}
	if err := validateSplitThreshold(splitThreshold); err != nil {
		return nil, err
	}
	if err := validateMaxDepth(maxDepth); err != nil {
		return nil, err
	}
	return &BoxController{
		splitInto:      splitInto,
		splitThreshold: splitThreshold,
		maxDepth:       maxDepth,
	}, nil
}

func validateSplitInto(n uint32) error {
	if n < 2 {
		return fmt.Errorf("%w: SplitInto must be >= 2, got %d", ErrConfiguration, n)
	}
	return nil
}

func validateSplitThreshold(n uint64) error {
	if n == 0 {
		return fmt.Errorf("%w: SplitThreshold must be >= 1, got 0", ErrConfiguration)
	}
	return nil
}

func validateMaxDepth(n uint32) error {
	if n == 0 {
		return fmt.Errorf("%w: MaxDepth must be >= 1, got 0", ErrConfiguration)
	}
	return nil
}

// SetSplitInto sets the number of equal intervals each dimension is cut into.
func (bc *BoxController) SetSplitInto(n uint32) error {
	if err := validateSplitInto(n); err != nil {
		return err
	}
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.locked {
		return ErrControllerLocked
	}
	bc.splitInto = n
	return nil
}

// SetSplitThreshold sets the event count above which a leaf is split.
func (bc *BoxController) SetSplitThreshold(n uint64) error {
	if err := validateSplitThreshold(n); err != nil {
		return err
	}
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.locked {
		return ErrControllerLocked
	}
	bc.splitThreshold = n
	return nil
}

// SetMaxDepth sets the deepest level a box may be created at. The root is
// depth 0.
func (bc *BoxController) SetMaxDepth(n uint32) error {
	if err := validateMaxDepth(n); err != nil {
		return err
	}
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.locked {
		return ErrControllerLocked
	}
	bc.maxDepth = n
	return nil
}

func (bc *BoxController) SplitInto() uint32 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.splitInto
}

func (bc *BoxController) SplitThreshold() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.splitThreshold
}

func (bc *BoxController) MaxDepth() uint32 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.maxDepth
}

// Locked reports whether the tree has been split and the policy is frozen.
func (bc *BoxController) Locked() bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.locked
}

func (bc *BoxController) policy() splitPolicy {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return splitPolicy{
		splitInto:      int(bc.splitInto),
		splitThreshold: bc.splitThreshold,
		maxDepth:       bc.maxDepth,
	}
}

// lock freezes the policy. Called right before the first split mutates the tree.
func (bc *BoxController) lock() {
	bc.mu.Lock()
	bc.locked = true
	bc.mu.Unlock()
}

// NextID returns a box id that has never been returned by this controller.
func (bc *BoxController) NextID() uint64 {
	return bc.nextID.Add(1) - 1
}

// ShouldSplitBoxes is the gate an ingestion driver uses to decide whether to
// pause, join its workers and run a split pass. It amortizes the cost of
// walking the tree: a pass is worth it once the events added since the last
// pass could, on average, have pushed every box at least halfway to the
// threshold.
func (bc *BoxController) ShouldSplitBoxes(eventsAdded, lastNumBoxes uint64) bool {
	if lastNumBoxes == 0 {
		return false
	}
	// The product can exceed 64 bits; halve the 128-bit value and saturate.
	hi, lo := bits.Mul64(lastNumBoxes, bc.SplitThreshold())
	limit := uint64(math.MaxUint64)
	if hi <= 1 {
		limit = hi<<63 | lo>>1
	}
	if limit == 0 {
		limit = 1
	}
	return eventsAdded > limit
}

// TotalNumBoxes returns the number of boxes, internal and leaf.
func (bc *BoxController) TotalNumBoxes() uint64 { return bc.totalBoxes.Load() }

// TotalNumLeafBoxes returns the number of leaf boxes.
func (bc *BoxController) TotalNumLeafBoxes() uint64 { return bc.totalLeafBoxes.Load() }

// TotalNumEvents returns the number of events accepted into the tree. It is
// maintained on every add and does not need a refresh.
func (bc *BoxController) TotalNumEvents() uint64 { return bc.totalEvents.Load() }

// RejectedEvents returns how many events were dropped for lying outside the
// workspace.
func (bc *BoxController) RejectedEvents() uint64 { return bc.rejectedEvents.Load() }

// MaxDepthReached returns the depth of the deepest box created so far.
func (bc *BoxController) MaxDepthReached() uint32 { return bc.maxDepthReached.Load() }

// registerSplit accounts for one leaf turning into an internal box with n
// leaf children at the given depth.
func (bc *BoxController) registerSplit(n int, childDepth uint32) {
	bc.totalBoxes.Add(uint64(n))
	bc.totalLeafBoxes.Add(uint64(n - 1))
	bc.noteDepth(childDepth)
}

func (bc *BoxController) noteDepth(depth uint32) {
	for {
		cur := bc.maxDepthReached.Load()
		if depth <= cur || bc.maxDepthReached.CompareAndSwap(cur, depth) {
			return
		}
	}
}

func (bc *BoxController) registerRoot() {
	bc.totalBoxes.Add(1)
	bc.totalLeafBoxes.Add(1)
}
