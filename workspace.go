package mdevents

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Workspace is a D-dimensional event container: it owns the root box, the
// dimension definitions and the box controller, and is the single entry
// point for ingestion and structural queries.
//
// # Thread Safety
//
// AddEvents may be called from many goroutines at once. Routing reads the
// tree without locks and appending takes only the owning leaf's lock.
//
// SplitAllIfNeeded, SplitBox, RefreshCache, ClearEvents and Snapshot are
// structural passes. They must not overlap in-flight AddEvents calls or each
// other: callers join their ingestion workers before a pass and resume after
// it. Overlaps are detected and reported as ErrConcurrencyContract.
type Workspace[E Event] struct {
	id      uuid.UUID
	dims    []Dimension
	root    *Box[E]
	bc      *BoxController
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics

	inFlight atomic.Int64
	mutating atomic.Bool
	dirty    atomic.Bool

	// refreshes collapses concurrent auto-refreshing queries into one pass.
	refreshes singleflight.Group
}

// New creates an empty workspace whose root box spans the dimension extents.
// It fails with ErrConfiguration if dims is empty, a dimension has
// Min >= Max, or the split policy in cfg is invalid.
func New[E Event](dims []Dimension, cfg Config) (*Workspace[E], error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	if err := validateDimensions(dims); err != nil {
		return nil, err
	}

	bc, err := NewBoxController(cfg.SplitInto, cfg.SplitThreshold, cfg.MaxDepth)
	if err != nil {
		return nil, err
	}

	own := make([]Dimension, len(dims))
	copy(own, dims)
	extents := make([]Extent, len(dims))
	for i, d := range own {
		if own[i].NumBins == 0 {
			own[i].NumBins = DefaultNumBins
		}
		extents[i] = Extent{Min: d.Min, Max: d.Max}
	}

	root := newBox[E](bc.NextID(), 0, extents)
	bc.registerRoot()
	root.refreshCache()

	ws := &Workspace[E]{
		id:      cfg.ID,
		dims:    own,
		root:    root,
		bc:      bc,
		cfg:     cfg,
		logger:  cfg.Logger.With("workspace", cfg.ID.String()),
		metrics: cfg.Metrics,
	}
	ws.metrics.observeShape(bc)
	return ws, nil
}

// ID returns the workspace identifier.
func (ws *Workspace[E]) ID() uuid.UUID { return ws.id }

// NumDims returns the dimensionality D.
func (ws *Workspace[E]) NumDims() int { return len(ws.dims) }

// Dimensions returns a copy of the dimension definitions.
func (ws *Workspace[E]) Dimensions() []Dimension {
	out := make([]Dimension, len(ws.dims))
	copy(out, ws.dims)
	return out
}

// Controller returns the workspace's box controller.
func (ws *Workspace[E]) Controller() *BoxController { return ws.bc }

// MatchesDimensions checks that dims describe the same axes as the
// workspace, in the same order, before a caller appends events computed for
// dims. NumBins is not compared.
func (ws *Workspace[E]) MatchesDimensions(dims []Dimension) error {
	if len(dims) != len(ws.dims) {
		return fmt.Errorf("%w: workspace has %d dimensions, got %d", ErrDimensionMismatch, len(ws.dims), len(dims))
	}
	for i := range dims {
		if !sameDimension(ws.dims[i], dims[i]) {
			return fmt.Errorf("%w: dimension %d is %q [%v, %v] %s, got %q [%v, %v] %s",
				ErrDimensionMismatch, i,
				ws.dims[i].Name, ws.dims[i].Min, ws.dims[i].Max, ws.dims[i].Units,
				dims[i].Name, dims[i].Min, dims[i].Max, dims[i].Units)
		}
	}
	return nil
}

// AddEvents routes each event to the leaf box whose extents contain it.
// Events outside the workspace, with the wrong number of coordinates, or
// with NaN coordinates are dropped and counted as rejected; they never abort
// the batch.
//
// The only error is ErrConcurrencyContract, returned without adding anything
// when a structural pass is running.
func (ws *Workspace[E]) AddEvents(batch []E) (added, rejected int, err error) {
	ws.inFlight.Add(1)
	defer ws.inFlight.Add(-1)
	if ws.mutating.Load() {
		return 0, 0, fmt.Errorf("%w: AddEvents called during a structural pass", ErrConcurrencyContract)
	}

	for _, e := range batch {
		c := e.Center()
		if !ws.root.contains(c) {
			rejected++
			continue
		}
		ws.root.leafFor(c).appendEvent(e)
		added++
	}

	if added > 0 {
		ws.bc.totalEvents.Add(uint64(added))
		ws.dirty.Store(true)
	}
	if rejected > 0 {
		ws.bc.rejectedEvents.Add(uint64(rejected))
		ws.logger.Debug("rejected out-of-bounds events",
			"rejected", rejected, "batch", len(batch))
	}
	ws.metrics.observeAdd(added, rejected)
	return added, rejected, nil
}

// AddEvent adds a single event and reports whether it was accepted.
func (ws *Workspace[E]) AddEvent(e E) bool {
	added, _, err := ws.AddEvents([]E{e})
	return err == nil && added == 1
}

func (ws *Workspace[E]) beginPass(op string) error {
	if !ws.mutating.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s overlaps another structural pass", ErrConcurrencyContract, op)
	}
	if n := ws.inFlight.Load(); n > 0 {
		ws.mutating.Store(false)
		return fmt.Errorf("%w: %s with %d AddEvents calls in flight", ErrConcurrencyContract, op, n)
	}
	return nil
}

func (ws *Workspace[E]) endPass() { ws.mutating.Store(false) }

// SplitAllIfNeeded splits every leaf holding more than the split threshold
// events whose depth is below the maximum. New children that are still over
// the threshold are split immediately, so when it returns no leaf above the
// threshold remains except at the maximum depth.
//
// Independent leaves are split concurrently by up to Config.Workers
// goroutines.
func (ws *Workspace[E]) SplitAllIfNeeded() error {
	if err := ws.beginPass("SplitAllIfNeeded"); err != nil {
		return err
	}
	defer ws.endPass()

	start := time.Now()
	p := ws.bc.policy()

	var pending []*Box[E]
	ws.root.collectSplittable(p, &pending)
	if len(pending) == 0 {
		return nil
	}
	ws.bc.lock()

	var splits atomic.Int64
	if ws.cfg.Workers <= 1 || len(pending) == 1 {
		for _, b := range pending {
			splits.Add(int64(b.split(ws.bc, p)))
		}
	} else {
		var g errgroup.Group
		g.SetLimit(ws.cfg.Workers)
		for _, b := range pending {
			g.Go(func() error {
				splits.Add(int64(b.split(ws.bc, p)))
				return nil
			})
		}
		_ = g.Wait()
	}
	ws.dirty.Store(true)

	elapsed := time.Since(start)
	ws.logger.Debug("split pass",
		"candidates", len(pending),
		"splits", splits.Load(),
		"boxes", ws.bc.TotalNumBoxes(),
		"max_depth", ws.bc.MaxDepthReached(),
		"elapsed", elapsed)
	ws.metrics.observeSplitPass(int(splits.Load()), elapsed, ws.bc)
	return nil
}

// SplitBox splits the root once regardless of the threshold, so ingestion
// starts with splitInto^D leaves to spread lock contention over. Children
// above the threshold are split further as usual. It does nothing if the
// root is already split.
func (ws *Workspace[E]) SplitBox() error {
	if err := ws.beginPass("SplitBox"); err != nil {
		return err
	}
	defer ws.endPass()

	if !ws.root.isLeaf() {
		return nil
	}
	p := ws.bc.policy()
	ws.bc.lock()
	splits := ws.root.split(ws.bc, p)
	ws.dirty.Store(true)
	ws.metrics.observeSplitPass(splits, 0, ws.bc)
	return nil
}

// RefreshCache recomputes the cached signal, squared error, event count and
// centroid of every box, leaves first. Aggregate queries are valid after it
// returns until the next mutation.
func (ws *Workspace[E]) RefreshCache() error {
	if err := ws.beginPass("RefreshCache"); err != nil {
		return err
	}
	defer ws.endPass()
	ws.refreshLocked()
	return nil
}

func (ws *Workspace[E]) refreshLocked() {
	start := time.Now()
	refreshCacheParallel(ws.root, ws.cfg.Workers)
	ws.dirty.Store(false)
	ws.metrics.observeRefresh(time.Since(start))
}

// ClearEvents empties every leaf buffer to free memory. The tree shape and
// the controller's box counters are kept.
func (ws *Workspace[E]) ClearEvents() error {
	if err := ws.beginPass("ClearEvents"); err != nil {
		return err
	}
	defer ws.endPass()

	ws.root.walk(func(b *Box[E]) bool {
		b.events = nil
		return true
	})
	ws.bc.totalEvents.Store(0)
	ws.dirty.Store(true)
	return nil
}

// Stale reports whether the cached aggregates are out of date.
func (ws *Workspace[E]) Stale() bool { return ws.dirty.Load() }

// fresh makes sure the cache is valid for a query, refreshing it when
// AutoRefresh is set. Queries that find the cache stale at the same time
// share one refresh and all see its result.
func (ws *Workspace[E]) fresh() error {
	if !ws.dirty.Load() {
		return nil
	}
	if !ws.cfg.AutoRefresh {
		return ErrStaleCache
	}
	_, err, _ := ws.refreshes.Do("refresh", func() (any, error) {
		if !ws.dirty.Load() {
			return nil, nil
		}
		return nil, ws.RefreshCache()
	})
	return err
}

// TotalNumEvents returns the number of events in the tree as of the last
// refresh.
func (ws *Workspace[E]) TotalNumEvents() (uint64, error) {
	if err := ws.fresh(); err != nil {
		return 0, err
	}
	return ws.root.numEvents, nil
}

// TotalSignal returns the summed signal of all events.
func (ws *Workspace[E]) TotalSignal() (float64, error) {
	if err := ws.fresh(); err != nil {
		return 0, err
	}
	return ws.root.signal, nil
}

// TotalErrorSquared returns the summed squared error of all events.
func (ws *Workspace[E]) TotalErrorSquared() (float64, error) {
	if err := ws.fresh(); err != nil {
		return 0, err
	}
	return ws.root.errorSquared, nil
}

// Centroid returns the signal-weighted mean position of all events, or the
// workspace center when the total signal is zero.
func (ws *Workspace[E]) Centroid() ([]float64, error) {
	if err := ws.fresh(); err != nil {
		return nil, err
	}
	out := make([]float64, len(ws.root.centroid))
	copy(out, ws.root.centroid)
	return out, nil
}

// Walk visits every box in pre-order. Returning false from fn skips the
// children of the box just visited. Walk must not overlap a structural pass.
func (ws *Workspace[E]) Walk(fn func(BoxInfo) bool) {
	ws.root.walk(func(b *Box[E]) bool {
		return fn(b.info())
	})
}

// FindBox returns the leaf a point would be routed to, using the same rule
// as ingestion. It returns ErrOutOfBounds for points outside the workspace.
func (ws *Workspace[E]) FindBox(center []float64) (BoxInfo, error) {
	if !ws.root.contains(center) {
		return BoxInfo{}, fmt.Errorf("%w: %v", ErrOutOfBounds, center)
	}
	return ws.root.leafFor(center).info(), nil
}
