package mdevents

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Snapshot is a complete copy of a workspace's structure and events, in a
// form a storage layer can write out and Restore can rebuild from.
type Snapshot[E Event] struct {
	ID             uuid.UUID
	Dimensions     []Dimension
	SplitInto      uint32
	SplitThreshold uint64
	MaxDepth       uint32
	NextID         uint64
	Locked         bool
	RejectedEvents uint64

	// Boxes lists every box in pre-order. A box is followed by the full
	// subtrees of its NumChildren children.
	Boxes []BoxRecord[E]
}

// BoxRecord is one box of a Snapshot.
type BoxRecord[E Event] struct {
	ID          uint64
	Depth       uint32
	Extents     []Extent
	NumChildren int

	// Events is nil for internal boxes. It shares storage with the
	// workspace; treat it as read-only.
	Events []E
}

// Snapshot captures the workspace. It is a structural pass and must not
// overlap ingestion.
func (ws *Workspace[E]) Snapshot() (*Snapshot[E], error) {
	if err := ws.beginPass("Snapshot"); err != nil {
		return nil, err
	}
	defer ws.endPass()

	p := ws.bc.policy()
	snap := &Snapshot[E]{
		ID:             ws.id,
		Dimensions:     ws.Dimensions(),
		SplitInto:      uint32(p.splitInto),
		SplitThreshold: p.splitThreshold,
		MaxDepth:       p.maxDepth,
		NextID:         ws.bc.nextID.Load(),
		Locked:         ws.bc.Locked(),
		RejectedEvents: ws.bc.RejectedEvents(),
		Boxes:          make([]BoxRecord[E], 0, ws.bc.TotalNumBoxes()),
	}
	ws.root.walk(func(b *Box[E]) bool {
		extents := make([]Extent, len(b.extents))
		copy(extents, b.extents)
		snap.Boxes = append(snap.Boxes, BoxRecord[E]{
			ID:          b.id,
			Depth:       b.depth,
			Extents:     extents,
			NumChildren: len(b.children),
			Events:      b.events,
		})
		return true
	})
	return snap, nil
}

// Restore rebuilds a workspace from a snapshot. The split policy, id and
// next box id come from the snapshot; cfg supplies only the ambient
// settings (Workers, AutoRefresh, Logger, Metrics). The restored cache is
// refreshed before Restore returns.
func Restore[E Event](snap *Snapshot[E], cfg Config) (*Workspace[E], error) {
	if len(snap.Boxes) == 0 {
		return nil, fmt.Errorf("mdevents: snapshot %s has no boxes", snap.ID)
	}
	cfg.SplitInto = snap.SplitInto
	cfg.SplitThreshold = snap.SplitThreshold
	cfg.MaxDepth = snap.MaxDepth
	cfg.ID = snap.ID

	ws, err := New[E](snap.Dimensions, cfg)
	if err != nil {
		return nil, err
	}
	bc := ws.bc
	// Discard the root New registered; the counters are rebuilt below.
	bc.totalBoxes.Store(0)
	bc.totalLeafBoxes.Store(0)

	for d, ext := range snap.Boxes[0].Extents {
		if d < len(snap.Dimensions) && (ext.Min != snap.Dimensions[d].Min || ext.Max != snap.Dimensions[d].Max) {
			return nil, fmt.Errorf("mdevents: root extent %d is [%v, %v], dimension is [%v, %v]",
				d, ext.Min, ext.Max, snap.Dimensions[d].Min, snap.Dimensions[d].Max)
		}
	}

	r := &restorer[E]{
		snap:   snap,
		bc:     bc,
		fanOut: int(snap.SplitInto),
		dims:   len(snap.Dimensions),
		seen:   make(map[uint64]struct{}, len(snap.Boxes)),
	}
	root, err := r.box(0)
	if err != nil {
		return nil, err
	}
	if r.next != len(snap.Boxes) {
		return nil, fmt.Errorf("mdevents: snapshot has %d trailing boxes", len(snap.Boxes)-r.next)
	}
	if r.maxID >= snap.NextID {
		return nil, fmt.Errorf("mdevents: snapshot box id %d is not below next id %d", r.maxID, snap.NextID)
	}

	ws.root = root
	bc.nextID.Store(snap.NextID)
	bc.rejectedEvents.Store(snap.RejectedEvents)
	bc.totalEvents.Store(r.events)
	if snap.Locked {
		bc.lock()
	}
	ws.refreshLocked()
	ws.metrics.observeShape(bc)
	return ws, nil
}

type restorer[E Event] struct {
	snap   *Snapshot[E]
	bc     *BoxController
	fanOut int
	dims   int
	next   int
	maxID  uint64
	events uint64
	seen   map[uint64]struct{}
}

func (r *restorer[E]) box(depth uint32) (*Box[E], error) {
	if r.next >= len(r.snap.Boxes) {
		return nil, fmt.Errorf("mdevents: snapshot ends before box %d", r.next)
	}
	rec := r.snap.Boxes[r.next]
	r.next++

	if rec.Depth != depth {
		return nil, fmt.Errorf("mdevents: box %d has depth %d, expected %d", rec.ID, rec.Depth, depth)
	}
	if len(rec.Extents) != r.dims {
		return nil, fmt.Errorf("mdevents: box %d has %d extents, expected %d", rec.ID, len(rec.Extents), r.dims)
	}
	if _, dup := r.seen[rec.ID]; dup {
		return nil, fmt.Errorf("mdevents: box id %d appears twice", rec.ID)
	}
	r.seen[rec.ID] = struct{}{}
	r.maxID = max(r.maxID, rec.ID)
	b := newBox[E](rec.ID, rec.Depth, rec.Extents)
	r.bc.totalBoxes.Add(1)

	if rec.NumChildren == 0 {
		for _, e := range rec.Events {
			if !b.contains(e.Center()) {
				return nil, fmt.Errorf("mdevents: box %d holds an event outside its extents at %v", rec.ID, e.Center())
			}
		}
		// Clipped so later appends reallocate instead of writing into the
		// snapshot's storage.
		b.events = slices.Clip(rec.Events)
		r.events += uint64(len(rec.Events))
		r.bc.totalLeafBoxes.Add(1)
		return b, nil
	}

	if want := ipow(r.fanOut, r.dims); rec.NumChildren != want {
		return nil, fmt.Errorf("mdevents: box %d has %d children, expected %d", rec.ID, rec.NumChildren, want)
	}
	if len(rec.Events) > 0 {
		return nil, fmt.Errorf("mdevents: internal box %d holds %d events", rec.ID, len(rec.Events))
	}
	children := make([]*Box[E], rec.NumChildren)
	for i := range children {
		c, err := r.box(depth + 1)
		if err != nil {
			return nil, err
		}
		children[i] = c
	}
	edges := edgesFromChildren(children, r.fanOut, r.dims)
	if err := checkTiling(b, children, edges, r.fanOut); err != nil {
		return nil, err
	}
	b.children = children
	b.edges = edges
	r.bc.noteDepth(depth + 1)
	return b, nil
}

// checkTiling verifies that the row-major children of b lie exactly on the
// edge grid and that the grid spans b with strictly increasing edges.
func checkTiling[E Event](b *Box[E], children []*Box[E], edges [][]float64, n int) error {
	for d, e := range edges {
		if e[0] != b.extents[d].Min || e[n] != b.extents[d].Max {
			return fmt.Errorf("mdevents: children of box %d span [%v, %v] in dimension %d, box spans [%v, %v]",
				b.id, e[0], e[n], d, b.extents[d].Min, b.extents[d].Max)
		}
		for i := 1; i <= n; i++ {
			if !(e[i] > e[i-1]) {
				return fmt.Errorf("mdevents: children of box %d have non-increasing edges in dimension %d: %v", b.id, d, e)
			}
		}
	}
	for c, child := range children {
		rem := c
		for d := range edges {
			i := rem % n
			rem /= n
			want := Extent{Min: edges[d][i], Max: edges[d][i+1]}
			if child.extents[d] != want {
				return fmt.Errorf("mdevents: child %d of box %d spans [%v, %v] in dimension %d, expected [%v, %v]",
					child.id, b.id, child.extents[d].Min, child.extents[d].Max, d, want.Min, want.Max)
			}
		}
	}
	return nil
}

// edgesFromChildren recovers the per-dimension edge arrays of an internal
// box from its row-major children.
func edgesFromChildren[E Event](children []*Box[E], n, dims int) [][]float64 {
	edges := make([][]float64, dims)
	stride := 1
	for d := 0; d < dims; d++ {
		e := make([]float64, n+1)
		for i := 0; i < n; i++ {
			e[i] = children[i*stride].extents[d].Min
		}
		e[n] = children[(n-1)*stride].extents[d].Max
		edges[d] = e
		stride *= n
	}
	return edges
}
