package mdevents

import (
	"sort"
	"sync"
)

// Extent is the closed range [Min, Max] a box covers along one dimension.
type Extent struct {
	Min, Max float64
}

// Width returns Max - Min.
func (e Extent) Width() float64 { return e.Max - e.Min }

// Box is a node of the spatial tree. A leaf holds a buffer of events; an
// internal box holds splitInto^D children that tile its extents exactly.
//
// The children of an internal box are stored row-major over dimensions with
// dimension 0 varying fastest. Child extents are cut from per-dimension edge
// arrays, and routing searches the same arrays, so a coordinate always lands
// in exactly one child:
//   - every interval is closed-open [edge[i], edge[i+1])
//   - except the last one along each dimension, which also takes its upper edge
//
// A coordinate lying exactly on an interior edge therefore belongs to the
// child whose lower edge it is.
type Box[E Event] struct {
	id      uint64
	depth   uint32
	extents []Extent

	// mu guards events while workers append concurrently.
	mu     sync.Mutex
	events []E

	children []*Box[E]
	edges    [][]float64 // edges[d] has splitInto+1 entries; nil for leaves

	// Cached aggregates, valid after refreshCache.
	numEvents    uint64
	signal       float64
	errorSquared float64
	centroid     []float64
}

func newBox[E Event](id uint64, depth uint32, extents []Extent) *Box[E] {
	return &Box[E]{id: id, depth: depth, extents: extents}
}

func (b *Box[E]) isLeaf() bool { return b.children == nil }

// contains reports whether center lies inside the box's closed extents.
// NaN coordinates are never contained.
func (b *Box[E]) contains(center []float64) bool {
	if len(center) != len(b.extents) {
		return false
	}
	for d, ext := range b.extents {
		x := center[d]
		if !(x >= ext.Min && x <= ext.Max) {
			return false
		}
	}
	return true
}

// childIndex returns the index of the child owning center. center must lie
// within the box's extents.
func (b *Box[E]) childIndex(center []float64) int {
	idx := 0
	stride := 1
	for d, edges := range b.edges {
		n := len(edges) - 1
		x := center[d]
		// First interval whose upper edge is above x; x == max falls through
		// to the last interval.
		i := sort.Search(n-1, func(i int) bool { return edges[i+1] > x })
		idx += i * stride
		stride *= n
	}
	return idx
}

// leafFor walks from b down to the leaf owning center. center must lie within
// b's extents.
func (b *Box[E]) leafFor(center []float64) *Box[E] {
	cur := b
	for !cur.isLeaf() {
		cur = cur.children[cur.childIndex(center)]
	}
	return cur
}

func (b *Box[E]) appendEvent(e E) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func (b *Box[E]) appendEvents(es []E) {
	b.mu.Lock()
	b.events = append(b.events, es...)
	b.mu.Unlock()
}

// center returns the geometric center of the box.
func (b *Box[E]) center() []float64 {
	c := make([]float64, len(b.extents))
	for d, ext := range b.extents {
		c[d] = ext.Min + ext.Width()/2
	}
	return c
}

// BoxInfo is a read-only view of one box, handed out by Workspace.Walk and
// Workspace.FindBox.
type BoxInfo struct {
	ID      uint64
	Depth   uint32
	IsLeaf  bool
	Extents []Extent

	// NumChildren is 0 for leaves.
	NumChildren int

	// BufferedEvents is the live length of a leaf's event buffer; 0 for
	// internal boxes.
	BufferedEvents int

	// Cached aggregates, as of the last RefreshCache.
	NumEvents    uint64
	Signal       float64
	ErrorSquared float64
	Centroid     []float64
}

func (b *Box[E]) info() BoxInfo {
	extents := make([]Extent, len(b.extents))
	copy(extents, b.extents)
	var centroid []float64
	if b.centroid != nil {
		centroid = make([]float64, len(b.centroid))
		copy(centroid, b.centroid)
	}
	return BoxInfo{
		ID:             b.id,
		Depth:          b.depth,
		IsLeaf:         b.isLeaf(),
		Extents:        extents,
		NumChildren:    len(b.children),
		BufferedEvents: len(b.events),
		NumEvents:      b.numEvents,
		Signal:         b.signal,
		ErrorSquared:   b.errorSquared,
		Centroid:       centroid,
	}
}

// walk visits b and its descendants in pre-order. Returning false from fn
// skips the children of the box just visited.
func (b *Box[E]) walk(fn func(*Box[E]) bool) {
	if !fn(b) {
		return
	}
	for _, c := range b.children {
		c.walk(fn)
	}
}
