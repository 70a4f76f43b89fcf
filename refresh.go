package mdevents

import "gonum.org/v1/gonum/floats"

// refreshCache recomputes the cached aggregates of b and all of its
// descendants, leaves first.
func (b *Box[E]) refreshCache() {
	if b.isLeaf() {
		b.refreshLeaf()
		return
	}
	for _, c := range b.children {
		c.refreshCache()
	}
	b.aggregateChildren()
}

// refreshLeaf sums the leaf's own events. The centroid is the
// signal-weighted mean position; a box with no signal reports its geometric
// center.
func (b *Box[E]) refreshLeaf() {
	centroid := b.resetCentroid()
	var signal, errSq float64
	for _, e := range b.events {
		s := float64(e.Signal())
		signal += s
		errSq += float64(e.ErrorSquared())
		floats.AddScaled(centroid, s, e.Center())
	}
	b.numEvents = uint64(len(b.events))
	b.signal = signal
	b.errorSquared = errSq
	b.finishCentroid(centroid)
}

// aggregateChildren folds already-refreshed children into b, in child order
// so the result does not depend on how the children were refreshed.
func (b *Box[E]) aggregateChildren() {
	centroid := b.resetCentroid()
	var numEvents uint64
	var signal, errSq float64
	for _, c := range b.children {
		numEvents += c.numEvents
		signal += c.signal
		errSq += c.errorSquared
		if c.signal != 0 {
			floats.AddScaled(centroid, c.signal, c.centroid)
		}
	}
	b.numEvents = numEvents
	b.signal = signal
	b.errorSquared = errSq
	b.finishCentroid(centroid)
}

func (b *Box[E]) resetCentroid() []float64 {
	if len(b.centroid) != len(b.extents) {
		b.centroid = make([]float64, len(b.extents))
		return b.centroid
	}
	for i := range b.centroid {
		b.centroid[i] = 0
	}
	return b.centroid
}

func (b *Box[E]) finishCentroid(centroid []float64) {
	if b.signal == 0 {
		copy(centroid, b.center())
		return
	}
	floats.Scale(1/b.signal, centroid)
}
