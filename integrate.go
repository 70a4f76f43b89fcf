package mdevents

import (
	"fmt"
	"math"
)

// IntegrateSphere sums the signal and squared error of every event within
// radius of center (inclusive). Boxes entirely outside the sphere are
// skipped, boxes entirely inside contribute their cached totals, and only
// leaves straddling the surface are scanned event by event.
//
// It reads cached aggregates and so follows the same staleness rules as
// TotalSignal.
func (ws *Workspace[E]) IntegrateSphere(center []float64, radius float64) (signal, errorSquared float64, err error) {
	if len(center) != len(ws.dims) {
		return 0, 0, fmt.Errorf("mdevents: IntegrateSphere center has %d coordinates, workspace has %d dimensions", len(center), len(ws.dims))
	}
	if radius < 0 || math.IsNaN(radius) {
		return 0, 0, fmt.Errorf("mdevents: IntegrateSphere radius must be >= 0, got %v", radius)
	}
	if err := ws.fresh(); err != nil {
		return 0, 0, err
	}
	r2 := radius * radius
	ws.root.integrateSphere(center, r2, &signal, &errorSquared)
	return signal, errorSquared, nil
}

func (b *Box[E]) integrateSphere(center []float64, r2 float64, signal, errSq *float64) {
	if minSqDistToBox(b.extents, center) > r2 {
		return
	}
	if maxSqDistToBox(b.extents, center) <= r2 {
		*signal += b.signal
		*errSq += b.errorSquared
		return
	}
	if b.isLeaf() {
		for _, e := range b.events {
			if euclideanSumOfSquares(e.Center(), center) <= r2 {
				*signal += float64(e.Signal())
				*errSq += float64(e.ErrorSquared())
			}
		}
		return
	}
	for _, c := range b.children {
		c.integrateSphere(center, r2, signal, errSq)
	}
}
