package mdevents

import (
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(splitInto uint32, threshold uint64, maxDepth uint32) Config {
	return Config{
		SplitInto:      splitInto,
		SplitThreshold: threshold,
		MaxDepth:       maxDepth,
		Workers:        1,
		Logger:         quietLogger(),
	}
}

func cube(dims int, min, max float64) []Dimension {
	names := []string{"Q_lab_x", "Q_lab_y", "Q_lab_z", "DeltaE"}
	out := make([]Dimension, dims)
	for i := range out {
		out[i] = NewDimension(names[i%len(names)], "Angstrom^-1", min, max)
	}
	return out
}

func newTestWorkspace(t *testing.T, dims []Dimension, cfg Config) *Workspace[LeanEvent] {
	t.Helper()
	ws, err := New[LeanEvent](dims, cfg)
	require.NoError(t, err)
	return ws
}

// randomEvents returns n events uniformly spread over [min, max)^dims with
// signal 1 and squared error 0.5.
func randomEvents(seed int64, n, dims int, min, max float64) []LeanEvent {
	rng := rand.New(rand.NewSource(seed))
	out := make([]LeanEvent, n)
	c := make([]float64, dims)
	for i := range out {
		for d := range c {
			c[d] = min + rng.Float64()*(max-min)
		}
		out[i] = NewLeanEvent(1, 0.5, c...)
	}
	return out
}

// checkTree verifies the structural invariants of ws: children tile their
// parent, depths increase by one, every buffered event lies in its leaf,
// internal boxes buffer nothing and the controller counters agree with the
// tree.
func checkTree(t *testing.T, ws *Workspace[LeanEvent]) {
	t.Helper()
	p := ws.bc.policy()
	var boxes, leaves, events uint64
	ws.root.walk(func(b *Box[LeanEvent]) bool {
		boxes++
		require.LessOrEqual(t, b.depth, p.maxDepth, "box %d too deep", b.id)
		if b.isLeaf() {
			leaves++
			events += uint64(len(b.events))
			for _, e := range b.events {
				require.True(t, b.contains(e.Center()), "box %d holds %v outside %v", b.id, e.Center(), b.extents)
				require.Same(t, b, ws.root.leafFor(e.Center()), "event %v is not in the leaf it routes to", e.Center())
			}
			return true
		}
		require.Empty(t, b.events, "internal box %d buffers events", b.id)
		require.Len(t, b.children, ipow(p.splitInto, len(b.extents)))

		volume := 1.0
		for _, ext := range b.extents {
			volume *= ext.Width()
		}
		var childVolume float64
		for _, c := range b.children {
			require.Equal(t, b.depth+1, c.depth)
			v := 1.0
			for d, ext := range c.extents {
				require.GreaterOrEqual(t, ext.Min, b.extents[d].Min)
				require.LessOrEqual(t, ext.Max, b.extents[d].Max)
				v *= ext.Width()
			}
			childVolume += v
		}
		require.InDelta(t, volume, childVolume, volume*1e-9, "children of box %d do not tile it", b.id)
		return true
	})
	require.Equal(t, ws.bc.TotalNumBoxes(), boxes)
	require.Equal(t, ws.bc.TotalNumLeafBoxes(), leaves)
	require.Equal(t, ws.bc.TotalNumEvents(), events)
}

// leafShape lists every leaf's extents and event count in pre-order, which
// is independent of box ids and of the order events arrived in.
type leafShape struct {
	Extents []Extent
	Events  int
}

func shapeOf(ws *Workspace[LeanEvent]) []leafShape {
	var out []leafShape
	ws.Walk(func(info BoxInfo) bool {
		if info.IsLeaf {
			out = append(out, leafShape{Extents: info.Extents, Events: info.BufferedEvents})
		}
		return true
	})
	return out
}
