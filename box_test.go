package mdevents

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitOnce(t *testing.T, extents []Extent, splitInto uint32) *Box[LeanEvent] {
	t.Helper()
	bc, err := NewBoxController(splitInto, 1, 1)
	require.NoError(t, err)
	b := newBox[LeanEvent](bc.NextID(), 0, extents)
	bc.registerRoot()
	require.Equal(t, 1, b.split(bc, bc.policy()))
	return b
}

func TestIntervalEdges_ExactEnds(t *testing.T) {
	edges := intervalEdges(Extent{Min: -0.3, Max: 0.7}, 3)
	require.Len(t, edges, 4)
	assert.Equal(t, -0.3, edges[0])
	assert.Equal(t, 0.7, edges[3])
	for i := 1; i < len(edges); i++ {
		assert.Greater(t, edges[i], edges[i-1])
	}
}

func TestBox_Contains(t *testing.T) {
	b := newBox[LeanEvent](0, 0, []Extent{{0, 10}, {-5, 5}})

	assert.True(t, b.contains([]float64{0, -5}), "lower corner")
	assert.True(t, b.contains([]float64{10, 5}), "upper corner")
	assert.True(t, b.contains([]float64{3, 0}))
	assert.False(t, b.contains([]float64{-0.001, 0}))
	assert.False(t, b.contains([]float64{3, 5.5}))
	assert.False(t, b.contains([]float64{math.NaN(), 0}))
	assert.False(t, b.contains([]float64{3}), "wrong dimensionality")
}

func TestBox_ChildIndex_MidpointGoesUp(t *testing.T) {
	b := splitOnce(t, []Extent{{0, 100}}, 2)

	mid := b.children[b.childIndex([]float64{50})]
	assert.Equal(t, Extent{50, 100}, mid.extents[0])

	assert.Equal(t, 0, b.childIndex([]float64{0}))
	assert.Equal(t, 0, b.childIndex([]float64{49.999}))
	assert.Equal(t, 1, b.childIndex([]float64{100}), "upper bound belongs to the last child")
}

func TestBox_ChildIndex_FiveWay(t *testing.T) {
	b := splitOnce(t, []Extent{{0, 10}}, 5)

	tests := []struct {
		x    float64
		want int
	}{
		{0, 0}, {1.9, 0}, {2, 1}, {4, 2}, {5.5, 2}, {8, 4}, {10, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.childIndex([]float64{tt.x}), "x=%v", tt.x)
	}
}

func TestBox_ChildIndex_RowMajor(t *testing.T) {
	b := splitOnce(t, []Extent{{0, 10}, {0, 10}}, 2)
	require.Len(t, b.children, 4)

	// Dimension 0 varies fastest.
	assert.Equal(t, Extent{5, 10}, b.children[1].extents[0])
	assert.Equal(t, Extent{0, 5}, b.children[1].extents[1])
	assert.Equal(t, Extent{0, 5}, b.children[2].extents[0])
	assert.Equal(t, Extent{5, 10}, b.children[2].extents[1])

	assert.Equal(t, 1, b.childIndex([]float64{7, 2}))
	assert.Equal(t, 2, b.childIndex([]float64{2, 7}))
	assert.Equal(t, 3, b.childIndex([]float64{5, 5}))
}

func TestBox_LeafFor(t *testing.T) {
	ws := newTestWorkspace(t, cube(2, 0, 8), testConfig(2, 1, 3))
	ws.AddEvents([]LeanEvent{NewLeanEvent(1, 1, 1, 1), NewLeanEvent(1, 1, 1.5, 1.5)})
	require.NoError(t, ws.SplitAllIfNeeded())

	leaf := ws.root.leafFor([]float64{1.2, 1.2})
	assert.True(t, leaf.isLeaf())
	assert.True(t, leaf.contains([]float64{1.2, 1.2}))
	assert.Equal(t, uint32(3), leaf.depth)
}

func TestBox_Info(t *testing.T) {
	b := newBox[LeanEvent](7, 2, []Extent{{0, 1}})
	b.events = []LeanEvent{NewLeanEvent(2, 1, 0.25), NewLeanEvent(2, 1, 0.75)}
	b.refreshCache()

	info := b.info()
	assert.Equal(t, uint64(7), info.ID)
	assert.Equal(t, uint32(2), info.Depth)
	assert.True(t, info.IsLeaf)
	assert.Equal(t, 2, info.BufferedEvents)
	assert.Equal(t, uint64(2), info.NumEvents)
	assert.Equal(t, 4.0, info.Signal)
	assert.Equal(t, []float64{0.5}, info.Centroid)

	// The view is a copy.
	info.Extents[0].Max = 99
	assert.Equal(t, 1.0, b.extents[0].Max)
}

func TestBox_WalkSkipsChildren(t *testing.T) {
	b := splitOnce(t, []Extent{{0, 10}, {0, 10}}, 2)

	visited := 0
	b.walk(func(*Box[LeanEvent]) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)

	visited = 0
	b.walk(func(*Box[LeanEvent]) bool {
		visited++
		return true
	})
	assert.Equal(t, 5, visited)
}
