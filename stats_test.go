package mdevents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepthStats(t *testing.T) {
	ws := newTestWorkspace(t, cube(1, 0, 8), testConfig(2, 1, 2))
	ws.AddEvents([]LeanEvent{NewLeanEvent(1, 1, 1), NewLeanEvent(1, 1, 3), NewLeanEvent(1, 1, 7)})
	require.NoError(t, ws.SplitAllIfNeeded())

	stats := ws.DepthStats()
	require.Len(t, stats, 3)
	assert.Equal(t, DepthStats{Depth: 0, Boxes: 1, InternalBoxes: 1}, stats[0])
	assert.Equal(t, DepthStats{Depth: 1, Boxes: 2, LeafBoxes: 1, InternalBoxes: 1, Events: 1}, stats[1])
	assert.Equal(t, DepthStats{Depth: 2, Boxes: 2, LeafBoxes: 2, Events: 2}, stats[2])

	lines := ws.BoxControllerStats()
	require.Len(t, lines, 3)
	assert.Equal(t, "depth 1: 2 boxes (1 leaf, 1 internal), 1 events", lines[1])
}

func TestDepthStats_FreshWorkspace(t *testing.T) {
	ws := newTestWorkspace(t, cube(2, 0, 1), testConfig(2, 10, 2))
	assert.Equal(t, []string{"depth 0: 1 boxes (1 leaf, 0 internal), 0 events"}, ws.BoxControllerStats())
}
