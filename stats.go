package mdevents

import "fmt"

// DepthStats counts the boxes and buffered events at one tree depth.
type DepthStats struct {
	Depth         uint32
	Boxes         uint64
	LeafBoxes     uint64
	InternalBoxes uint64
	Events        uint64
}

// String formats the stats as one diagnostic line.
func (s DepthStats) String() string {
	return fmt.Sprintf("depth %d: %d boxes (%d leaf, %d internal), %d events",
		s.Depth, s.Boxes, s.LeafBoxes, s.InternalBoxes, s.Events)
}

// DepthStats walks the tree and returns one entry per depth, root first.
// Event counts are taken from the leaf buffers and do not need a refresh.
// Like Walk, it reads leaves without their locks and must not overlap
// AddEvents or a structural pass.
func (ws *Workspace[E]) DepthStats() []DepthStats {
	var stats []DepthStats
	ws.root.walk(func(b *Box[E]) bool {
		for uint32(len(stats)) <= b.depth {
			stats = append(stats, DepthStats{Depth: uint32(len(stats))})
		}
		s := &stats[b.depth]
		s.Boxes++
		if b.isLeaf() {
			s.LeafBoxes++
			s.Events += uint64(len(b.events))
		} else {
			s.InternalBoxes++
		}
		return true
	})
	return stats
}

// BoxControllerStats returns one human-readable line per depth level, for
// logs and diagnostics. The format is not meant to be parsed. It has the same
// restrictions as DepthStats.
func (ws *Workspace[E]) BoxControllerStats() []string {
	stats := ws.DepthStats()
	lines := make([]string, len(stats))
	for i, s := range stats {
		lines[i] = s.String()
	}
	return lines
}
