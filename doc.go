// Package mdevents stores large numbers of weighted point events in a
// D-dimensional space, organised as an adaptive tree of boxes.
//
// A Workspace starts as a single root box spanning the extents of its
// dimensions. Events are routed to the leaf that contains them; when a leaf
// holds more than the split threshold, a split pass cuts it into
// SplitInto^D equal children and moves its events down. Internal boxes cache
// the summed signal, squared error, event count and signal-weighted centroid
// of their subtree, which RefreshCache recomputes leaves first.
//
// Basic usage:
//
//	dims := []mdevents.Dimension{
//		mdevents.NewDimension("Q_lab_x", "Angstrom^-1", -10, 10),
//		mdevents.NewDimension("Q_lab_y", "Angstrom^-1", -10, 10),
//		mdevents.NewDimension("Q_lab_z", "Angstrom^-1", -10, 10),
//	}
//	ws, err := mdevents.New[mdevents.LeanEvent](dims, mdevents.DefaultConfig())
//	added, rejected, err := ws.AddEvents(batch)
//	err = ws.SplitAllIfNeeded()
//	err = ws.RefreshCache()
//	signal, err := ws.TotalSignal()
//
// # Concurrency
//
// AddEvents is safe to call from many goroutines. Split, refresh, clear and
// snapshot passes are not; a caller alternates phases of concurrent adds
// with single structural passes. Ingest runs that loop for a list of tasks:
// it submits tasks to a worker pool, largest first, and pauses for a split
// pass whenever the BoxController's ShouldSplitBoxes gate opens.
//
// # Boundaries
//
// Each child covers the closed-open range [min, max) along every dimension,
// except that the last child along a dimension also includes its max. A
// point on an interior edge belongs to the child whose min it is. Points
// outside the root box are rejected and counted, never added.
//
// # Persistence
//
// Snapshot and Restore capture a workspace and rebuild it exactly. The store
// subpackage writes snapshots to BadgerDB.
package mdevents
