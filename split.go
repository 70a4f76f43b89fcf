package mdevents

// intervalEdges cuts ext into n equal intervals. The first and last edges are
// exactly ext.Min and ext.Max so children tile their parent with no gap.
func intervalEdges(ext Extent, n int) []float64 {
	edges := make([]float64, n+1)
	w := ext.Width()
	for i := 0; i < n; i++ {
		edges[i] = ext.Min + w*float64(i)/float64(n)
	}
	edges[n] = ext.Max
	return edges
}

func ipow(base, exp int) int {
	result := 1
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// needsSplit reports whether b is a leaf over the threshold that may still
// be split without exceeding the maximum depth.
func (b *Box[E]) needsSplit(p splitPolicy) bool {
	return b.isLeaf() && uint64(len(b.events)) > p.splitThreshold && b.depth < p.maxDepth
}

// collectSplittable appends every leaf under b that needs splitting.
func (b *Box[E]) collectSplittable(p splitPolicy, out *[]*Box[E]) {
	b.walk(func(box *Box[E]) bool {
		if box.needsSplit(p) {
			*out = append(*out, box)
		}
		return true
	})
}

// split turns the leaf b into an internal box with splitInto^D fresh leaf
// children, moves its events into them, and immediately splits any child
// still over the threshold. A leaf at the maximum depth is never split, so
// the recursion is bounded even when every event sits on one point.
//
// Returns the number of boxes that were split, b included.
func (b *Box[E]) split(bc *BoxController, p splitPolicy) int {
	if !b.isLeaf() || b.depth >= p.maxDepth {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	n := p.splitInto
	dims := len(b.extents)

	edges := make([][]float64, dims)
	for d, ext := range b.extents {
		edges[d] = intervalEdges(ext, n)
	}

	numChildren := ipow(n, dims)
	children := make([]*Box[E], numChildren)
	for c := range children {
		extents := make([]Extent, dims)
		rem := c
		for d := 0; d < dims; d++ {
			i := rem % n
			rem /= n
			extents[d] = Extent{Min: edges[d][i], Max: edges[d][i+1]}
		}
		children[c] = newBox[E](bc.NextID(), b.depth+1, extents)
	}
	b.edges = edges

	// Size each child's buffer exactly before moving events.
	owner := make([]int, len(b.events))
	counts := make([]int, numChildren)
	for i, e := range b.events {
		c := b.childIndex(e.Center())
		owner[i] = c
		counts[c]++
	}
	for c, child := range children {
		if counts[c] > 0 {
			child.events = make([]E, 0, counts[c])
		}
	}
	for i, e := range b.events {
		children[owner[i]].events = append(children[owner[i]].events, e)
	}

	b.events = nil
	b.children = children
	bc.registerSplit(numChildren, b.depth+1)

	splits := 1
	for _, child := range children {
		if child.needsSplit(p) {
			splits += child.split(bc, p)
		}
	}
	return splits
}
