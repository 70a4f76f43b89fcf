package mdevents

import "sync"

// refreshCacheParallel refreshes the subtrees under root using multiple
// goroutines. Each worker handles a contiguous range of the root's children;
// the subtrees are disjoint so no synchronization is needed for writes. Falls
// back to the sequential refreshCache if numWorkers <= 1 or root is a leaf.
//
// The result is bitwise identical to refreshCache: the root folds its
// children in index order once every worker is done.
func refreshCacheParallel[E Event](root *Box[E], numWorkers int) {
	if numWorkers <= 1 || root.isLeaf() {
		root.refreshCache()
		return
	}

	children := root.children
	n := len(children)

	var wg sync.WaitGroup
	perWorker := (n + numWorkers - 1) / numWorkers

	for w := 0; w < numWorkers; w++ {
		start := w * perWorker
		end := start + perWorker
		if end > n {
			end = n
		}
		if start >= n {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				children[i].refreshCache()
			}
		}(start, end)
	}

	wg.Wait()
	root.aggregateChildren()
}
