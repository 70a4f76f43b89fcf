package mdevents

// euclideanSumOfSquares is the squared Euclidean distance between a and b.
// Comparing squared distances against a squared radius skips the sqrt.
func euclideanSumOfSquares(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// minSqDistToBox returns the squared distance from point to the nearest
// point of the box, 0 if the point is inside.
func minSqDistToBox(extents []Extent, point []float64) float64 {
	var sum float64
	for j, ext := range extents {
		var d float64
		if point[j] < ext.Min {
			d = ext.Min - point[j]
		} else if point[j] > ext.Max {
			d = point[j] - ext.Max
		}
		sum += d * d
	}
	return sum
}

// maxSqDistToBox returns the squared distance from point to the farthest
// corner of the box.
func maxSqDistToBox(extents []Extent, point []float64) float64 {
	var sum float64
	for j, ext := range extents {
		d := max(point[j]-ext.Min, ext.Max-point[j])
		sum += d * d
	}
	return sum
}
