package mdevents

import (
	"math"
	"testing"
)

const floatTol = 1e-10

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestEuclideanSumOfSquares(t *testing.T) {
	a := []float64{0, 0, 0}
	b := []float64{1, 2, 2}
	if d := euclideanSumOfSquares(a, b); d != 9 {
		t.Errorf("expected 9, got %v", d)
	}
	if d := euclideanSumOfSquares(b, b); d != 0 {
		t.Errorf("expected 0 for identical points, got %v", d)
	}
}

func TestMinSqDistToBox_Inside(t *testing.T) {
	extents := []Extent{{0, 10}, {0, 10}}
	if d := minSqDistToBox(extents, []float64{3, 7}); d != 0 {
		t.Errorf("expected 0 inside the box, got %v", d)
	}
	if d := minSqDistToBox(extents, []float64{10, 0}); d != 0 {
		t.Errorf("expected 0 on a corner, got %v", d)
	}
}

func TestMinSqDistToBox_Outside(t *testing.T) {
	extents := []Extent{{0, 10}, {0, 10}}
	// 3 to the left, 4 above: nearest point is the corner (0, 10).
	if d := minSqDistToBox(extents, []float64{-3, 14}); !almostEqual(d, 25, floatTol) {
		t.Errorf("expected 25, got %v", d)
	}
	// Directly below: only one dimension contributes.
	if d := minSqDistToBox(extents, []float64{5, -2}); !almostEqual(d, 4, floatTol) {
		t.Errorf("expected 4, got %v", d)
	}
}

func TestMaxSqDistToBox(t *testing.T) {
	extents := []Extent{{0, 10}, {0, 10}}
	// From the center the farthest corner is (5, 5) away.
	if d := maxSqDistToBox(extents, []float64{5, 5}); !almostEqual(d, 50, floatTol) {
		t.Errorf("expected 50, got %v", d)
	}
	// From the corner (0, 0) it is the opposite corner.
	if d := maxSqDistToBox(extents, []float64{0, 0}); !almostEqual(d, 200, floatTol) {
		t.Errorf("expected 200, got %v", d)
	}
}

func TestBoxDistances_Bracket(t *testing.T) {
	extents := []Extent{{-1, 2}, {3, 4}, {0, 0.5}}
	points := [][]float64{{0, 0, 0}, {5, 3.5, 0.25}, {-1, 3, 0}, {0.5, 3.5, 0.25}}
	for _, p := range points {
		lo, hi := minSqDistToBox(extents, p), maxSqDistToBox(extents, p)
		if lo > hi {
			t.Errorf("point %v: min %v > max %v", p, lo, hi)
		}
		// The box center lies between the two bounds.
		c := []float64{0.5, 3.5, 0.25}
		if d := euclideanSumOfSquares(p, c); d < lo-floatTol || d > hi+floatTol {
			t.Errorf("point %v: center distance %v outside [%v, %v]", p, d, lo, hi)
		}
	}
}
