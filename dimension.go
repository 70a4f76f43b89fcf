package mdevents

import (
	"fmt"
	"math"
)

// DefaultNumBins is the visual bin count given to dimensions that do not set one.
const DefaultNumBins = 10

// Dimension describes one axis of a workspace. Dimensions are fixed when the
// workspace is created.
type Dimension struct {
	Name  string
	Units string
	Min   float64
	Max   float64

	// NumBins is the number of bins a viewer should use along this axis.
	// It has no effect on splitting. 0 means DefaultNumBins.
	NumBins int
}

// NewDimension returns a Dimension with the default bin count.
func NewDimension(name, units string, min, max float64) Dimension {
	return Dimension{Name: name, Units: units, Min: min, Max: max, NumBins: DefaultNumBins}
}

func (d Dimension) validate(i int) error {
	if math.IsNaN(d.Min) || math.IsNaN(d.Max) || math.IsInf(d.Min, 0) || math.IsInf(d.Max, 0) {
		return fmt.Errorf("%w: dimension %d (%q) has non-finite bounds [%v, %v]", ErrConfiguration, i, d.Name, d.Min, d.Max)
	}
	if d.Min >= d.Max {
		return fmt.Errorf("%w: dimension %d (%q) must have Min < Max, got [%v, %v]", ErrConfiguration, i, d.Name, d.Min, d.Max)
	}
	if d.NumBins < 0 {
		return fmt.Errorf("%w: dimension %d (%q) has negative NumBins %d", ErrConfiguration, i, d.Name, d.NumBins)
	}
	return nil
}

func validateDimensions(dims []Dimension) error {
	if len(dims) == 0 {
		return fmt.Errorf("%w: at least one dimension is required", ErrConfiguration)
	}
	for i, d := range dims {
		if err := d.validate(i); err != nil {
			return err
		}
	}
	return nil
}

// sameDimension reports whether two dimensions describe the same axis.
// NumBins is a display hint and is not compared.
func sameDimension(a, b Dimension) bool {
	return a.Name == b.Name && a.Units == b.Units && a.Min == b.Min && a.Max == b.Max
}
