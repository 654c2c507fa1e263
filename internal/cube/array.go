package cube

import (
	"fmt"
	"slices"
)

const (
	DimTime    = "time"
	DimMachine = "machine_id"
	DimFeature = "feature"
)

// Array is a dense (time, machine, feature) array of cleaned readings paired
// with its axis labels. Missing readings are NaN.
type Array struct {
	data   []float64
	shape  [3]int
	coords Coordinates
}

func New(data []float64, shape [3]int, coords Coordinates) (*Array, error) {
	if n := shape[0] * shape[1] * shape[2]; len(data) != n {
		return nil, fmt.Errorf("%w: have %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}
	if len(coords.Times) != shape[0] {
		return nil, fmt.Errorf("%w: %d %s labels for axis of length %d", ErrLabelMismatch, len(coords.Times), DimTime, shape[0])
	}
	if len(coords.Machines) != shape[1] {
		return nil, fmt.Errorf("%w: %d %s labels for axis of length %d", ErrLabelMismatch, len(coords.Machines), DimMachine, shape[1])
	}
	if len(coords.Features) != shape[2] {
		return nil, fmt.Errorf("%w: %d %s labels for axis of length %d", ErrLabelMismatch, len(coords.Features), DimFeature, shape[2])
	}
	return &Array{
		data:   slices.Clone(data),
		shape:  shape,
		coords: coords.Clone(),
	}, nil
}

func (a *Array) Dims() [3]string {
	return [3]string{DimTime, DimMachine, DimFeature}
}

func (a *Array) Shape() [3]int {
	return a.shape
}

func (a *Array) Coords() Coordinates {
	return a.coords.Clone()
}

// At returns the value at integer position (t, m, f). It panics when out of
// range, like slice indexing.
func (a *Array) At(t, m, f int) float64 {
	if t < 0 || t >= a.shape[0] || m < 0 || m >= a.shape[1] || f < 0 || f >= a.shape[2] {
		panic(fmt.Sprintf("cube: index (%d, %d, %d) out of range %v", t, m, f, a.shape))
	}
	return a.data[(t*a.shape[1]+m)*a.shape[2]+f]
}

// Sel returns the value at the given labels.
func (a *Array) Sel(time int64, machine, feature string) (float64, error) {
	t := slices.Index(a.coords.Times, time)
	if t < 0 {
		return 0, fmt.Errorf("no %s label %d", DimTime, time)
	}
	m := slices.Index(a.coords.Machines, machine)
	if m < 0 {
		return 0, fmt.Errorf("no %s label %q", DimMachine, machine)
	}
	f := slices.Index(a.coords.Features, feature)
	if f < 0 {
		return 0, fmt.Errorf("no %s label %q", DimFeature, feature)
	}
	return a.At(t, m, f), nil
}

// Series returns up to n leading time steps at machine m, feature f.
func (a *Array) Series(m, f, n int) []float64 {
	if n > a.shape[0] || n < 0 {
		n = a.shape[0]
	}
	out := make([]float64, n)
	for t := range n {
		out[t] = a.At(t, m, f)
	}
	return out
}
