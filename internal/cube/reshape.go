package cube

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/exampleco/sensorcube/internal/frame"
)

// Layout is the row order of a flat dataset.
type Layout int

const (
	// LayoutMachineMajor stores all time steps of machine 0, then machine 1,
	// and so on: row r is (t = r % T, m = r / T).
	LayoutMachineMajor Layout = iota
	// LayoutTimeMajor stores all machines of time step 0, then time step 1:
	// row r is (t = r / M, m = r % M).
	LayoutTimeMajor
)

func ParseLayout(s string) (Layout, error) {
	switch s {
	case "", "machine-major":
		return LayoutMachineMajor, nil
	case "time-major":
		return LayoutTimeMajor, nil
	}
	return 0, fmt.Errorf("invalid layout: %s", s)
}

func (l Layout) String() string {
	switch l {
	case LayoutMachineMajor:
		return "machine-major"
	case LayoutTimeMajor:
		return "time-major"
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

func (l Layout) cell(r, nt, nm int) (t, m int) {
	if l == LayoutTimeMajor {
		return r / nm, r % nm
	}
	return r % nt, r / nt
}

// Reshape turns a flat value column into a (times, machines) grid. The value
// count must be exactly times*machines.
func Reshape(values []float64, times, machines int, layout Layout) (*mat.Dense, error) {
	if times <= 0 || machines <= 0 {
		return nil, fmt.Errorf("%w: invalid grid %d x %d", ErrShapeMismatch, times, machines)
	}
	if len(values) != times*machines {
		return nil, fmt.Errorf("%w: have %d values, expected %d x %d = %d", ErrShapeMismatch, len(values), times, machines, times*machines)
	}
	data := slices.Clone(values)
	switch layout {
	case LayoutMachineMajor:
		return mat.DenseCopyOf(mat.NewDense(machines, times, data).T()), nil
	case LayoutTimeMajor:
		return mat.NewDense(times, machines, data), nil
	}
	return nil, fmt.Errorf("invalid layout: %s", layout)
}

// Stack stacks (T, M) grids along a third axis, returning the row-major
// (T, M, F) data and its shape.
func Stack(grids []*mat.Dense) ([]float64, [3]int, error) {
	if len(grids) == 0 {
		return nil, [3]int{}, fmt.Errorf("%w: no grids to stack", ErrShapeMismatch)
	}
	nt, nm := grids[0].Dims()
	nf := len(grids)
	data := make([]float64, nt*nm*nf)
	for f, g := range grids {
		r, c := g.Dims()
		if r != nt || c != nm {
			return nil, [3]int{}, fmt.Errorf("%w: grid %d is %d x %d, expected %d x %d", ErrShapeMismatch, f, r, c, nt, nm)
		}
		for t := range nt {
			for m := range nm {
				data[(t*nm+m)*nf+f] = g.At(t, m)
			}
		}
	}
	return data, [3]int{nt, nm, nf}, nil
}

// Assemble reshapes the value column of every dataset onto the grid given by
// coords and stacks them in dataset order into a labeled array.
func Assemble(datasets []frame.Named, coords Coordinates, valueColumn string, layout Layout) (*Array, error) {
	grids := make([]*mat.Dense, len(datasets))
	for i, ds := range datasets {
		values, err := ds.Frame.Float64s(valueColumn)
		if err != nil {
			return nil, err
		}
		g, err := Reshape(values, len(coords.Times), len(coords.Machines), layout)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", ds.Table, err)
		}
		grids[i] = g
	}
	data, shape, err := Stack(grids)
	if err != nil {
		return nil, err
	}
	return New(data, shape, coords)
}
