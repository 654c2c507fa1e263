package cube

import (
	"errors"
	"fmt"
	"slices"

	"github.com/exampleco/sensorcube/internal/frame"
)

var (
	ErrUnderLabeled  = errors.New("not enough feature tables")
	ErrInconsistent  = errors.New("datasets do not share a common time/machine grid")
	ErrLabelMismatch = errors.New("coordinate labels do not match array shape")
	ErrShapeMismatch = errors.New("row count does not match time steps x machines")
)

// Coordinates holds the labels for the time, machine and feature axes.
type Coordinates struct {
	Times    []int64
	Machines []string
	Features []string
}

func (c Coordinates) Clone() Coordinates {
	return Coordinates{
		Times:    slices.Clone(c.Times),
		Machines: slices.Clone(c.Machines),
		Features: slices.Clone(c.Features),
	}
}

// BuildCoordinates derives the axis labels. Times and machines are the
// distinct values of the first dataset in first-occurrence order; features
// are the first n table names in load order.
func BuildCoordinates(datasets []frame.Named, timeColumn, machineColumn string, n int) (Coordinates, error) {
	if n <= 0 {
		return Coordinates{}, fmt.Errorf("feature count must be > 0, got %d", n)
	}
	if len(datasets) < n {
		return Coordinates{}, fmt.Errorf("%w: have %d, need %d", ErrUnderLabeled, len(datasets), n)
	}

	first := datasets[0].Frame
	times, err := first.Int64s(timeColumn)
	if err != nil {
		return Coordinates{}, fmt.Errorf("failed to read time coordinates: %w", err)
	}
	machines, err := first.Labels(machineColumn)
	if err != nil {
		return Coordinates{}, fmt.Errorf("failed to read machine coordinates: %w", err)
	}

	features := make([]string, n)
	for i := range n {
		features[i] = datasets[i].Table
	}

	return Coordinates{
		Times:    unique(times),
		Machines: unique(machines),
		Features: features,
	}, nil
}

// CheckConsistency verifies that every row of every dataset carries the time
// and machine labels of the cell its value is reshaped into. A failure means
// the datasets do not share the grid described by coords.
func CheckConsistency(datasets []frame.Named, coords Coordinates, timeColumn, machineColumn string, layout Layout) error {
	nt, nm := len(coords.Times), len(coords.Machines)
	for _, ds := range datasets {
		times, err := ds.Frame.Int64s(timeColumn)
		if err != nil {
			return err
		}
		machines, err := ds.Frame.Labels(machineColumn)
		if err != nil {
			return err
		}
		if len(times) != nt*nm {
			return fmt.Errorf("%w: table %s has %d rows, expected %d x %d = %d", ErrShapeMismatch, ds.Table, len(times), nt, nm, nt*nm)
		}
		for r := range times {
			t, m := layout.cell(r, nt, nm)
			if times[r] != coords.Times[t] {
				return fmt.Errorf("%w: table %s row %d has time %d, expected %d", ErrInconsistent, ds.Table, r, times[r], coords.Times[t])
			}
			if machines[r] != coords.Machines[m] {
				return fmt.Errorf("%w: table %s row %d has machine %q, expected %q", ErrInconsistent, ds.Table, r, machines[r], coords.Machines[m])
			}
		}
	}
	return nil
}

func unique[T comparable](xs []T) []T {
	seen := make(map[T]struct{}, len(xs))
	out := make([]T, 0)
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}
