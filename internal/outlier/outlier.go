package outlier

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/exampleco/sensorcube/internal/frame"
)

// Sigmas is the cutoff, in standard deviations from the mean, beyond which a
// value is an outlier.
const Sigmas = 3

// Bounds holds the statistics of a series and the derived cutoffs.
type Bounds struct {
	Mean   float64
	StdDev float64 // sample (n-1) standard deviation
	Lower  float64
	Upper  float64
	N      int // non-missing values the statistics were computed over
}

// ComputeBounds computes mean and sample standard deviation over the
// non-NaN values. With fewer than two values the deviation is zero.
func ComputeBounds(values []float64) Bounds {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	b := Bounds{N: len(present)}
	switch len(present) {
	case 0:
		b.Mean = math.NaN()
		return b
	case 1:
		b.Mean = present[0]
	default:
		b.Mean, b.StdDev = stat.MeanStdDev(present, nil)
	}
	cutoff := Sigmas * b.StdDev
	b.Lower = b.Mean - cutoff
	b.Upper = b.Mean + cutoff
	return b
}

// IsOutlier reports whether v lies strictly outside [Lower, Upper]. Missing
// values are never outliers, and nothing is flagged when the deviation is
// zero.
func (b Bounds) IsOutlier(v float64) bool {
	if math.IsNaN(v) || b.StdDev == 0 || math.IsNaN(b.StdDev) {
		return false
	}
	return v > b.Upper || v < b.Lower
}

// Mask returns a mask that is true where values[i] is an outlier.
func Mask(values []float64) []bool {
	b := ComputeBounds(values)
	mask := make([]bool, len(values))
	for i, v := range values {
		mask[i] = b.IsOutlier(v)
	}
	return mask
}

// Detect computes the outlier mask for the named column of f.
func Detect(f *frame.Frame, column string) ([]bool, error) {
	values, err := f.Float64s(column)
	if err != nil {
		return nil, err
	}
	return Mask(values), nil
}

type Result struct {
	Table   string
	Bounds  Bounds
	Flagged int
}

// Remove returns a copy of f whose column is float64 with every outlier
// replaced by NaN.
func Remove(f *frame.Frame, column string) (*frame.Frame, Result, error) {
	values, err := f.Float64s(column)
	if err != nil {
		return nil, Result{}, err
	}
	b := ComputeBounds(values)
	res := Result{Table: f.Name(), Bounds: b}
	for i, v := range values {
		if b.IsOutlier(v) {
			values[i] = math.NaN()
			res.Flagged++
		}
	}
	g, err := f.WithColumn(column, frame.Float64sToAny(values))
	if err != nil {
		return nil, Result{}, fmt.Errorf("failed to replace outliers: %w", err)
	}
	return g, res, nil
}
