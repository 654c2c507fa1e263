package epoch

import (
	"fmt"
	"math"
	"time"

	"github.com/exampleco/sensorcube/internal/frame"
)

// ErrSchema is returned when the timestamp column is absent or not temporal.
var ErrSchema = frame.ErrSchema

var (
	minTime = time.Unix(0, math.MinInt64).UTC()
	maxTime = time.Unix(0, math.MaxInt64).UTC()
)

// FromTime converts t to nanoseconds since the Unix epoch. Instants that do
// not fit in an int64 are rejected rather than wrapped.
func FromTime(t time.Time) (int64, error) {
	if t.Before(minTime) || t.After(maxTime) {
		return 0, fmt.Errorf("timestamp %s outside representable range [%s, %s]", t.Format(time.RFC3339), minTime.Format(time.RFC3339), maxTime.Format(time.RFC3339))
	}
	return t.UnixNano(), nil
}

// ToTime is the inverse of FromTime.
func ToTime(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// Normalize returns a copy of f whose column holds int64 epoch nanoseconds in
// place of the native timestamps.
func Normalize(f *frame.Frame, column string) (*frame.Frame, error) {
	col, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(col))
	for i, v := range col {
		ts, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%w: table %s column %q row %d: %T is not a timestamp", ErrSchema, f.Name(), column, i, v)
		}
		n, err := FromTime(ts)
		if err != nil {
			return nil, fmt.Errorf("table %s column %q row %d: %w", f.Name(), column, i, err)
		}
		out[i] = n
	}
	return f.WithColumn(column, out)
}

// NormalizeAll applies Normalize to every dataset, preserving order.
func NormalizeAll(datasets []frame.Named, column string) ([]frame.Named, error) {
	out := make([]frame.Named, len(datasets))
	for i, ds := range datasets {
		f, err := Normalize(ds.Frame, column)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize timestamps: %w", err)
		}
		out[i] = frame.Named{Table: ds.Table, Frame: f}
	}
	return out, nil
}
