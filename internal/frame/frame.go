package frame

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

var (
	ErrSchema = errors.New("schema error")
)

// Frame is a rectangular, column-major dataset loaded from a single table.
// Column names and row order are preserved from the source. A Frame is never
// modified after construction; WithColumn returns a new Frame sharing the
// untouched columns.
type Frame struct {
	name    string
	columns []string
	data    [][]any
	rows    int
}

// Named pairs a loaded dataset with the table it came from. Pipelines carry a
// []Named so that load order, stacking order and feature labels cannot drift.
type Named struct {
	Table string
	Frame *Frame
}

func New(name string, columns []string, data [][]any) (*Frame, error) {
	if len(columns) != len(data) {
		return nil, fmt.Errorf("frame %s: %d column names for %d columns", name, len(columns), len(data))
	}
	seen := make(map[string]struct{}, len(columns))
	rows := -1
	for i, col := range columns {
		if _, ok := seen[col]; ok {
			return nil, fmt.Errorf("frame %s: duplicate column %q", name, col)
		}
		seen[col] = struct{}{}
		if rows == -1 {
			rows = len(data[i])
		} else if len(data[i]) != rows {
			return nil, fmt.Errorf("frame %s: column %q has %d rows, expected %d", name, col, len(data[i]), rows)
		}
	}
	if rows == -1 {
		rows = 0
	}
	return &Frame{
		name:    name,
		columns: slices.Clone(columns),
		data:    data,
		rows:    rows,
	}, nil
}

// FromRows builds a frame from row-major records, as scanned from sql.Rows.
func FromRows(name string, columns []string, records [][]any) (*Frame, error) {
	data := make([][]any, len(columns))
	for j := range data {
		data[j] = make([]any, len(records))
	}
	for i, rec := range records {
		if len(rec) != len(columns) {
			return nil, fmt.Errorf("frame %s: row %d has %d values, expected %d", name, i, len(rec), len(columns))
		}
		for j, v := range rec {
			data[j][i] = v
		}
	}
	return New(name, columns, data)
}

func (f *Frame) Name() string {
	return f.name
}

func (f *Frame) Columns() []string {
	return slices.Clone(f.columns)
}

func (f *Frame) Len() int {
	return f.rows
}

func (f *Frame) HasColumn(name string) bool {
	return slices.Contains(f.columns, name)
}

// Column returns a copy of the named column.
func (f *Frame) Column(name string) ([]any, error) {
	idx := slices.Index(f.columns, name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: table %s has no column %q", ErrSchema, f.name, name)
	}
	return slices.Clone(f.data[idx]), nil
}

// WithColumn returns a new frame where the named column is replaced by values.
// The column keeps its position.
func (f *Frame) WithColumn(name string, values []any) (*Frame, error) {
	idx := slices.Index(f.columns, name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: table %s has no column %q", ErrSchema, f.name, name)
	}
	if len(values) != f.rows {
		return nil, fmt.Errorf("table %s: column %q replacement has %d rows, expected %d", f.name, name, len(values), f.rows)
	}
	data := slices.Clone(f.data)
	data[idx] = values
	return &Frame{
		name:    f.name,
		columns: f.columns,
		data:    data,
		rows:    f.rows,
	}, nil
}

// Float64s returns the named column widened to float64. SQL NULLs become NaN.
func (f *Frame) Float64s(name string) ([]float64, error) {
	col, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(col))
	for i, v := range col {
		x, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("%w: table %s column %q row %d: %T is not numeric", ErrSchema, f.name, name, i, v)
		}
		out[i] = x
	}
	return out, nil
}

// Int64s returns the named column as int64. Only integer types are accepted.
func (f *Frame) Int64s(name string) ([]int64, error) {
	col, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(col))
	for i, v := range col {
		x, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("%w: table %s column %q row %d: %T is not an integer", ErrSchema, f.name, name, i, v)
		}
		out[i] = x
	}
	return out, nil
}

// Labels returns the named column rendered as strings, for use as coordinate
// labels. NULLs are rejected.
func (f *Frame) Labels(name string) ([]string, error) {
	col, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(col))
	for i, v := range col {
		switch x := v.(type) {
		case nil:
			return nil, fmt.Errorf("%w: table %s column %q row %d is null", ErrSchema, f.name, name, i)
		case string:
			out[i] = x
		case []byte:
			out[i] = string(x)
		case time.Time:
			out[i] = x.UTC().Format(time.RFC3339Nano)
		default:
			out[i] = fmt.Sprint(x)
		}
	}
	return out, nil
}

func Float64sToAny(values []float64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case uint:
		return float64(x), true
	case interface{ Float64() float64 }: // duckdb DECIMAL
		return x.Float64(), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}
