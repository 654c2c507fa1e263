package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/exampleco/sensorcube/internal/cube"
	"github.com/exampleco/sensorcube/internal/frame"
	"github.com/exampleco/sensorcube/internal/metrics"
	"github.com/exampleco/sensorcube/internal/source"
)

var base = time.Date(2022, 1, 18, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func cellValue(f, t, m int) float64 {
	return float64(100*f+t) + 0.5*float64(m)
}

// gridFrame builds a machine-major dataset for feature f: all time steps of
// machine 10, then all of machine 11, and so on.
func gridFrame(t *testing.T, name string, f, nt, nm int) *frame.Frame {
	t.Helper()
	var records [][]any
	for m := range nm {
		for ti := range nt {
			records = append(records, []any{base.Add(time.Duration(ti) * time.Second), int64(10 + m), cellValue(f, ti, m)})
		}
	}
	fr, err := frame.FromRows(name, []string{"timestamp", "machine", "value"}, records)
	require.NoError(t, err)
	return fr
}

type fakeSource struct {
	tables  []string
	frames  map[string]*frame.Frame
	listErr error
	clock   *clockwork.FakeClock
	reads   []string
}

func (f *fakeSource) ListTables(context.Context) ([]string, error) {
	return f.tables, f.listErr
}

func (f *fakeSource) ReadTable(_ context.Context, name string) (*frame.Frame, error) {
	f.reads = append(f.reads, name)
	if f.clock != nil {
		f.clock.Advance(time.Second)
	}
	fr, ok := f.frames[name]
	if !ok {
		return nil, fmt.Errorf("%w: table %q does not exist", source.ErrDataAccess, name)
	}
	return fr, nil
}

func (f *fakeSource) Close() error { return nil }

func newFakeSource(t *testing.T, features []string, nt, nm int) *fakeSource {
	t.Helper()
	src := &fakeSource{frames: map[string]*frame.Frame{}}
	for i, name := range features {
		src.frames[name] = gridFrame(t, name, i, nt, nm)
	}
	src.tables = append(append([]string{}, features...), "z_static")
	src.frames["z_static"] = nil
	return src
}

func TestSensorcube_Pipeline_ConfigValidate(t *testing.T) {
	t.Parallel()

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Logger: testLogger(), Source: &fakeSource{}}
		require.NoError(t, cfg.Validate())
		require.NotNil(t, cfg.Clock)
		require.Equal(t, "timestamp", cfg.TimestampColumn)
		require.Equal(t, "machine", cfg.MachineColumn)
		require.Equal(t, "value", cfg.ValueColumn)
		require.Equal(t, 4, cfg.Features)
		require.Equal(t, cube.LayoutMachineMajor, cfg.Layout)
	})

	tests := []struct {
		name   string
		cfg    Config
		errMsg string
	}{
		{"missing logger", Config{Source: &fakeSource{}}, "logger is required"},
		{"missing source", Config{Logger: testLogger()}, "source is required"},
		{"negative features", Config{Logger: testLogger(), Source: &fakeSource{}, Features: -1}, "features must be > 0"},
		{"negative time steps", Config{Logger: testLogger(), Source: &fakeSource{}, TimeSteps: -1}, "time steps must be >= 0"},
		{"negative machines", Config{Logger: testLogger(), Source: &fakeSource{}, Machines: -3}, "machines must be >= 0"},
		{"shared column", Config{Logger: testLogger(), Source: &fakeSource{}, MachineColumn: "value"}, "must be distinct"},
		{"unknown layout", Config{Logger: testLogger(), Source: &fakeSource{}, Layout: cube.Layout(7)}, "invalid layout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSensorcube_Pipeline_Run(t *testing.T) {
	t.Parallel()

	features := []string{"a_temperature", "b_humidity", "c_pressure", "d_vibration"}

	t.Run("assembles labeled array", func(t *testing.T) {
		t.Parallel()
		clock := clockwork.NewFakeClock()
		src := newFakeSource(t, features, 6, 3)
		src.clock = clock
		reg := prometheus.NewRegistry()
		m := metrics.NewRunMetrics(reg)

		p, err := New(Config{Logger: testLogger(), Clock: clock, Source: src, Metrics: m})
		require.NoError(t, err)
		res, err := p.Run(context.Background())
		require.NoError(t, err)

		require.Equal(t, features, src.reads)
		require.Equal(t, features, res.Tables)
		require.Equal(t, [3]int{6, 3, 4}, res.Array.Shape())
		require.Equal(t, [3]string{"time", "machine_id", "feature"}, res.Array.Dims())
		require.Equal(t, 4*time.Second, res.Duration)

		coords := res.Array.Coords()
		require.Equal(t, []string{"10", "11", "12"}, coords.Machines)
		require.Equal(t, features, coords.Features)
		require.Len(t, coords.Times, 6)
		require.Equal(t, base.UnixNano(), coords.Times[0])
		require.Equal(t, base.Add(5*time.Second).UnixNano(), coords.Times[5])

		for ti := range 6 {
			for mi := range 3 {
				for f := range 4 {
					require.Equal(t, cellValue(f, ti, mi), res.Array.At(ti, mi, f), "cell [%d,%d,%d]", ti, mi, f)
				}
			}
		}

		require.Len(t, res.Outliers, 4)
		for _, o := range res.Outliers {
			require.Zero(t, o.Flagged)
		}
		require.Equal(t, 4.0, testutil.ToFloat64(m.TablesLoaded))
		require.Equal(t, 72.0, testutil.ToFloat64(m.RowsLoaded))
		require.Equal(t, 72.0, testutil.ToFloat64(m.ArrayCells))
	})

	t.Run("named static table is skipped", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(t, features, 4, 2)
		src.tables = append([]string{"0_machines"}, features...)
		src.frames["0_machines"] = nil

		p, err := New(Config{Logger: testLogger(), Source: src, StaticTable: "0_machines"})
		require.NoError(t, err)
		res, err := p.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, features, res.Tables)
	})

	t.Run("too few tables fails before loading", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(t, features[:3], 4, 2)
		reg := prometheus.NewRegistry()
		m := metrics.NewRunMetrics(reg)

		p, err := New(Config{Logger: testLogger(), Source: src, Metrics: m})
		require.NoError(t, err)
		res, err := p.Run(context.Background())
		require.ErrorIs(t, err, cube.ErrUnderLabeled)
		require.Nil(t, res)
		require.Empty(t, src.reads)
		require.Equal(t, 1.0, testutil.ToFloat64(m.RunErrors.WithLabelValues("list")))
	})

	t.Run("extra feature tables have no label", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(t, append(append([]string{}, features...), "e_current"), 4, 2)

		p, err := New(Config{Logger: testLogger(), Source: src})
		require.NoError(t, err)
		_, err = p.Run(context.Background())
		require.ErrorIs(t, err, cube.ErrLabelMismatch)
	})

	t.Run("list failure is returned", func(t *testing.T) {
		t.Parallel()
		src := &fakeSource{listErr: fmt.Errorf("%w: connection refused", source.ErrDataAccess)}

		p, err := New(Config{Logger: testLogger(), Source: src})
		require.NoError(t, err)
		_, err = p.Run(context.Background())
		require.ErrorIs(t, err, source.ErrDataAccess)
	})

	t.Run("missing timestamp column is a schema error", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(t, features, 4, 2)

		p, err := New(Config{Logger: testLogger(), Source: src, TimestampColumn: "ts"})
		require.NoError(t, err)
		_, err = p.Run(context.Background())
		require.ErrorIs(t, err, frame.ErrSchema)
	})

	t.Run("unexpected grid size", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(t, features, 4, 2)

		p, err := New(Config{Logger: testLogger(), Source: src, TimeSteps: 3000, Machines: 20})
		require.NoError(t, err)
		_, err = p.Run(context.Background())
		require.ErrorIs(t, err, cube.ErrShapeMismatch)
	})

	t.Run("datasets on different grids", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(t, features, 4, 2)
		src.frames["c_pressure"] = gridFrame(t, "c_pressure", 2, 2, 4)

		p, err := New(Config{Logger: testLogger(), Source: src})
		require.NoError(t, err)
		_, err = p.Run(context.Background())
		require.ErrorIs(t, err, cube.ErrInconsistent)
	})

	t.Run("short dataset", func(t *testing.T) {
		t.Parallel()
		src := newFakeSource(t, features, 4, 2)
		src.frames["b_humidity"] = gridFrame(t, "b_humidity", 1, 3, 2)

		p, err := New(Config{Logger: testLogger(), Source: src})
		require.NoError(t, err)
		_, err = p.Run(context.Background())
		require.ErrorIs(t, err, cube.ErrShapeMismatch)
	})
}

// writeSensorDB writes four feature tables and one static table on an
// nt x nm grid in machine-major row order.
func writeSensorDB(t *testing.T, path string, features []string, nt, nm int, override func(f, ti, m int) (float64, bool)) {
	t.Helper()
	db, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	defer db.Close()

	for f, name := range features {
		_, err := db.Exec(fmt.Sprintf(`CREATE TABLE %s (timestamp TIMESTAMP, machine BIGINT, value DOUBLE)`, name))
		require.NoError(t, err)

		var rows []string
		for m := range nm {
			for ti := range nt {
				v := cellValue(f, ti, m)
				if override != nil {
					if o, ok := override(f, ti, m); ok {
						v = o
					}
				}
				ts := base.Add(time.Duration(ti) * time.Second).Format("2006-01-02 15:04:05")
				rows = append(rows, fmt.Sprintf("('%s', %d, %v)", ts, 10+m, v))
			}
		}
		_, err = db.Exec(fmt.Sprintf("INSERT INTO %s VALUES %s", name, strings.Join(rows, ", ")))
		require.NoError(t, err)
	}

	_, err = db.Exec(`CREATE TABLE z_static (machine BIGINT, model VARCHAR)`)
	require.NoError(t, err)
}

func TestSensorcube_Pipeline_EndToEndDuckDB(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	const nt, nm = 40, 2
	features := []string{"a_temperature", "b_humidity", "c_pressure", "d_vibration"}
	path := filepath.Join(t.TempDir(), "sensors.duckdb")
	writeSensorDB(t, path, features, nt, nm, func(f, ti, m int) (float64, bool) {
		return 1e6, f == 0 && ti == 0 && m == 0
	})

	src, err := source.Open(ctx, testLogger(), path)
	require.NoError(t, err)
	defer src.Close()

	p, err := New(Config{Logger: testLogger(), Source: src, TimeSteps: nt, Machines: nm})
	require.NoError(t, err)
	res, err := p.Run(ctx)
	require.NoError(t, err)

	require.Equal(t, [3]int{nt, nm, 4}, res.Array.Shape())
	require.Equal(t, features, res.Array.Coords().Features)
	require.Equal(t, []string{"10", "11"}, res.Array.Coords().Machines)

	require.Equal(t, 1, res.Outliers[0].Flagged)
	for _, o := range res.Outliers[1:] {
		require.Zero(t, o.Flagged)
	}

	for ti := range nt {
		for m := range nm {
			for f := range 4 {
				got := res.Array.At(ti, m, f)
				if f == 0 && ti == 0 && m == 0 {
					require.True(t, math.IsNaN(got), "injected outlier should be NaN")
					continue
				}
				require.Equal(t, cellValue(f, ti, m), got, "cell [%d,%d,%d]", ti, m, f)
			}
		}
	}

	v, err := res.Array.Sel(base.Add(3*time.Second).UnixNano(), "11", "c_pressure")
	require.NoError(t, err)
	require.Equal(t, cellValue(2, 3, 1), v)
}

func TestSensorcube_Pipeline_EndToEndTooFewTables(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "sensors.duckdb")
	writeSensorDB(t, path, []string{"a_temperature", "b_humidity", "c_pressure"}, 4, 2, nil)

	src, err := source.Open(ctx, testLogger(), path)
	require.NoError(t, err)
	defer src.Close()

	p, err := New(Config{Logger: testLogger(), Source: src})
	require.NoError(t, err)
	res, err := p.Run(ctx)
	require.True(t, errors.Is(err, cube.ErrUnderLabeled))
	require.Nil(t, res)
}
