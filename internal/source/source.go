package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/exampleco/sensorcube/internal/frame"
)

var (
	ErrDataAccess = errors.New("data access error")
)

// Source is a queryable tabular store. It is owned by a single run and
// released with Close when the run ends.
type Source interface {
	ListTables(ctx context.Context) ([]string, error)
	ReadTable(ctx context.Context, name string) (*frame.Frame, error)
	Close() error
}

// FeatureTables returns every table except the static one, in source order.
// When static is empty the last table is treated as static.
func FeatureTables(tables []string, static string) ([]string, error) {
	if len(tables) == 0 {
		return nil, nil
	}
	if static == "" {
		return slices.Clone(tables[:len(tables)-1]), nil
	}
	idx := slices.Index(tables, static)
	if idx < 0 {
		return nil, fmt.Errorf("%w: static table %q not found", ErrDataAccess, static)
	}
	return slices.Delete(slices.Clone(tables), idx, idx+1), nil
}

// LoadTables reads each named table fully, keeping the given order.
func LoadTables(ctx context.Context, log *slog.Logger, src Source, names []string) ([]frame.Named, error) {
	out := make([]frame.Named, 0, len(names))
	for _, name := range names {
		f, err := src.ReadTable(ctx, name)
		if err != nil {
			return nil, err
		}
		log.Debug("source: loaded table", "table", name, "rows", f.Len(), "columns", f.Columns())
		out = append(out, frame.Named{Table: name, Frame: f})
	}
	return out, nil
}
