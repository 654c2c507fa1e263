package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/exampleco/sensorcube/internal/cube"
	"github.com/exampleco/sensorcube/internal/epoch"
	"github.com/exampleco/sensorcube/internal/frame"
	"github.com/exampleco/sensorcube/internal/outlier"
	"github.com/exampleco/sensorcube/internal/source"
)

type Pipeline struct {
	log *slog.Logger
	cfg Config
}

type Result struct {
	Array    *cube.Array
	Tables   []string
	Outliers []outlier.Result
	Started  time.Time
	Duration time.Duration
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Pipeline{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Run loads every feature table from the source and assembles the labeled
// (time, machine, feature) array. It returns no partial result on failure.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := p.cfg.Clock.Now()

	res, stage, err := p.run(ctx)
	if err != nil {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.RunErrors.WithLabelValues(stage).Inc()
		}
		return nil, err
	}

	res.Started = start
	res.Duration = p.cfg.Clock.Since(start)
	if p.cfg.Metrics != nil {
		shape := res.Array.Shape()
		p.cfg.Metrics.RunDuration.Observe(res.Duration.Seconds())
		p.cfg.Metrics.ArrayCells.Set(float64(shape[0] * shape[1] * shape[2]))
		p.cfg.Metrics.LastSuccessEpoch.Set(float64(p.cfg.Clock.Now().Unix()))
	}
	p.log.Info("pipeline: assembled array", "shape", res.Array.Shape(), "features", res.Tables, "duration", res.Duration)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context) (*Result, string, error) {
	tables, err := p.cfg.Source.ListTables(ctx)
	if err != nil {
		return nil, "list", err
	}
	// Fail before reading anything when the source cannot label every feature.
	if len(tables) < p.cfg.Features+1 {
		return nil, "list", fmt.Errorf("%w: source has %d tables, need %d features plus a static table", cube.ErrUnderLabeled, len(tables), p.cfg.Features)
	}
	names, err := source.FeatureTables(tables, p.cfg.StaticTable)
	if err != nil {
		return nil, "list", err
	}
	p.log.Debug("pipeline: feature tables", "tables", names, "static", p.cfg.StaticTable)

	datasets, err := source.LoadTables(ctx, p.log, p.cfg.Source, names)
	if err != nil {
		return nil, "load", err
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.TablesLoaded.Add(float64(len(datasets)))
		for _, ds := range datasets {
			p.cfg.Metrics.RowsLoaded.Add(float64(ds.Frame.Len()))
		}
	}

	datasets, err = epoch.NormalizeAll(datasets, p.cfg.TimestampColumn)
	if err != nil {
		return nil, "normalize", err
	}

	datasets, outliers, err := p.removeOutliers(datasets)
	if err != nil {
		return nil, "outliers", err
	}

	coords, err := cube.BuildCoordinates(datasets, p.cfg.TimestampColumn, p.cfg.MachineColumn, p.cfg.Features)
	if err != nil {
		return nil, "coordinates", fmt.Errorf("failed to build coordinates: %w", err)
	}
	if err := p.checkGrid(coords); err != nil {
		return nil, "coordinates", err
	}
	if err := cube.CheckConsistency(datasets, coords, p.cfg.TimestampColumn, p.cfg.MachineColumn, p.cfg.Layout); err != nil {
		return nil, "coordinates", err
	}

	arr, err := cube.Assemble(datasets, coords, p.cfg.ValueColumn, p.cfg.Layout)
	if err != nil {
		return nil, "assemble", fmt.Errorf("failed to assemble array: %w", err)
	}

	return &Result{
		Array:    arr,
		Tables:   names,
		Outliers: outliers,
	}, "", nil
}

func (p *Pipeline) removeOutliers(datasets []frame.Named) ([]frame.Named, []outlier.Result, error) {
	out := make([]frame.Named, len(datasets))
	results := make([]outlier.Result, len(datasets))
	for i, ds := range datasets {
		f, res, err := outlier.Remove(ds.Frame, p.cfg.ValueColumn)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to remove outliers from %s: %w", ds.Table, err)
		}
		res.Table = ds.Table
		p.log.Debug("pipeline: removed outliers", "table", ds.Table, "flagged", res.Flagged,
			"mean", res.Bounds.Mean, "stddev", res.Bounds.StdDev, "lower", res.Bounds.Lower, "upper", res.Bounds.Upper)
		if p.cfg.Metrics != nil && res.Flagged > 0 {
			p.cfg.Metrics.OutliersFlagged.WithLabelValues(ds.Table).Add(float64(res.Flagged))
		}
		out[i] = frame.Named{Table: ds.Table, Frame: f}
		results[i] = res
	}
	return out, results, nil
}

func (p *Pipeline) checkGrid(coords cube.Coordinates) error {
	if p.cfg.TimeSteps > 0 && len(coords.Times) != p.cfg.TimeSteps {
		return fmt.Errorf("%w: source has %d time steps, expected %d", cube.ErrShapeMismatch, len(coords.Times), p.cfg.TimeSteps)
	}
	if p.cfg.Machines > 0 && len(coords.Machines) != p.cfg.Machines {
		return fmt.Errorf("%w: source has %d machines, expected %d", cube.ErrShapeMismatch, len(coords.Machines), p.cfg.Machines)
	}
	return nil
}
