package pipeline

import (
	"errors"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/exampleco/sensorcube/internal/cube"
	"github.com/exampleco/sensorcube/internal/metrics"
	"github.com/exampleco/sensorcube/internal/source"
)

const (
	DefaultTimestampColumn = "timestamp"
	DefaultMachineColumn   = "machine"
	DefaultValueColumn     = "value"
	DefaultFeatures        = 4
)

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Source source.Source

	// Optional with defaults.
	TimestampColumn string
	MachineColumn   string
	ValueColumn     string
	Features        int
	Layout          cube.Layout

	// StaticTable names the table excluded from the features. When empty the
	// last table in name order is static.
	StaticTable string

	// TimeSteps and Machines, when non-zero, are the expected grid size. A
	// source deriving a different grid fails the run.
	TimeSteps int
	Machines  int

	// Metrics is optional.
	Metrics *metrics.RunMetrics
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Source == nil {
		return errors.New("source is required")
	}

	if c.TimestampColumn == "" {
		c.TimestampColumn = DefaultTimestampColumn
	}
	if c.MachineColumn == "" {
		c.MachineColumn = DefaultMachineColumn
	}
	if c.ValueColumn == "" {
		c.ValueColumn = DefaultValueColumn
	}
	if c.TimestampColumn == c.MachineColumn || c.TimestampColumn == c.ValueColumn || c.MachineColumn == c.ValueColumn {
		return errors.New("timestamp, machine and value columns must be distinct")
	}

	if c.Features == 0 {
		c.Features = DefaultFeatures
	}
	if c.Features <= 0 {
		return errors.New("features must be > 0")
	}

	if c.TimeSteps < 0 {
		return errors.New("time steps must be >= 0")
	}
	if c.Machines < 0 {
		return errors.New("machines must be >= 0")
	}
	if c.Layout != cube.LayoutMachineMajor && c.Layout != cube.LayoutTimeMajor {
		return errors.New("invalid layout")
	}

	return nil
}
