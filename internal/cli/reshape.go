package cli

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/exampleco/sensorcube/internal/config"
	"github.com/exampleco/sensorcube/internal/cube"
	"github.com/exampleco/sensorcube/internal/logger"
	"github.com/exampleco/sensorcube/internal/metrics"
	"github.com/exampleco/sensorcube/internal/pipeline"
	"github.com/exampleco/sensorcube/internal/preview"
	"github.com/exampleco/sensorcube/internal/source"
)

type ReshapeCmd struct{}

func NewReshapeCmd() *ReshapeCmd {
	return &ReshapeCmd{}
}

func (c *ReshapeCmd) Command() *cobra.Command {
	defaults := config.Default()
	cmd := &cobra.Command{
		Use:   "reshape",
		Short: "Build the labeled array from the source and print a preview",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return fmt.Errorf("failed to get verbose flag: %w", err)
			}
			log := logger.New(cmd.ErrOrStderr(), verbose)

			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return c.run(cmd, log, cfg)
		},
	}

	cmd.Flags().String("timestamp-column", defaults.TimestampColumn, "column holding the sample time")
	cmd.Flags().String("machine-column", defaults.MachineColumn, "column holding the machine identifier")
	cmd.Flags().String("value-column", defaults.ValueColumn, "column holding the sensor value")
	cmd.Flags().Int("features", defaults.Features, "number of feature tables to label")
	cmd.Flags().Int("time-steps", defaults.TimeSteps, "expected number of time steps (0 derives it from the data)")
	cmd.Flags().Int("machines", defaults.Machines, "expected number of machines (0 derives it from the data)")
	cmd.Flags().String("layout", defaults.Layout, "row order of the feature tables (machine-major, time-major)")
	cmd.Flags().Int("preview-rows", defaults.PreviewRows, "number of time steps to preview (0 disables the preview)")
	cmd.Flags().String("metrics-push-url", "", "Prometheus Pushgateway URL to push run metrics to")

	return cmd
}

func (c *ReshapeCmd) run(cmd *cobra.Command, log *slog.Logger, cfg config.Config) error {
	ctx := cmd.Context()

	layout, err := cube.ParseLayout(cfg.Layout)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	runMetrics := metrics.NewRunMetrics(reg)
	if cfg.MetricsPushURL != "" {
		defer func() {
			if err := metrics.Push(cfg.MetricsPushURL, reg); err != nil {
				log.Warn("failed to push metrics", "error", err)
			}
		}()
	}

	src, err := source.Open(ctx, log, cfg.Source)
	if err != nil {
		runMetrics.RunErrors.WithLabelValues("open").Inc()
		log.Error("failed to open source", "source", source.Redact(cfg.Source), "error", err)
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn("failed to close source", "error", err)
		}
	}()

	p, err := pipeline.New(pipeline.Config{
		Logger:          log,
		Source:          src,
		TimestampColumn: cfg.TimestampColumn,
		MachineColumn:   cfg.MachineColumn,
		ValueColumn:     cfg.ValueColumn,
		Features:        cfg.Features,
		Layout:          layout,
		StaticTable:     cfg.StaticTable,
		TimeSteps:       cfg.TimeSteps,
		Machines:        cfg.Machines,
		Metrics:         runMetrics,
	})
	if err != nil {
		return err
	}

	res, err := p.Run(ctx)
	if err != nil {
		log.Error("failed to build array", "error", err)
		return err
	}
	for _, o := range res.Outliers {
		if o.Flagged > 0 {
			log.Info("replaced outliers", "table", o.Table, "count", o.Flagged, "lower", o.Bounds.Lower, "upper", o.Bounds.Upper)
		}
	}

	if cfg.PreviewRows == 0 {
		return nil
	}
	if err := preview.Write(cmd.OutOrStdout(), res.Array, cfg.PreviewRows); err != nil {
		return fmt.Errorf("failed to write preview: %w", err)
	}
	return nil
}
