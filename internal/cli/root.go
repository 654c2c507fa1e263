package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/exampleco/sensorcube/internal/config"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func Run() ExitCode {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := NewRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "sensorcube",
		Short:        "Reshape per-feature sensor tables into a labeled (time, machine, feature) array.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "set debug logging level")
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringP("source", "s", "", "source URI (duckdb://, sqlite://, postgres://, clickhouse://, s3:// or a file path)")
	rootCmd.PersistentFlags().String("static-table", "", "table to exclude from features (default: last table by name)")

	rootCmd.AddCommand(
		NewReshapeCmd().Command(),
		NewTablesCmd().Command(),
	)
	return rootCmd
}

// resolveConfig layers defaults, the config file, SENSORCUBE_* variables and
// explicitly set flags, in that order.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg := config.Default()
	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)

	var flagErr error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if flagErr != nil {
			return
		}
		flagErr = applyFlag(cmd.Flags(), &cfg, f.Name)
	})
	if flagErr != nil {
		return config.Config{}, flagErr
	}
	return cfg, nil
}

func applyFlag(fs *pflag.FlagSet, cfg *config.Config, name string) error {
	var err error
	switch name {
	case "source":
		cfg.Source, err = fs.GetString(name)
	case "static-table":
		cfg.StaticTable, err = fs.GetString(name)
	case "timestamp-column":
		cfg.TimestampColumn, err = fs.GetString(name)
	case "machine-column":
		cfg.MachineColumn, err = fs.GetString(name)
	case "value-column":
		cfg.ValueColumn, err = fs.GetString(name)
	case "features":
		cfg.Features, err = fs.GetInt(name)
	case "time-steps":
		cfg.TimeSteps, err = fs.GetInt(name)
	case "machines":
		cfg.Machines, err = fs.GetInt(name)
	case "layout":
		cfg.Layout, err = fs.GetString(name)
	case "preview-rows":
		cfg.PreviewRows, err = fs.GetInt(name)
	case "metrics-push-url":
		cfg.MetricsPushURL, err = fs.GetString(name)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s flag: %w", name, err)
	}
	return nil
}
