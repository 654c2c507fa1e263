package cli

import (
	"fmt"
	"slices"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/exampleco/sensorcube/internal/logger"
	"github.com/exampleco/sensorcube/internal/source"
)

type TablesCmd struct{}

func NewTablesCmd() *TablesCmd {
	return &TablesCmd{}
}

func (c *TablesCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List source tables and whether each is a feature or static table",
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
			if cfg.Source == "" {
				return fmt.Errorf("source is required")
			}

			ctx := cmd.Context()
			src, err := source.Open(ctx, log, cfg.Source)
			if err != nil {
				return err
			}
			defer src.Close()

			tables, err := src.ListTables(ctx)
			if err != nil {
				return err
			}
			features, err := source.FeatureTables(tables, cfg.StaticTable)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetAutoWrapText(false)
			table.SetAutoFormatHeaders(false)
			table.SetBorder(true)
			table.SetHeader([]string{"#", "Table", "Role"})
			for i, name := range tables {
				role := "static"
				if slices.Contains(features, name) {
					role = "feature"
				}
				table.Append([]string{fmt.Sprint(i), name, role})
			}
			table.Render()
			return nil
		},
	}
}
