package main

import (
	"encoding/json"
	"fmt"

	"github.com/lychee-technology/strata"
	"github.com/spf13/cobra"
)

func newExplainCmd() *cobra.Command {
	var (
		format     string
		metrics    []string
		grain      string
		dimensions []string
	)

	cmd := &cobra.Command{
		Use:   "explain <dir>",
		Short: "Print the merged query plan for a set of metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(metrics) == 0 {
				return fmt.Errorf("--metrics is required")
			}
			var timeGrain strata.TimeGrain
			if grain != "" {
				g, err := strata.ParseTimeGrain(grain)
				if err != nil {
					return err
				}
				timeGrain = g
			}

			catalog, err := loadOfflineCatalog(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}
			plan, err := catalog.MergeMetricPlans(metrics, timeGrain, dimensions)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "preferred file format when both json and yaml exist (json|yaml)")
	cmd.Flags().StringSliceVar(&metrics, "metrics", nil, "comma separated metric names")
	cmd.Flags().StringVar(&grain, "grain", "", "outer time grain")
	cmd.Flags().StringSliceVar(&dimensions, "dimensions", nil, "comma separated group-by dimensions")

	return cmd
}
