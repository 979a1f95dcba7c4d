package main

import (
	"context"
	"fmt"

	"github.com/lychee-technology/strata/factory"
	"github.com/lychee-technology/strata/internal"
	"github.com/spf13/cobra"
)

func newValidateConfigCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate-config <dir>",
		Short: "Load a catalog directory and resolve every table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadOfflineCatalog(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}
			dicts := catalog.Dictionaries()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "catalog %s is valid: %d dimensions, %d metrics, %d physical tables, %d logical tables\n",
				args[0], len(dicts.Dimensions.Names()), len(dicts.Metrics.Names()),
				dicts.PhysicalTables.Len(), len(dicts.LogicalTables.Identifiers()))
			for _, t := range dicts.PhysicalTables.Tables() {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %s %v\n", t.Kind(), t.Name(), t.Dependencies())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "preferred file format when both json and yaml exist (json|yaml)")

	return cmd
}

// loadOfflineCatalog builds a catalog with no availability source, so every
// leaf table reports no data.
func loadOfflineCatalog(ctx context.Context, dir, format string) (*factory.Catalog, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	loader, err := internal.NewCatalogLoader(dir, format, true)
	if err != nil {
		return nil, err
	}
	doc, err := loader.Load()
	if err != nil {
		return nil, err
	}
	return factory.NewCatalogFromDocument(ctx, doc, internal.NewStaticMetadataService(nil), 0)
}
