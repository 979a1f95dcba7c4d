package main

import (
	"context"
	"fmt"

	"github.com/lychee-technology/strata"
	"github.com/lychee-technology/strata/internal"
	"github.com/lychee-technology/strata/internal/segments"
	"github.com/spf13/cobra"
)

func newExportSegmentsCmd() *cobra.Command {
	var (
		database = strata.DefaultConfig().Database
		duckCfg  = strata.DefaultConfig().DuckDB
		s3cfg    strata.S3Config
		dest     string
	)

	cmd := &cobra.Command{
		Use:   "export-segments",
		Short: "Snapshot the Postgres availability table into a parquet segment file",
		Long: "Reads the availability table through DuckDB's postgres scanner and writes it as parquet,\n" +
			"locally or to s3://, for use as the duckdb availability source.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if dest == "" {
				return fmt.Errorf("--dest is required")
			}
			if err := internal.ValidatePostgresConfig(database); err != nil {
				return err
			}

			password, err := internal.PostgresPassword(ctx, database)
			if err != nil {
				return err
			}
			exporter, err := segments.NewExporter(ctx, duckCfg, s3cfg)
			if err != nil {
				return err
			}
			defer exporter.Close()

			rows, err := exportSegments(ctx, exporter, database, password, dest)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %d segments to %s\n", rows, dest)
			return nil
		},
	}

	flags := cmd.Flags()
	addDatabaseFlags(flags, &database)
	addS3Flags(flags, &s3cfg)
	flags.StringVar(&dest, "dest", "", "output path, local or s3://bucket/key.parquet")
	flags.IntVar(&duckCfg.MemoryLimitMB, "duckdb-memory-mb", duckCfg.MemoryLimitMB, "DuckDB memory limit in MB")

	return cmd
}

type segmentExporter interface {
	Export(ctx context.Context, pgConnStr, availabilityTable, dest string) (int64, error)
}

func exportSegments(ctx context.Context, exporter segmentExporter, database strata.DatabaseConfig, password, dest string) (int64, error) {
	rows, err := exporter.Export(ctx, segments.PostgresConnString(database, password), database.AvailabilityTable, dest)
	if err != nil {
		return 0, fmt.Errorf("export %s to %s: %w", database.AvailabilityTable, dest, err)
	}
	return rows, nil
}
