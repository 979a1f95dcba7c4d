package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/strata"
	"github.com/lychee-technology/strata/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type availabilityDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type initDBOptions struct {
	database   strata.DatabaseConfig
	configPath string
}

func newInitDBCmd() *cobra.Command {
	opts := initDBOptions{database: strata.DefaultConfig().Database}

	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the availability table and optionally seed it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			var seed map[string]strata.IntervalList
			if opts.configPath != "" {
				cfg, err := strata.LoadConfig(opts.configPath)
				if err != nil {
					return err
				}
				if seed, err = internal.ParseStaticAvailability(cfg.Availability.Static); err != nil {
					return err
				}
			}

			password, err := internal.PostgresPassword(ctx, opts.database)
			if err != nil {
				return err
			}
			pool, err := pgxpool.New(ctx, internal.PostgresDSN(opts.database, password))
			if err != nil {
				return fmt.Errorf("create connection pool: %w", err)
			}
			defer pool.Close()

			if err := initDatabase(ctx, pool, opts.database.AvailabilityTable, seed); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Database initialized successfully.")
			return nil
		},
	}

	flags := cmd.Flags()
	addDatabaseFlags(flags, &opts.database)
	flags.StringVar(&opts.configPath, "seed-config", "", "config file whose availability.static section is copied into the table (optional)")

	return cmd
}

func addDatabaseFlags(flags *pflag.FlagSet, db *strata.DatabaseConfig) {
	port, _ := strconv.Atoi(getenvDefault("DB_PORT", "5432"))
	flags.StringVar(&db.Host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flags.IntVar(&db.Port, "db-port", port, "database port")
	flags.StringVar(&db.Database, "db-name", getenvDefault("DB_NAME", "strata"), "database name")
	flags.StringVar(&db.Username, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&db.Password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&db.SSLMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flags.BoolVar(&db.UseIAMAuth, "db-iam-auth", false, "authenticate with an Aurora DSQL IAM token")
	flags.StringVar(&db.Region, "db-region", getenvDefault("AWS_REGION", ""), "AWS region for IAM authentication")
	flags.StringVar(&db.AvailabilityTable, "table", getenvDefault("AVAILABILITY_TABLE", db.AvailabilityTable), "availability table name")
}

func initDatabase(ctx context.Context, db availabilityDB, table string, seed map[string]strata.IntervalList) error {
	store := internal.NewPostgresMetadataService(db, table)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	tables := make([]string, 0, len(seed))
	for name := range seed {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	for _, name := range tables {
		for _, iv := range seed[name] {
			if err := store.RecordAvailability(ctx, name, iv); err != nil {
				return err
			}
		}
		zap.S().Infow("seeded availability", "table", name, "intervals", len(seed[name]))
	}
	return nil
}
