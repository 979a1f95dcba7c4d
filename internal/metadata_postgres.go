package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/strata"
	"go.uber.org/zap"
)

type availabilityPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresMetadataService reads availability rows
// (table_name, interval_start, interval_end) from a Postgres table.
type PostgresMetadataService struct {
	pool      availabilityPool
	tableName string
}

// NewPostgresMetadataService creates a service reading from tableName.
func NewPostgresMetadataService(pool availabilityPool, tableName string) *PostgresMetadataService {
	return &PostgresMetadataService{pool: pool, tableName: tableName}
}

// EnsureSchema creates the availability table and its lookup index.
func (s *PostgresMetadataService) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	table_name     TEXT        NOT NULL,
	interval_start TIMESTAMPTZ NOT NULL,
	interval_end   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (table_name, interval_start)
)`, quoteIdentifier(s.tableName)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (table_name)`,
			pgx.Identifier{makeIndexName(s.tableName, "table")}.Sanitize(), quoteIdentifier(s.tableName)),
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create availability schema: %w", err)
		}
	}
	zap.S().Infow("availability schema ready", "table", s.tableName)
	return nil
}

// Availability returns the recorded intervals of table.
func (s *PostgresMetadataService) Availability(ctx context.Context, table string) (strata.IntervalList, error) {
	query := fmt.Sprintf("SELECT interval_start, interval_end FROM %s WHERE table_name = $1 ORDER BY interval_start",
		quoteIdentifier(s.tableName))

	rows, err := s.pool.Query(ctx, query, table)
	if err != nil {
		EmitAvailabilityLookup(ctx, "postgres", "error")
		return nil, fmt.Errorf("failed to query availability: %w", err)
	}
	defer rows.Close()

	var intervals strata.IntervalList
	for rows.Next() {
		var start, end time.Time
		if err := rows.Scan(&start, &end); err != nil {
			EmitAvailabilityLookup(ctx, "postgres", "error")
			return nil, fmt.Errorf("failed to scan availability row: %w", err)
		}
		intervals = append(intervals, strata.NewInterval(start, end))
	}
	if err := rows.Err(); err != nil {
		EmitAvailabilityLookup(ctx, "postgres", "error")
		return nil, fmt.Errorf("error iterating availability rows: %w", err)
	}

	outcome := "hit"
	if len(intervals) == 0 {
		outcome = "miss"
	}
	EmitAvailabilityLookup(ctx, "postgres", outcome)
	return intervals.Simplify(), nil
}

// RecordAvailability upserts one interval for table.
func (s *PostgresMetadataService) RecordAvailability(ctx context.Context, table string, iv strata.Interval) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (table_name, interval_start, interval_end) VALUES ($1, $2, $3)
ON CONFLICT (table_name, interval_start) DO UPDATE SET interval_end = EXCLUDED.interval_end`,
		quoteIdentifier(s.tableName))
	if _, err := s.pool.Exec(ctx, stmt, table, iv.Start, iv.End); err != nil {
		return fmt.Errorf("failed to record availability for %s: %w", table, err)
	}
	return nil
}

func quoteIdentifier(name string) string {
	return pgx.Identifier(splitIdentifier(name)).Sanitize()
}

func splitIdentifier(name string) []string {
	parts := strings.Split(name, ".")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return []string{name}
	}
	return result
}

func makeIndexName(table string, suffix string) string {
	base := strings.ReplaceAll(table, ".", "_")
	base = strings.ReplaceAll(base, `"`, "")
	return fmt.Sprintf("%s_%s_idx", base, suffix)
}
