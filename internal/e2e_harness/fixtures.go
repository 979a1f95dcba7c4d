package e2e_harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/lychee-technology/strata"
)

// Segment is one availability row: a table holds data for [Start, End).
type Segment struct {
	Table string
	Start time.Time
	End   time.Time
}

// DefaultSegments backs the catalog under internal/testdata/catalog.
func DefaultSegments() []Segment {
	day := func(m time.Month, d int) time.Time { return time.Date(2020, m, d, 0, 0, 0, 0, time.UTC) }
	return []Segment{
		{Table: "pv_us", Start: day(1, 1), End: day(3, 1)},
		{Table: "pv_us", Start: day(3, 1), End: day(6, 1)},
		{Table: "pv_eu", Start: day(4, 1), End: day(6, 1)},
		{Table: "clicks_daily", Start: day(2, 1), End: day(5, 1)},
	}
}

// SeedPostgres inserts segments into the availability table created by
// StartPostgres, using the lib/pq handle.
func (h *TestHarness) SeedPostgres(ctx context.Context, table string, segments []Segment) error {
	if h.PGDB == nil {
		return errors.New("postgres is not started")
	}
	stmt := fmt.Sprintf("INSERT INTO %s (table_name, interval_start, interval_end) VALUES ($1, $2, $3)", pq.QuoteIdentifier(table))
	for _, s := range segments {
		if _, err := h.PGDB.ExecContext(ctx, stmt, s.Table, s.Start, s.End); err != nil {
			return fmt.Errorf("insert segment for %s: %w", s.Table, err)
		}
	}
	return nil
}

// WriteSegmentsParquet writes segments to path through DuckDB.
func (h *TestHarness) WriteSegmentsParquet(ctx context.Context, path string, segments []Segment) error {
	if h.Duck == nil {
		return errors.New("duckdb is not started")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db := h.Duck.DB
	if _, err := db.ExecContext(ctx,
		"CREATE OR REPLACE TEMP TABLE segments_export (table_name VARCHAR, interval_start TIMESTAMP, interval_end TIMESTAMP)"); err != nil {
		return fmt.Errorf("create segments_export: %w", err)
	}
	for _, s := range segments {
		if _, err := db.ExecContext(ctx, "INSERT INTO segments_export VALUES (?, ?, ?)", s.Table, s.Start, s.End); err != nil {
			return fmt.Errorf("insert segments_export: %w", err)
		}
	}
	copyStmt := fmt.Sprintf("COPY segments_export TO '%s' (FORMAT PARQUET)", strings.ReplaceAll(path, "'", "''"))
	if _, err := db.ExecContext(ctx, copyStmt); err != nil {
		return fmt.Errorf("export segments parquet: %w", err)
	}
	return nil
}

// SegmentsBySource groups segments into the per-table interval lists used by
// manifests and static availability.
func SegmentsBySource(segments []Segment) map[string]strata.IntervalList {
	out := make(map[string]strata.IntervalList)
	for _, s := range segments {
		out[s.Table] = append(out[s.Table], strata.NewInterval(s.Start, s.End))
	}
	for table, list := range out {
		out[table] = list.Simplify()
	}
	return out
}
