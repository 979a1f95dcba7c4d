package internal

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lychee-technology/strata"
)

// DuckDBMetadataService reads segment availability from a DuckDB table or a
// parquet, csv or json file with table_name, interval_start and interval_end columns.
type DuckDBMetadataService struct {
	db     *sql.DB
	source string
}

// NewDuckDBMetadataService creates a service over the segment source.
func NewDuckDBMetadataService(db *sql.DB, segmentSource string) *DuckDBMetadataService {
	return &DuckDBMetadataService{db: db, source: segmentSource}
}

// segmentRelation renders the FROM target for the configured source.
func segmentRelation(source string) string {
	quoted := "'" + strings.ReplaceAll(source, "'", "''") + "'"
	switch strings.ToLower(filepath.Ext(source)) {
	case ".parquet":
		return "read_parquet(" + quoted + ")"
	case ".csv":
		return "read_csv_auto(" + quoted + ")"
	case ".json", ".ndjson":
		return "read_json_auto(" + quoted + ")"
	default:
		return `"` + strings.ReplaceAll(source, `"`, `""`) + `"`
	}
}

func (s *DuckDBMetadataService) Availability(ctx context.Context, table string) (strata.IntervalList, error) {
	query := fmt.Sprintf(
		"SELECT CAST(interval_start AS TIMESTAMP), CAST(interval_end AS TIMESTAMP) FROM %s WHERE table_name = ? ORDER BY 1",
		segmentRelation(s.source))

	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		EmitAvailabilityLookup(ctx, "duckdb", "error")
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var intervals strata.IntervalList
	for rows.Next() {
		var start, end time.Time
		if err := rows.Scan(&start, &end); err != nil {
			EmitAvailabilityLookup(ctx, "duckdb", "error")
			return nil, fmt.Errorf("failed to scan segment row: %w", err)
		}
		intervals = append(intervals, strata.NewInterval(start.UTC(), end.UTC()))
	}
	if err := rows.Err(); err != nil {
		EmitAvailabilityLookup(ctx, "duckdb", "error")
		return nil, fmt.Errorf("error iterating segment rows: %w", err)
	}

	outcome := "hit"
	if len(intervals) == 0 {
		outcome = "miss"
	}
	EmitAvailabilityLookup(ctx, "duckdb", outcome)
	return intervals.Simplify(), nil
}
