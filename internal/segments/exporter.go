// Package segments snapshots the Postgres availability table into a file
// DuckDB can read back as a segment source.
package segments

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lychee-technology/strata"
	"github.com/lychee-technology/strata/internal"
	"go.uber.org/zap"
)

// Extensions the exporter needs: postgres_scanner to read the availability
// table and httpfs to write s3:// destinations.
var Extensions = []string{"httpfs", "parquet", "postgres_scanner"}

// Exporter copies availability rows out of Postgres through DuckDB.
type Exporter struct {
	client *internal.DuckDBClient
}

// NewExporter opens DuckDB with the exporter extensions and points httpfs at
// the configured S3 endpoint.
func NewExporter(ctx context.Context, duckCfg strata.DuckDBConfig, s3cfg strata.S3Config) (*Exporter, error) {
	duckCfg.Enabled = true
	duckCfg.Extensions = append(duckCfg.Extensions, Extensions...)
	client, err := internal.NewDuckDBClient(duckCfg)
	if err != nil {
		return nil, err
	}
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, stmt := range S3Settings(s3cfg) {
		if _, err := client.DB.ExecContext(ctx2, stmt); err != nil {
			zap.S().Warnw("duckdb s3 setting failed", "setting", strings.SplitN(stmt, "=", 2)[0], "err", err)
		}
	}
	return &Exporter{client: client}, nil
}

// NewExporterWithClient wraps an already configured client.
func NewExporterWithClient(client *internal.DuckDBClient) *Exporter {
	return &Exporter{client: client}
}

// Close releases the DuckDB handle.
func (e *Exporter) Close() error {
	return e.client.Close()
}

// S3Settings renders the DuckDB SET statements for cfg.
func S3Settings(cfg strata.S3Config) []string {
	var stmts []string
	if cfg.AccessKey != "" {
		stmts = append(stmts, fmt.Sprintf("SET s3_access_key_id='%s';", escape(cfg.AccessKey)))
	}
	if cfg.SecretKey != "" {
		stmts = append(stmts, fmt.Sprintf("SET s3_secret_access_key='%s';", escape(cfg.SecretKey)))
	}
	if cfg.Region != "" {
		stmts = append(stmts, fmt.Sprintf("SET s3_region='%s';", escape(cfg.Region)))
	}
	if cfg.Endpoint != "" {
		useSSL := !strings.HasPrefix(cfg.Endpoint, "http://")
		endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")
		stmts = append(stmts,
			fmt.Sprintf("SET s3_endpoint='%s';", escape(endpoint)),
			fmt.Sprintf("SET s3_use_ssl=%t;", useSSL))
	}
	if cfg.UsePathStyle {
		stmts = append(stmts, "SET s3_url_style='path';")
	}
	return stmts
}

func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// PostgresConnString renders a libpq keyword/value string for the postgres
// scanner. Pool parameters are left out since libpq rejects them.
func PostgresConnString(cfg strata.DatabaseConfig, password string) string {
	if password == "" {
		password = cfg.Password
	}
	parts := []string{
		"host=" + quoteConnValue(cfg.Host),
		"port=" + strconv.Itoa(cfg.Port),
		"dbname=" + quoteConnValue(cfg.Database),
		"user=" + quoteConnValue(cfg.Username),
		"password=" + quoteConnValue(password),
	}
	if cfg.SSLMode != "" {
		parts = append(parts, "sslmode="+quoteConnValue(cfg.SSLMode))
	}
	return strings.Join(parts, " ")
}

func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// ExportSQL builds the COPY statement that writes availabilityTable, read
// over pgConnStr, to dest as parquet.
func ExportSQL(pgConnStr, availabilityTable, dest string) string {
	schema, table := "public", availabilityTable
	if parts := strings.SplitN(availabilityTable, ".", 2); len(parts) == 2 {
		schema, table = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return fmt.Sprintf(`COPY (
SELECT
  table_name,
  CAST(interval_start AS TIMESTAMP) AS interval_start,
  CAST(interval_end AS TIMESTAMP) AS interval_end
FROM postgres_scan('%s', '%s', '%s')
ORDER BY table_name, interval_start
) TO '%s' (FORMAT PARQUET, COMPRESSION 'ZSTD');`,
		escape(pgConnStr), escape(schema), escape(table), escape(dest))
}

// Export writes the availability table to dest and returns the number of
// rows written.
func (e *Exporter) Export(ctx context.Context, pgConnStr, availabilityTable, dest string) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()
	if _, err := e.client.DB.ExecContext(ctx2, ExportSQL(pgConnStr, availabilityTable, dest)); err != nil {
		return 0, fmt.Errorf("duckdb copy exec: %w", err)
	}
	rows, err := countRows(ctx2, e.client.DB, dest)
	if err != nil {
		return 0, err
	}
	zap.S().Infow("exported availability segments", "table", availabilityTable, "dest", dest, "rows", rows)
	return rows, nil
}

// CopyFrom writes the segment columns of an existing DuckDB relation to dest
// as parquet, converting between segment file formats.
func (e *Exporter) CopyFrom(ctx context.Context, relation, dest string) (int64, error) {
	stmt := fmt.Sprintf("COPY (SELECT table_name, interval_start, interval_end FROM %s ORDER BY table_name, interval_start) TO '%s' (FORMAT PARQUET);",
		relation, escape(dest))
	if _, err := e.client.DB.ExecContext(ctx, stmt); err != nil {
		return 0, fmt.Errorf("duckdb copy exec: %w", err)
	}
	return countRows(ctx, e.client.DB, dest)
}

func countRows(ctx context.Context, db *sql.DB, dest string) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM read_parquet('%s');", escape(dest))).Scan(&n); err != nil {
		return 0, fmt.Errorf("count exported rows: %w", err)
	}
	return n, nil
}
