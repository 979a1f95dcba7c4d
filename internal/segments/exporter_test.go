package segments

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lychee-technology/strata"
	"github.com/lychee-technology/strata/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Settings(t *testing.T) {
	assert.Empty(t, S3Settings(strata.S3Config{}))

	stmts := S3Settings(strata.S3Config{
		AccessKey:    "minio",
		SecretKey:    "se'cret",
		Region:       "eu-west-1",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
	})
	assert.Equal(t, []string{
		"SET s3_access_key_id='minio';",
		"SET s3_secret_access_key='se''cret';",
		"SET s3_region='eu-west-1';",
		"SET s3_endpoint='localhost:9000';",
		"SET s3_use_ssl=false;",
		"SET s3_url_style='path';",
	}, stmts)

	assert.Contains(t, S3Settings(strata.S3Config{Endpoint: "https://s3.example.com"}), "SET s3_use_ssl=true;")
}

func TestPostgresConnString(t *testing.T) {
	cfg := strata.DefaultConfig().Database
	cfg.Database = "strata"
	cfg.Username = "svc"
	cfg.Password = "it's secret"

	assert.Equal(t, `host=localhost port=5432 dbname=strata user=svc password='it\'s secret' sslmode=disable`,
		PostgresConnString(cfg, ""))
	assert.Contains(t, PostgresConnString(cfg, "token"), "password=token")
}

func TestExportSQL(t *testing.T) {
	sql := ExportSQL("host=db password=p'w", "ops.availability", "s3://bucket/segments.parquet")
	assert.Contains(t, sql, "postgres_scan('host=db password=p''w', 'ops', 'availability')")
	assert.Contains(t, sql, "TO 's3://bucket/segments.parquet' (FORMAT PARQUET, COMPRESSION 'ZSTD')")

	assert.Contains(t, ExportSQL("dsn", "table_availability", "out.parquet"), "'public', 'table_availability'")
}

func TestExporter_CopyFromRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, err := internal.NewDuckDBClient(strata.DuckDBConfig{Enabled: true})
	require.NoError(t, err)
	exporter := NewExporterWithClient(client)
	defer exporter.Close()

	csv := filepath.Join(t.TempDir(), "segments.csv")
	require.NoError(t, os.WriteFile(csv, []byte(
		"table_name,interval_start,interval_end\n"+
			"pv_us,2020-01-01 00:00:00,2020-03-01 00:00:00\n"+
			"pv_us,2020-03-01 00:00:00,2020-06-01 00:00:00\n"), 0o600))

	dest := filepath.Join(t.TempDir(), "segments.parquet")
	n, err := exporter.CopyFrom(ctx, "read_csv_auto('"+csv+"')", dest)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := internal.NewDuckDBMetadataService(client.DB, dest).Availability(ctx, "pv_us")
	require.NoError(t, err)
	assert.Equal(t, strata.IntervalList{strata.MustParseInterval("2020-01-01/2020-06-01")}, got)
}
