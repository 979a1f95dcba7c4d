package e2e_harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/strata"
	"github.com/lychee-technology/strata/internal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage    = "postgres:16"
	postgresPassword = "strata"
	s3Image          = "rustfs/rustfs:latest"
	S3AccessKey      = "strata"
	S3SecretKey      = "strata-secret"
	readyTimeout     = 30 * time.Second
)

// TestHarness runs one container per availability source. Each Start method
// leaves its source ready to serve: schema created, bucket present.
type TestHarness struct {
	pgContainer testcontainers.Container
	PGDSN       string
	// PGDB is a lib/pq handle used to seed availability rows directly.
	PGDB   *sql.DB
	PGPool *pgxpool.Pool

	s3Container testcontainers.Container
	S3Endpoint  string
	S3Client    *s3.Client

	Duck *internal.DuckDBClient
}

func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port string) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}
	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", err
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", err
	}
	return container, fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}

// StartPostgres starts Postgres and creates availabilityTable through the
// availability service, which it returns.
func (h *TestHarness) StartPostgres(ctx context.Context, availabilityTable string) (*internal.PostgresMetadataService, error) {
	container, addr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "strata",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(readyTimeout),
	}, "5432")
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}
	h.pgContainer = container
	h.PGDSN = fmt.Sprintf("postgres://postgres:%s@%s/strata?sslmode=disable", postgresPassword, addr)

	if err := internal.PostgresHealthCheck(ctx, h.PGDSN, readyTimeout); err != nil {
		return nil, err
	}
	if h.PGPool, err = pgxpool.New(ctx, h.PGDSN); err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if h.PGDB, err = sql.Open("postgres", h.PGDSN); err != nil {
		return nil, fmt.Errorf("open lib/pq handle: %w", err)
	}

	svc := internal.NewPostgresMetadataService(h.PGPool, availabilityTable)
	if err := svc.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

// StopPostgres closes the handles and terminates the container.
func (h *TestHarness) StopPostgres(ctx context.Context) error {
	if h.PGDB != nil {
		h.PGDB.Close()
		h.PGDB = nil
	}
	if h.PGPool != nil {
		h.PGPool.Close()
		h.PGPool = nil
	}
	if h.pgContainer == nil {
		return nil
	}
	err := h.pgContainer.Terminate(ctx)
	h.pgContainer = nil
	return err
}

// StartS3 starts an S3-compatible store, creates bucket and returns a
// manifest service rooted at bucket/prefix.
func (h *TestHarness) StartS3(ctx context.Context, bucket, prefix string) (*internal.S3MetadataService, error) {
	container, addr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        s3Image,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": S3AccessKey,
			"RUSTFS_SECRET_KEY": S3SecretKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(readyTimeout),
	}, "9000")
	if err != nil {
		return nil, fmt.Errorf("start s3: %w", err)
	}
	h.s3Container = container
	h.S3Endpoint = "http://" + addr

	client, err := internal.NewS3Client(ctx, strata.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Endpoint:     h.S3Endpoint,
		AccessKey:    S3AccessKey,
		SecretKey:    S3SecretKey,
		UsePathStyle: true,
	})
	if err != nil {
		return nil, err
	}
	h.S3Client = client

	if err := createBucket(ctx, client, bucket); err != nil {
		return nil, err
	}
	if err := internal.S3HealthCheck(ctx, client, bucket, 0); err != nil {
		return nil, err
	}
	return internal.NewS3MetadataService(client, bucket, prefix), nil
}

func createBucket(ctx context.Context, client *s3.Client, bucket string) error {
	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return nil
		}
	}
	return fmt.Errorf("create bucket %s: %w", bucket, err)
}

// StopS3 terminates the S3 container.
func (h *TestHarness) StopS3(ctx context.Context) error {
	h.S3Client = nil
	if h.s3Container == nil {
		return nil
	}
	err := h.s3Container.Terminate(ctx)
	h.s3Container = nil
	return err
}

// StartDuckDB opens an in-process DuckDB and returns a service reading
// availability from segmentSource.
func (h *TestHarness) StartDuckDB(cfg strata.DuckDBConfig) (*internal.DuckDBMetadataService, error) {
	cfg.Enabled = true
	c, err := internal.NewDuckDBClient(cfg)
	if err != nil {
		return nil, err
	}
	h.Duck = c
	return internal.NewDuckDBMetadataService(c.DB, cfg.SegmentSource), nil
}

func (h *TestHarness) StopDuckDB() error {
	if h.Duck == nil {
		return nil
	}
	err := h.Duck.Close()
	h.Duck = nil
	return err
}
