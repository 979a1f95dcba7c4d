package factory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/strata"
	"github.com/lychee-technology/strata/internal"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// NewCatalog builds a Catalog from configuration: it connects the configured
// availability source, loads the catalog files and resolves every table.
//
// Usage:
//
//	import (
//	    "github.com/lychee-technology/strata"
//	    "github.com/lychee-technology/strata/factory"
//	)
//
//	config := strata.DefaultConfig()
//	config.Catalog.ConfigDirectory = "./catalog"
//	catalog, err := factory.NewCatalog(ctx, config)
//	if err != nil {
//	    // handle error
//	}
//	defer catalog.Close()
func NewCatalog(ctx context.Context, config *strata.Config) (strata.Catalog, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Telemetry.Enabled {
		telemetry, err := internal.NewPrometheusTelemetry(prometheus.DefaultRegisterer, config.Telemetry.Namespace)
		if err != nil {
			return nil, strata.NewInvalidConfigError("telemetry.namespace", "failed to register metrics").WithCause(err)
		}
		internal.RegisterTelemetryEmitter(telemetry.Emit)
	}

	loader, err := internal.NewCatalogLoader(config.Catalog.ConfigDirectory, config.Catalog.FileFormat, config.Catalog.ValidateSchema)
	if err != nil {
		return nil, err
	}
	doc, err := loader.Load()
	if err != nil {
		return nil, strata.NewInvalidConfigError(config.Catalog.ConfigDirectory, "failed to load catalog files").WithCause(err)
	}

	source, closer, err := NewMetadataService(ctx, config)
	if err != nil {
		return nil, err
	}

	metadata := WrapMetadataService(source, config.Availability)
	catalog, err := NewCatalogFromDocument(ctx, doc, metadata, config.Resolution.ParallelGroups)
	if err != nil {
		if closer != nil {
			closer()
		}
		return nil, err
	}
	catalog.closers = append(catalog.closers, closer)
	return catalog, nil
}

// NewCatalogFromDocument resolves an already decoded catalog document.
func NewCatalogFromDocument(ctx context.Context, doc *internal.CatalogDocument, metadata internal.MetadataService, parallelGroups int) (*Catalog, error) {
	dicts := internal.NewResourceDictionaries()
	if err := internal.NewCatalogBuilder(dicts, metadata, parallelGroups).Build(ctx, doc); err != nil {
		return nil, err
	}
	return newCatalog(dicts, metadata), nil
}

// NewCatalogFromDefinitions builds a Catalog from programmatic definitions,
// bypassing configuration files.
func NewCatalogFromDefinitions(
	ctx context.Context,
	metadata internal.MetadataService,
	dimensions []*internal.Dimension,
	metrics []*strata.LogicalMetric,
	definitions []internal.TableDefinition,
	logicalTables []internal.LogicalTableDocument,
) (*Catalog, error) {
	dicts := internal.NewResourceDictionaries()
	for _, d := range dimensions {
		if err := dicts.Dimensions.Add(d); err != nil {
			return nil, err
		}
	}
	for _, m := range metrics {
		if err := dicts.Metrics.Add(m); err != nil {
			return nil, err
		}
	}
	if err := internal.NewCatalogBuilder(dicts, metadata, 0).BuildLogicalTables(ctx, definitions, logicalTables); err != nil {
		return nil, err
	}
	return newCatalog(dicts, metadata), nil
}

// NewMetadataService connects the availability source selected by
// config.Availability.Source. The returned func releases its connections and
// may be nil.
func NewMetadataService(ctx context.Context, config *strata.Config) (internal.MetadataService, func(), error) {
	switch config.Availability.Source {
	case strata.AvailabilitySourceStatic, "":
		intervals, err := internal.ParseStaticAvailability(config.Availability.Static)
		if err != nil {
			return nil, nil, strata.NewInvalidConfigError("availability.static", err.Error())
		}
		return internal.NewStaticMetadataService(intervals), nil, nil

	case strata.AvailabilitySourcePostgres:
		if err := internal.ValidatePostgresConfig(config.Database); err != nil {
			return nil, nil, strata.NewInvalidConfigError("database", err.Error())
		}
		password, err := internal.PostgresPassword(ctx, config.Database)
		if err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.New(ctx, internal.PostgresDSN(config.Database, password))
		if err != nil {
			return nil, nil, fmt.Errorf("create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres ping failed: %w", err)
		}
		zap.S().Infow("using postgres availability source", "host", config.Database.Host, "table", config.Database.AvailabilityTable)
		return internal.NewPostgresMetadataService(pool, config.Database.AvailabilityTable), pool.Close, nil

	case strata.AvailabilitySourceDuckDB:
		duckCfg := config.DuckDB
		duckCfg.Enabled = true
		if err := internal.ValidateDuckDBConfig(duckCfg); err != nil {
			return nil, nil, strata.NewInvalidConfigError("duckdb", err.Error())
		}
		client, err := internal.NewDuckDBClient(duckCfg)
		if err != nil {
			return nil, nil, err
		}
		if err := client.HealthCheck(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
		zap.S().Infow("using duckdb availability source", "segmentSource", duckCfg.SegmentSource)
		return internal.NewDuckDBMetadataService(client.DB, duckCfg.SegmentSource), func() { client.Close() }, nil

	case strata.AvailabilitySourceS3:
		if err := internal.ValidateS3Config(config.S3); err != nil {
			return nil, nil, strata.NewInvalidConfigError("s3", err.Error())
		}
		client, err := internal.NewS3Client(ctx, config.S3)
		if err != nil {
			return nil, nil, err
		}
		if err := internal.S3HealthCheck(ctx, client, config.S3.Bucket, 0); err != nil {
			return nil, nil, err
		}
		zap.S().Infow("using s3 availability source", "bucket", config.S3.Bucket, "prefix", config.S3.Prefix)
		return internal.NewS3MetadataService(client, config.S3.Bucket, config.S3.Prefix), nil, nil

	default:
		return nil, nil, errors.New("unknown availability source " + string(config.Availability.Source))
	}
}

// WrapMetadataService applies the circuit breaker and then the cache
// configured in cfg. Cache hits never reach the breaker.
func WrapMetadataService(source internal.MetadataService, cfg strata.AvailabilityConfig) internal.MetadataService {
	wrapped := source
	if cfg.BreakerThreshold > 0 {
		breaker := internal.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerWindow, cfg.BreakerOpen)
		wrapped = internal.NewBreakerMetadataService(wrapped, breaker, string(cfg.Source))
	}
	if cfg.CacheTTL > 0 {
		wrapped = internal.NewCachingMetadataService(wrapped, cfg.CacheTTL)
	}
	return wrapped
}
