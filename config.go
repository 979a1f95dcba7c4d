package strata

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config consolidates settings for the catalog and its collaborators
type Config struct {
	Catalog      CatalogConfig      `json:"catalog" yaml:"catalog"`
	Availability AvailabilityConfig `json:"availability" yaml:"availability"`
	Database     DatabaseConfig     `json:"database" yaml:"database"`
	DuckDB       DuckDBConfig       `json:"duckdb" yaml:"duckdb"`
	S3           S3Config           `json:"s3" yaml:"s3"`
	Resolution   ResolutionConfig   `json:"resolution" yaml:"resolution"`
	Logging      LoggingConfig      `json:"logging" yaml:"logging"`
	Telemetry    TelemetryConfig    `json:"telemetry" yaml:"telemetry"`
}

// CatalogConfig locates the table, metric and dimension definition files
type CatalogConfig struct {
	ConfigDirectory string `json:"configDirectory" yaml:"configDirectory"`
	FileFormat      string `json:"fileFormat" yaml:"fileFormat"` // json or yaml
	ValidateSchema  bool   `json:"validateSchema" yaml:"validateSchema"`
}

// AvailabilitySource selects the backend queried for table availability
type AvailabilitySource string

const (
	AvailabilitySourceStatic   AvailabilitySource = "static"
	AvailabilitySourcePostgres AvailabilitySource = "postgres"
	AvailabilitySourceDuckDB   AvailabilitySource = "duckdb"
	AvailabilitySourceS3       AvailabilitySource = "s3"
)

// AvailabilityConfig contains metadata service settings
type AvailabilityConfig struct {
	Source           AvailabilitySource  `json:"source" yaml:"source"`
	CacheTTL         time.Duration       `json:"cacheTTL" yaml:"cacheTTL"`
	BreakerThreshold int                 `json:"breakerThreshold" yaml:"breakerThreshold"`
	BreakerWindow    time.Duration       `json:"breakerWindow" yaml:"breakerWindow"`
	BreakerOpen      time.Duration       `json:"breakerOpen" yaml:"breakerOpen"`
	Static           map[string][]string `json:"static,omitempty" yaml:"static,omitempty"` // table -> "start/end" intervals
}

// DatabaseConfig contains connection settings for the Postgres availability store
type DatabaseConfig struct {
	Host              string        `json:"host" yaml:"host"`
	Port              int           `json:"port" yaml:"port"`
	Database          string        `json:"database" yaml:"database"`
	Username          string        `json:"username" yaml:"username"`
	Password          string        `json:"password" yaml:"password"`
	SSLMode           string        `json:"sslMode" yaml:"sslMode"`
	MaxConnections    int           `json:"maxConnections" yaml:"maxConnections"`
	ConnMaxLifetime   time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
	ConnMaxIdleTime   time.Duration `json:"connMaxIdleTime" yaml:"connMaxIdleTime"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	AvailabilityTable string        `json:"availabilityTable" yaml:"availabilityTable"`
	// UseIAMAuth replaces Password with an Aurora DSQL IAM token
	UseIAMAuth bool   `json:"useIAMAuth" yaml:"useIAMAuth"`
	Region     string `json:"region" yaml:"region"`
}

// DuckDBConfig contains settings for the DuckDB availability source
type DuckDBConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	DBPath         string   `json:"dbPath" yaml:"dbPath"`
	MemoryLimitMB  int      `json:"memoryLimitMB" yaml:"memoryLimitMB"`
	MaxParallelism int      `json:"maxParallelism" yaml:"maxParallelism"`
	Extensions     []string `json:"extensions" yaml:"extensions"`
	// SegmentSource is a table name or a file path readable by DuckDB
	// (parquet, csv, json) listing table_name, interval_start, interval_end.
	SegmentSource string `json:"segmentSource" yaml:"segmentSource"`
}

// S3Config contains settings for S3-hosted availability manifests
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Prefix       string `json:"prefix" yaml:"prefix"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	AccessKey    string `json:"accessKey" yaml:"accessKey"`
	SecretKey    string `json:"secretKey" yaml:"secretKey"`
	UsePathStyle bool   `json:"usePathStyle" yaml:"usePathStyle"`
}

// ResolutionConfig contains table graph resolution settings
type ResolutionConfig struct {
	// ParallelGroups bounds how many logical table groups resolve at once; 0 resolves sequentially
	ParallelGroups int `json:"parallelGroups" yaml:"parallelGroups"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// TelemetryConfig contains metrics collection settings
type TelemetryConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			ConfigDirectory: "config",
			FileFormat:      "yaml",
			ValidateSchema:  true,
		},
		Availability: AvailabilityConfig{
			Source:           AvailabilitySourceStatic,
			CacheTTL:         5 * time.Minute,
			BreakerThreshold: 5,
			BreakerWindow:    30 * time.Second,
			BreakerOpen:      time.Minute,
		},
		Database: DatabaseConfig{
			Host:              "localhost",
			Port:              5432,
			SSLMode:           "disable",
			MaxConnections:    10,
			ConnMaxLifetime:   5 * time.Minute,
			ConnMaxIdleTime:   5 * time.Minute,
			Timeout:           30 * time.Second,
			AvailabilityTable: "table_availability",
		},
		DuckDB: DuckDBConfig{
			MemoryLimitMB:  512,
			MaxParallelism: 4,
		},
		S3: S3Config{
			Prefix: "availability",
		},
		Resolution: ResolutionConfig{
			ParallelGroups: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:   false,
			Namespace: "strata",
		},
	}
}

// LoadConfig reads a YAML (or JSON) configuration file over DefaultConfig.
// Durations are written as Go duration strings such as "30s".
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Catalog.FileFormat {
	case "json", "yaml":
	default:
		return &ConfigError{Field: "catalog.fileFormat", Message: "must be json or yaml"}
	}

	switch c.Availability.Source {
	case AvailabilitySourceStatic:
	case AvailabilitySourcePostgres:
		if c.Database.MaxConnections <= 0 {
			return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
		}
		if c.Database.AvailabilityTable == "" {
			return &ConfigError{Field: "database.availabilityTable", Message: "is required for the postgres source"}
		}
		if c.Database.UseIAMAuth && c.Database.Region == "" {
			return &ConfigError{Field: "database.region", Message: "is required when useIAMAuth is set"}
		}
	case AvailabilitySourceDuckDB:
		if c.DuckDB.SegmentSource == "" {
			return &ConfigError{Field: "duckdb.segmentSource", Message: "is required for the duckdb source"}
		}
	case AvailabilitySourceS3:
		if c.S3.Bucket == "" {
			return &ConfigError{Field: "s3.bucket", Message: "is required for the s3 source"}
		}
	default:
		return &ConfigError{Field: "availability.source", Message: "must be one of static, postgres, duckdb, s3"}
	}

	if c.Availability.CacheTTL < 0 {
		return &ConfigError{Field: "availability.cacheTTL", Message: "must not be negative"}
	}

	if c.Availability.BreakerThreshold < 0 {
		return &ConfigError{Field: "availability.breakerThreshold", Message: "must not be negative"}
	}

	if c.Resolution.ParallelGroups < 0 {
		return &ConfigError{Field: "resolution.parallelGroups", Message: "must not be negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
