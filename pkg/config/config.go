// Package config provides the configuration system for tablepool.
// A single Config structure describes the reader pool, the backing store the
// pool's readers are opened against, logging and observability.
//
// The configuration is organized into logical sections:
//   - Pool: capacity, idle eviction and exhaustion behavior
//   - Backend: which store readers connect to, and how
//   - Logging: zap logger settings
//   - Observability: metrics endpoint and tracing
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Pool.MaxActive = 16
//	cfg.Pool.ExhaustionPolicy = config.PolicyFail
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"strings"
	"time"

	"github.com/ajitpratap0/tablepool/pkg/logger"
	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
)

// Exhaustion policies accepted by PoolConfig.ExhaustionPolicy.
const (
	PolicyBlock = "block"
	PolicyFail  = "fail"
	PolicyGrow  = "grow"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("250ms", "30m") in YAML, TOML and JSON documents.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "invalid duration").
			WithDetail("value", string(text))
	}
	*d = Duration(parsed)
	return nil
}

// Config is the top-level tablepool configuration.
type Config struct {
	// Pool controls the reader pool
	Pool PoolConfig `yaml:"pool" json:"pool" toml:"pool"`

	// Backend selects the store readers are opened against
	Backend BackendConfig `yaml:"backend" json:"backend" toml:"backend"`

	// Logging configures the global zap logger
	Logging logger.Config `yaml:"logging" json:"logging" toml:"logging"`

	// Observability configures metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability" toml:"observability"`
}

// PoolConfig is the reader pool configuration record. It is validated once
// when the pool is built and never changes afterwards.
type PoolConfig struct {
	// Name labels the pool in logs and metrics
	Name string `yaml:"name" json:"name" toml:"name"`
	// MinIdle is the idle floor kept by the reaper
	MinIdle int `yaml:"min_idle" json:"min_idle" toml:"min_idle"`
	// MaxIdle is the idle ceiling target; 0 means unbounded
	MaxIdle int `yaml:"max_idle" json:"max_idle" toml:"max_idle"`
	// MaxActive caps active plus idle readers; 0 means unbounded
	MaxActive int `yaml:"max_active" json:"max_active" toml:"max_active"`
	// MinEvictableIdleTime is how long a reader must idle before it may be evicted; 0 disables
	MinEvictableIdleTime Duration `yaml:"min_evictable_idle_time" json:"min_evictable_idle_time" toml:"min_evictable_idle_time"`
	// EvictionRunInterval is the reaper period; 0 disables the reaper
	EvictionRunInterval Duration `yaml:"eviction_run_interval" json:"eviction_run_interval" toml:"eviction_run_interval"`
	// ExhaustionPolicy is one of block, fail or grow
	ExhaustionPolicy string `yaml:"exhaustion_policy" json:"exhaustion_policy" toml:"exhaustion_policy"`
	// MaxWait bounds a blocked borrow; 0 waits until a reader is returned or the pool closes
	MaxWait Duration `yaml:"max_wait" json:"max_wait" toml:"max_wait"`
	// CellSchemas maps "family:qualifier" to an Avro reader schema used to decode cells
	CellSchemas map[string]string `yaml:"cell_schemas,omitempty" json:"cell_schemas,omitempty" toml:"cell_schemas,omitempty"`
}

// BackendConfig describes the store readers connect to. Only the fields used
// by the selected Type are read.
type BackendConfig struct {
	// Type is the registered backend name (memory, postgres, mysql, s3, gcs, mongodb)
	Type string `yaml:"type" json:"type" toml:"type"`
	// Table is the logical table readers serve
	Table string `yaml:"table" json:"table" toml:"table"`
	// DSN is the connection string for postgres, mysql and mongodb
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty" toml:"dsn,omitempty"`
	// Database is the mongodb database name
	Database string `yaml:"database,omitempty" json:"database,omitempty" toml:"database,omitempty"`
	// Bucket is the s3 or gcs bucket holding row objects
	Bucket string `yaml:"bucket,omitempty" json:"bucket,omitempty" toml:"bucket,omitempty"`
	// Prefix is prepended to row object keys
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty" toml:"prefix,omitempty"`
	// Region is the s3 region
	Region string `yaml:"region,omitempty" json:"region,omitempty" toml:"region,omitempty"`
	// Endpoint overrides the s3 endpoint (path-style addressing is used when set)
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty" toml:"endpoint,omitempty"`
	// Codec is the compression applied to row objects (none, gzip, snappy, s2, lz4, zstd)
	Codec string `yaml:"codec,omitempty" json:"codec,omitempty" toml:"codec,omitempty"`
	// Rows is the number of synthetic rows the memory backend is seeded with
	Rows int `yaml:"rows,omitempty" json:"rows,omitempty" toml:"rows,omitempty"`
	// OpenTimeout bounds opening a single reader
	OpenTimeout Duration `yaml:"open_timeout" json:"open_timeout" toml:"open_timeout"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	// MetricsAddr serves Prometheus metrics when non-empty (e.g. ":9090")
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr" toml:"metrics_addr"`
	// EnableTracing installs the OpenTelemetry tracer provider
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing" toml:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate" toml:"tracing_sample_rate"`
	// ServiceName is reported on spans
	ServiceName string `yaml:"service_name" json:"service_name" toml:"service_name"`
}

// Default returns a Config with the pool defaults of the classic generic
// object pool: 8 active, 8 idle, 30 minute idle eviction, reaper disabled,
// blocking without a bound when exhausted.
func Default() *Config {
	return &Config{
		Pool: DefaultPoolConfig(),
		Backend: BackendConfig{
			Type:        "memory",
			Table:       "users",
			Codec:       "none",
			Rows:        1000,
			OpenTimeout: Duration(10 * time.Second),
		},
		Logging: logger.DefaultConfig(),
		Observability: ObservabilityConfig{
			TracingSampleRate: 0.1,
			ServiceName:       "tablepool",
		},
	}
}

// DefaultPoolConfig returns the pool section defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Name:                 "default",
		MinIdle:              0,
		MaxIdle:              8,
		MaxActive:            8,
		MinEvictableIdleTime: Duration(30 * time.Minute),
		EvictionRunInterval:  0,
		ExhaustionPolicy:     PolicyBlock,
		MaxWait:              0,
	}
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	return c.Backend.Validate()
}

// Validate checks the pool record for internally consistent values.
func (p *PoolConfig) Validate() error {
	switch {
	case p.MinIdle < 0:
		return configError("min_idle must be greater than or equal to 0", p.MinIdle)
	case p.MaxIdle < 0:
		return configError("max_idle must be greater than or equal to 0", p.MaxIdle)
	case p.MaxActive < 0:
		return configError("max_active must be greater than or equal to 0", p.MaxActive)
	case p.MinEvictableIdleTime < 0:
		return configError("min_evictable_idle_time must be greater than or equal to 0", p.MinEvictableIdleTime.Std())
	case p.EvictionRunInterval < 0:
		return configError("eviction_run_interval must be greater than or equal to 0", p.EvictionRunInterval.Std())
	case p.MaxWait < 0:
		return configError("max_wait must be greater than or equal to 0", p.MaxWait.Std())
	case p.MaxIdle > 0 && p.MinIdle > p.MaxIdle:
		return configError("min_idle cannot exceed max_idle", p.MinIdle)
	case p.MaxActive > 0 && p.MinIdle > p.MaxActive:
		return configError("min_idle cannot exceed max_active", p.MinIdle)
	}

	switch strings.ToLower(p.ExhaustionPolicy) {
	case PolicyBlock, PolicyFail, PolicyGrow, "":
	default:
		return configError("unknown exhaustion_policy", p.ExhaustionPolicy)
	}

	for column := range p.CellSchemas {
		if !strings.Contains(column, ":") {
			return configError("cell_schemas keys must be family:qualifier", column)
		}
	}
	return nil
}

// Validate checks that the backend section names a type and a table.
func (b *BackendConfig) Validate() error {
	if b.Type == "" {
		return poolerrors.New(poolerrors.ErrorTypeConfig, "backend type is required")
	}
	if b.Table == "" {
		return poolerrors.New(poolerrors.ErrorTypeConfig, "backend table is required")
	}
	if b.OpenTimeout < 0 {
		return configError("open_timeout must be greater than or equal to 0", b.OpenTimeout.Std())
	}
	return nil
}

func configError(msg string, value interface{}) error {
	return poolerrors.New(poolerrors.ErrorTypeConfig, msg).WithDetail("value", value)
}
