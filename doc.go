// Package tablepool provides bounded pools of table readers. A table reader
// holds an expensive handle to its backing store (a database connection, a
// storage client), so opening one per request is wasteful and opening one per
// caller is unbounded. A reader pool keeps a capped set of readers open, lends
// them out and takes them back.
//
// # Architecture
//
// The pool is built in two layers:
//
// 1. A generic object pool (pkg/pool) owns the borrow/return state machine:
// capacity accounting, the idle list, the exhaustion policies and the idle
// reaper. It knows nothing about tables; objects come from a Factory.
//
// 2. The reader pool (pkg/readerpool) adapts a table.ReaderFactory to that
// Factory contract and wraps every borrowed reader in a PooledReader whose
// Close returns the reader instead of closing it.
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/tablepool/pkg/pool"
//	    "github.com/ajitpratap0/tablepool/pkg/readerpool"
//	    "github.com/ajitpratap0/tablepool/pkg/store/pgstore"
//	    "github.com/ajitpratap0/tablepool/pkg/table"
//	)
//
//	factory, _ := pgstore.NewFactory(dsn, "users")
//
//	rp, _ := readerpool.NewBuilder().
//	    WithReaderFactory(factory).
//	    WithMaxActive(16).
//	    WithExhaustionPolicy(pool.Block).
//	    WithMaxWait(2 * time.Second).
//	    Build()
//	defer rp.Close()
//
//	reader, err := rp.Borrow(ctx)
//	if err != nil {
//	    return err
//	}
//	defer reader.Close()
//	row, err := reader.Get(ctx, "user-42", table.NewDataRequest("info"))
//
// # Exhaustion Policies
//
// When every permitted reader is on loan, Borrow either blocks until one is
// returned (BLOCK, optionally bounded by MaxWait), fails at once (FAIL) or
// opens one more reader past the cap (GROW).
//
// # Key Packages
//
//	pkg/pool          - Generic bounded object pool with idle eviction
//	pkg/readerpool    - Pool of table readers and its builder
//	pkg/table         - Read-side table model and the Reader interface
//	pkg/store/...     - Backends: memory, postgres, mysql, s3, gcs, mongodb
//	pkg/config        - YAML/TOML configuration
//	pkg/poolerrors    - Structured error handling
//	pkg/logger        - Structured logging
//	pkg/metrics       - Prometheus pool metrics
//	pkg/observability - OpenTelemetry tracing and pool gauges
//
// # Configuration
//
// Pools are configured from the pool section of a configuration file:
//
//	pool:
//	  max_active: 16
//	  max_idle: 8
//	  min_idle: 2
//	  min_evictable_idle_time: 30m
//	  eviction_run_interval: 1m
//	  exhaustion_policy: block
//	  max_wait: 2s
//
// Environment variables are supported with ${VAR_NAME} syntax, and the CLI
// reads TABLEPOOL_* overrides.
//
// # Development
//
//	go build ./cmd/tablepool
//	./tablepool backends
//	./tablepool bench --workers 32 --operations 100000
//
// Backend tests against real stores are skipped unless their environment
// variable is set: TABLEPOOL_POSTGRES_DSN, TABLEPOOL_MYSQL_DSN,
// TABLEPOOL_S3_BUCKET, TABLEPOOL_GCS_BUCKET, TABLEPOOL_MONGODB_URI.
package tablepool
