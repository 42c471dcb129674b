// Package readerpool pools table readers. Opening a table.Reader is
// expensive because each one holds its own connection or client to the
// backing store, so a ReaderPool keeps a bounded set of readers open and
// lends them out.
//
// Borrow returns a *PooledReader; closing it returns the reader to the pool:
//
//	rp, err := readerpool.NewBuilder().
//	    WithReaderFactory(factory).
//	    WithMaxActive(16).
//	    WithExhaustionPolicy(pool.Fail).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	defer rp.Close()
//
//	reader, err := rp.Borrow(ctx)
//	if err != nil {
//	    return err
//	}
//	defer reader.Close()
//	row, err := reader.Get(ctx, "user-42", table.NewDataRequest("info"))
package readerpool

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tablepool/pkg/config"
	"github.com/ajitpratap0/tablepool/pkg/logger"
	"github.com/ajitpratap0/tablepool/pkg/metrics"
	"github.com/ajitpratap0/tablepool/pkg/pool"
	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

const defaultPingTimeout = 5 * time.Second

// ReaderPool lends out readers for one table.
type ReaderPool struct {
	name    string
	table   string
	pool    *pool.Pool[*slot]
	metrics *metrics.PoolCollector
	logger  *zap.Logger
}

// Option configures a ReaderPool.
type Option func(*options)

type options struct {
	name        string
	logger      *zap.Logger
	openTimeout time.Duration
	pingTimeout time.Duration
	poolOpts    []pool.Option
}

// WithLogger sets the pool's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithOpenTimeout bounds opening a single reader.
func WithOpenTimeout(d time.Duration) Option {
	return func(o *options) {
		o.openTimeout = d
	}
}

// WithPingTimeout bounds the liveness check run when a reader is borrowed
// or returned.
func WithPingTimeout(d time.Duration) Option {
	return func(o *options) {
		o.pingTimeout = d
	}
}

// WithPoolOptions passes options through to the underlying pool.
func WithPoolOptions(opts ...pool.Option) Option {
	return func(o *options) {
		o.poolOpts = append(o.poolOpts, opts...)
	}
}

// NewFromConfig validates cfg and builds a ReaderPool from it. Cell schemas
// in cfg become the readers' cell spec overrides.
func NewFromConfig(readers table.ReaderFactory, cfg config.PoolConfig, opts ...Option) (*ReaderPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := pool.ParseExhaustionPolicy(cfg.ExhaustionPolicy)
	if err != nil {
		return nil, err
	}
	overrides, err := table.ParseOverrides(cfg.CellSchemas)
	if err != nil {
		return nil, err
	}

	pcfg := pool.Config{
		MinIdle:              cfg.MinIdle,
		MaxIdle:              cfg.MaxIdle,
		MaxActive:            cfg.MaxActive,
		MinEvictableIdleTime: cfg.MinEvictableIdleTime.Std(),
		EvictionRunInterval:  cfg.EvictionRunInterval.Std(),
		Policy:               policy,
		MaxWait:              cfg.MaxWait.Std(),
	}
	if cfg.Name != "" {
		opts = append([]Option{func(o *options) { o.name = cfg.Name }}, opts...)
	}
	return newReaderPool(readers, overrides, pcfg, opts...)
}

func newReaderPool(readers table.ReaderFactory, overrides map[table.Column]*table.CellSpec, cfg pool.Config, opts ...Option) (*ReaderPool, error) {
	if readers == nil {
		return nil, poolerrors.New(poolerrors.ErrorTypeConfig, "reader factory is required")
	}

	o := options{pingTimeout: defaultPingTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = readers.Table()
	}
	if o.logger == nil {
		o.logger = logger.Get()
	}
	log := o.logger.With(
		zap.String("component", "readerpool"),
		zap.String(logger.FieldTable, readers.Table()))

	collector := metrics.NewPoolCollector(o.name)
	poolOpts := append([]pool.Option{
		pool.WithName(o.name),
		pool.WithLogger(log),
		pool.WithMetrics(collector),
	}, o.poolOpts...)

	factory := &slotFactory{
		readers:     readers,
		opts:        table.ReaderOptions{Overrides: overrides},
		openTimeout: o.openTimeout,
		pingTimeout: o.pingTimeout,
	}
	p, err := pool.New[*slot](factory, cfg, poolOpts...)
	if err != nil {
		return nil, err
	}

	log.Info("reader pool started",
		zap.String(logger.FieldPool, o.name),
		zap.Int("max_active", cfg.MaxActive),
		zap.String("policy", cfg.Policy.String()),
		zap.Int("cell_overrides", len(overrides)))

	return &ReaderPool{
		name:    o.name,
		table:   readers.Table(),
		pool:    p,
		metrics: collector,
		logger:  log,
	}, nil
}

// Name returns the pool's name.
func (p *ReaderPool) Name() string {
	return p.name
}

// Table returns the table the pool's readers serve.
func (p *ReaderPool) Table() string {
	return p.table
}

// Borrow lends out a reader. The caller must Close it when done.
func (p *ReaderPool) Borrow(ctx context.Context) (*PooledReader, error) {
	obj, err := p.pool.Borrow(ctx)
	if err != nil {
		return nil, err
	}
	return &PooledReader{obj: obj, owner: p}, nil
}

// Evict runs one idle eviction pass immediately.
func (p *ReaderPool) Evict(ctx context.Context) (int, error) {
	return p.pool.Evict(ctx)
}

// Stats returns the pool's current counts.
func (p *ReaderPool) Stats() pool.Stats {
	return p.pool.Stats()
}

// Close shuts the pool down. Idle readers are closed now, borrowed readers
// when they are returned.
func (p *ReaderPool) Close() error {
	err := p.pool.Close()
	p.metrics.Unregister()
	return err
}
