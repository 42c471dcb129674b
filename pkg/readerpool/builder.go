package readerpool

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tablepool/pkg/pool"
	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

// Builder assembles a ReaderPool. Every setting is optional except the
// reader factory, and each may be set only once; a repeated or invalid
// setting is reported by Build.
type Builder struct {
	readers   table.ReaderFactory
	overrides map[table.Column]*table.CellSpec
	cfg       pool.Config
	opts      []Option
	set       map[string]bool
	err       error
}

// NewBuilder returns a Builder with the default pool configuration.
func NewBuilder() *Builder {
	return &Builder{
		cfg: pool.DefaultConfig(),
		set: make(map[string]bool),
	}
}

// once records the first error and reports whether field may be set.
func (b *Builder) once(field string, value interface{}) bool {
	if b.err != nil {
		return false
	}
	if b.set[field] {
		b.err = poolerrors.Newf(poolerrors.ErrorTypeConfig, "%s is already set", field).
			WithDetail("value", fmt.Sprint(value))
		return false
	}
	b.set[field] = true
	return true
}

func (b *Builder) reject(field, message string, value interface{}) {
	if b.err == nil {
		b.err = poolerrors.Newf(poolerrors.ErrorTypeConfig, "%s %s", field, message).
			WithDetail("value", value)
	}
}

// WithReaderFactory sets the factory readers are opened from.
func (b *Builder) WithReaderFactory(readers table.ReaderFactory) *Builder {
	if readers == nil {
		b.reject("reader factory", "may not be nil", nil)
		return b
	}
	if b.once("reader factory", readers.Table()) {
		b.readers = readers
	}
	return b
}

// WithCellSpecOverrides sets how cells of particular columns are decoded by
// every reader in the pool. The default is no overrides.
func (b *Builder) WithCellSpecOverrides(overrides map[table.Column]*table.CellSpec) *Builder {
	if overrides == nil {
		b.reject("cell spec overrides", "may not be nil", nil)
		return b
	}
	if b.once("cell spec overrides", len(overrides)) {
		b.overrides = overrides
	}
	return b
}

// WithMinIdle sets how many idle readers the reaper keeps open.
func (b *Builder) WithMinIdle(n int) *Builder {
	if n < 0 {
		b.reject("min idle", "must be greater than or equal to 0", n)
		return b
	}
	if b.once("min idle", n) {
		b.cfg.MinIdle = n
	}
	return b
}

// WithMaxIdle caps idle readers. 0 means no cap.
func (b *Builder) WithMaxIdle(n int) *Builder {
	if n < 0 {
		b.reject("max idle", "must be greater than or equal to 0", n)
		return b
	}
	if b.once("max idle", n) {
		b.cfg.MaxIdle = n
	}
	return b
}

// WithMaxActive caps open readers. 0 means no cap.
func (b *Builder) WithMaxActive(n int) *Builder {
	if n < 0 {
		b.reject("max active", "must be greater than or equal to 0", n)
		return b
	}
	if b.once("max active", n) {
		b.cfg.MaxActive = n
	}
	return b
}

// WithMinEvictableIdleTime sets how long a reader must sit idle before the
// reaper may close it.
func (b *Builder) WithMinEvictableIdleTime(d time.Duration) *Builder {
	if d < 0 {
		b.reject("min evictable idle time", "must be greater than or equal to 0", d.String())
		return b
	}
	if b.once("min evictable idle time", d) {
		b.cfg.MinEvictableIdleTime = d
	}
	return b
}

// WithEvictionRunInterval sets the reaper period. 0 disables the reaper.
func (b *Builder) WithEvictionRunInterval(d time.Duration) *Builder {
	if d < 0 {
		b.reject("eviction run interval", "must be greater than or equal to 0", d.String())
		return b
	}
	if b.once("eviction run interval", d) {
		b.cfg.EvictionRunInterval = d
	}
	return b
}

// WithExhaustionPolicy sets what Borrow does when every reader is on loan.
func (b *Builder) WithExhaustionPolicy(policy pool.ExhaustionPolicy) *Builder {
	if b.once("exhaustion policy", policy) {
		b.cfg.Policy = policy
	}
	return b
}

// WithMaxWait bounds how long a blocked Borrow waits. 0 waits without bound.
func (b *Builder) WithMaxWait(d time.Duration) *Builder {
	if d < 0 {
		b.reject("max wait", "must be greater than or equal to 0", d.String())
		return b
	}
	if b.once("max wait", d) {
		b.cfg.MaxWait = d
	}
	return b
}

// WithName labels the pool in logs and metrics. It defaults to the table
// name.
func (b *Builder) WithName(name string) *Builder {
	if b.once("name", name) {
		b.opts = append(b.opts, func(o *options) { o.name = name })
	}
	return b
}

// WithLogger sets the pool's logger.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	if b.once("logger", "logger") {
		b.opts = append(b.opts, WithLogger(l))
	}
	return b
}

// WithOptions appends further options, such as WithOpenTimeout.
func (b *Builder) WithOptions(opts ...Option) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// Build creates the ReaderPool.
func (b *Builder) Build() (*ReaderPool, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.readers == nil {
		return nil, poolerrors.New(poolerrors.ErrorTypeConfig, "reader factory may not be nil")
	}
	return newReaderPool(b.readers, b.overrides, b.cfg, b.opts...)
}
