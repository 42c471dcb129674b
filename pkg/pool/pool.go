package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tablepool/pkg/logger"
	"github.com/ajitpratap0/tablepool/pkg/metrics"
	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
)

var tracer = otel.Tracer("github.com/ajitpratap0/tablepool/pkg/pool")

// grant is what a waiting borrower receives. A nil entry means the waiter
// now holds a creation reservation and must create its own handle.
type grant[T any] struct {
	entry *entry[T]
}

type waiter[T any] struct {
	ch chan grant[T]
}

// Pool is a bounded pool of expensive handles. It is safe for concurrent use.
//
// All bookkeeping is guarded by one mutex. Factory calls run outside it, with
// a creation reservation counted against MaxActive while Create is in flight.
// Idle handles are reused most recently returned first; the reaper evicts
// the oldest first. Blocked borrowers are served in arrival order: a returned
// handle goes straight to the oldest waiter without passing through the idle
// list.
type Pool[T any] struct {
	name    string
	factory Factory[T]
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.PoolCollector
	now     func() time.Time

	mu        sync.Mutex
	idle      []*entry[T] // oldest first
	numActive int
	creating  int
	waiters   []*waiter[T]
	closed    bool
	closedCh  chan struct{}

	stopReaper context.CancelFunc
	reaperDone chan struct{}

	created   atomic.Uint64
	destroyed atomic.Uint64
	borrowed  atomic.Uint64
	returned  atomic.Uint64
	evicted   atomic.Uint64
}

// Option configures a Pool.
type Option func(*options)

type options struct {
	name    string
	logger  *zap.Logger
	metrics *metrics.PoolCollector
	now     func() time.Time
}

// WithName labels the pool in logs and spans.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger. The global logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics publishes the pool's occupancy and events to c.
func WithMetrics(c *metrics.PoolCollector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithClock replaces time.Now for idle timestamps and eviction decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New builds a pool. When cfg.EvictionRunInterval is positive a reaper
// goroutine runs until Close.
func New[T any](factory Factory[T], cfg Config, opts ...Option) (*Pool[T], error) {
	if factory == nil {
		return nil, poolerrors.New(poolerrors.ErrorTypeConfig, "pool factory is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{name: "default", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get()
	}

	p := &Pool[T]{
		name:     o.name,
		factory:  factory,
		cfg:      cfg,
		logger:   o.logger.With(zap.String(logger.FieldPool, o.name)),
		metrics:  o.metrics,
		now:      o.now,
		closedCh: make(chan struct{}),
	}
	p.publishLocked()

	if cfg.EvictionRunInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		p.stopReaper = cancel
		p.reaperDone = make(chan struct{})
		go p.reap(ctx, cfg.EvictionRunInterval)
	}

	p.logger.Debug("pool created",
		zap.Int("max_active", cfg.MaxActive),
		zap.Int("max_idle", cfg.MaxIdle),
		zap.Int("min_idle", cfg.MinIdle),
		zap.String("policy", cfg.Policy.String()),
		zap.Duration("max_wait", cfg.MaxWait),
		zap.Duration("eviction_run_interval", cfg.EvictionRunInterval))
	return p, nil
}

// Name returns the pool's name.
func (p *Pool[T]) Name() string {
	return p.name
}

// Config returns the pool's configuration.
func (p *Pool[T]) Config() Config {
	return p.cfg
}

// Borrow lends out a handle: the most recently returned idle one when
// available, otherwise a new one while under MaxActive. When the pool is
// exhausted the configured policy applies. Cancelling ctx abandons a blocked
// borrow with an ErrorTypeCanceled error.
//
// Each call returns a new PooledObject, which must be given back exactly
// once with Return or Invalidate. Log fields carried by ctx (see
// logger.ContextWith) are attached to the pool's log lines for this borrow.
func (p *Pool[T]) Borrow(ctx context.Context) (*PooledObject[T], error) {
	ctx, span := tracer.Start(ctx, "pool.borrow", trace.WithAttributes(
		attribute.String("pool.name", p.name),
		attribute.String("pool.policy", p.cfg.Policy.String()),
	))
	defer span.End()
	log := logger.FromContext(ctx, p.logger)

	start := time.Now()
	obj, err := p.borrow(ctx, log)
	wait := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.Borrow(borrowOutcome(err), wait)
		log.Debug("borrow failed", zap.Duration("wait", wait), zap.Error(err))
		return nil, err
	}
	p.borrowed.Add(1)
	p.metrics.Borrow(metrics.OutcomeSuccess, wait)
	log.Debug("handle borrowed", zap.Duration("wait", wait))
	return obj, nil
}

func (p *Pool[T]) borrow(ctx context.Context, log *zap.Logger) (*PooledObject[T], error) {
	var deadline time.Time
	if p.cfg.Policy == Block && p.cfg.MaxWait > 0 {
		deadline = time.Now().Add(p.cfg.MaxWait)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, errCanceled(err)
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, errClosed()
		}

		if e := p.popIdleLocked(); e != nil {
			p.mu.Unlock()
			if p.activate(ctx, e, log) {
				return p.lend(e), nil
			}
			p.discard(e, metrics.ReasonInvalid)
			continue
		}

		if p.cfg.Policy == Grow || p.hasCapacityLocked() {
			p.creating++
			p.publishLocked()
			p.mu.Unlock()
			return p.createAndLend(ctx, log)
		}

		if p.cfg.Policy == Fail {
			p.mu.Unlock()
			return nil, poolerrors.New(poolerrors.ErrorTypeExhausted, "pool exhausted").
				WithDetail("pool", p.name).
				WithDetail("max_active", p.cfg.MaxActive)
		}

		w := &waiter[T]{ch: make(chan grant[T], 1)}
		p.waiters = append(p.waiters, w)
		p.publishLocked()
		p.mu.Unlock()

		g, err := p.await(ctx, w, deadline)
		if err != nil {
			return nil, err
		}
		if g.entry == nil {
			return p.createAndLend(ctx, log)
		}
		if p.activate(ctx, g.entry, log) {
			return p.lend(g.entry), nil
		}
		p.discard(g.entry, metrics.ReasonInvalid)
	}
}

// await blocks until w is granted something, the deadline passes, ctx ends or
// the pool closes. A grant that races Close is forwarded rather than used.
func (p *Pool[T]) await(ctx context.Context, w *waiter[T], deadline time.Time) (grant[T], error) {
	var expired <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case g := <-w.ch:
		if p.Closed() {
			p.forward(g)
			return grant[T]{}, errClosed()
		}
		return g, nil
	case <-expired:
		return grant[T]{}, p.abandon(w, poolerrors.New(poolerrors.ErrorTypeTimeout, "timed out waiting for a pooled handle").
			WithDetail("pool", p.name).
			WithDetail("max_wait", p.cfg.MaxWait.String()))
	case <-ctx.Done():
		return grant[T]{}, p.abandon(w, errCanceled(ctx.Err()))
	case <-p.closedCh:
		return grant[T]{}, p.abandon(w, errClosed())
	}
}

// abandon takes w out of the queue. If a grant reached w first it is
// forwarded, so nothing a departing waiter was given is lost.
func (p *Pool[T]) abandon(w *waiter[T], cause error) error {
	p.mu.Lock()
	if p.removeWaiterLocked(w) {
		p.publishLocked()
		p.mu.Unlock()
		return cause
	}
	p.mu.Unlock()

	// Grants are sent under the lock after the waiter is dequeued, so one is
	// already buffered.
	p.forward(<-w.ch)
	return cause
}

// forward passes on a grant its waiter will not use: a reservation is
// released, a handle goes to the next waiter or the idle list, or is
// destroyed once the pool is closed.
func (p *Pool[T]) forward(g grant[T]) {
	if g.entry == nil {
		p.releaseReservation()
		return
	}

	p.mu.Lock()
	reason := ""
	if p.closed {
		reason = metrics.ReasonClosed
		p.invalidateLocked(g.entry)
	} else if p.releaseLocked(g.entry) {
		reason = metrics.ReasonSurplus
	}
	p.publishLocked()
	p.mu.Unlock()
	if reason != "" {
		p.destroy(g.entry, reason)
	}
}

// Return gives a borrowed handle back. The handle is passivated and
// validated; a handle that fails either is destroyed. A valid handle goes to
// the oldest waiter if there is one, otherwise into the idle list unless the
// list is already at MaxIdle. After Close the handle is destroyed.
//
// Returning a loan that is not outstanding, including one already returned
// or one from another pool, is an ErrorTypeInvalidReturn error and changes
// nothing.
func (p *Pool[T]) Return(obj *PooledObject[T]) error {
	e, err := p.claim(obj)
	if err != nil {
		return err
	}

	ctx := context.Background()
	valid := p.passivate(ctx, e) && p.factory.Validate(ctx, e.value)

	p.mu.Lock()
	reason := ""
	switch {
	case p.closed:
		reason = metrics.ReasonClosed
		p.invalidateLocked(e)
	case !valid:
		reason = metrics.ReasonInvalid
		p.invalidateLocked(e)
	case p.releaseLocked(e):
		reason = metrics.ReasonSurplus
	}
	p.publishLocked()
	p.mu.Unlock()

	p.returned.Add(1)
	p.metrics.Returned()
	if reason != "" {
		p.destroy(e, reason)
	}
	return nil
}

// Invalidate destroys a borrowed handle instead of returning it, freeing its
// slot. Use it when the borrower knows the handle is broken.
func (p *Pool[T]) Invalidate(obj *PooledObject[T]) error {
	e, err := p.claim(obj)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.invalidateLocked(e)
	p.publishLocked()
	p.mu.Unlock()

	p.destroy(e, metrics.ReasonInvalid)
	return nil
}

// claim ends the loan obj, rejecting loans that are not outstanding on p.
func (p *Pool[T]) claim(obj *PooledObject[T]) (*entry[T], error) {
	if obj == nil || obj.pool != p {
		return nil, poolerrors.New(poolerrors.ErrorTypeInvalidReturn, "object was not borrowed from this pool").
			WithDetail("pool", p.name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e := obj.entry
	if e.loan != obj || e.state != StateActive {
		return nil, poolerrors.New(poolerrors.ErrorTypeInvalidReturn, "object is not on loan").
			WithDetail("pool", p.name).
			WithDetail("state", e.state.String())
	}
	e.loan = nil
	return e, nil
}

// Close shuts the pool down: idle handles are destroyed, blocked borrowers
// fail with an ErrorTypeClosed error and the reaper stops, abandoning any
// refill in progress. Handles still on loan are destroyed when they come
// back. Close is idempotent.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closedCh)
	idle := p.idle
	p.idle = nil
	for _, e := range idle {
		e.state = StateInvalid
	}
	onLoan := p.numActive
	p.publishLocked()
	p.mu.Unlock()

	if p.stopReaper != nil {
		p.stopReaper()
		<-p.reaperDone
	}
	for _, e := range idle {
		p.destroy(e, metrics.ReasonClosed)
	}

	p.logger.Info("pool closed",
		zap.Int("idle_destroyed", len(idle)),
		zap.Int("on_loan", onLoan))
	return nil
}

// Closed reports whether Close has been called.
func (p *Pool[T]) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// NumActive returns the number of handles on loan.
func (p *Pool[T]) NumActive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numActive
}

// NumIdle returns the number of idle handles.
func (p *Pool[T]) NumIdle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// NumWaiters returns the number of blocked borrowers.
func (p *Pool[T]) NumWaiters() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Name      string `json:"name" yaml:"name"`
	Policy    string `json:"policy" yaml:"policy"`
	MaxActive int    `json:"max_active" yaml:"max_active"`
	MaxIdle   int    `json:"max_idle" yaml:"max_idle"`
	Active    int    `json:"active" yaml:"active"`
	Idle      int    `json:"idle" yaml:"idle"`
	Creating  int    `json:"creating" yaml:"creating"`
	Waiters   int    `json:"waiters" yaml:"waiters"`
	Created   uint64 `json:"created" yaml:"created"`
	Destroyed uint64 `json:"destroyed" yaml:"destroyed"`
	Borrowed  uint64 `json:"borrowed" yaml:"borrowed"`
	Returned  uint64 `json:"returned" yaml:"returned"`
	Evicted   uint64 `json:"evicted" yaml:"evicted"`
	Closed    bool   `json:"closed" yaml:"closed"`
}

// Stats returns the pool's current counts.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Name:      p.name,
		Policy:    p.cfg.Policy.String(),
		MaxActive: p.cfg.MaxActive,
		MaxIdle:   p.cfg.MaxIdle,
		Active:    p.numActive,
		Idle:      len(p.idle),
		Creating:  p.creating,
		Waiters:   len(p.waiters),
		Closed:    p.closed,
	}
	p.mu.Unlock()

	s.Created = p.created.Load()
	s.Destroyed = p.destroyed.Load()
	s.Borrowed = p.borrowed.Load()
	s.Returned = p.returned.Load()
	s.Evicted = p.evicted.Load()
	return s
}

// createAndLend turns a held creation reservation into a new loan.
func (p *Pool[T]) createAndLend(ctx context.Context, log *zap.Logger) (*PooledObject[T], error) {
	value, err := p.factory.Create(ctx)
	if err != nil {
		p.releaseReservation()
		log.Warn("failed to create pooled handle", zap.Error(err))
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeCreation, "failed to create pooled handle").
			WithDetail("pool", p.name)
	}
	p.created.Add(1)
	p.metrics.Created()

	e := &entry[T]{value: value, state: StateActive, createdAt: p.now()}
	if a, ok := p.factory.(Activator[T]); ok {
		if err := a.Activate(ctx, value); err != nil {
			e.state = StateInvalid
			p.releaseReservation()
			p.destroy(e, metrics.ReasonInvalid)
			return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeCreation, "failed to activate new handle").
				WithDetail("pool", p.name)
		}
	}

	obj := &PooledObject[T]{entry: e, pool: p}
	p.mu.Lock()
	p.creating--
	if p.closed {
		e.state = StateInvalid
		p.publishLocked()
		p.mu.Unlock()
		p.destroy(e, metrics.ReasonClosed)
		return nil, errClosed()
	}
	p.numActive++
	e.borrows = 1
	e.loan = obj
	p.publishLocked()
	p.mu.Unlock()
	return obj, nil
}

// lend starts a new loan of an active handle that has passed activation.
func (p *Pool[T]) lend(e *entry[T]) *PooledObject[T] {
	obj := &PooledObject[T]{entry: e, pool: p}
	p.mu.Lock()
	e.borrows++
	e.loan = obj
	p.mu.Unlock()
	return obj
}

func (p *Pool[T]) activate(ctx context.Context, e *entry[T], log *zap.Logger) bool {
	if a, ok := p.factory.(Activator[T]); ok {
		if err := a.Activate(ctx, e.value); err != nil {
			log.Debug("activation failed, discarding handle", zap.Error(err))
			return false
		}
	}
	if !p.factory.Validate(ctx, e.value) {
		log.Debug("handle failed validation on borrow, discarding")
		return false
	}
	return true
}

func (p *Pool[T]) passivate(ctx context.Context, e *entry[T]) bool {
	if ps, ok := p.factory.(Passivator[T]); ok {
		if err := ps.Passivate(ctx, e.value); err != nil {
			p.logger.Debug("passivation failed, discarding handle", zap.Error(err))
			return false
		}
	}
	return true
}

// discard destroys an active handle and frees its slot.
func (p *Pool[T]) discard(e *entry[T], reason string) {
	p.mu.Lock()
	p.invalidateLocked(e)
	p.publishLocked()
	p.mu.Unlock()
	p.destroy(e, reason)
}

func (p *Pool[T]) destroy(e *entry[T], reason string) {
	if err := p.factory.Destroy(context.Background(), e.value); err != nil {
		p.logger.Warn("failed to destroy pooled handle",
			zap.String("reason", reason),
			zap.Error(err))
	}
	p.destroyed.Add(1)
	p.metrics.Destroyed(reason)
}

func (p *Pool[T]) releaseReservation() {
	p.mu.Lock()
	p.creating--
	p.slotFreedLocked()
	p.publishLocked()
	p.mu.Unlock()
}

func (p *Pool[T]) hasCapacityLocked() bool {
	return p.cfg.MaxActive <= 0 || p.numActive+len(p.idle)+p.creating < p.cfg.MaxActive
}

func (p *Pool[T]) popIdleLocked() *entry[T] {
	n := len(p.idle)
	if n == 0 {
		return nil
	}
	e := p.idle[n-1]
	p.idle[n-1] = nil
	p.idle = p.idle[:n-1]
	e.state = StateActive
	p.numActive++
	p.publishLocked()
	return e
}

// releaseLocked places a valid active handle that is not on loan: with the
// oldest waiter, else in the idle list. It reports true when the idle list
// is full and the handle must be destroyed by the caller.
func (p *Pool[T]) releaseLocked(e *entry[T]) bool {
	if len(p.waiters) > 0 {
		w := p.popWaiterLocked()
		w.ch <- grant[T]{entry: e}
		return false
	}
	if p.cfg.MaxIdle > 0 && len(p.idle) >= p.cfg.MaxIdle {
		p.invalidateLocked(e)
		return true
	}
	e.state = StateIdle
	e.idleSince = p.now()
	p.numActive--
	p.idle = append(p.idle, e)
	return false
}

func (p *Pool[T]) invalidateLocked(e *entry[T]) {
	e.state = StateInvalid
	e.loan = nil
	p.numActive--
	p.slotFreedLocked()
}

// slotFreedLocked hands a creation reservation to the oldest waiter when
// there is room for one more handle.
func (p *Pool[T]) slotFreedLocked() {
	if p.closed || len(p.waiters) == 0 || !p.hasCapacityLocked() {
		return
	}
	w := p.popWaiterLocked()
	p.creating++
	w.ch <- grant[T]{}
}

func (p *Pool[T]) popWaiterLocked() *waiter[T] {
	w := p.waiters[0]
	p.waiters[0] = nil
	p.waiters = p.waiters[1:]
	return w
}

func (p *Pool[T]) removeWaiterLocked(w *waiter[T]) bool {
	for i, q := range p.waiters {
		if q == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pool[T]) publishLocked() {
	p.metrics.SetOccupancy(p.numActive, len(p.idle), len(p.waiters))
}

func errClosed() error {
	return poolerrors.New(poolerrors.ErrorTypeClosed, "pool is closed")
}

func errCanceled(err error) error {
	return poolerrors.Wrap(err, poolerrors.ErrorTypeCanceled, "borrow canceled")
}

func borrowOutcome(err error) string {
	switch {
	case poolerrors.IsType(err, poolerrors.ErrorTypeExhausted):
		return metrics.OutcomeExhausted
	case poolerrors.IsType(err, poolerrors.ErrorTypeTimeout):
		return metrics.OutcomeTimeout
	case poolerrors.IsType(err, poolerrors.ErrorTypeCanceled):
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeError
	}
}
