// Package pool implements a bounded pool of expensive, reusable handles.
// Handles are created by a Factory, lent out with Borrow and given back with
// Return. The pool caps how many handles exist at once, keeps a bounded
// number idle for reuse and destroys handles that have been idle too long.
//
// # Lifecycle
//
// Each Borrow returns a new PooledObject, one loan of a handle. A loan is
// given back exactly once, with Return or Invalidate; giving back a loan
// that has already ended is an ErrorTypeInvalidReturn error even when its
// handle has since been lent again. A handle's state is one of:
//
//	idle     parked in the pool, ready to lend
//	active   on loan to a borrower
//	invalid  destroyed, or about to be
//
// Borrow moves an idle handle to active after activating and validating it;
// a handle that fails either is destroyed and the borrow tries again. Return
// passivates and validates the handle before it becomes idle.
//
// # Exhaustion
//
// When MaxActive handles exist and none is idle, the pool's
// ExhaustionPolicy decides what Borrow does:
//
//	Block  wait for a handle, up to MaxWait (0 waits indefinitely)
//	Fail   return an ErrorTypeExhausted error at once
//	Grow   create a handle anyway, exceeding MaxActive
//
// Blocked borrowers are served first come first served. A returned handle
// is passed directly to the oldest waiter, and a slot freed by a destroyed
// handle lets the oldest waiter create a fresh one.
//
// # Eviction
//
// With a positive EvictionRunInterval a reaper goroutine periodically
// destroys handles idle for longer than MinEvictableIdleTime, oldest first,
// keeping at least MinIdle, and then tops the idle list back up to MinIdle.
// Evict runs the same pass on demand.
//
// # Usage
//
//	p, err := pool.New[*sql.Conn](factory, pool.DefaultConfig(),
//	    pool.WithName("orders"),
//	    pool.WithMetrics(metrics.NewPoolCollector("orders")))
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	obj, err := p.Borrow(ctx)
//	if err != nil {
//	    return err
//	}
//	defer p.Return(obj)
//	conn := obj.Value()
//
// # Thread Safety
//
// All Pool methods are safe for concurrent use. Factory methods are never
// called with the pool's lock held, so a slow Create does not stall other
// borrowers.
package pool
