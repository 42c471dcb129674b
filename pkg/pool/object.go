package pool

import "time"

// State is the lifecycle stage of a pooled handle.
type State int

const (
	// StateIdle means the handle is parked in the pool.
	StateIdle State = iota
	// StateActive means the handle is on loan.
	StateActive
	// StateInvalid means the handle has been or is being destroyed.
	StateInvalid
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// entry is one handle and the pool's bookkeeping for it. It outlives the
// loans made of it. All fields are guarded by the owning pool's lock.
type entry[T any] struct {
	value     T
	state     State
	createdAt time.Time
	idleSince time.Time
	borrows   int64
	// loan is the current loan, nil unless the handle is active.
	loan *PooledObject[T]
}

// PooledObject is one loan of a pooled handle. Every Borrow hands out a new
// PooledObject, so a loan that has been returned stays returned even after
// its handle is lent to someone else.
type PooledObject[T any] struct {
	entry *entry[T]
	pool  *Pool[T]
}

// Value returns the handle.
func (o *PooledObject[T]) Value() T {
	return o.entry.value
}

// State returns the current state of the underlying handle.
func (o *PooledObject[T]) State() State {
	o.pool.mu.Lock()
	defer o.pool.mu.Unlock()
	return o.entry.state
}

// OnLoan reports whether this loan is still outstanding.
func (o *PooledObject[T]) OnLoan() bool {
	o.pool.mu.Lock()
	defer o.pool.mu.Unlock()
	return o.entry.loan == o && o.entry.state == StateActive
}

// CreatedAt returns when the handle was created.
func (o *PooledObject[T]) CreatedAt() time.Time {
	return o.entry.createdAt
}

// LastReturned returns when the handle last entered the idle state. It is
// zero for a handle that has never been idle.
func (o *PooledObject[T]) LastReturned() time.Time {
	o.pool.mu.Lock()
	defer o.pool.mu.Unlock()
	return o.entry.idleSince
}

// BorrowCount returns how many times the handle has been lent out.
func (o *PooledObject[T]) BorrowCount() int64 {
	o.pool.mu.Lock()
	defer o.pool.mu.Unlock()
	return o.entry.borrows
}
