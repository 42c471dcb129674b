package pool

import "context"

// Factory creates, destroys and checks the handles a Pool manages. Create and
// Destroy may be slow; the pool never calls them while holding its lock.
type Factory[T any] interface {
	// Create opens a new handle.
	Create(ctx context.Context) (T, error)
	// Destroy releases a handle for good. Errors are logged, never surfaced
	// to borrowers.
	Destroy(ctx context.Context, value T) error
	// Validate reports whether a handle is still usable.
	Validate(ctx context.Context, value T) bool
}

// Activator is implemented by factories that prepare a handle each time it is
// lent out. A failed activation discards the handle.
type Activator[T any] interface {
	Activate(ctx context.Context, value T) error
}

// Passivator is implemented by factories that reset a handle each time it
// comes back. A failed passivation discards the handle.
type Passivator[T any] interface {
	Passivate(ctx context.Context, value T) error
}

// FactoryFuncs adapts plain functions to Factory, Activator and Passivator.
// Nil Destroy, Validate, Activate and Passivate functions are no-ops that
// succeed.
type FactoryFuncs[T any] struct {
	CreateFunc    func(ctx context.Context) (T, error)
	DestroyFunc   func(ctx context.Context, value T) error
	ValidateFunc  func(ctx context.Context, value T) bool
	ActivateFunc  func(ctx context.Context, value T) error
	PassivateFunc func(ctx context.Context, value T) error
}

// Create calls CreateFunc.
func (f FactoryFuncs[T]) Create(ctx context.Context) (T, error) {
	return f.CreateFunc(ctx)
}

// Destroy calls DestroyFunc.
func (f FactoryFuncs[T]) Destroy(ctx context.Context, value T) error {
	if f.DestroyFunc == nil {
		return nil
	}
	return f.DestroyFunc(ctx, value)
}

// Validate calls ValidateFunc.
func (f FactoryFuncs[T]) Validate(ctx context.Context, value T) bool {
	if f.ValidateFunc == nil {
		return true
	}
	return f.ValidateFunc(ctx, value)
}

// Activate calls ActivateFunc.
func (f FactoryFuncs[T]) Activate(ctx context.Context, value T) error {
	if f.ActivateFunc == nil {
		return nil
	}
	return f.ActivateFunc(ctx, value)
}

// Passivate calls PassivateFunc.
func (f FactoryFuncs[T]) Passivate(ctx context.Context, value T) error {
	if f.PassivateFunc == nil {
		return nil
	}
	return f.PassivateFunc(ctx, value)
}
