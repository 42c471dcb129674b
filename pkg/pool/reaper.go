package pool

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tablepool/pkg/metrics"
	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
)

// reap runs Evict every interval until ctx is canceled by Close. The same
// ctx is passed to Create during refills, so a slow factory cannot hold
// Close up.
func (p *Pool[T]) reap(ctx context.Context, interval time.Duration) {
	defer close(p.reaperDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, err := p.Evict(ctx)
			if err != nil && ctx.Err() == nil && !poolerrors.IsType(err, poolerrors.ErrorTypeClosed) {
				p.logger.Warn("eviction run failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Evict runs one reaper pass and returns the number of handles it destroyed.
// Idle handles that have been idle longer than MinEvictableIdleTime are
// destroyed oldest first, never taking the idle count below MinIdle. The
// pass then creates handles until MinIdle idle handles exist or MaxActive is
// reached; ctx bounds those creations.
func (p *Pool[T]) Evict(ctx context.Context) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errClosed()
	}
	victims := p.evictableLocked()
	for range victims {
		p.slotFreedLocked()
	}
	p.publishLocked()
	p.mu.Unlock()

	for _, e := range victims {
		p.destroy(e, metrics.ReasonEvicted)
	}
	if len(victims) > 0 {
		p.evicted.Add(uint64(len(victims)))
		p.logger.Debug("evicted idle handles", zap.Int("count", len(victims)))
	}

	return len(victims), p.ensureMinIdle(ctx)
}

func (p *Pool[T]) evictableLocked() []*entry[T] {
	if p.cfg.MinEvictableIdleTime <= 0 {
		return nil
	}
	excess := len(p.idle) - p.cfg.MinIdle
	if excess <= 0 {
		return nil
	}

	now := p.now()
	var victims []*entry[T]
	kept := make([]*entry[T], 0, len(p.idle))
	for _, e := range p.idle {
		if excess > 0 && now.Sub(e.idleSince) > p.cfg.MinEvictableIdleTime {
			e.state = StateInvalid
			victims = append(victims, e)
			excess--
			continue
		}
		kept = append(kept, e)
	}
	p.idle = kept
	return victims
}

// ensureMinIdle creates idle handles one at a time until MinIdle is met or
// the pool has no room left.
func (p *Pool[T]) ensureMinIdle(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.closed || len(p.idle) >= p.cfg.MinIdle || !p.hasCapacityLocked() {
			p.mu.Unlock()
			return nil
		}
		p.creating++
		p.publishLocked()
		p.mu.Unlock()

		value, err := p.factory.Create(ctx)
		if err != nil {
			p.releaseReservation()
			if ctx.Err() != nil {
				return errCanceled(ctx.Err())
			}
			p.logger.Warn("failed to refill idle handles", zap.Error(err))
			return poolerrors.Wrap(err, poolerrors.ErrorTypeCreation, "failed to refill idle handles").
				WithDetail("pool", p.name)
		}
		p.created.Add(1)
		p.metrics.Created()

		e := &entry[T]{value: value, state: StateActive, createdAt: p.now()}

		p.mu.Lock()
		p.creating--
		if p.closed {
			e.state = StateInvalid
			p.publishLocked()
			p.mu.Unlock()
			p.destroy(e, metrics.ReasonClosed)
			return nil
		}
		p.numActive++
		surplus := p.releaseLocked(e)
		p.publishLocked()
		p.mu.Unlock()

		if surplus {
			p.destroy(e, metrics.ReasonSurplus)
			return nil
		}
	}
}
