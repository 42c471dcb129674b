package readerpool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

// slot is one pooled reader. leased is set while the reader is on loan and
// closed once the reader has been destroyed.
type slot struct {
	reader table.Reader
	leased atomic.Bool
	closed atomic.Bool
}

// slotFactory adapts a table.ReaderFactory to pool.Factory. Every reader is
// opened with the same options, so all readers in a pool are
// interchangeable.
type slotFactory struct {
	readers     table.ReaderFactory
	opts        table.ReaderOptions
	openTimeout time.Duration
	pingTimeout time.Duration
}

func (f *slotFactory) Create(ctx context.Context) (*slot, error) {
	if f.openTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.openTimeout)
		defer cancel()
	}
	reader, err := f.readers.OpenReader(ctx, f.opts)
	if err != nil {
		return nil, err
	}
	return &slot{reader: reader}, nil
}

func (f *slotFactory) Destroy(_ context.Context, s *slot) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.reader.Close()
}

func (f *slotFactory) Validate(ctx context.Context, s *slot) bool {
	if s.closed.Load() {
		return false
	}
	pinger, ok := s.reader.(table.Pinger)
	if !ok {
		return true
	}
	if f.pingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.pingTimeout)
		defer cancel()
	}
	return pinger.Ping(ctx) == nil
}

func (f *slotFactory) Activate(_ context.Context, s *slot) error {
	if !s.leased.CompareAndSwap(false, true) {
		return poolerrors.New(poolerrors.ErrorTypeInternal, "reader is already leased").
			WithDetail("table", f.readers.Table())
	}
	return nil
}

func (f *slotFactory) Passivate(_ context.Context, s *slot) error {
	s.leased.Store(false)
	return nil
}
