package readerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ajitpratap0/tablepool/pkg/config"
	"github.com/ajitpratap0/tablepool/pkg/pool"
	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/table"
	"github.com/ajitpratap0/tablepool/pkg/testutil"
)

var errBadRow = errors.New("corrupt row")

type fakeReader struct {
	id        int64
	closed    atomic.Bool
	unhealthy atomic.Bool
	inUse     atomic.Bool
	shared    *atomic.Int64
}

func (r *fakeReader) Get(_ context.Context, id table.EntityID, req *table.DataRequest) (*table.RowData, error) {
	if r.closed.Load() {
		return nil, errors.New("reader closed")
	}
	if id == "bad" {
		return nil, errBadRow
	}
	if r.shared != nil {
		if !r.inUse.CompareAndSwap(false, true) {
			r.shared.Add(1)
		}
		time.Sleep(20 * time.Microsecond)
		r.inUse.Store(false)
	}
	cells := []table.Cell{{Family: "info", Qualifier: "name", Timestamp: 1, Value: []byte(id)}}
	return table.FilterRow(id, cells, req), nil
}

func (r *fakeReader) BulkGet(ctx context.Context, ids []table.EntityID, req *table.DataRequest) ([]*table.RowData, error) {
	return table.BulkGet(ctx, r.Get, ids, req)
}

func (r *fakeReader) Scanner(ctx context.Context, req *table.DataRequest, _ table.ScannerOptions) (table.RowScanner, error) {
	rows, err := r.BulkGet(ctx, []table.EntityID{"a", "b"}, req)
	if err != nil {
		return nil, err
	}
	return table.NewSliceScanner(rows), nil
}

func (r *fakeReader) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *fakeReader) Ping(context.Context) error {
	if r.unhealthy.Load() {
		return errors.New("connection lost")
	}
	return nil
}

type fakeFactory struct {
	next   atomic.Int64
	opened atomic.Int64
	shared *atomic.Int64
	block  bool

	mu       sync.Mutex
	readers  []*fakeReader
	lastOpts table.ReaderOptions
}

func (f *fakeFactory) OpenReader(ctx context.Context, opts table.ReaderOptions) (table.Reader, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := &fakeReader{id: f.next.Add(1), shared: f.shared}
	f.opened.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readers = append(f.readers, r)
	f.lastOpts = opts
	return r, nil
}

func (f *fakeFactory) Table() string { return "users" }

func rawReader(r *PooledReader) *fakeReader {
	return r.obj.Value().reader.(*fakeReader)
}

func newTestBuilder(t *testing.T, f *fakeFactory) *Builder {
	return NewBuilder().
		WithReaderFactory(f).
		WithName(t.Name()).
		WithLogger(testutil.TestLogger(t))
}

func build(t *testing.T, b *Builder) *ReaderPool {
	t.Helper()
	rp, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rp.Close() })
	return rp
}

func TestCloseReturnsReaderForReuse(t *testing.T) {
	f := &fakeFactory{}
	rp := build(t, newTestBuilder(t, f))
	ctx := context.Background()

	reader, err := rp.Borrow(ctx)
	require.NoError(t, err)
	raw := rawReader(reader)

	row, err := reader.Get(ctx, "user-1", table.NewDataRequest("info"))
	require.NoError(t, err)
	assert.Equal(t, []byte("user-1"), row.Cells[0].Value)

	require.NoError(t, reader.Close())
	assert.False(t, raw.closed.Load(), "close returns, it does not close")
	assert.Equal(t, 1, rp.Stats().Idle)

	again, err := rp.Borrow(ctx)
	require.NoError(t, err)
	assert.Same(t, raw, rawReader(again))
	assert.Equal(t, int64(1), f.opened.Load())
	require.NoError(t, again.Close())
}

func TestDoubleCloseIsInvalidReturn(t *testing.T) {
	f := &fakeFactory{}
	rp := build(t, newTestBuilder(t, f))

	reader, err := rp.Borrow(context.Background())
	require.NoError(t, err)
	require.NoError(t, reader.Close())

	err = reader.Close()
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeInvalidReturn))

	err = reader.Invalidate()
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeInvalidReturn))

	stats := rp.Stats()
	assert.Equal(t, 1, stats.Idle)
	assert.Equal(t, uint64(1), stats.Returned)
}

func TestUseAfterCloseFails(t *testing.T) {
	f := &fakeFactory{}
	rp := build(t, newTestBuilder(t, f))
	ctx := context.Background()

	reader, err := rp.Borrow(ctx)
	require.NoError(t, err)
	require.NoError(t, reader.Close())

	_, err = reader.Get(ctx, "user-1", nil)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeClosed))
	_, err = reader.BulkGet(ctx, []table.EntityID{"user-1"}, nil)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeClosed))
	_, err = reader.Scanner(ctx, nil, table.ScannerOptions{})
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeClosed))
}

func TestReadsForwardToInnerReader(t *testing.T) {
	f := &fakeFactory{}
	rp := build(t, newTestBuilder(t, f))
	ctx := context.Background()

	reader, err := rp.Borrow(ctx)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Get(ctx, "bad", nil)
	assert.Equal(t, errBadRow, err, "inner errors are not wrapped")

	rows, err := reader.BulkGet(ctx, []table.EntityID{"b", "a"}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, table.EntityID("b"), rows[0].EntityID)

	scanner, err := reader.Scanner(ctx, nil, table.ScannerOptions{})
	require.NoError(t, err)
	var n int
	for scanner.Next(ctx) {
		n++
	}
	require.NoError(t, scanner.Err())
	require.NoError(t, scanner.Close())
	assert.Equal(t, 2, n)
	assert.Same(t, rp, reader.Pool())
}

func TestReadsAreTraced(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	rp := build(t, newTestBuilder(t, &fakeFactory{}))
	ctx := testutil.TestContext(t)

	reader, err := rp.Borrow(ctx)
	require.NoError(t, err)
	_, err = reader.Get(ctx, "user-1", nil)
	require.NoError(t, err)
	_, err = reader.Get(ctx, "bad", nil)
	assert.Equal(t, errBadRow, err)
	_, err = reader.BulkGet(ctx, []table.EntityID{"a", "b"}, nil)
	require.NoError(t, err)
	require.NoError(t, reader.Close())

	var reads []sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		if span.Name() != "pool.borrow" {
			reads = append(reads, span)
		}
	}
	require.Len(t, reads, 3)
	assert.Equal(t, "reader.get", reads[0].Name())
	assert.Equal(t, codes.Ok, reads[0].Status().Code)
	assert.Equal(t, codes.Error, reads[1].Status().Code)
	assert.Equal(t, "reader.bulk_get", reads[2].Name())

	attrs := map[string]string{}
	for _, kv := range reads[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "users", attrs["table"])
	assert.Equal(t, t.Name(), attrs["pool.name"])
}

func TestFailPolicyReusesSingleReader(t *testing.T) {
	f := &fakeFactory{}
	rp := build(t, newTestBuilder(t, f).
		WithMaxActive(1).
		WithExhaustionPolicy(pool.Fail))
	ctx := context.Background()

	first, err := rp.Borrow(ctx)
	require.NoError(t, err)

	_, err = rp.Borrow(ctx)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeExhausted))

	require.NoError(t, first.Close())

	second, err := rp.Borrow(ctx)
	require.NoError(t, err)
	assert.Same(t, rawReader(first), rawReader(second))
	assert.Equal(t, int64(1), f.opened.Load())
	require.NoError(t, second.Close())
}

func TestUnhealthyReaderIsReplaced(t *testing.T) {
	f := &fakeFactory{}
	rp := build(t, newTestBuilder(t, f))
	ctx := context.Background()

	reader, err := rp.Borrow(ctx)
	require.NoError(t, err)
	stale := rawReader(reader)
	require.NoError(t, reader.Close())

	stale.unhealthy.Store(true)

	fresh, err := rp.Borrow(ctx)
	require.NoError(t, err)
	assert.NotSame(t, stale, rawReader(fresh))
	assert.True(t, stale.closed.Load())
	require.NoError(t, fresh.Close())
}

func TestInvalidateClosesReader(t *testing.T) {
	f := &fakeFactory{}
	rp := build(t, newTestBuilder(t, f))

	reader, err := rp.Borrow(context.Background())
	require.NoError(t, err)
	raw := rawReader(reader)

	require.NoError(t, reader.Invalidate())
	assert.True(t, raw.closed.Load())

	stats := rp.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 0, stats.Idle)
	assert.Equal(t, uint64(1), stats.Destroyed)
}

func TestReturnToWrongPoolIsRejected(t *testing.T) {
	f := &fakeFactory{}
	a := build(t, newTestBuilder(t, f))
	b := build(t, NewBuilder().WithReaderFactory(&fakeFactory{}).WithLogger(testutil.TestLogger(t)).WithName(t.Name()+"-b"))

	reader, err := a.Borrow(context.Background())
	require.NoError(t, err)

	err = b.pool.Return(reader.obj)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeInvalidReturn))
	assert.Equal(t, 1, a.Stats().Active)
	require.NoError(t, reader.Close())
}

func TestPoolCloseClosesReaders(t *testing.T) {
	f := &fakeFactory{}
	rp := build(t, newTestBuilder(t, f))
	ctx := context.Background()

	idle, err := rp.Borrow(ctx)
	require.NoError(t, err)
	active, err := rp.Borrow(ctx)
	require.NoError(t, err)
	idleRaw, activeRaw := rawReader(idle), rawReader(active)
	require.NoError(t, idle.Close())

	require.NoError(t, rp.Close())
	assert.True(t, idleRaw.closed.Load())
	assert.False(t, activeRaw.closed.Load(), "borrowed readers stay open until returned")

	_, err = rp.Borrow(ctx)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeClosed))

	require.NoError(t, active.Close())
	assert.True(t, activeRaw.closed.Load())
}

func TestOpenTimeout(t *testing.T) {
	f := &fakeFactory{block: true}
	rp := build(t, newTestBuilder(t, f).WithOptions(WithOpenTimeout(20*time.Millisecond)))

	start := time.Now()
	_, err := rp.Borrow(context.Background())
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeCreation))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, rp.Stats().Creating)
}

func TestConcurrentBorrowersGetDistinctReaders(t *testing.T) {
	shared := &atomic.Int64{}
	f := &fakeFactory{shared: shared}
	rp := build(t, newTestBuilder(t, f).WithMaxActive(2).WithMaxWait(5*time.Second))
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				reader, err := rp.Borrow(ctx)
				if !assert.NoError(t, err) {
					return
				}
				_, err = reader.Get(ctx, "user-1", nil)
				assert.NoError(t, err)
				assert.NoError(t, reader.Close())
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, shared.Load())
	assert.LessOrEqual(t, f.opened.Load(), int64(2))
}

func TestNewFromConfig(t *testing.T) {
	f := &fakeFactory{}
	cfg := config.DefaultPoolConfig()
	cfg.Name = "users-readers"
	cfg.MaxActive = 4
	cfg.ExhaustionPolicy = "FAIL"
	cfg.MaxWait = config.Duration(time.Second)
	cfg.CellSchemas = map[string]string{"stats:visits": `"long"`}

	rp, err := NewFromConfig(f, cfg, WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)
	defer rp.Close()

	stats := rp.Stats()
	assert.Equal(t, "users-readers", rp.Name())
	assert.Equal(t, "users", rp.Table())
	assert.Equal(t, 4, stats.MaxActive)
	assert.Equal(t, "fail", stats.Policy)

	reader, err := rp.Borrow(context.Background())
	require.NoError(t, err)
	defer reader.Close()

	f.mu.Lock()
	overrides := f.lastOpts.Overrides
	f.mu.Unlock()
	require.Len(t, overrides, 1)
	assert.Contains(t, overrides, table.Column{Family: "stats", Qualifier: "visits"})
}

func TestNewFromConfigRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultPoolConfig()
	cfg.MinIdle = 20

	_, err := NewFromConfig(&fakeFactory{}, cfg)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))

	_, err = NewFromConfig(nil, config.DefaultPoolConfig())
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))
}
