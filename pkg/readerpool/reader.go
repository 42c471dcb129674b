package readerpool

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ajitpratap0/tablepool/pkg/observability"
	"github.com/ajitpratap0/tablepool/pkg/pool"
	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

// PooledReader is a table.Reader on loan from a ReaderPool. Reads go
// straight to the underlying reader and its errors come back unchanged. Each
// read runs in a span named after the operation.
// Close gives the reader back to the pool instead of closing it.
//
// A PooledReader belongs to one borrower and must not be used after Close.
type PooledReader struct {
	obj    *pool.PooledObject[*slot]
	owner  *ReaderPool
	closed atomic.Bool
}

var _ table.Reader = (*PooledReader)(nil)

// Get reads one row.
func (r *PooledReader) Get(ctx context.Context, id table.EntityID, req *table.DataRequest) (*table.RowData, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	var row *table.RowData
	err := observability.Trace(ctx, "reader.get", func(ctx context.Context) error {
		var err error
		row, err = r.obj.Value().reader.Get(ctx, id, req)
		return err
	}, r.spanAttrs(attribute.String("entity_id", string(id)))...)
	return row, err
}

// BulkGet reads several rows in the order of ids.
func (r *PooledReader) BulkGet(ctx context.Context, ids []table.EntityID, req *table.DataRequest) ([]*table.RowData, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	var rows []*table.RowData
	err := observability.Trace(ctx, "reader.bulk_get", func(ctx context.Context) error {
		var err error
		rows, err = r.obj.Value().reader.BulkGet(ctx, ids, req)
		return err
	}, r.spanAttrs(attribute.Int("rows", len(ids)))...)
	return rows, err
}

// Scanner opens a scan over a row range. The scanner must be closed before
// the reader is.
func (r *PooledReader) Scanner(ctx context.Context, req *table.DataRequest, opts table.ScannerOptions) (table.RowScanner, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	var scanner table.RowScanner
	err := observability.Trace(ctx, "reader.scanner", func(ctx context.Context) error {
		var err error
		scanner, err = r.obj.Value().reader.Scanner(ctx, req, opts)
		return err
	}, r.spanAttrs()...)
	return scanner, err
}

// Close returns the reader to its pool. Closing a reader twice is an
// ErrorTypeInvalidReturn error and leaves the pool untouched.
func (r *PooledReader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return poolerrors.New(poolerrors.ErrorTypeInvalidReturn, "pooled reader already closed").
			WithDetail("pool", r.owner.name)
	}
	return r.owner.pool.Return(r.obj)
}

// Invalidate destroys the underlying reader instead of returning it. Use it
// after a read error that leaves the reader unusable. Like Close, it may be
// called once.
func (r *PooledReader) Invalidate() error {
	if !r.closed.CompareAndSwap(false, true) {
		return poolerrors.New(poolerrors.ErrorTypeInvalidReturn, "pooled reader already closed").
			WithDetail("pool", r.owner.name)
	}
	return r.owner.pool.Invalidate(r.obj)
}

// Pool returns the pool the reader was borrowed from.
func (r *PooledReader) Pool() *ReaderPool {
	return r.owner
}

func (r *PooledReader) checkOpen() error {
	if r.closed.Load() {
		return poolerrors.New(poolerrors.ErrorTypeClosed, "pooled reader used after close").
			WithDetail("pool", r.owner.name)
	}
	return nil
}

func (r *PooledReader) spanAttrs(extra ...attribute.KeyValue) []attribute.KeyValue {
	return append([]attribute.KeyValue{
		attribute.String("pool.name", r.owner.name),
		attribute.String("table", r.owner.table),
	}, extra...)
}
