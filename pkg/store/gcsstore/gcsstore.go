// Package gcsstore reads rows stored as one object per row in a Google
// Cloud Storage bucket (see rowcodec for the object layout). Every reader
// owns a storage.Client.
package gcsstore

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/tablepool/pkg/compression"
	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/store/rowcodec"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

// Options locates a table in a bucket.
type Options struct {
	Table  string
	Bucket string
	Prefix string
	// Endpoint targets an emulator; requests are then unauthenticated
	Endpoint string
	// Codec is the compression algorithm of row objects
	Codec string
	// ClientOptions are passed to storage.NewClient
	ClientOptions []option.ClientOption
}

// Factory opens GCS readers.
type Factory struct {
	opts  Options
	codec *rowcodec.Codec
}

// NewFactory returns a factory. Credentials come from the environment
// unless ClientOptions say otherwise.
func NewFactory(opts Options) (*Factory, error) {
	if opts.Bucket == "" {
		return nil, poolerrors.New(poolerrors.ErrorTypeConfig, "bucket is required")
	}
	codec, err := rowcodec.New(opts.Codec)
	if err != nil {
		return nil, err
	}
	if opts.Endpoint != "" {
		opts.ClientOptions = append(opts.ClientOptions,
			option.WithEndpoint(opts.Endpoint),
			option.WithoutAuthentication())
	}
	return &Factory{opts: opts, codec: codec}, nil
}

// OpenReader creates a client and checks the bucket is reachable.
func (f *Factory) OpenReader(ctx context.Context, opts table.ReaderOptions) (table.Reader, error) {
	client, err := storage.NewClient(ctx, f.opts.ClientOptions...)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to create GCS client")
	}
	r := &Reader{
		client:    client,
		bucket:    client.Bucket(f.opts.Bucket),
		name:      f.opts.Bucket,
		codec:     f.codec,
		prefix:    f.opts.Prefix,
		table:     f.opts.Table,
		overrides: opts.Overrides,
	}
	if err := r.attrs(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return r, nil
}

// Table returns the table name.
func (f *Factory) Table() string {
	return f.opts.Table
}

// Reader reads rows of one table from a bucket.
type Reader struct {
	client    *storage.Client
	bucket    *storage.BucketHandle
	name      string
	codec     *rowcodec.Codec
	prefix    string
	table     string
	overrides map[table.Column]*table.CellSpec
	closed    atomic.Bool
}

// Get reads and decodes one row object. A missing object is an empty row.
func (r *Reader) Get(ctx context.Context, id table.EntityID, req *table.DataRequest) (*table.RowData, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	key := rowcodec.ObjectKey(r.prefix, r.table, id)
	obj, err := r.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return &table.RowData{EntityID: id}, nil
	}
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to open row object").
			WithDetail("bucket", r.name).
			WithDetail("key", key)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, compression.DefaultMaxDecompressedSize))
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to read row object").
			WithDetail("key", key)
	}
	stored, err := r.codec.Decode(data)
	if err != nil {
		return nil, err
	}
	row := table.FilterRow(id, stored.Cells, req)
	if err := table.DecodeRow(row, r.overrides); err != nil {
		return nil, err
	}
	return row, nil
}

// BulkGet reads rows in the order of ids.
func (r *Reader) BulkGet(ctx context.Context, ids []table.EntityID, req *table.DataRequest) ([]*table.RowData, error) {
	return table.BulkGet(ctx, r.Get, ids, req)
}

// Scanner lists the table's objects between the scan bounds and fetches
// each row.
func (r *Reader) Scanner(ctx context.Context, req *table.DataRequest, opts table.ScannerOptions) (table.RowScanner, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	query := &storage.Query{Prefix: rowcodec.KeyPrefix(r.prefix, r.table)}
	if opts.StartRow != "" {
		query.StartOffset = rowcodec.ObjectKey(r.prefix, r.table, opts.StartRow)
	}
	if opts.StopRow != "" {
		query.EndOffset = rowcodec.ObjectKey(r.prefix, r.table, opts.StopRow)
	}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeInternal, "failed to build object query")
	}

	it := r.bucket.Objects(ctx, query)
	keys := func(context.Context) (string, bool, error) {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return "", true, nil
		}
		if err != nil {
			return "", false, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to list row objects").
				WithDetail("bucket", r.name)
		}
		return attrs.Name, false, nil
	}
	return rowcodec.NewObjectScanner(keys, r.Get, r.prefix, r.table, req, opts), nil
}

// Ping checks the bucket is still reachable.
func (r *Reader) Ping(ctx context.Context) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.attrs(ctx)
}

// Close closes the client.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.client.Close()
}

func (r *Reader) attrs(ctx context.Context) error {
	if _, err := r.bucket.Attrs(ctx); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to reach bucket").
			WithDetail("bucket", r.name)
	}
	return nil
}

func (r *Reader) check() error {
	if r.closed.Load() {
		return poolerrors.New(poolerrors.ErrorTypeClosed, "GCS reader is closed")
	}
	return nil
}
