// Package s3store reads rows stored as one object per row in an S3 bucket
// (see rowcodec for the object layout). Every reader has its own S3 client
// and HTTP transport, so closing a reader drops its connections.
package s3store

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/store/rowcodec"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

// Options locates a table in a bucket.
type Options struct {
	Table  string
	Bucket string
	Prefix string
	Region string
	// Endpoint targets an S3-compatible service with path-style addressing
	Endpoint string
	// Codec is the compression algorithm of row objects
	Codec string
}

// Factory opens S3 readers.
type Factory struct {
	opts   Options
	awsCfg aws.Config
	codec  *rowcodec.Codec
}

// NewFactory loads the default AWS credential chain and returns a factory.
func NewFactory(ctx context.Context, opts Options) (*Factory, error) {
	if opts.Bucket == "" {
		return nil, poolerrors.New(poolerrors.ErrorTypeConfig, "bucket is required")
	}
	codec, err := rowcodec.New(opts.Codec)
	if err != nil {
		return nil, err
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "failed to load AWS configuration")
	}
	return &Factory{opts: opts, awsCfg: awsCfg, codec: codec}, nil
}

// OpenReader creates a client and checks the bucket is reachable.
func (f *Factory) OpenReader(ctx context.Context, opts table.ReaderOptions) (table.Reader, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	client := s3.NewFromConfig(f.awsCfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: transport}
		if f.opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(f.opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	r := &Reader{
		client:     client,
		downloader: manager.NewDownloader(client),
		transport:  transport,
		codec:      f.codec,
		bucket:     f.opts.Bucket,
		prefix:     f.opts.Prefix,
		table:      f.opts.Table,
		overrides:  opts.Overrides,
	}
	if err := r.headBucket(ctx); err != nil {
		transport.CloseIdleConnections()
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
	client     *s3.Client
	downloader *manager.Downloader
	transport  *http.Transport
	codec      *rowcodec.Codec
	bucket     string
	prefix     string
	table      string
	overrides  map[table.Column]*table.CellSpec
	closed     atomic.Bool
}

// Get downloads and decodes one row object. A missing object is an empty
// row.
func (r *Reader) Get(ctx context.Context, id table.EntityID, req *table.DataRequest) (*table.RowData, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	key := rowcodec.ObjectKey(r.prefix, r.table, id)
	buf := manager.NewWriteAtBuffer(nil)
	_, err := r.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return &table.RowData{EntityID: id}, nil
	}
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to download row").
			WithDetail("bucket", r.bucket).
			WithDetail("key", key)
	}

	stored, err := r.codec.Decode(buf.Bytes())
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

// Scanner lists the table's objects page by page and fetches each row in
// range.
func (r *Reader) Scanner(ctx context.Context, req *table.DataRequest, opts table.ScannerOptions) (table.RowScanner, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(rowcodec.KeyPrefix(r.prefix, r.table)),
	})

	var page []types.Object
	keys := func(ctx context.Context) (string, bool, error) {
		for len(page) == 0 {
			if !paginator.HasMorePages() {
				return "", true, nil
			}
			out, err := paginator.NextPage(ctx)
			if err != nil {
				return "", false, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to list row objects").
					WithDetail("bucket", r.bucket)
			}
			page = out.Contents
		}
		key := aws.ToString(page[0].Key)
		page = page[1:]
		return key, false, nil
	}
	return rowcodec.NewObjectScanner(keys, r.Get, r.prefix, r.table, req, opts), nil
}

// Ping checks the bucket is still reachable.
func (r *Reader) Ping(ctx context.Context) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.headBucket(ctx)
}

// Close drops the reader's connections.
func (r *Reader) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		r.transport.CloseIdleConnections()
	}
	return nil
}

func (r *Reader) headBucket(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(r.bucket)})
	if err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to reach bucket").
			WithDetail("bucket", r.bucket)
	}
	return nil
}

func (r *Reader) check() error {
	if r.closed.Load() {
		return poolerrors.New(poolerrors.ErrorTypeClosed, "S3 reader is closed")
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
