// Package mongostore reads rows stored as MongoDB documents, one document
// per row keyed by entity id:
//
//	{_id: "user-42", cells: [{family, qualifier, timestamp, value}, ...]}
//
// The collection is named after the table. Every reader owns a client
// limited to a single connection.
package mongostore

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

const disconnectTimeout = 5 * time.Second

// Factory opens MongoDB readers.
type Factory struct {
	clientOpts *options.ClientOptions
	database   string
	table      string
}

// NewFactory validates uri and returns a factory for the collection named
// tableName in database.
func NewFactory(uri, database, tableName string) (*Factory, error) {
	if database == "" {
		return nil, poolerrors.New(poolerrors.ErrorTypeConfig, "database is required")
	}
	clientOpts := options.Client().ApplyURI(uri).SetMaxPoolSize(1)
	if err := clientOpts.Validate(); err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "invalid MongoDB URI")
	}
	return &Factory{clientOpts: clientOpts, database: database, table: tableName}, nil
}

// OpenReader connects a new client and pings the primary.
func (f *Factory) OpenReader(ctx context.Context, opts table.ReaderOptions) (table.Reader, error) {
	client, err := mongo.Connect(ctx, f.clientOpts)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to connect to MongoDB")
	}
	r := &Reader{
		client:     client,
		collection: client.Database(f.database).Collection(f.table),
		table:      f.table,
		overrides:  opts.Overrides,
	}
	if err := r.Ping(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// Table returns the table name.
func (f *Factory) Table() string {
	return f.table
}

// Reader reads one collection.
type Reader struct {
	client     *mongo.Client
	collection *mongo.Collection
	table      string
	overrides  map[table.Column]*table.CellSpec
	closed     atomic.Bool
}

// Get reads one row document.
func (r *Reader) Get(ctx context.Context, id table.EntityID, req *table.DataRequest) (*table.RowData, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	var stored table.RowData
	err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&stored)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &table.RowData{EntityID: id}, nil
	}
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to find row").
			WithDetail("collection", r.table).
			WithDetail("entity_id", string(id))
	}
	return r.finish(id, stored.Cells, req)
}

// BulkGet fetches all ids with one $in query and returns rows in the order
// of ids.
func (r *Reader) BulkGet(ctx context.Context, ids []table.EntityID, req *table.DataRequest) ([]*table.RowData, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*table.RowData{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to find rows").
			WithDetail("collection", r.table)
	}
	var stored []table.RowData
	if err := cursor.All(ctx, &stored); err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to read rows").
			WithDetail("collection", r.table)
	}

	byID := make(map[table.EntityID][]table.Cell, len(stored))
	for _, row := range stored {
		byID[row.EntityID] = row.Cells
	}
	rows := make([]*table.RowData, len(ids))
	for i, id := range ids {
		row, err := r.finish(id, byID[id], req)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

// Scanner iterates documents in _id order within the scan bounds.
func (r *Reader) Scanner(ctx context.Context, req *table.DataRequest, opts table.ScannerOptions) (table.RowScanner, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	idRange := bson.M{}
	if opts.StartRow != "" {
		idRange["$gte"] = string(opts.StartRow)
	}
	if opts.StopRow != "" {
		idRange["$lt"] = string(opts.StopRow)
	}
	filter := bson.M{}
	if len(idRange) > 0 {
		filter["_id"] = idRange
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	cursor, err := r.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to scan rows").
			WithDetail("collection", r.table)
	}
	return &scanner{reader: r, cursor: cursor, req: req}, nil
}

// Ping checks the primary is reachable.
func (r *Reader) Ping(ctx context.Context) error {
	if err := r.check(); err != nil {
		return err
	}
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "MongoDB ping failed")
	}
	return nil
}

// Close disconnects the client.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func (r *Reader) finish(id table.EntityID, cells []table.Cell, req *table.DataRequest) (*table.RowData, error) {
	row := table.FilterRow(id, cells, req)
	if err := table.DecodeRow(row, r.overrides); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *Reader) check() error {
	if r.closed.Load() {
		return poolerrors.New(poolerrors.ErrorTypeClosed, "MongoDB reader is closed")
	}
	return nil
}

type scanner struct {
	reader *Reader
	cursor *mongo.Cursor
	req    *table.DataRequest
	row    *table.RowData
	err    error
}

func (s *scanner) Next(ctx context.Context) bool {
	s.row = nil
	if s.err != nil || !s.cursor.Next(ctx) {
		if s.err == nil && s.cursor.Err() != nil {
			s.err = poolerrors.Wrap(s.cursor.Err(), poolerrors.ErrorTypeBackend, "failed to read rows")
		}
		return false
	}
	var stored table.RowData
	if err := s.cursor.Decode(&stored); err != nil {
		s.err = poolerrors.Wrap(err, poolerrors.ErrorTypeData, "failed to decode row document")
		return false
	}
	row, err := s.reader.finish(stored.EntityID, stored.Cells, s.req)
	if err != nil {
		s.err = err
		return false
	}
	s.row = row
	return true
}

func (s *scanner) Row() *table.RowData { return s.row }

func (s *scanner) Err() error { return s.err }

func (s *scanner) Close() error {
	return s.cursor.Close(context.Background())
}
