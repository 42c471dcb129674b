// Package pgstore reads tables stored as PostgreSQL cell relations (see
// sqlcells). Every reader owns one pgx connection, so the reader pool caps
// the number of connections a process holds against the database.
package pgstore

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/store/sqlcells"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

const closeTimeout = 5 * time.Second

// Dialect is PostgreSQL's cell relation dialect.
var Dialect = sqlcells.Dialect{
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Quote:       func(name string) string { return pgx.Identifier{name}.Sanitize() },
	TextType:    "TEXT",
	BinaryType:  "BYTEA",
}

// Factory opens readers that each hold their own connection.
type Factory struct {
	connConfig *pgx.ConnConfig
	table      string
}

// NewFactory parses dsn and returns a factory for tableName. No connection
// is made until a reader is opened.
func NewFactory(dsn, tableName string) (*Factory, error) {
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "failed to parse connection string")
	}
	return &Factory{connConfig: connConfig, table: tableName}, nil
}

// OpenReader connects to the database.
func (f *Factory) OpenReader(ctx context.Context, opts table.ReaderOptions) (table.Reader, error) {
	conn, err := pgx.ConnectConfig(ctx, f.connConfig)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to connect to PostgreSQL").
			WithDetail("host", f.connConfig.Host).
			WithDetail("table", f.table)
	}
	return &Reader{conn: conn, table: f.table, overrides: opts.Overrides}, nil
}

// Table returns the table name.
func (f *Factory) Table() string {
	return f.table
}

// Reader reads one table over a single connection. Like the connection, it
// is not safe for concurrent use.
type Reader struct {
	conn      *pgx.Conn
	table     string
	overrides map[table.Column]*table.CellSpec
	closed    atomic.Bool
}

// Get reads one row.
func (r *Reader) Get(ctx context.Context, id table.EntityID, req *table.DataRequest) (*table.RowData, error) {
	rows, err := r.BulkGet(ctx, []table.EntityID{id}, req)
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

// BulkGet reads rows in the order of ids with a single query.
func (r *Reader) BulkGet(ctx context.Context, ids []table.EntityID, req *table.DataRequest) ([]*table.RowData, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*table.RowData{}, nil
	}

	sql, args := Dialect.GetQuery(r.table, ids, req)
	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to query cells").
			WithDetail("table", r.table)
	}
	defer rows.Close()
	return sqlcells.Collect(rows, ids, req, r.overrides)
}

// Scanner streams the rows in range. The connection is busy until the
// scanner is closed.
func (r *Reader) Scanner(ctx context.Context, req *table.DataRequest, opts table.ScannerOptions) (table.RowScanner, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	sql, args := Dialect.ScanQuery(r.table, req, opts)
	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to scan cells").
			WithDetail("table", r.table)
	}
	return sqlcells.NewScanner(rows, func() error {
		rows.Close()
		return rows.Err()
	}, req, r.overrides, opts.Limit), nil
}

// Ping checks the connection.
func (r *Reader) Ping(ctx context.Context) error {
	if err := r.check(); err != nil {
		return err
	}
	if err := r.conn.Ping(ctx); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "PostgreSQL ping failed")
	}
	return nil
}

// Close closes the connection.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return r.conn.Close(ctx)
}

func (r *Reader) check() error {
	if r.closed.Load() || r.conn.IsClosed() {
		return poolerrors.New(poolerrors.ErrorTypeClosed, "PostgreSQL reader is closed")
	}
	return nil
}
