// Package sqlstore reads tables stored as MySQL cell relations (see
// sqlcells). The factory owns a database/sql handle with idle pooling
// disabled; every reader pins one *sql.Conn from it, so the reader pool
// alone decides how many connections stay open.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"sync/atomic"

	"github.com/go-sql-driver/mysql"

	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/store/sqlcells"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

// Dialect is MySQL's cell relation dialect.
var Dialect = sqlcells.Dialect{
	Placeholder: func(int) string { return "?" },
	Quote:       func(name string) string { return "`" + strings.ReplaceAll(name, "`", "``") + "`" },
	TextType:    "VARCHAR(255)",
	BinaryType:  "LONGBLOB",
}

// Factory opens readers that each pin one connection of a shared handle.
type Factory struct {
	db    *sql.DB
	addr  string
	table string
}

// NewFactory parses dsn and returns a factory for tableName. Call Close
// once every reader is closed.
func NewFactory(dsn, tableName string) (*Factory, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "failed to parse MySQL DSN")
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "failed to create MySQL connector")
	}
	db := sql.OpenDB(connector)
	db.SetMaxIdleConns(0)
	return &Factory{db: db, addr: cfg.Addr, table: tableName}, nil
}

// OpenReader takes a dedicated connection from the handle.
func (f *Factory) OpenReader(ctx context.Context, opts table.ReaderOptions) (table.Reader, error) {
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to connect to MySQL").
			WithDetail("addr", f.addr).
			WithDetail("table", f.table)
	}
	return &Reader{conn: conn, table: f.table, overrides: opts.Overrides}, nil
}

// Table returns the table name.
func (f *Factory) Table() string {
	return f.table
}

// Close closes the shared handle.
func (f *Factory) Close() error {
	return f.db.Close()
}

// Reader reads one table over a single connection.
type Reader struct {
	conn      *sql.Conn
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

	query, args := Dialect.GetQuery(r.table, ids, req)
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to query cells").
			WithDetail("table", r.table)
	}
	defer rows.Close()
	return sqlcells.Collect(rows, ids, req, r.overrides)
}

// Scanner streams the rows in range.
func (r *Reader) Scanner(ctx context.Context, req *table.DataRequest, opts table.ScannerOptions) (table.RowScanner, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	query, args := Dialect.ScanQuery(r.table, req, opts)
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to scan cells").
			WithDetail("table", r.table)
	}
	return sqlcells.NewScanner(rows, rows.Close, req, r.overrides, opts.Limit), nil
}

// Ping checks the connection.
func (r *Reader) Ping(ctx context.Context) error {
	if err := r.check(); err != nil {
		return err
	}
	if err := r.conn.PingContext(ctx); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "MySQL ping failed")
	}
	return nil
}

// Close returns the connection to the handle, which closes it.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.conn.Close()
}

func (r *Reader) check() error {
	if r.closed.Load() {
		return poolerrors.New(poolerrors.ErrorTypeClosed, "MySQL reader is closed")
	}
	return nil
}
