// Package memstore is an in-process table store. It backs the CLI's demo
// mode and the tests of everything that consumes table readers.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

// VisitsSchema is the Avro schema of the stats:visits cells written by Seed.
const VisitsSchema = `"long"`

// Store holds tables of rows in memory. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[table.EntityID][]table.Cell

	down   atomic.Bool
	opened atomic.Int64
	live   atomic.Int64
}

// New returns an empty store.
func New() *Store {
	return &Store{tables: make(map[string]map[table.EntityID][]table.Cell)}
}

// Put appends cells to a row, creating the table and row as needed.
func (s *Store) Put(tableName string, id table.EntityID, cells ...table.Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[tableName]
	if !ok {
		rows = make(map[table.EntityID][]table.Cell)
		s.tables[tableName] = rows
	}
	rows[id] = append(rows[id], cells...)
}

// Seed fills tableName with n synthetic user rows from SeedRows.
func (s *Store) Seed(tableName string, n int) error {
	rows, err := SeedRows(n)
	if err != nil {
		return err
	}
	for _, row := range rows {
		s.Put(tableName, row.EntityID, row.Cells...)
	}
	return nil
}

// SeedRows returns n synthetic user rows with ids user-000000 onwards. Each
// row has info:name and info:email string cells and an Avro-encoded
// stats:visits cell holding i*7%100. Other backends' tests load the same
// rows so they can share assertions.
func SeedRows(n int) ([]*table.RowData, error) {
	visits, err := table.NewCellSpec(VisitsSchema)
	if err != nil {
		return nil, err
	}
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	rows := make([]*table.RowData, 0, n)
	for i := 0; i < n; i++ {
		encoded, err := visits.Encode(int64(i * 7 % 100))
		if err != nil {
			return nil, err
		}
		rows = append(rows, &table.RowData{
			EntityID: SeedID(i),
			Cells: []table.Cell{
				{Family: "info", Qualifier: "email", Timestamp: ts, Value: []byte(fmt.Sprintf("user%d@example.com", i))},
				{Family: "info", Qualifier: "name", Timestamp: ts, Value: []byte(fmt.Sprintf("user %d", i))},
				{Family: "stats", Qualifier: "visits", Timestamp: ts, Value: encoded},
			},
		})
	}
	return rows, nil
}

// SeedID returns the entity id Seed gives row i.
func SeedID(i int) table.EntityID {
	return table.EntityID(fmt.Sprintf("user-%06d", i))
}

// SetDown simulates an outage: opening readers and pinging fail while down.
func (s *Store) SetDown(down bool) {
	s.down.Store(down)
}

// Opened returns how many readers have ever been opened.
func (s *Store) Opened() int64 {
	return s.opened.Load()
}

// Live returns how many readers are open right now.
func (s *Store) Live() int64 {
	return s.live.Load()
}

// Factory returns a reader factory for tableName. Opening a reader sleeps
// for openLatency to mimic connection setup.
func (s *Store) Factory(tableName string, openLatency time.Duration) *Factory {
	return &Factory{store: s, table: tableName, latency: openLatency}
}

func (s *Store) row(tableName string, id table.EntityID) []table.Cell {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables[tableName][id]
}

func (s *Store) ids(tableName string, opts table.ScannerOptions) []table.EntityID {
	s.mu.RLock()
	ids := make([]table.EntityID, 0, len(s.tables[tableName]))
	for id := range s.tables[tableName] {
		if opts.InRange(id) {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}
	return ids
}

// Factory opens readers against one table of a Store.
type Factory struct {
	store   *Store
	table   string
	latency time.Duration
}

// OpenReader opens a reader.
func (f *Factory) OpenReader(ctx context.Context, opts table.ReaderOptions) (table.Reader, error) {
	if f.latency > 0 {
		timer := time.NewTimer(f.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.store.down.Load() {
		return nil, poolerrors.New(poolerrors.ErrorTypeBackend, "memory store is down").
			WithDetail("table", f.table)
	}
	f.store.opened.Add(1)
	f.store.live.Add(1)
	return &Reader{store: f.store, table: f.table, overrides: opts.Overrides}, nil
}

// Table returns the table name.
func (f *Factory) Table() string {
	return f.table
}

// Reader reads one table of a Store.
type Reader struct {
	store     *Store
	table     string
	overrides map[table.Column]*table.CellSpec
	closed    atomic.Bool
}

// Get reads one row.
func (r *Reader) Get(ctx context.Context, id table.EntityID, req *table.DataRequest) (*table.RowData, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	row := table.FilterRow(id, r.store.row(r.table, id), req)
	if err := table.DecodeRow(row, r.overrides); err != nil {
		return nil, err
	}
	return row, nil
}

// BulkGet reads rows in the order of ids.
func (r *Reader) BulkGet(ctx context.Context, ids []table.EntityID, req *table.DataRequest) ([]*table.RowData, error) {
	return table.BulkGet(ctx, r.Get, ids, req)
}

// Scanner returns the rows in range, in entity id order.
func (r *Reader) Scanner(ctx context.Context, req *table.DataRequest, opts table.ScannerOptions) (table.RowScanner, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	ids := r.store.ids(r.table, opts)
	rows, err := r.BulkGet(ctx, ids, req)
	if err != nil {
		return nil, err
	}
	return table.NewSliceScanner(rows), nil
}

// Ping fails once the reader is closed or the store is down.
func (r *Reader) Ping(ctx context.Context) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	if r.store.down.Load() {
		return poolerrors.New(poolerrors.ErrorTypeBackend, "memory store is down")
	}
	return nil
}

// Close releases the reader.
func (r *Reader) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		r.store.live.Add(-1)
	}
	return nil
}

func (r *Reader) check(ctx context.Context) error {
	if r.closed.Load() {
		return poolerrors.New(poolerrors.ErrorTypeClosed, "memory reader is closed")
	}
	return ctx.Err()
}
