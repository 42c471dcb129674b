package rowcodec

import (
	"context"

	"github.com/ajitpratap0/tablepool/pkg/table"
)

// KeyIterator yields object keys in ascending order. done is true once the
// listing is exhausted.
type KeyIterator func(ctx context.Context) (key string, done bool, err error)

// RowGetter reads one row object.
type RowGetter func(ctx context.Context, id table.EntityID, req *table.DataRequest) (*table.RowData, error)

// ObjectScanner is a table.RowScanner over a key listing. Each listed row
// is fetched when the scanner reaches it.
type ObjectScanner struct {
	keys     KeyIterator
	get      RowGetter
	prefix   string
	table    string
	req      *table.DataRequest
	opts     table.ScannerOptions
	returned int
	row      *table.RowData
	err      error
	done     bool
}

// NewObjectScanner returns a scanner over the rows of tableName listed by
// keys that fall within opts.
func NewObjectScanner(keys KeyIterator, get RowGetter, prefix, tableName string, req *table.DataRequest, opts table.ScannerOptions) *ObjectScanner {
	return &ObjectScanner{keys: keys, get: get, prefix: prefix, table: tableName, req: req, opts: opts}
}

// Next advances to the next row.
func (s *ObjectScanner) Next(ctx context.Context) bool {
	s.row = nil
	if s.done || s.err != nil {
		return false
	}
	if s.opts.Limit > 0 && s.returned >= s.opts.Limit {
		s.done = true
		return false
	}

	for {
		if err := ctx.Err(); err != nil {
			s.err = err
			return false
		}
		key, done, err := s.keys(ctx)
		if err != nil {
			s.err = err
			return false
		}
		if done {
			s.done = true
			return false
		}

		id, ok := EntityID(s.prefix, s.table, key)
		if !ok {
			continue
		}
		if s.opts.StopRow != "" && id >= s.opts.StopRow {
			s.done = true
			return false
		}
		if !s.opts.InRange(id) {
			continue
		}

		row, err := s.get(ctx, id, s.req)
		if err != nil {
			s.err = err
			return false
		}
		s.row = row
		s.returned++
		return true
	}
}

// Row returns the current row.
func (s *ObjectScanner) Row() *table.RowData { return s.row }

// Err returns the first error met while scanning.
func (s *ObjectScanner) Err() error { return s.err }

// Close stops the scan.
func (s *ObjectScanner) Close() error {
	s.done = true
	return nil
}
