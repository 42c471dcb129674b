package sqlcells

import (
	"context"

	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

// Rows is the part of a driver result set the readers need. Both pgx.Rows
// and *sql.Rows satisfy it.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanCell(rows Rows) (table.EntityID, table.Cell, error) {
	var (
		id   string
		cell table.Cell
	)
	if err := rows.Scan(&id, &cell.Family, &cell.Qualifier, &cell.Timestamp, &cell.Value); err != nil {
		return "", table.Cell{}, poolerrors.Wrap(err, poolerrors.ErrorTypeData, "failed to scan cell")
	}
	return table.EntityID(id), cell, nil
}

// Collect reads every cell of a GetQuery result and returns one row per id,
// in the order of ids. Ids without cells yield empty rows.
func Collect(rows Rows, ids []table.EntityID, req *table.DataRequest, overrides map[table.Column]*table.CellSpec) ([]*table.RowData, error) {
	cells := make(map[table.EntityID][]table.Cell, len(ids))
	for rows.Next() {
		id, cell, err := scanCell(rows)
		if err != nil {
			return nil, err
		}
		cells[id] = append(cells[id], cell)
	}
	if err := rows.Err(); err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to read cells")
	}

	out := make([]*table.RowData, len(ids))
	for i, id := range ids {
		row := table.FilterRow(id, cells[id], req)
		if err := table.DecodeRow(row, overrides); err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

// Scanner streams rows out of a ScanQuery result.
type Scanner struct {
	rows      Rows
	closeFn   func() error
	assembler *table.RowAssembler
	limit     int
	returned  int
	row       *table.RowData
	err       error
	done      bool
}

// NewScanner wraps rows. closeFn releases the result set.
func NewScanner(rows Rows, closeFn func() error, req *table.DataRequest, overrides map[table.Column]*table.CellSpec, limit int) *Scanner {
	return &Scanner{
		rows:      rows,
		closeFn:   closeFn,
		assembler: table.NewRowAssembler(req, overrides),
		limit:     limit,
	}
}

// Next advances to the next row.
func (s *Scanner) Next(ctx context.Context) bool {
	s.row = nil
	if s.done || s.err != nil {
		return false
	}
	if s.limit > 0 && s.returned >= s.limit {
		s.done = true
		return false
	}
	if err := ctx.Err(); err != nil {
		s.err = err
		return false
	}

	for s.rows.Next() {
		id, cell, err := scanCell(s.rows)
		if err != nil {
			s.err = err
			return false
		}
		row, err := s.assembler.Add(id, cell)
		if err != nil {
			s.err = err
			return false
		}
		if row != nil {
			return s.emit(row)
		}
	}
	s.done = true
	if err := s.rows.Err(); err != nil {
		s.err = poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to read cells")
		return false
	}
	row, err := s.assembler.Flush()
	if err != nil {
		s.err = err
		return false
	}
	if row == nil {
		return false
	}
	return s.emit(row)
}

func (s *Scanner) emit(row *table.RowData) bool {
	s.row = row
	s.returned++
	return true
}

// Row returns the current row.
func (s *Scanner) Row() *table.RowData { return s.row }

// Err returns the first error met while scanning.
func (s *Scanner) Err() error { return s.err }

// Close releases the result set. It is safe to call more than once.
func (s *Scanner) Close() error {
	if s.closeFn == nil {
		return nil
	}
	fn := s.closeFn
	s.closeFn = nil
	return fn()
}
