package table

import "context"

// RowAssembler groups a stream of cells ordered by entity id into rows. SQL
// backends feed it one result row at a time.
type RowAssembler struct {
	req       *DataRequest
	overrides map[Column]*CellSpec
	current   EntityID
	cells     []Cell
	started   bool
}

// NewRowAssembler returns an assembler that filters and decodes finished rows
// with req and overrides.
func NewRowAssembler(req *DataRequest, overrides map[Column]*CellSpec) *RowAssembler {
	return &RowAssembler{req: req, overrides: overrides}
}

// Add appends a cell. When id differs from the previous cell's id the
// previous row is complete and returned.
func (a *RowAssembler) Add(id EntityID, cell Cell) (*RowData, error) {
	var done *RowData
	if a.started && id != a.current {
		row, err := a.finish()
		if err != nil {
			return nil, err
		}
		done = row
	}
	a.started = true
	a.current = id
	a.cells = append(a.cells, cell)
	return done, nil
}

// Flush returns the row in progress, if any.
func (a *RowAssembler) Flush() (*RowData, error) {
	if !a.started {
		return nil, nil
	}
	a.started = false
	return a.finish()
}

func (a *RowAssembler) finish() (*RowData, error) {
	row := FilterRow(a.current, a.cells, a.req)
	a.cells = a.cells[:0]
	if err := DecodeRow(row, a.overrides); err != nil {
		return nil, err
	}
	return row, nil
}

// SliceScanner is a RowScanner over rows already in memory.
type SliceScanner struct {
	rows []*RowData
	pos  int
	row  *RowData
}

// NewSliceScanner returns a scanner yielding rows in order.
func NewSliceScanner(rows []*RowData) *SliceScanner {
	return &SliceScanner{rows: rows}
}

// Next advances to the next row.
func (s *SliceScanner) Next(ctx context.Context) bool {
	if ctx.Err() != nil || s.pos >= len(s.rows) {
		s.row = nil
		return false
	}
	s.row = s.rows[s.pos]
	s.pos++
	return true
}

// Row returns the current row.
func (s *SliceScanner) Row() *RowData { return s.row }

// Err always returns nil.
func (s *SliceScanner) Err() error { return nil }

// Close releases the rows.
func (s *SliceScanner) Close() error {
	s.rows = nil
	s.row = nil
	return nil
}

// BulkGet implements Reader.BulkGet in terms of a single-row getter.
func BulkGet(ctx context.Context, get func(context.Context, EntityID, *DataRequest) (*RowData, error), ids []EntityID, req *DataRequest) ([]*RowData, error) {
	rows := make([]*RowData, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := get(ctx, id, req)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
