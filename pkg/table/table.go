// Package table defines the read-side model of a column-family table: entity
// ids, data requests, row data and the Reader interface that every backing
// store implements. Readers are expensive to open and hold a live handle to
// their store, which is why callers normally borrow them from a
// readerpool.ReaderPool instead of opening them directly.
package table

import (
	"context"
	"sort"
	"strings"
)

// EntityID is the key of a row.
type EntityID string

// Column names a family, or a single qualifier within a family when
// Qualifier is non-empty.
type Column struct {
	Family    string
	Qualifier string
}

// ParseColumn parses "family" or "family:qualifier".
func ParseColumn(name string) Column {
	family, qualifier, _ := strings.Cut(name, ":")
	return Column{Family: family, Qualifier: qualifier}
}

// String returns the "family:qualifier" form.
func (c Column) String() string {
	if c.Qualifier == "" {
		return c.Family
	}
	return c.Family + ":" + c.Qualifier
}

// Covers reports whether c selects the cell at family:qualifier.
func (c Column) Covers(family, qualifier string) bool {
	if c.Family != family {
		return false
	}
	return c.Qualifier == "" || c.Qualifier == qualifier
}

// DataRequest selects which cells a read returns.
type DataRequest struct {
	// Columns to read; empty means every column
	Columns []Column
	// MaxVersions per qualifier; 0 means 1
	MaxVersions int
	// MinTimestamp is inclusive
	MinTimestamp int64
	// MaxTimestamp is exclusive; 0 means unbounded
	MaxTimestamp int64
}

// NewDataRequest returns a request for the latest version of the given columns.
func NewDataRequest(columns ...string) *DataRequest {
	req := &DataRequest{MaxVersions: 1}
	for _, c := range columns {
		req.Columns = append(req.Columns, ParseColumn(c))
	}
	return req
}

// Families returns the distinct families the request touches, or nil when
// every family is requested.
func (r *DataRequest) Families() []string {
	if r == nil || len(r.Columns) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(r.Columns))
	families := make([]string, 0, len(r.Columns))
	for _, c := range r.Columns {
		if _, ok := seen[c.Family]; ok {
			continue
		}
		seen[c.Family] = struct{}{}
		families = append(families, c.Family)
	}
	return families
}

func (r *DataRequest) wants(family, qualifier string, ts int64) bool {
	if r == nil {
		return true
	}
	if ts < r.MinTimestamp {
		return false
	}
	if r.MaxTimestamp > 0 && ts >= r.MaxTimestamp {
		return false
	}
	if len(r.Columns) == 0 {
		return true
	}
	for _, c := range r.Columns {
		if c.Covers(family, qualifier) {
			return true
		}
	}
	return false
}

func (r *DataRequest) maxVersions() int {
	if r == nil || r.MaxVersions <= 0 {
		return 1
	}
	return r.MaxVersions
}

// Cell is one timestamped value. Decoded is set when a CellSpec applies to
// the cell's column.
type Cell struct {
	Family    string      `json:"family" bson:"family"`
	Qualifier string      `json:"qualifier" bson:"qualifier"`
	Timestamp int64       `json:"timestamp" bson:"timestamp"`
	Value     []byte      `json:"value" bson:"value"`
	Decoded   interface{} `json:"-" bson:"-"`
}

// RowData holds the cells of one row ordered by family, qualifier, then
// timestamp descending.
type RowData struct {
	EntityID EntityID `json:"entity_id" bson:"_id"`
	Cells    []Cell   `json:"cells" bson:"cells"`
}

// Latest returns the newest cell at family:qualifier.
func (r *RowData) Latest(family, qualifier string) (Cell, bool) {
	if r == nil {
		return Cell{}, false
	}
	for _, c := range r.Cells {
		if c.Family == family && c.Qualifier == qualifier {
			return c, true
		}
	}
	return Cell{}, false
}

// Empty reports whether the row has no cells.
func (r *RowData) Empty() bool {
	return r == nil || len(r.Cells) == 0
}

// SortCells orders cells by family, qualifier and newest timestamp first.
func SortCells(cells []Cell) {
	sort.SliceStable(cells, func(i, j int) bool {
		a, b := cells[i], cells[j]
		if a.Family != b.Family {
			return a.Family < b.Family
		}
		if a.Qualifier != b.Qualifier {
			return a.Qualifier < b.Qualifier
		}
		return a.Timestamp > b.Timestamp
	})
}

// FilterRow applies req to an unfiltered row: column selection, time range
// and the per-qualifier version limit. The input is not modified.
func FilterRow(id EntityID, cells []Cell, req *DataRequest) *RowData {
	sorted := make([]Cell, len(cells))
	copy(sorted, cells)
	SortCells(sorted)

	limit := req.maxVersions()
	row := &RowData{EntityID: id}
	var (
		lastFamily, lastQualifier string
		versions                  int
	)
	for _, c := range sorted {
		if !req.wants(c.Family, c.Qualifier, c.Timestamp) {
			continue
		}
		if c.Family != lastFamily || c.Qualifier != lastQualifier {
			lastFamily, lastQualifier, versions = c.Family, c.Qualifier, 0
		}
		if versions >= limit {
			continue
		}
		versions++
		row.Cells = append(row.Cells, c)
	}
	return row
}

// ScannerOptions bounds a scan. StartRow is inclusive, StopRow exclusive;
// empty values are unbounded.
type ScannerOptions struct {
	StartRow EntityID
	StopRow  EntityID
	// Limit caps the number of rows returned; 0 means no limit
	Limit int
}

// InRange reports whether id falls within the scan bounds.
func (o ScannerOptions) InRange(id EntityID) bool {
	if o.StartRow != "" && id < o.StartRow {
		return false
	}
	if o.StopRow != "" && id >= o.StopRow {
		return false
	}
	return true
}

// RowScanner iterates rows in entity id order.
//
//	scanner, err := reader.Scanner(ctx, req, table.ScannerOptions{})
//	if err != nil {
//	    return err
//	}
//	defer scanner.Close()
//	for scanner.Next(ctx) {
//	    row := scanner.Row()
//	}
//	return scanner.Err()
type RowScanner interface {
	Next(ctx context.Context) bool
	Row() *RowData
	Err() error
	Close() error
}

// Reader reads rows from one table. Implementations are not required to be
// safe for concurrent use.
type Reader interface {
	// Get reads one row. A missing row yields an empty RowData, not an error.
	Get(ctx context.Context, id EntityID, req *DataRequest) (*RowData, error)
	// BulkGet reads rows in the order of ids.
	BulkGet(ctx context.Context, ids []EntityID, req *DataRequest) ([]*RowData, error)
	// Scanner opens a scan over a row range.
	Scanner(ctx context.Context, req *DataRequest, opts ScannerOptions) (RowScanner, error)
	// Close releases the reader's store handle.
	Close() error
}

// Pinger is implemented by readers that can check their store handle is
// still usable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReaderOptions configures readers opened by a ReaderFactory.
type ReaderOptions struct {
	// Overrides decode cells of the given columns with the given spec
	Overrides map[Column]*CellSpec
}

// ReaderFactory opens readers against one table.
type ReaderFactory interface {
	// OpenReader opens a new reader holding its own store handle.
	OpenReader(ctx context.Context, opts ReaderOptions) (Reader, error)
	// Table names the table readers are opened against.
	Table() string
}
