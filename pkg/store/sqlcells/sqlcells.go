// Package sqlcells reads rows from a SQL cell table. A table T is stored as
// one relation T_cells with one record per cell:
//
//	entity_id  text     row key
//	family     text
//	qualifier  text
//	ts         bigint   cell timestamp in milliseconds
//	value      binary   raw cell bytes
//
// Queries return cells ordered by entity id so a RowAssembler can rebuild
// rows from a single pass over the result.
package sqlcells

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/tablepool/pkg/table"
)

// Dialect captures what differs between SQL backends.
type Dialect struct {
	// Placeholder returns the nth (1-based) bind parameter
	Placeholder func(n int) string
	// Quote quotes an identifier
	Quote func(name string) string
	// TextType and BinaryType are used by CreateTableSQL
	TextType   string
	BinaryType string
}

// Relation returns the cell relation name of tableName.
func Relation(tableName string) string {
	return tableName + "_cells"
}

// CreateTableSQL returns the DDL of tableName's cell relation.
func (d Dialect) CreateTableSQL(tableName string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	entity_id %s NOT NULL,
	family %s NOT NULL,
	qualifier %s NOT NULL,
	ts BIGINT NOT NULL,
	value %s,
	PRIMARY KEY (entity_id, family, qualifier, ts)
)`, d.Quote(Relation(tableName)), d.TextType, d.TextType, d.TextType, d.BinaryType)
}

// InsertSQL returns a statement inserting one cell, with bind parameters in
// column order.
func (d Dialect) InsertSQL(tableName string) string {
	return fmt.Sprintf("INSERT INTO %s (entity_id, family, qualifier, ts, value) VALUES (%s, %s, %s, %s, %s)",
		d.Quote(Relation(tableName)),
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5))
}

type query struct {
	d     Dialect
	conds []string
	args  []interface{}
}

func (q *query) arg(v interface{}) string {
	q.args = append(q.args, v)
	return q.d.Placeholder(len(q.args))
}

func (q *query) in(column string, values []string) {
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = q.arg(v)
	}
	q.conds = append(q.conds, column+" IN ("+strings.Join(placeholders, ", ")+")")
}

// request narrows the query by family and time range. Qualifier selection
// and version limits are applied in memory by table.FilterRow.
func (q *query) request(req *table.DataRequest) {
	if families := req.Families(); len(families) > 0 {
		q.in("family", families)
	}
	if req == nil {
		return
	}
	if req.MinTimestamp > 0 {
		q.conds = append(q.conds, "ts >= "+q.arg(req.MinTimestamp))
	}
	if req.MaxTimestamp > 0 {
		q.conds = append(q.conds, "ts < "+q.arg(req.MaxTimestamp))
	}
}

func (q *query) build(tableName string) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("SELECT entity_id, family, qualifier, ts, value FROM ")
	sb.WriteString(q.d.Quote(Relation(tableName)))
	if len(q.conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(q.conds, " AND "))
	}
	sb.WriteString(" ORDER BY entity_id, family, qualifier, ts DESC")
	return sb.String(), q.args
}

// GetQuery selects the cells of the given rows.
func (d Dialect) GetQuery(tableName string, ids []table.EntityID, req *table.DataRequest) (string, []interface{}) {
	q := &query{d: d}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	q.in("entity_id", keys)
	q.request(req)
	return q.build(tableName)
}

// ScanQuery selects the cells of the rows within opts' bounds. The row
// limit is enforced by the Scanner, since the query returns cells.
func (d Dialect) ScanQuery(tableName string, req *table.DataRequest, opts table.ScannerOptions) (string, []interface{}) {
	q := &query{d: d}
	if opts.StartRow != "" {
		q.conds = append(q.conds, "entity_id >= "+q.arg(string(opts.StartRow)))
	}
	if opts.StopRow != "" {
		q.conds = append(q.conds, "entity_id < "+q.arg(string(opts.StopRow)))
	}
	q.request(req)
	return q.build(tableName)
}
