package sqlcells

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

var dollar = Dialect{
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Quote:       func(name string) string { return `"` + name + `"` },
	TextType:    "TEXT",
	BinaryType:  "BYTEA",
}

var question = Dialect{
	Placeholder: func(int) string { return "?" },
	Quote:       func(name string) string { return "`" + name + "`" },
	TextType:    "VARCHAR(255)",
	BinaryType:  "LONGBLOB",
}

func TestGetQuery(t *testing.T) {
	req := &table.DataRequest{
		Columns:      []table.Column{{Family: "info", Qualifier: "name"}, {Family: "stats"}},
		MinTimestamp: 10,
		MaxTimestamp: 20,
	}
	sql, args := dollar.GetQuery("users", []table.EntityID{"a", "b"}, req)

	assert.Equal(t, `SELECT entity_id, family, qualifier, ts, value FROM "users_cells"`+
		` WHERE entity_id IN ($1, $2) AND family IN ($3, $4) AND ts >= $5 AND ts < $6`+
		` ORDER BY entity_id, family, qualifier, ts DESC`, sql)
	assert.Equal(t, []interface{}{"a", "b", "info", "stats", int64(10), int64(20)}, args)
}

func TestScanQuery(t *testing.T) {
	sql, args := question.ScanQuery("users", table.NewDataRequest(), table.ScannerOptions{StartRow: "a", StopRow: "m"})
	assert.Equal(t, "SELECT entity_id, family, qualifier, ts, value FROM `users_cells`"+
		" WHERE entity_id >= ? AND entity_id < ?"+
		" ORDER BY entity_id, family, qualifier, ts DESC", sql)
	assert.Equal(t, []interface{}{"a", "m"}, args)

	sql, args = question.ScanQuery("users", nil, table.ScannerOptions{})
	assert.NotContains(t, sql, "WHERE")
	assert.Empty(t, args)
}

func TestDDL(t *testing.T) {
	assert.Contains(t, dollar.CreateTableSQL("users"), `CREATE TABLE IF NOT EXISTS "users_cells"`)
	assert.Contains(t, question.CreateTableSQL("users"), "value LONGBLOB")
	assert.Equal(t, `INSERT INTO "users_cells" (entity_id, family, qualifier, ts, value) VALUES ($1, $2, $3, $4, $5)`,
		dollar.InsertSQL("users"))
}

type fakeRows struct {
	cells [][]interface{}
	pos   int
	err   error
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.cells) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	src := r.cells[r.pos-1]
	*dest[0].(*string) = src[0].(string)
	*dest[1].(*string) = src[1].(string)
	*dest[2].(*string) = src[2].(string)
	*dest[3].(*int64) = src[3].(int64)
	*dest[4].(*[]byte) = src[4].([]byte)
	return nil
}

func (r *fakeRows) Err() error { return r.err }

func cell(id, family, qualifier string, ts int64, value string) []interface{} {
	return []interface{}{id, family, qualifier, ts, []byte(value)}
}

func TestCollect(t *testing.T) {
	rows := &fakeRows{cells: [][]interface{}{
		cell("a", "info", "name", 2, "ann"),
		cell("a", "info", "name", 1, "anne"),
		cell("c", "info", "name", 1, "cid"),
	}}

	got, err := Collect(rows, []table.EntityID{"c", "b", "a"}, table.NewDataRequest("info:name"), nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "cid", string(got[0].Cells[0].Value))
	assert.True(t, got[1].Empty())
	assert.Equal(t, table.EntityID("b"), got[1].EntityID)
	require.Len(t, got[2].Cells, 1)
	assert.Equal(t, "ann", string(got[2].Cells[0].Value))
}

func TestCollectDriverError(t *testing.T) {
	_, err := Collect(&fakeRows{err: errors.New("connection reset")}, []table.EntityID{"a"}, nil, nil)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeBackend))
}

func TestScannerAssemblesRows(t *testing.T) {
	rows := &fakeRows{cells: [][]interface{}{
		cell("a", "info", "name", 1, "ann"),
		cell("a", "stats", "visits", 1, "x"),
		cell("b", "info", "name", 1, "bob"),
		cell("c", "info", "name", 1, "cid"),
	}}
	closed := 0
	scanner := NewScanner(rows, func() error { closed++; return nil }, table.NewDataRequest("info"), nil, 0)

	var ids []table.EntityID
	for scanner.Next(context.Background()) {
		ids = append(ids, scanner.Row().EntityID)
		assert.Len(t, scanner.Row().Cells, 1)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []table.EntityID{"a", "b", "c"}, ids)
	assert.Nil(t, scanner.Row())

	require.NoError(t, scanner.Close())
	require.NoError(t, scanner.Close())
	assert.Equal(t, 1, closed)
}

func TestScannerLimit(t *testing.T) {
	rows := &fakeRows{cells: [][]interface{}{
		cell("a", "info", "name", 1, "ann"),
		cell("b", "info", "name", 1, "bob"),
		cell("c", "info", "name", 1, "cid"),
	}}
	scanner := NewScanner(rows, nil, nil, nil, 2)

	var ids []table.EntityID
	for scanner.Next(context.Background()) {
		ids = append(ids, scanner.Row().EntityID)
	}
	assert.Equal(t, []table.EntityID{"a", "b"}, ids)
	assert.NoError(t, scanner.Close())
}

func TestScannerStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scanner := NewScanner(&fakeRows{cells: [][]interface{}{cell("a", "info", "name", 1, "ann")}}, nil, nil, nil, 0)
	assert.False(t, scanner.Next(ctx))
	assert.ErrorIs(t, scanner.Err(), context.Canceled)
}

func TestScannerEmptyResult(t *testing.T) {
	scanner := NewScanner(&fakeRows{}, nil, nil, nil, 0)
	assert.False(t, scanner.Next(context.Background()))
	assert.NoError(t, scanner.Err())
}
