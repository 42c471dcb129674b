package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/tablepool/pkg/store/memstore"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

// IntegrationTest skips the test in short mode or when envVar is unset, and
// otherwise returns envVar's value (typically a DSN or bucket name).
func IntegrationTest(t *testing.T, envVar string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	value := os.Getenv(envVar)
	if value == "" {
		t.Skipf("Skipping integration test: %s is not set", envVar)
	}
	return value
}

// ReaderSuite checks a backend against the rows of memstore.SeedRows. The
// backend's test loads SeedRows(Rows) into its store, sets Factory and runs
// the suite with suite.Run.
type ReaderSuite struct {
	suite.Suite
	Factory table.ReaderFactory
	Rows    int

	ctx    context.Context
	cancel context.CancelFunc
}

// SetupSuite runs before all tests in the suite
func (s *ReaderSuite) SetupSuite() {
	s.Require().NotNil(s.Factory, "Factory must be set")
	s.Require().GreaterOrEqual(s.Rows, 8, "the suite reads rows 0 through 7")
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 2*time.Minute)
}

// TearDownSuite runs after all tests in the suite
func (s *ReaderSuite) TearDownSuite() {
	s.cancel()
}

func (s *ReaderSuite) open(overrides map[table.Column]*table.CellSpec) table.Reader {
	reader, err := s.Factory.OpenReader(s.ctx, table.ReaderOptions{Overrides: overrides})
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = reader.Close() })
	return reader
}

func (s *ReaderSuite) TestGet() {
	reader := s.open(nil)

	row, err := reader.Get(s.ctx, memstore.SeedID(3), table.NewDataRequest("info:name"))
	s.Require().NoError(err)
	s.Equal(memstore.SeedID(3), row.EntityID)
	s.Require().Len(row.Cells, 1)
	s.Equal("user 3", string(row.Cells[0].Value))
	s.Nil(row.Cells[0].Decoded)
}

func (s *ReaderSuite) TestGetDecodesOverrides() {
	visits, err := table.NewCellSpec(memstore.VisitsSchema)
	s.Require().NoError(err)
	reader := s.open(map[table.Column]*table.CellSpec{{Family: "stats", Qualifier: "visits"}: visits})

	row, err := reader.Get(s.ctx, memstore.SeedID(3), table.NewDataRequest())
	s.Require().NoError(err)
	s.Require().Len(row.Cells, 3)

	cell, ok := row.Latest("stats", "visits")
	s.Require().True(ok)
	s.Equal(int64(21), cell.Decoded)
}

func (s *ReaderSuite) TestGetMissingRow() {
	reader := s.open(nil)

	row, err := reader.Get(s.ctx, "no-such-user", table.NewDataRequest("info"))
	s.Require().NoError(err)
	s.True(row.Empty())
	s.Equal(table.EntityID("no-such-user"), row.EntityID)
}

func (s *ReaderSuite) TestBulkGetKeepsOrder() {
	reader := s.open(nil)

	ids := []table.EntityID{memstore.SeedID(5), "no-such-user", memstore.SeedID(1)}
	rows, err := reader.BulkGet(s.ctx, ids, table.NewDataRequest("info:name"))
	s.Require().NoError(err)
	s.Require().Len(rows, 3)
	for i, id := range ids {
		s.Equal(id, rows[i].EntityID)
	}
	s.Equal("user 5", string(rows[0].Cells[0].Value))
	s.True(rows[1].Empty())
	s.Equal("user 1", string(rows[2].Cells[0].Value))
}

func (s *ReaderSuite) TestScannerRange() {
	reader := s.open(nil)

	scanner, err := reader.Scanner(s.ctx, table.NewDataRequest("info:name"), table.ScannerOptions{
		StartRow: memstore.SeedID(2),
		StopRow:  memstore.SeedID(7),
		Limit:    3,
	})
	s.Require().NoError(err)
	defer scanner.Close()

	var got []table.EntityID
	for scanner.Next(s.ctx) {
		got = append(got, scanner.Row().EntityID)
		s.Len(scanner.Row().Cells, 1)
	}
	s.Require().NoError(scanner.Err())
	s.Equal([]table.EntityID{memstore.SeedID(2), memstore.SeedID(3), memstore.SeedID(4)}, got)
}

func (s *ReaderSuite) TestPingAndClose() {
	reader, err := s.Factory.OpenReader(s.ctx, table.ReaderOptions{})
	s.Require().NoError(err)

	if pinger, ok := reader.(table.Pinger); ok {
		s.NoError(pinger.Ping(s.ctx))
	}
	s.NoError(reader.Close())
}
