package memstore_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/tablepool/pkg/store/memstore"
	"github.com/ajitpratap0/tablepool/pkg/testutil"
)

func TestMemstoreReaderSuite(t *testing.T) {
	store := memstore.New()
	if err := store.Seed("users", 10); err != nil {
		t.Fatal(err)
	}
	suite.Run(t, &testutil.ReaderSuite{Factory: store.Factory("users", 0), Rows: 10})
}
