package mongostore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ajitpratap0/tablepool/pkg/config"
	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/store/memstore"
	"github.com/ajitpratap0/tablepool/pkg/store/registry"
	"github.com/ajitpratap0/tablepool/pkg/testutil"
)

func TestNewFactoryValidates(t *testing.T) {
	_, err := NewFactory("mongodb://localhost:27017", "", "users")
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))

	_, err = NewFactory("not-a-uri", "tables", "users")
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))
}

func TestRegisteredBackend(t *testing.T) {
	factory, err := registry.Open(context.Background(), &config.BackendConfig{
		Type:     "mongodb",
		Table:    "users",
		DSN:      "mongodb://localhost:27017",
		Database: "tables",
	})
	require.NoError(t, err)
	assert.Equal(t, "users", factory.Table())
}

func TestMongoReaderSuite(t *testing.T) {
	uri := testutil.IntegrationTest(t, "TABLEPOOL_MONGODB_URI")
	ctx := testutil.TestContext(t)
	const database, tableName = "tablepool_test", "users"

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(context.Background()) }()

	collection := client.Database(database).Collection(tableName)
	require.NoError(t, collection.Drop(ctx))
	rows, err := memstore.SeedRows(10)
	require.NoError(t, err)
	docs := make([]interface{}, len(rows))
	for i, row := range rows {
		docs[i] = row
	}
	_, err = collection.InsertMany(ctx, docs)
	require.NoError(t, err)

	factory, err := NewFactory(uri, database, tableName)
	require.NoError(t, err)
	suite.Run(t, &testutil.ReaderSuite{Factory: factory, Rows: 10})
}
