package bench

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tablepool/pkg/pool"
	"github.com/ajitpratap0/tablepool/pkg/readerpool"
	"github.com/ajitpratap0/tablepool/pkg/store/memstore"
	"github.com/ajitpratap0/tablepool/pkg/testutil"
)

func newPool(t *testing.T, maxActive int, policy pool.ExhaustionPolicy) (*readerpool.ReaderPool, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	require.NoError(t, store.Seed("users", 100))

	rp, err := readerpool.NewBuilder().
		WithReaderFactory(store.Factory("users", 0)).
		WithMaxActive(maxActive).
		WithMaxIdle(maxActive).
		WithExhaustionPolicy(policy).
		WithName(t.Name()).
		WithLogger(testutil.TestLogger(t)).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rp.Close() })
	return rp, store
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	for _, mutate := range []func(*Config){
		func(c *Config) { c.Workers = 0 },
		func(c *Config) { c.Keys = 0 },
		func(c *Config) { c.Rate = -1 },
		func(c *Config) { c.Operations, c.Duration = 0, 0 },
	} {
		c := DefaultConfig()
		mutate(&c)
		assert.Error(t, c.Validate())
	}
}

func TestRunCompletesOperations(t *testing.T) {
	rp, store := newPool(t, 4, pool.Block)

	res, err := Run(context.Background(), rp, Config{
		Workers:    8,
		Operations: 200,
		Keys:       100,
		Columns:    []string{"info:name"},
	}, testutil.TestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, uint64(200), res.Operations)
	assert.Zero(t, res.Errors)
	assert.Zero(t, res.Exhausted)
	assert.LessOrEqual(t, res.P50, res.P99)
	assert.LessOrEqual(t, res.P99, res.Max)
	assert.Greater(t, res.Throughput, 0.0)
	assert.Zero(t, res.Pool.Active)
	assert.LessOrEqual(t, store.Opened(), int64(4))
	assert.Equal(t, uint64(200), res.Pool.Returned)
}

func TestRunCountsExhaustionUnderFailPolicy(t *testing.T) {
	rp, _ := newPool(t, 1, pool.Fail)

	res, err := Run(context.Background(), rp, Config{
		Workers:    4,
		Operations: 40,
		Keys:       10,
		Hold:       2 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(40), res.Operations+res.Exhausted)
	assert.Greater(t, res.Exhausted, uint64(0))
	assert.Zero(t, res.Errors)
}

func TestRunStopsAfterDuration(t *testing.T) {
	rp, _ := newPool(t, 2, pool.Block)

	res, err := Run(context.Background(), rp, Config{
		Workers:  2,
		Duration: 50 * time.Millisecond,
		Rate:     200,
		Keys:     10,
	}, nil)
	require.NoError(t, err)

	assert.Greater(t, res.Operations, uint64(0))
	assert.Less(t, res.Elapsed, time.Second)
	assert.Zero(t, res.Errors)
}

func TestRunCountsReadErrors(t *testing.T) {
	rp, store := newPool(t, 2, pool.Block)
	store.SetDown(true)

	res, err := Run(context.Background(), rp, Config{Workers: 2, Operations: 10, Keys: 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.Errors)
	assert.Zero(t, res.Operations)
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 0.50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 0.99))
	assert.Equal(t, time.Duration(1), percentile(sorted[:1], 0.5))
}
