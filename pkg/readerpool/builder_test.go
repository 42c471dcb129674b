package readerpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tablepool/pkg/pool"
	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/table"
	"github.com/ajitpratap0/tablepool/pkg/testutil"
)

func TestBuilderDefaults(t *testing.T) {
	rp := build(t, newTestBuilder(t, &fakeFactory{}))

	stats := rp.Stats()
	assert.Equal(t, 8, stats.MaxActive)
	assert.Equal(t, 8, stats.MaxIdle)
	assert.Equal(t, "block", stats.Policy)
	assert.Equal(t, pool.DefaultConfig(), rp.pool.Config())
}

func TestBuilderAppliesSettings(t *testing.T) {
	spec, err := table.NewCellSpec(`"string"`)
	require.NoError(t, err)

	rp := build(t, newTestBuilder(t, &fakeFactory{}).
		WithCellSpecOverrides(map[table.Column]*table.CellSpec{{Family: "info"}: spec}).
		WithMinIdle(1).
		WithMaxIdle(3).
		WithMaxActive(5).
		WithMinEvictableIdleTime(time.Minute).
		WithEvictionRunInterval(time.Hour).
		WithExhaustionPolicy(pool.Grow).
		WithMaxWait(time.Second))

	assert.Equal(t, pool.Config{
		MinIdle:              1,
		MaxIdle:              3,
		MaxActive:            5,
		MinEvictableIdleTime: time.Minute,
		EvictionRunInterval:  time.Hour,
		Policy:               pool.Grow,
		MaxWait:              time.Second,
	}, rp.pool.Config())
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Builder
	}{
		{"missing factory", func() *Builder { return NewBuilder().WithMaxActive(2) }},
		{"nil factory", func() *Builder { return NewBuilder().WithReaderFactory(nil) }},
		{"factory set twice", func() *Builder {
			return NewBuilder().WithReaderFactory(&fakeFactory{}).WithReaderFactory(&fakeFactory{})
		}},
		{"max active set twice", func() *Builder {
			return NewBuilder().WithReaderFactory(&fakeFactory{}).WithMaxActive(2).WithMaxActive(3)
		}},
		{"negative min idle", func() *Builder { return NewBuilder().WithReaderFactory(&fakeFactory{}).WithMinIdle(-1) }},
		{"negative max wait", func() *Builder {
			return NewBuilder().WithReaderFactory(&fakeFactory{}).WithMaxWait(-time.Second)
		}},
		{"nil overrides", func() *Builder {
			return NewBuilder().WithReaderFactory(&fakeFactory{}).WithCellSpecOverrides(nil)
		}},
		{"min idle above max idle", func() *Builder {
			return NewBuilder().WithReaderFactory(&fakeFactory{}).WithMinIdle(4).WithMaxIdle(2)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp, err := tt.build().WithLogger(testutil.TestLogger(t)).Build()
			require.Error(t, err)
			assert.Nil(t, rp)
			assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))
		})
	}
}

func TestBuilderKeepsFirstError(t *testing.T) {
	_, err := NewBuilder().
		WithReaderFactory(&fakeFactory{}).
		WithMaxIdle(-1).
		WithMaxActive(-1).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max idle")
}
