package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPoolCollector(t *testing.T) {
	c := NewPoolCollector("metrics-test")

	c.SetOccupancy(3, 2, 1)
	c.Created()
	c.Created()
	c.Destroyed(ReasonEvicted)
	c.Returned()
	c.Borrow(OutcomeSuccess, 5*time.Millisecond)
	c.Borrow(OutcomeExhausted, 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(PoolActive.WithLabelValues("metrics-test")))
	assert.Equal(t, 2.0, testutil.ToFloat64(PoolIdle.WithLabelValues("metrics-test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(PoolWaiters.WithLabelValues("metrics-test")))
	assert.Equal(t, 2.0, testutil.ToFloat64(HandlesCreated.WithLabelValues("metrics-test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(HandlesDestroyed.WithLabelValues("metrics-test", ReasonEvicted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(Returns.WithLabelValues("metrics-test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(Borrows.WithLabelValues("metrics-test", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(Borrows.WithLabelValues("metrics-test", OutcomeExhausted)))
}

func TestNilCollector(t *testing.T) {
	var c *PoolCollector
	assert.NotPanics(t, func() {
		c.SetOccupancy(1, 1, 1)
		c.Created()
		c.Destroyed(ReasonClosed)
		c.Returned()
		c.Borrow(OutcomeSuccess, time.Millisecond)
		c.Unregister()
	})
	assert.Empty(t, c.Name())
}

func TestTimer(t *testing.T) {
	timer := NewTimer("op")
	time.Sleep(time.Millisecond)
	assert.Equal(t, "op", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
