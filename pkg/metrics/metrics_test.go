package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, "test")

	c.AddRows(10)
	c.AddRows(5)
	c.RejectRow("cast")
	c.RejectRow("cast")
	c.RejectRow("overflow")
	c.IncBatches()
	c.AddBytes(128)
	c.IncCastFallback("BIGINT")
	c.SetQueueDepth(3)
	c.ObserveSniff(20 * time.Millisecond)

	assert.Equal(t, 15.0, testutil.ToFloat64(c.rowsRead.WithLabelValues("test")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rowsRejected.WithLabelValues("test", "cast")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rowsRejected.WithLabelValues("test", "overflow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.batchesFlushed.WithLabelValues("test")))
	assert.Equal(t, 128.0, testutil.ToFloat64(c.bytesRead.WithLabelValues("test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.castFallbacks.WithLabelValues("test", "BIGINT")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.queueDepth.WithLabelValues("test")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.sniffDuration))
}

func TestNilCollector(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.AddRows(1)
		c.RejectRow("cast")
		c.IncBatches()
		c.AddBytes(1)
		c.IncCastFallback("DOUBLE")
		c.ObserveSniff(time.Second)
		c.SetQueueDepth(1)
	})
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
