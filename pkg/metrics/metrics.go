// Package metrics provides Prometheus instrumentation for the CSV reader,
// the sniffer and the parallel scanner.
//
// # Basic Usage
//
//	collector := metrics.NewCollector(prometheus.NewRegistry(), "csvscan")
//	reader := csvreader.NewBufferedReader(cfg, handle, csvreader.WithMetrics(collector))
//
//	timer := metrics.NewTimer()
//	result, err := sniffer.Sniff(ctx, reader)
//	collector.ObserveSniff(timer.Stop())
//
// A nil *Collector is valid and records nothing, so components can carry an
// optional collector without nil checks at every call site.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector groups the counters recorded while reading CSV files.
type Collector struct {
	component      string
	rowsRead       *prometheus.CounterVec   // rows committed to output batches
	rowsRejected   *prometheus.CounterVec   // rows dropped by error policies, by reason
	batchesFlushed *prometheus.CounterVec   // output batches produced
	bytesRead      *prometheus.CounterVec   // bytes consumed from file handles
	castFallbacks  *prometheus.CounterVec   // vectorized casts that fell back to row-wise casting
	sniffDuration  *prometheus.HistogramVec // sniffing latency
	queueDepth     *prometheus.GaugeVec     // batches waiting in output queues
}

// NewCollector registers the csvscan metrics on reg. The component label
// distinguishes readers embedded in different processes or pipelines.
func NewCollector(reg prometheus.Registerer, component string) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		component: component,
		rowsRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csvscan_rows_read_total",
				Help: "Total number of rows committed to output batches",
			},
			[]string{"component"},
		),
		rowsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csvscan_rows_rejected_total",
				Help: "Total number of rows dropped by error policies",
			},
			[]string{"component", "reason"},
		),
		batchesFlushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csvscan_batches_flushed_total",
				Help: "Total number of typed batches produced",
			},
			[]string{"component"},
		),
		bytesRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csvscan_bytes_read_total",
				Help: "Total number of bytes read from file handles",
			},
			[]string{"component"},
		),
		castFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csvscan_cast_fallbacks_total",
				Help: "Column casts that fell back from vectorized to row-wise",
			},
			[]string{"component", "type"},
		),
		sniffDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "csvscan_sniff_duration_seconds",
				Help:    "Time spent sniffing dialect and types",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"component"},
		),
		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "csvscan_queue_depth",
				Help: "Typed batches waiting to be consumed",
			},
			[]string{"component"},
		),
	}
}

var (
	defaultOnce      sync.Once
	defaultCollector *Collector
)

// Default returns a collector registered on the Prometheus default registry.
func Default() *Collector {
	defaultOnce.Do(func() {
		defaultCollector = NewCollector(prometheus.DefaultRegisterer, "csvscan")
	})
	return defaultCollector
}

// AddRows records rows committed to output batches.
func (c *Collector) AddRows(n int) {
	if c == nil || n == 0 {
		return
	}
	c.rowsRead.WithLabelValues(c.component).Add(float64(n))
}

// RejectRow records a row dropped for reason.
func (c *Collector) RejectRow(reason string) {
	if c == nil {
		return
	}
	c.rowsRejected.WithLabelValues(c.component, reason).Inc()
}

// IncBatches records one produced batch.
func (c *Collector) IncBatches() {
	if c == nil {
		return
	}
	c.batchesFlushed.WithLabelValues(c.component).Inc()
}

// AddBytes records bytes consumed from a file handle.
func (c *Collector) AddBytes(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.bytesRead.WithLabelValues(c.component).Add(float64(n))
}

// IncCastFallback records a vectorized cast failure for typeName.
func (c *Collector) IncCastFallback(typeName string) {
	if c == nil {
		return
	}
	c.castFallbacks.WithLabelValues(c.component, typeName).Inc()
}

// ObserveSniff records one sniffing pass.
func (c *Collector) ObserveSniff(d time.Duration) {
	if c == nil {
		return
	}
	c.sniffDuration.WithLabelValues(c.component).Observe(d.Seconds())
}

// SetQueueDepth records the number of batches waiting in an output queue.
func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.WithLabelValues(c.component).Set(float64(n))
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called
// multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
