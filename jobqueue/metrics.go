package jobqueue

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus gauges/counters and the HdrHistogram
// wait-time distribution for one CompactionJobQueueSet.
type metrics struct {
	queued   prometheus.Gauge
	rejected prometheus.Counter
	woken    prometheus.Counter

	mu        sync.Mutex
	waitNanos *hdrhistogram.Histogram
}

func newMetrics(namespace string) *metrics {
	return &metrics{
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobqueue",
			Name:      "queued_jobs",
			Help:      "Number of compaction jobs currently resident in a queue, across all groups.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobqueue",
			Name:      "rejected_jobs_total",
			Help:      "Number of compaction jobs rejected for exceeding a group queue's weight bound.",
		}),
		woken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobqueue",
			Name:      "waiter_wakes_total",
			Help:      "Number of getAsync waiters completed directly, bypassing the heap.",
		}),
		waitNanos: hdrhistogram.New(1, int64(time.Hour), 3),
	}
}

// Collectors returns the Prometheus collectors for registration.
func (m *metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.queued, m.rejected, m.woken}
}

func (m *metrics) observeQueued() { m.queued.Inc() }
func (m *metrics) observeDequeued() { m.queued.Dec() }
func (m *metrics) observeRejected() { m.rejected.Inc() }

func (m *metrics) observeWake(waitNanos int64) {
	m.woken.Inc()
	if waitNanos < 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.waitNanos.RecordValue(waitNanos)
}

// WaitNanosSnapshot returns percentile estimates of getAsync wait
// latency, recorded each time Add hands a job to a waiter.
func (m *metrics) WaitNanosSnapshot() (p50, p99 int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waitNanos.ValueAtQuantile(50), m.waitNanos.ValueAtQuantile(99)
}
