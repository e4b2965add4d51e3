// Package metrics provides in-memory client statistics with Prometheus exposition.
package metrics

import (
	"cmp"
	"math"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Name        string
	Count       int64
	Failures    int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64
}

// Snapshot represents the client statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Operations    []OperationSnapshot
	Events        map[string]int64
	Malformed     int64
	Reconnects    int64
}

// Collector aggregates in-memory runtime statistics and mirrors them into a
// Prometheus registry. All methods are thread-safe.
type Collector struct {
	mu         sync.RWMutex
	startTime  time.Time
	ops        map[string]*OperationMetrics
	events     map[string]int64
	malformed  int64
	reconnects int64

	registry        *prometheus.Registry
	restRequests    *prometheus.CounterVec
	restDuration    *prometheus.HistogramVec
	streamEvents    *prometheus.CounterVec
	streamMalformed prometheus.Counter
	streamConnected prometheus.Gauge
	streamRTT       prometheus.Gauge
	streamReconnect prometheus.Counter
	jobsByStatus    *prometheus.GaugeVec
}

// NewCollector creates a new metrics collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		events:    make(map[string]int64),
		registry:  reg,

		restRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mnemo_rest_requests_total",
				Help: "Total number of backend REST requests",
			},
			[]string{"endpoint", "outcome"},
		),
		restDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mnemo_rest_request_duration_seconds",
				Help:    "Backend REST request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		streamEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mnemo_stream_events_total",
				Help: "Total number of stream events by name",
			},
			[]string{"event"},
		),
		streamMalformed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mnemo_stream_malformed_total",
				Help: "Stream frames dropped as malformed",
			},
		),
		streamConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mnemo_stream_connected",
				Help: "1 while the event stream is connected",
			},
		),
		streamRTT: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mnemo_stream_rtt_seconds",
				Help: "Last observed ping round-trip time",
			},
		),
		streamReconnect: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mnemo_stream_reconnects_total",
				Help: "Successful stream reconnections",
			},
		),
		jobsByStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mnemo_jobs",
				Help: "Known jobs by displayed status",
			},
			[]string{"status"},
		),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records the duration and outcome of a REST call.
func (c *Collector) RecordTiming(op string, duration time.Duration, err error) {
	c.mu.Lock()
	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration
	if err != nil {
		m.Failures++
	}
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
	c.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.restRequests.WithLabelValues(op, outcome).Inc()
	c.restDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordEvent counts one inbound stream event.
func (c *Collector) RecordEvent(name string) {
	c.mu.Lock()
	c.events[name]++
	c.mu.Unlock()
	c.streamEvents.WithLabelValues(name).Inc()
}

// RecordMalformed counts one dropped stream frame.
func (c *Collector) RecordMalformed() {
	c.mu.Lock()
	c.malformed++
	c.mu.Unlock()
	c.streamMalformed.Inc()
}

// RecordReconnect counts one successful reconnection.
func (c *Collector) RecordReconnect() {
	c.mu.Lock()
	c.reconnects++
	c.mu.Unlock()
	c.streamReconnect.Inc()
}

// SetConnected records stream liveness and, when known, the last RTT.
func (c *Collector) SetConnected(connected bool, rtt time.Duration) {
	if connected {
		c.streamConnected.Set(1)
	} else {
		c.streamConnected.Set(0)
	}
	if rtt > 0 {
		c.streamRTT.Set(rtt.Seconds())
	}
}

// SetJobCounts replaces the per-status job gauges.
func (c *Collector) SetJobCounts(counts map[string]int) {
	c.jobsByStatus.Reset()
	for status, n := range counts {
		c.jobsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(name string, m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}
	return &OperationSnapshot{
		Name:        name,
		Count:       m.Count,
		Failures:    m.Failures,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics, operations sorted by name.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Events:        make(map[string]int64, len(c.events)),
		Malformed:     c.malformed,
		Reconnects:    c.reconnects,
	}
	for name, m := range c.ops {
		if s := snapshotOp(name, m); s != nil {
			snap.Operations = append(snap.Operations, *s)
		}
	}
	slices.SortFunc(snap.Operations, func(a, b OperationSnapshot) int {
		return cmp.Compare(a.Name, b.Name)
	})
	for name, n := range c.events {
		snap.Events[name] = n
	}
	return snap
}

// Handler returns the Prometheus exposition handler for this collector.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
