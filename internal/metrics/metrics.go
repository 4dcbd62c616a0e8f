package metrics

import (
	"Go2CrossCount/internal/model"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters of one engine process.
type Metrics struct {
	FramesProcessed   atomic.Uint64
	SnapshotsRejected atomic.Uint64
	BucketsFlushed    atomic.Uint64
	SinkErrors        atomic.Uint64

	classTotal    *prometheus.GaugeVec
	classInterval *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		classTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crosscount_class_total",
			Help: "Cumulative crossings of a class as of the last flushed bucket",
		}, []string{"class"}),
		classInterval: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crosscount_class_interval",
			Help: "Crossings of a class within the last flushed bucket",
		}, []string{"class"}),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "crosscount_frames_processed_total",
			Help: "Total frames pulled from the source",
		},
		func() float64 { return float64(m.FramesProcessed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "crosscount_snapshots_rejected_total",
			Help: "Total snapshots dropped because a count went backwards",
		},
		func() float64 { return float64(m.SnapshotsRejected.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "crosscount_buckets_flushed_total",
			Help: "Total buckets handed to the writers",
		},
		func() float64 { return float64(m.BucketsFlushed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "crosscount_sink_errors_total",
			Help: "Total failed writer appends",
		},
		func() float64 { return float64(m.SinkErrors.Load()) },
	))

	m.registry.MustRegister(m.classTotal, m.classInterval)
}

// ObserveBucket records a flushed bucket and its class columns.
func (m *Metrics) ObserveBucket(bucket *model.Bucket) {
	m.BucketsFlushed.Add(1)
	for _, ct := range bucket.Classes {
		m.classTotal.WithLabelValues(ct.Class).Set(float64(ct.Total))
		m.classInterval.WithLabelValues(ct.Class).Set(float64(ct.Interval))
	}
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
