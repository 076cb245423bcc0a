package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Export outcome labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds Prometheus collectors for exports and probes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	exportsTotal   *prometheus.CounterVec
	exportDuration prometheus.Histogram
	renditions     prometheus.Counter
	keyRotations   prometheus.Counter
	probesTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers the export metrics on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	exportsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_exports_total",
		Help: "Total number of HLS exports by outcome",
	}, []string{"status"})
	exportDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hls_export_duration_seconds",
		Help:    "Wall time of HLS exports including playlist generation",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	renditions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_renditions_total",
		Help: "Total number of renditions muxed",
	})
	keyRotations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_key_rotations_total",
		Help: "Total number of encryption keys generated",
	})
	probesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ffmpeg_probe_total",
		Help: "Total number of ffprobe invocations by outcome",
	}, []string{"status"})

	registry.MustRegister(exportsTotal, exportDuration, renditions, keyRotations, probesTotal)

	return &Metrics{
		registry:       registry,
		exportsTotal:   exportsTotal,
		exportDuration: exportDuration,
		renditions:     renditions,
		keyRotations:   keyRotations,
		probesTotal:    probesTotal,
	}
}

// ObserveExport records one finished export.
func (m *Metrics) ObserveExport(duration time.Duration, renditions int, err error) {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(statusOf(err)).Inc()
	m.exportDuration.Observe(duration.Seconds())
	m.renditions.Add(float64(renditions))
}

// IncKeyRotations increments the generated key counter.
func (m *Metrics) IncKeyRotations() {
	if m == nil {
		return
	}
	m.keyRotations.Inc()
}

// ObserveProbe records one ffprobe invocation.
func (m *Metrics) ObserveProbe(err error) {
	if m == nil {
		return
	}
	m.probesTotal.WithLabelValues(statusOf(err)).Inc()
}

// WriteTextfile writes all metrics in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Handler returns an http.Handler that serves the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func statusOf(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}
