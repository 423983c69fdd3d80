// Package telemetry holds the exporter's own Prometheus metrics: scrape
// timing, upstream failures, arity conflicts and HTTP serving. They live in a
// dedicated prometheus.Registry owned by main and are appended to every
// exposition next to the Pi-hole metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pihole_exporter"

// Metrics groups the self-metrics. All fields are safe for concurrent use.
type Metrics struct {
	ScrapeDuration   prometheus.Histogram
	Scrapes          *prometheus.CounterVec
	EndpointErrors   *prometheus.CounterVec
	EndpointUp       *prometheus.GaugeVec
	EndpointUptime   *prometheus.GaugeVec
	ArityConflicts   prometheus.Counter
	Series           prometheus.Gauge
	RegistryMetrics  prometheus.Gauge
	UpstreamCertDays prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates the self-metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ScrapeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_duration_seconds",
			Help:      "Duration of one full Pi-hole scrape, fetch through merge.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Scrapes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrapes_total",
			Help:      "Scrapes by result (success or error).",
		}, []string{"result"}),
		EndpointErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoint_errors_total",
			Help:      "Failed upstream endpoint fetches or normalizations.",
		}, []string{"endpoint"}),
		EndpointUp: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_up",
			Help:      "1 if the last fetch of the endpoint succeeded.",
		}, []string{"endpoint"}),
		EndpointUptime: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_uptime_ratio",
			Help:      "Share of the recent scrapes in which the endpoint succeeded.",
		}, []string{"endpoint"}),
		ArityConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arity_conflicts_total",
			Help:      "Observations rejected because their label arity changed.",
		}),
		Series: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "series",
			Help:      "Pi-hole series currently exposed.",
		}),
		RegistryMetrics: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metrics",
			Help:      "Pi-hole metrics currently registered.",
		}),
		UpstreamCertDays: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_cert_days_left",
			Help:      "Days until the Pi-hole TLS certificate expires. Negative once expired.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by status code and method.",
		}, []string{"code", "method"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by status code and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code", "method"}),
	}
}

// InstrumentHandler wraps h with the request counter and latency histogram.
func (m *Metrics) InstrumentHandler(h http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(m.httpDuration,
		promhttp.InstrumentHandlerCounter(m.httpRequests, h))
}
