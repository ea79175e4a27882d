package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InstrumentTransport wraps next with request counters and latency histograms
// for the outbound MES calls. The metrics live in the watcher registry.
func (m *WatcherMetrics) InstrumentTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tx",
			Subsystem: "mes",
			Name:      "requests_total",
			Help:      "Total MES HTTP requests by method and status code.",
		},
		[]string{"method", "code"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tx",
			Subsystem: "mes",
			Name:      "request_duration_seconds",
			Help:      "MES HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tx",
			Subsystem: "mes",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight MES HTTP requests.",
		},
	)
	m.registry.MustRegister(requestTotal, requestDuration, inFlight)

	return promhttp.InstrumentRoundTripperInFlight(inFlight,
		promhttp.InstrumentRoundTripperCounter(requestTotal,
			promhttp.InstrumentRoundTripperDuration(requestDuration, next),
		),
	)
}
