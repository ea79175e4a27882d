package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
)

type WatcherMetrics struct {
	registry *prometheus.Registry

	itemsTotal    *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	cycleFailures *prometheus.CounterVec
	quarantined   *prometheus.GaugeVec
	breakerState  *prometheus.GaugeVec
	retries       *prometheus.CounterVec
}

func NewWatcherMetrics(service string) *WatcherMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	itemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "tx",
			Subsystem:   "watcher",
			Name:        "items_total",
			Help:        "Submitted work items by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"watcher", "outcome"},
	)
	cycleDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "tx",
			Subsystem:   "watcher",
			Name:        "cycle_duration_seconds",
			Help:        "Duration of one scan and submission cycle.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			ConstLabels: constLabels,
		},
		[]string{"watcher"},
	)
	cycleFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "tx",
			Subsystem:   "watcher",
			Name:        "cycle_failures_total",
			Help:        "Cycles that ended with a source or ledger failure.",
			ConstLabels: constLabels,
		},
		[]string{"watcher"},
	)
	quarantined := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   "tx",
			Subsystem:   "watcher",
			Name:        "quarantined_records",
			Help:        "Quarantined records still failing after the last retry pass.",
			ConstLabels: constLabels,
		},
		[]string{"watcher"},
	)

	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   "tx",
			Subsystem:   "resilience",
			Name:        "breaker_state",
			Help:        "Circuit breaker state per operation: 0 closed, 1 half-open, 2 open.",
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "tx",
			Subsystem:   "resilience",
			Name:        "retries_total",
			Help:        "Retries scheduled after a transient failure.",
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)

	registry.MustRegister(itemsTotal, cycleDuration, cycleFailures, quarantined, breakerState, retries)

	return &WatcherMetrics{
		registry:      registry,
		itemsTotal:    itemsTotal,
		cycleDuration: cycleDuration,
		cycleFailures: cycleFailures,
		quarantined:   quarantined,
		breakerState:  breakerState,
		retries:       retries,
	}
}

func (m *WatcherMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WatcherMetrics) ObserveItem(watcher string, status domain.OutcomeStatus) {
	m.itemsTotal.WithLabelValues(watcher, string(status)).Inc()
}

func (m *WatcherMetrics) ObserveCycle(watcher string, duration time.Duration, err error) {
	m.cycleDuration.WithLabelValues(watcher).Observe(duration.Seconds())
	if err != nil {
		m.cycleFailures.WithLabelValues(watcher).Inc()
	}
}

func (m *WatcherMetrics) SetQuarantined(watcher string, records int) {
	m.quarantined.WithLabelValues(watcher).Set(float64(records))
}

func (m *WatcherMetrics) BreakerState(operation, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	m.breakerState.WithLabelValues(operation).Set(v)
}

func (m *WatcherMetrics) RetryScheduled(operation string) {
	m.retries.WithLabelValues(operation).Inc()
}
