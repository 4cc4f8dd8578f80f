package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

type StageMetrics struct {
	service  string
	registry *prometheus.Registry

	runTotal    *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	runInFlight prometheus.Gauge
	rows        *prometheus.GaugeVec
	retries     *prometheus.CounterVec
	breaker     *prometheus.GaugeVec
}

func NewStageMetrics(service string) *StageMetrics {
	registry := prometheus.NewRegistry()

	runTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vip",
			Subsystem: "transformation",
			Name:      "run_total",
			Help:      "Total transformation runs by status.",
		},
		[]string{"service", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vip",
			Subsystem: "transformation",
			Name:      "run_duration_seconds",
			Help:      "Transformation run duration in seconds by status.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	runInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vip",
			Subsystem: "transformation",
			Name:      "run_in_flight",
			Help:      "Number of in-flight transformation runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	rows := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vip",
			Subsystem: "transformation",
			Name:      "rows",
			Help:      "Row count of the last processed split by phase.",
		},
		[]string{"service", "split", "phase"},
	)

	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vip",
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried calls to external systems by operation.",
		},
		[]string{"service", "operation"},
	)
	breaker := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vip",
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker of an operation is not closed.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(runTotal, runDuration, runInFlight, rows, retries, breaker)

	return &StageMetrics{
		service:     service,
		registry:    registry,
		runTotal:    runTotal,
		runDuration: runDuration,
		runInFlight: runInFlight,
		rows:        rows,
		retries:     retries,
		breaker:     breaker,
	}
}

func (m *StageMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *StageMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *StageMetrics) StartRun() {
	m.runInFlight.Inc()
}

func (m *StageMetrics) FinishRun(duration time.Duration, err error) {
	m.runInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.runTotal.WithLabelValues(m.service, status).Inc()
	m.runDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *StageMetrics) ObserveRows(split, phase string, rows int) {
	if rows < 0 {
		return
	}
	m.rows.WithLabelValues(m.service, split, phase).Set(float64(rows))
}

func (m *StageMetrics) ObserveRetry(operation string) {
	m.retries.WithLabelValues(m.service, operation).Inc()
}

func (m *StageMetrics) ObserveBreakerState(operation, state string) {
	open := 0.0
	if state != "closed" {
		open = 1
	}
	m.breaker.WithLabelValues(m.service, operation).Set(open)
}

// Push sends the registry to a Pushgateway. One-shot runs exit before a
// scraper would see them.
func (m *StageMetrics) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
