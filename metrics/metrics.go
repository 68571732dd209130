// Package metrics provides Prometheus metrics for prediction runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Noofbiz/sceneforecast/eval"
)

// Manager owns a registry and the metrics recorded on it.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	predictions        *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	predictionDuration *prometheus.HistogramVec
	evalMetric         *prometheus.GaugeVec
}

// NewManager creates a Manager on a fresh registry unless WithRegistry is
// given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "sceneforecast",
		histogramBuckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.predictions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "predictions_total",
		Help:      "Total number of predictions produced",
	}, []string{"model"})

	m.validationFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "validation_failures_total",
		Help:      "Total number of prediction records that failed validation",
	}, []string{"reason"})

	m.predictionDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "prediction_duration_seconds",
		Help:      "Time spent producing a single prediction",
		Buckets:   m.histogramBuckets,
	}, []string{"model"})

	m.evalMetric = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "eval_metric",
		Help:      "Latest evaluation result by metric and k",
	}, []string{"metric", "k"})
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// ObservePrediction counts one prediction of model and records its latency.
func (m *Manager) ObservePrediction(model string, d time.Duration) {
	m.predictions.WithLabelValues(model).Inc()
	m.predictionDuration.WithLabelValues(model).Observe(d.Seconds())
}

// RecordValidationFailure counts a rejected record.
func (m *Manager) RecordValidationFailure(reason string) {
	m.validationFailures.WithLabelValues(reason).Inc()
}

// SetEvalMetric sets one evaluation gauge.
func (m *Manager) SetEvalMetric(metric string, k int, v float64) {
	m.evalMetric.WithLabelValues(metric, strconv.Itoa(k)).Set(v)
}

// RecordSummary publishes every value of s.
func (m *Manager) RecordSummary(s eval.Summary) {
	for k, v := range s.MinADE {
		m.SetEvalMetric("min_ade", k, v)
	}
	for k, v := range s.MinFDE {
		m.SetEvalMetric("min_fde", k, v)
	}
	for k, v := range s.MissRate {
		m.SetEvalMetric("miss_rate", k, v)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry for the node exporter textfile
// collector.
func (m *Manager) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
