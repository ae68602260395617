// Package metrics exposes Prometheus collectors for indexing, OCR and matching.
//
// All methods are nil-safe so components can run without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "invoice_matcher"

// Document indexing results
const (
	DocumentIndexed    = "indexed"
	DocumentFailed     = "failed"
	DocumentUndateable = "undateable"
	DocumentCached     = "cached"
)

// OCR page outcomes
const (
	OCRSucceeded = "succeeded"
	OCRFailed    = "failed"
)

// Metrics holds the collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	documents   *prometheus.CounterVec
	ocrPages    *prometheus.CounterVec
	matches     *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
}

// New creates and registers all collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		documents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "documents_total",
			Help:      "Documents processed by the corpus indexer, by result.",
		}, []string{"result"}),
		ocrPages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ocr",
			Name:      "pages_total",
			Help:      "Pages sent to OCR, by outcome.",
		}, []string{"outcome"}),
		matches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "transactions_total",
			Help:      "Transactions scored, by winning strategy or outcome.",
		}, []string{"strategy"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Reconciliation runs, by terminal state.",
		}, []string{"state"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "run_duration_seconds",
			Help:      "Wall time of reconciliation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"state"}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDocument counts one indexed document
func (m *Metrics) ObserveDocument(result string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(result).Inc()
}

// ObserveOCRPage counts one OCR invocation
func (m *Metrics) ObserveOCRPage(outcome string) {
	if m == nil {
		return
	}
	m.ocrPages.WithLabelValues(outcome).Inc()
}

// ObserveMatch counts one scored transaction
func (m *Metrics) ObserveMatch(strategy string) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(strategy).Inc()
}

// ObserveRun records a finished run
func (m *Metrics) ObserveRun(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(state).Inc()
	m.runDuration.WithLabelValues(state).Observe(d.Seconds())
}
