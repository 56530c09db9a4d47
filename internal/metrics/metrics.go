// Package metrics holds the Prometheus collectors for Mediadesk's
// long running operations. All recording methods are safe to call on
// a nil *Metrics, in which case they do nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mediadesk"

const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

type Metrics struct {
	registry *prometheus.Registry

	BatchTotal     *prometheus.CounterVec
	BatchItemTotal *prometheus.CounterVec
	ReelTotal      *prometheus.CounterVec
	EditTotal      *prometheus.CounterVec
	EncodeDuration *prometheus.HistogramVec
	IngestTotal    *prometheus.CounterVec
}

// New creates the collectors and registers them, along with the
// Go runtime and process collectors, against a new registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		BatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_batches_total",
			Help:      "Total number of download batches, by media kind and final state",
		}, []string{"kind", "state"}),

		BatchItemTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_batch_items_total",
			Help:      "Total number of items attempted by download batches, by media kind and outcome",
		}, []string{"kind", "outcome"}),

		ReelTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reel_downloads_total",
			Help:      "Total number of reels processed by the reel downloader, by outcome",
		}, []string{"outcome"}),

		EditTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_total",
			Help:      "Total number of edit requests, by outcome",
		}, []string{"outcome"}),

		EncodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "encode_duration_seconds",
			Help:      "Duration of ffmpeg encodes performed for edit requests",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),

		IngestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingests_total",
			Help:      "Total number of raw uploads ingested, by outcome",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BatchTotal, m.BatchItemTotal, m.ReelTotal, m.EditTotal, m.EncodeDuration, m.IngestTotal,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry in the
// Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordBatch(kind string, state string) {
	if m == nil {
		return
	}

	m.BatchTotal.WithLabelValues(kind, state).Inc()
}

func (m *Metrics) RecordBatchItem(kind string, err error) {
	if m == nil {
		return
	}

	m.BatchItemTotal.WithLabelValues(kind, outcomeOf(err)).Inc()
}

func (m *Metrics) RecordReel(outcome string) {
	if m == nil {
		return
	}

	m.ReelTotal.WithLabelValues(outcome).Inc()
}

// RecordEdit counts the edit outcome and observes how long the
// encode took.
func (m *Metrics) RecordEdit(encodeTime time.Duration, err error) {
	if m == nil {
		return
	}

	outcome := outcomeOf(err)
	m.EditTotal.WithLabelValues(outcome).Inc()
	m.EncodeDuration.WithLabelValues(outcome).Observe(encodeTime.Seconds())
}

func (m *Metrics) RecordIngest(err error) {
	if m == nil {
		return
	}

	m.IngestTotal.WithLabelValues(outcomeOf(err)).Inc()
}

func outcomeOf(err error) string {
	if err != nil {
		return OutcomeFailed
	}

	return OutcomeSuccess
}
