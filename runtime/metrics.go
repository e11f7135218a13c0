package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics aggregates the provider's prometheus collectors. A nil
// *metrics is valid and records nothing, so callers never branch.
type metrics struct {
	predictions     *prometheus.CounterVec
	predictDuration prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgeml",
				Subsystem: "session",
				Name:      "predictions_total",
				Help:      "Total prediction calls by outcome",
			},
			[]string{"outcome"},
		),
		predictDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "edgeml",
				Subsystem: "session",
				Name:      "predict_duration_seconds",
				Help:      "Duration of successful prediction calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgeml",
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Compiled model cache lookups by result",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.predictions, m.predictDuration, m.cacheLookups)
	return m
}

func (m *metrics) predictOK(d time.Duration) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues("ok").Inc()
	m.predictDuration.Observe(d.Seconds())
}

func (m *metrics) predictFailed() {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues("error").Inc()
}

func (m *metrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("hit").Inc()
}

func (m *metrics) cacheMiss() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}
