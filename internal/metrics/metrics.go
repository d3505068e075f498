// Package metrics exposes Prometheus collectors for the counting pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pushup"

var (
	// framesTotal counts frame arrivals by admission decision.
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames offered to sessions, by admission decision",
		},
		[]string{"decision"}, // admitted, throttled, busy, stopped
	)

	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Angle signals produced by the estimator, by kind",
		},
		[]string{"kind"}, // measured, no_body_detected, low_confidence, estimation_error
	)

	repsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reps_total",
			Help:      "Completed repetitions across all sessions",
		},
	)

	estimateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "estimate_duration_seconds",
			Help:      "Duration of pose model invocations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently counting",
		},
	)

	allMetrics = []prometheus.Collector{
		framesTotal,
		signalsTotal,
		repsTotal,
		estimateDuration,
		sessionsActive,
	}
)

func RecordFrame(decision string) {
	framesTotal.WithLabelValues(decision).Inc()
}

func RecordSignal(kind string) {
	signalsTotal.WithLabelValues(kind).Inc()
}

func RecordRep() {
	repsTotal.Inc()
}

func RecordEstimate(durationSeconds float64) {
	estimateDuration.Observe(durationSeconds)
}

func SessionStarted() {
	sessionsActive.Inc()
}

func SessionStopped() {
	sessionsActive.Dec()
}

// NewRegistry returns a registry holding the pipeline collectors plus the
// Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
