package speech

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "speech",
		Name:      "stage_duration_seconds",
		Help:      "Duration of speech pipeline stages",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "speech",
		Name:      "failures_total",
		Help:      "Speech pipeline failures by kind and stage",
	}, []string{"kind", "stage"})
)
