package poll

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricNameAttempts    = "bfdconverge_poll_attempts_total"
	MetricNameQueryErrors = "bfdconverge_poll_query_errors_total"
	MetricNameDivergences = "bfdconverge_poll_divergences_total"
	MetricNameResults     = "bfdconverge_poll_results_total"
	MetricNameDuration    = "bfdconverge_poll_duration_seconds"
	MetricLabelTarget     = "target"
	MetricLabelState      = "state"
)

var (
	MetricAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameAttempts,
			Help: "Number of poll ticks executed",
		},
		[]string{MetricLabelTarget},
	)

	MetricQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameQueryErrors,
			Help: "Number of poll ticks whose state query failed",
		},
		[]string{MetricLabelTarget},
	)

	MetricDivergences = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameDivergences,
			Help: "Number of poll ticks whose observed state did not match",
		},
		[]string{MetricLabelTarget},
	)

	MetricResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameResults,
			Help: "Number of finished polls by terminal state",
		},
		[]string{MetricLabelTarget, MetricLabelState},
	)

	MetricDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricNameDuration,
			Help:    "Time from first tick to terminal state",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		},
		[]string{MetricLabelState},
	)
)
