package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by the API and the workers.
type Metrics struct {
	BatchesProcessed   prometheus.Counter
	BatchesFailed      prometheus.Counter
	AttemptsEvaluated  prometheus.Counter
	EvaluationFailures prometheus.Counter
	BatchDuration      prometheus.Histogram
	QueueDepth         *prometheus.GaugeVec
	GradingRuns        prometheus.Counter
	RatingsUpdated     prometheus.Counter
	SubmissionsQueued  prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
}

// NewMetrics registers all collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BatchesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "contest_batches_processed_total",
			Help: "Submission batches fully processed and committed.",
		}),
		BatchesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "contest_batches_failed_total",
			Help: "Submission batches abandoned before commit.",
		}),
		AttemptsEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Name: "contest_attempts_evaluated_total",
			Help: "Individual attempts evaluated and inserted.",
		}),
		EvaluationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "contest_evaluation_failures_total",
			Help: "Attempts dropped inside a batch (unknown question, insert error).",
		}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contest_batch_duration_seconds",
			Help:    "Wall time to process one submission batch.",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "contest_queue_depth",
			Help: "Length of each contest submission queue at last scan.",
		}, []string{"contest_id"}),
		GradingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "contest_grading_runs_total",
			Help: "Rating recomputations executed by the grading worker.",
		}),
		RatingsUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "contest_ratings_updated_total",
			Help: "Participant ratings written during grading.",
		}),
		SubmissionsQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "contest_submissions_queued_total",
			Help: "Batches accepted by the API and pushed to a submission queue.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
	}
}

// NewDefaultMetrics registers on the default global registry.
func NewDefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}
