package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "notes_quiz"

// Metrics holds the Prometheus collectors for the quiz pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	QuizLoads        *prometheus.CounterVec
	Gradings         *prometheus.CounterVec
	Reconciliations  *prometheus.CounterVec
	StaleResponses   *prometheus.CounterVec
	HistoryEvictions *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QuizLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quiz_loads_total",
				Help:      "Quiz load attempts by outcome",
			},
			[]string{"qtype", "outcome"},
		),
		Gradings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gradings_total",
				Help:      "Quiz submissions by question type and outcome",
			},
			[]string{"qtype", "outcome"},
		),
		Reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "objective_reconciliations_total",
				Help:      "Remote reconciliation of locally graded objective quizzes",
			},
			[]string{"outcome"},
		),
		StaleResponses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_responses_total",
				Help:      "Responses dropped because their session generation was superseded",
			},
			[]string{"operation"},
		),
		HistoryEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_evictions_total",
				Help:      "History entries evicted by the capacity bound",
			},
			[]string{"feature"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Latency of calls to the notes/quiz backend",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "status"},
		),
	}
}

func (m *Metrics) QuizLoad(qtype, outcome string) {
	if m == nil {
		return
	}
	m.QuizLoads.WithLabelValues(qtype, outcome).Inc()
}

func (m *Metrics) Grading(qtype, outcome string) {
	if m == nil {
		return
	}
	m.Gradings.WithLabelValues(qtype, outcome).Inc()
}

func (m *Metrics) Reconciliation(outcome string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StaleResponse(operation string) {
	if m == nil {
		return
	}
	m.StaleResponses.WithLabelValues(operation).Inc()
}

func (m *Metrics) HistoryEvicted(feature string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HistoryEvictions.WithLabelValues(feature).Add(float64(n))
}

// ObserveUpstream records one backend call.
func (m *Metrics) ObserveUpstream(operation, status string, started time.Time) {
	if m == nil {
		return
	}
	m.UpstreamDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
