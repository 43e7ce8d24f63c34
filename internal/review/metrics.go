package review

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors of the review pipeline, namespaced "reviewexec".
type Metrics struct {
	QuestionsAnswered prometheus.Counter
	QuestionsAnalyzed prometheus.Counter
	AnswerFailures    prometheus.Counter
	SentimentFailures prometheus.Counter
	Executions        *prometheus.CounterVec
	InFlightAnswers   prometheus.Gauge
	SlotWait          prometheus.Histogram
}

// NewMetrics registers the collectors with reg. A nil reg gets a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		QuestionsAnswered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reviewexec",
			Name:      "questions_answered_total",
			Help:      "Answers persisted and reported to the orchestrator",
		}),
		QuestionsAnalyzed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reviewexec",
			Name:      "questions_analyzed_total",
			Help:      "Answers that went through sentiment analysis, successful or not",
		}),
		AnswerFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reviewexec",
			Name:      "answer_failures_total",
			Help:      "Per-question answer tasks that failed and were absorbed",
		}),
		SentimentFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reviewexec",
			Name:      "sentiment_failures_total",
			Help:      "Sentiment analyses that failed and were tolerated",
		}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewexec",
			Name:      "executions_total",
			Help:      "Review executions by terminal status",
		}, []string{"status"}),
		InFlightAnswers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "reviewexec",
			Name:      "inflight_answers",
			Help:      "Answer tasks currently holding a worker slot",
		}),
		SlotWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reviewexec",
			Name:      "slot_wait_seconds",
			Help:      "Time spent waiting for a worker slot before dispatch",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120, 300},
		}),
	}
}
