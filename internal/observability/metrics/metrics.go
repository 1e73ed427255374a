// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_ledger"

// Metrics holds all Prometheus metrics for the ledger core.
type Metrics struct {
	// Segmenter metrics
	FramesReceived     prometheus.Counter
	VADErrors          prometheus.Counter
	UtterancesSealed   *prometheus.CounterVec
	UtterancesTooShort prometheus.Counter
	UtteranceDuration  prometheus.Histogram

	// Pipeline metrics
	SpeechEvents        prometheus.Counter
	EmptyTranscripts    prometheus.Counter
	PipelineErrors      *prometheus.CounterVec
	PipelineLatency     prometheus.Histogram
	CollaboratorRetries *prometheus.CounterVec

	// Conversation metrics
	ConversationsStarted  prometheus.Counter
	ConversationsTimedOut prometheus.Counter
	ConversationsActive   prometheus.Gauge
	PhaseTransitions      *prometheus.CounterVec

	// Transaction metrics
	TransactionsCompleted prometheus.Counter
	TransactionsForReview prometheus.Counter

	// Queue metrics
	QueueDepth       prometheus.Gauge
	QueueEnqueued    prometheus.Counter
	DeliveryAttempts *prometheus.CounterVec
	DeliveryLatency  prometheus.Histogram
	QueueOldestAge   prometheus.Gauge
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total audio frames pushed into the segmenter",
		}),
		VADErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vad_errors_total",
			Help:      "Voice-activity classification failures (frame treated as silence)",
		}),
		UtterancesSealed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_sealed_total",
			Help:      "Utterances sealed, by reason",
		}, []string{"reason"}),
		UtterancesTooShort: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_too_short_total",
			Help:      "Speech bursts discarded for being below the minimum duration",
		}),
		UtteranceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utterance_duration_seconds",
			Help:      "Duration of sealed utterances",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30},
		}),

		SpeechEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_events_total",
			Help:      "Speech events produced by the pipeline",
		}),
		EmptyTranscripts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_transcripts_total",
			Help:      "Utterances dropped because recognition returned no text",
		}),
		PipelineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_errors_total",
			Help:      "Utterances dropped after collaborator failures, by stage",
		}, []string{"stage"}),
		PipelineLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_latency_seconds",
			Help:      "End-to-end latency from sealed utterance to speech event",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		CollaboratorRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_retries_total",
			Help:      "Local retries of speaker-ID and recognition calls, by stage",
		}, []string{"stage"}),

		ConversationsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_started_total",
			Help:      "Conversation contexts created",
		}),
		ConversationsTimedOut: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_timed_out_total",
			Help:      "Conversations discarded after the inactivity window",
		}),
		ConversationsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations_active",
			Help:      "Currently live conversation contexts",
		}),
		PhaseTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Conversation phase transitions, by target phase",
		}, []string{"phase"}),

		TransactionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_completed_total",
			Help:      "Transactions materialized by the state machine",
		}),
		TransactionsForReview: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_needs_review_total",
			Help:      "Completed transactions flagged for manual review",
		}),

		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Offline operations not yet delivered",
		}),
		QueueEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_enqueued_total",
			Help:      "Operations accepted by the offline queue",
		}),
		DeliveryAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_attempts_total",
			Help:      "Sink delivery attempts, by outcome",
		}, []string{"outcome"}),
		DeliveryLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_latency_seconds",
			Help:      "Latency of sink delivery attempts",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		}),
		QueueOldestAge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_oldest_age_seconds",
			Help:      "Age of the oldest undelivered operation",
		}),
	}
}

// RecordDelivery records one sink delivery attempt.
func (m *Metrics) RecordDelivery(err error, seconds float64) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.DeliveryAttempts.WithLabelValues(outcome).Inc()
	m.DeliveryLatency.Observe(seconds)
}
