package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message outcomes recorded by ConsumerMessages and ProducerMessages.
const (
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
	OutcomeMalformed = "malformed"
	OutcomePublished = "published"
)

// Consumer groups are per replica, so metrics are labelled by topic only.
var (
	ConsumerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "kafka",
			Name:      "consumed_messages_total",
			Help:      "Consumed messages by outcome: processed, failed after retries, or malformed.",
		},
		[]string{"topic", "outcome"},
	)

	ConsumerDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "kafka",
			Name:      "duplicate_events_total",
			Help:      "Redelivered events skipped because their id was already processed.",
		},
		[]string{"event_type"},
	)

	ConsumerHandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "kafka",
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling one event, retries included.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"topic"},
	)

	ProducerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "kafka",
			Name:      "produced_messages_total",
			Help:      "Publish attempts by outcome: published or failed.",
		},
		[]string{"topic", "outcome"},
	)

	ProducerPublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Latency of a synchronous publish.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"topic"},
	)
)
