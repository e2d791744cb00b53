package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/EcommerceGo/storefront/pkg/logger"
)

func TestMetrics_ExposedUnderStorefrontNamespace(t *testing.T) {
	ConsumerMessages.WithLabelValues("ns-topic", OutcomeProcessed)
	ConsumerDuplicates.WithLabelValues("cache.invalidated")
	ConsumerHandleDuration.WithLabelValues("ns-topic")
	ProducerMessages.WithLabelValues("ns-topic", OutcomePublished)
	ProducerPublishDuration.WithLabelValues("ns-topic")

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}

	for _, name := range []string{
		"storefront_kafka_consumed_messages_total",
		"storefront_kafka_duplicate_events_total",
		"storefront_kafka_handle_duration_seconds",
		"storefront_kafka_produced_messages_total",
		"storefront_kafka_publish_duration_seconds",
	} {
		assert.True(t, names[name], "metric %q not registered", name)
	}
}

func TestMetrics_DuplicateCountedByEventType(t *testing.T) {
	h := IdempotentHandler(NewMemoryIdempotencyStore(time.Minute), func(context.Context, *Event) error {
		return nil
	}, logger.Discard())
	event := &Event{EventID: "evt-metric", EventType: "metrics.duplicate"}
	counter := ConsumerDuplicates.WithLabelValues("metrics.duplicate")
	before := testutil.ToFloat64(counter)

	for i := 0; i < 3; i++ {
		require.NoError(t, h(context.Background(), event))
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}
