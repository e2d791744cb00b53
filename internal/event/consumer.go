package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/EcommerceGo/storefront/internal/query"
	pkgkafka "github.com/utafrali/EcommerceGo/storefront/pkg/kafka"
)

// ConsumerGroupPrefix prefixes each replica's consumer group. Every replica
// needs every invalidation, so groups are never shared.
const ConsumerGroupPrefix = "storefront-cache-"

// DedupeTTL is how long processed event ids are remembered.
const DedupeTTL = 10 * time.Minute

// Invalidator drops local cache entries.
type Invalidator interface {
	InvalidateLocal(inv query.Invalidation) int
}

// ConsumerHandler applies invalidations published by other replicas.
type ConsumerHandler struct {
	invalidator Invalidator
	instanceID  string
	logger      *slog.Logger
}

// NewConsumerHandler creates a handler that ignores events sourced from
// instanceID.
func NewConsumerHandler(invalidator Invalidator, instanceID string, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{
		invalidator: invalidator,
		instanceID:  instanceID,
		logger:      logger,
	}
}

// Handle processes an incoming Kafka event based on its event type.
func (h *ConsumerHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.EventType != TopicCacheInvalidated {
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
	if event.Source == h.instanceID {
		return nil
	}

	var data InvalidationData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal cache.invalidated event %s: %w", event.EventID, err)
	}

	n := h.invalidator.InvalidateLocal(query.Invalidation{
		Kinds:     data.Kinds,
		ProductID: data.ProductID,
		Reason:    data.Reason,
	})

	h.logger.InfoContext(ctx, "applied remote cache invalidation",
		slog.String("event_id", event.EventID),
		slog.String("source", event.Source),
		slog.String("reason", data.Reason),
		slog.Int("entries", n),
	)
	return nil
}

// NewConsumer creates the invalidation consumer for this replica. Redelivered
// events are skipped using store.
func NewConsumer(brokers []string, instanceID string, handler *ConsumerHandler, store pkgkafka.IdempotencyStore, logger *slog.Logger) *pkgkafka.Consumer {
	cfg := pkgkafka.ConsumerConfig{
		Brokers: brokers,
		GroupID: ConsumerGroupPrefix + instanceID,
		Topic:   TopicCacheInvalidated,
	}
	return pkgkafka.NewConsumer(cfg, pkgkafka.IdempotentHandler(store, handler.Handle, logger), logger)
}
