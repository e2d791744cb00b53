package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/EcommerceGo/storefront/internal/query"
	pkgkafka "github.com/utafrali/EcommerceGo/storefront/pkg/kafka"
	"github.com/utafrali/EcommerceGo/storefront/pkg/logger"
)

// TopicCacheInvalidated carries cache invalidations between replicas.
var TopicCacheInvalidated = pkgkafka.Topic("cache", "invalidated")

// AggregateTypeCache is the aggregate type of invalidation events.
const AggregateTypeCache = "query_cache"

// aggregateListing is the aggregate id of invalidations that name no
// product.
const aggregateListing = "listing"

// InvalidationData is the payload of a cache.invalidated event.
type InvalidationData struct {
	Kinds     []string `json:"kinds"`
	ProductID string   `json:"product_id,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// EventPublisher is the subset of *pkgkafka.Producer the producer uses.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes cache invalidations to Kafka. It implements
// query.Publisher.
type Producer struct {
	kafka      EventPublisher
	instanceID string
	logger     *slog.Logger
}

// NewProducer creates a producer. instanceID is stamped as the event source
// so this replica's consumer can skip its own events.
func NewProducer(kafka EventPublisher, instanceID string, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:      kafka,
		instanceID: instanceID,
		logger:     logger,
	}
}

// PublishInvalidation publishes a cache.invalidated event.
func (p *Producer) PublishInvalidation(ctx context.Context, inv query.Invalidation) error {
	data := InvalidationData{
		Kinds:     inv.Kinds,
		ProductID: inv.ProductID,
		Reason:    inv.Reason,
	}

	aggregateID := inv.ProductID
	if aggregateID == "" {
		aggregateID = aggregateListing
	}

	event, err := pkgkafka.NewEvent(TopicCacheInvalidated, aggregateID, AggregateTypeCache, p.instanceID, data)
	if err != nil {
		return fmt.Errorf("create cache.invalidated event: %w", err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, TopicCacheInvalidated, event); err != nil {
		return fmt.Errorf("publish cache.invalidated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cache.invalidated event",
		slog.String("event_id", event.EventID),
		slog.String("reason", inv.Reason),
		slog.Any("kinds", inv.Kinds),
	)

	return nil
}
