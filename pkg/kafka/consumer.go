package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// maxHandlerRetries bounds handler attempts before a message is committed and
// skipped.
const maxHandlerRetries = 3

// TopicPrefix is the prefix for all storefront topics.
const TopicPrefix = "storefront"

// Topic constructs a fully-qualified topic name.
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}

// Handler processes a decoded event.
type Handler func(ctx context.Context, event *Event) error

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int
}

// messageReader is the subset of *kafka.Reader the consumer depends on.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads events from one topic and hands them to a Handler.
type Consumer struct {
	reader     messageReader
	topic      string
	group      string
	logger     *slog.Logger
	handler    Handler
	retryDelay time.Duration
	closeOnce  sync.Once
}

// NewConsumer creates a new Kafka consumer for a specific topic and group.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	minBytes, maxBytes := cfg.MinBytes, cfg.MaxBytes
	if minBytes <= 0 {
		minBytes = 1
	}
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: minBytes,
		MaxBytes: maxBytes,
	})
	return newConsumer(r, cfg.Topic, cfg.GroupID, handler, logger)
}

func newConsumer(r messageReader, topic, group string, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Consumer{
		reader:     r,
		topic:      topic,
		group:      group,
		logger:     logger,
		handler:    handler,
		retryDelay: 100 * time.Millisecond,
	}
}

// Start consumes messages until ctx is canceled. Messages are committed after
// the handler succeeds, after they fail to decode, or after retries are
// exhausted.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started",
		slog.String("topic", c.topic),
		slog.String("group", c.group),
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", slog.String("topic", c.topic))
				return c.Close()
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}
		if !c.process(ctx, msg) {
			return c.Close()
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message", slog.String("error", err.Error()))
		}
	}
}

// process runs the handler with linear backoff between attempts. It returns
// false only when ctx was canceled mid-retry, in which case the message must
// not be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	ctx, span := startConsumeSpan(ctx, msg, c.group)
	defer span.End()

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		ConsumerMessages.WithLabelValues(c.topic, OutcomeMalformed).Inc()
		span.SetStatus(codes.Error, "malformed event")
		c.logger.ErrorContext(ctx, "dropping malformed event",
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
		)
		return true
	}
	span.SetAttributes(
		attribute.String("messaging.message.id", event.EventID),
		attribute.String("event.type", event.EventType),
	)

	start := time.Now()
	defer func() {
		ConsumerHandleDuration.WithLabelValues(c.topic).Observe(time.Since(start).Seconds())
	}()

	log := c.logger.With(
		slog.String("event_id", event.EventID),
		slog.String("event_type", event.EventType),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)

	for attempt := 1; ; attempt++ {
		err = c.handler(ctx, event)
		if err == nil {
			ConsumerMessages.WithLabelValues(c.topic, OutcomeProcessed).Inc()
			return true
		}
		if attempt == maxHandlerRetries {
			break
		}

		log.WarnContext(ctx, "event handler failed, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		timer := time.NewTimer(time.Duration(attempt) * c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}

	ConsumerMessages.WithLabelValues(c.topic, OutcomeFailed).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "handler failed")
	log.ErrorContext(ctx, "event handler failed after retries, skipping",
		slog.Int("attempts", maxHandlerRetries),
		slog.String("error", err.Error()),
	)
	return true
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
