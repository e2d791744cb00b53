package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"broker1:9092", "broker2:9092"})
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.False(t, cfg.Async)
}

func TestNewProducer_KeepsBrokers(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:9092"}), nil)
	defer p.Close()
	assert.Equal(t, []string{"localhost:9092"}, p.brokers)
}

func TestProducer_Publish_WritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, nil)
	topic := Topic("cache", "invalidated")

	event, err := NewEvent("cache.invalidated", "42", "product", "storefront-a", invalidationPayload{Kinds: []string{"product"}})
	require.NoError(t, err)
	event.WithCorrelationID("corr-1")

	before := testutil.ToFloat64(ProducerMessages.WithLabelValues(topic, OutcomePublished))
	require.NoError(t, p.Publish(context.Background(), topic, event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, "cache.invalidated", headerValue(msg, "event_type"))
	assert.Equal(t, "storefront-a", headerValue(msg, "source"))
	assert.Equal(t, "corr-1", headerValue(msg, "correlation_id"))
	assert.Equal(t, "1", headerValue(msg, "schema_version"))

	decoded, err := UnmarshalEvent(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, before+1, testutil.ToFloat64(ProducerMessages.WithLabelValues(topic, OutcomePublished)))
}

func TestProducer_Publish_InjectsTraceparent(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	w := &fakeWriter{}
	p := newProducer(w, nil, nil)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	event, err := NewEvent("cache.invalidated", "1", "product", "svc", nil)
	require.NoError(t, err)
	require.NoError(t, p.Publish(ctx, "t", event))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", headerValue(w.msgs[0], "traceparent"))
}

func TestProducer_Publish_WriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newProducer(w, nil, nil)

	event, err := NewEvent("cache.invalidated", "1", "product", "svc", nil)
	require.NoError(t, err)

	before := testutil.ToFloat64(ProducerMessages.WithLabelValues("errs", OutcomeFailed))
	err = p.Publish(context.Background(), "errs", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event to errs")
	assert.Contains(t, err.Error(), "leader not available")
	assert.Equal(t, before+1, testutil.ToFloat64(ProducerMessages.WithLabelValues("errs", OutcomeFailed)))
}

func TestProducer_Publish_RejectsInvalidEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, nil)

	err := p.Publish(context.Background(), "t", &Event{EventID: "e-1", EventType: "cache.invalidated", Version: SchemaVersion})
	assert.ErrorIs(t, err, ErrMissingSource)
	assert.Empty(t, w.msgs)
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, nil)
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}

func TestPingBrokers_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := PingBrokers(ctx, []string{"127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all brokers unreachable")
}
