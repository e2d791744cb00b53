package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the envelope version this build writes and the highest it
// reads.
const SchemaVersion = 1

var (
	ErrMissingEventID   = errors.New("event id is required")
	ErrMissingEventType = errors.New("event type is required")
	ErrMissingSource    = errors.New("event source is required")
	ErrUnknownVersion   = errors.New("unsupported event version")
)

// Event is the envelope every message on a storefront topic carries.
// Source identifies the publishing instance so consumers can skip their own
// events.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent builds an envelope around data with a fresh id and the current
// UTC time.
func NewEvent(eventType, aggregateID, aggregateType, source string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	event := &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       SchemaVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          raw,
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

// Validate checks the fields consumers rely on.
func (e *Event) Validate() error {
	switch {
	case e.EventID == "":
		return ErrMissingEventID
	case e.EventType == "":
		return ErrMissingEventType
	case e.Source == "":
		return ErrMissingSource
	case e.Version < 1 || e.Version > SchemaVersion:
		return fmt.Errorf("%w: %d", ErrUnknownVersion, e.Version)
	}
	return nil
}

// WithCorrelationID sets the correlation ID on the event.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithMetadata adds a key-value pair to the event metadata.
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string, 1)
	}
	e.Metadata[key] = value
	return e
}

// Marshal serializes the event to JSON bytes.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent decodes and validates an envelope.
func UnmarshalEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event %q: %w", event.EventID, err)
	}
	return &event, nil
}

// UnmarshalData decodes the payload into target.
func (e *Event) UnmarshalData(target any) error {
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}
