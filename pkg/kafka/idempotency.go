package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IdempotencyStore remembers processed event ids. Implementations must be
// safe for concurrent use.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	Add(ctx context.Context, eventID string) error
}

// MemoryIdempotencyStore keeps event ids in process memory until they
// expire. Every replica consumes every invalidation in its own group, so the
// processed set is per process. Expired ids read as absent until Sweep
// reclaims them.
type MemoryIdempotencyStore struct {
	ttl     time.Duration
	nowFunc func() time.Time

	mu      sync.Mutex
	expires map[string]time.Time
}

// NewMemoryIdempotencyStore creates a store that remembers ids for ttl.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		ttl:     ttl,
		nowFunc: time.Now,
		expires: make(map[string]time.Time),
	}
}

func (s *MemoryIdempotencyStore) Contains(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expires[eventID]
	return ok && s.nowFunc().Before(exp), nil
}

func (s *MemoryIdempotencyStore) Add(_ context.Context, eventID string) error {
	s.mu.Lock()
	s.expires[eventID] = s.nowFunc().Add(s.ttl)
	s.mu.Unlock()
	return nil
}

// Sweep drops expired ids and reports how many were dropped.
func (s *MemoryIdempotencyStore) Sweep() int {
	now := s.nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, id)
			n++
		}
	}
	return n
}

// Len counts stored ids, including expired ones not yet swept.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}

// IdempotentHandler skips events whose id is already in store. Ids are
// recorded only after inner succeeds, so a failed event is redelivered. A
// store outage degrades to at-least-once processing.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		seen, err := store.Contains(ctx, event.EventID)
		if err != nil {
			logger.WarnContext(ctx, "idempotency lookup failed, processing anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		if seen {
			ConsumerDuplicates.WithLabelValues(event.EventType).Inc()
			logger.DebugContext(ctx, "skipping duplicate event",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
			)
			return nil
		}

		if err := inner(ctx, event); err != nil {
			return err
		}
		if err := store.Add(ctx, event.EventID); err != nil {
			logger.WarnContext(ctx, "failed to record processed event",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}
