// Package session keeps one listing controller per browser session,
// identified by a cookie, and expires idle sessions.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/EcommerceGo/storefront/internal/listing"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 30 * time.Minute

var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "storefront_sessions_active",
	Help: "Number of listing sessions currently held in memory.",
})

// Factory builds the controller for a new session.
type Factory func() *listing.Controller

type entry struct {
	ctrl     *listing.Controller
	lastSeen time.Time
}

// Store maps session ids to listing controllers.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	factory  Factory
	ttl      time.Duration
	nowFunc  func() time.Time
	logger   *slog.Logger
}

// NewStore creates a session store. A non-positive ttl uses DefaultTTL.
func NewStore(factory Factory, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*entry),
		factory:  factory,
		ttl:      ttl,
		nowFunc:  time.Now,
		logger:   logger,
	}
}

// TTL returns the idle timeout.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get returns the controller for id and marks the session as seen.
func (s *Store) Get(id string) (*listing.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = s.nowFunc()
	return e.ctrl, true
}

// Create starts a new session and returns its id.
func (s *Store) Create() (string, *listing.Controller) {
	id := uuid.NewString()
	ctrl := s.factory()

	s.mu.Lock()
	s.sessions[id] = &entry{ctrl: ctrl, lastSeen: s.nowFunc()}
	activeSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	return id, ctrl
}

// GetOrCreate returns the session for id, or a new one when id is unknown
// or malformed. created reports whether a new session was started.
func (s *Store) GetOrCreate(id string) (sid string, ctrl *listing.Controller, created bool) {
	if _, err := uuid.Parse(id); err == nil {
		if ctrl, ok := s.Get(id); ok {
			return id, ctrl, false
		}
	}
	sid, ctrl = s.Create()
	return sid, ctrl, true
}

// Delete ends a session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	activeSessions.Set(float64(len(s.sessions)))
}

// Sweep removes sessions idle for longer than the TTL and returns how many
// were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	removed := 0
	for id, e := range s.sessions {
		if now.Sub(e.lastSeen) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	activeSessions.Set(float64(len(s.sessions)))
	return removed
}

// Run sweeps every interval until ctx is canceled.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("expired idle sessions", slog.Int("count", n))
			}
		}
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
