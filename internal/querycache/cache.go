// Package querycache is a keyed query cache with stale-while-revalidate
// reads, request de-duplication, retry, invalidation and retention-based
// eviction.
package querycache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/utafrali/EcommerceGo/storefront/pkg/errors"
	"github.com/utafrali/EcommerceGo/storefront/pkg/logger"
)

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusFresh   Status = "fresh"
	StatusStale   Status = "stale"
	StatusError   Status = "error"
)

// Snapshot is a point-in-time view of an entry. Data is the last successfully
// fetched value, which survives later failures.
type Snapshot struct {
	Data      any
	Status    Status
	Err       error
	FetchedAt time.Time
}

// Fetcher loads the value for a key.
type Fetcher func(ctx context.Context) (any, error)

type entry struct {
	data       any
	hasData    bool
	err        error
	status     Status
	fetchedAt  time.Time
	staleTime  time.Duration
	lastAccess time.Time

	// invalidated entries are never served; the next access refetches.
	invalidated bool
	generation  uint64

	// appliedSeq is the issue sequence of the last applied fetch and
	// invalidatedSeq the sequence counter at the latest invalidation.
	appliedSeq     uint64
	invalidatedSeq uint64

	inflight int
	subs     map[int]chan Snapshot
}

type fetchResult struct {
	data      any
	fetchedAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	entries   map[Key]*entry
	group     singleflight.Group
	seq       uint64
	nextSub   int
	retention time.Duration
	nowFunc   func() time.Time
	logger    *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source used for staleness and retention.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.nowFunc = now }
}

// WithRetention sets how long an unreferenced entry is kept after its last
// access.
func WithRetention(d time.Duration) Option {
	return func(c *Cache) { c.retention = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:   make(map[Key]*entry),
		retention: DefaultRetention,
		nowFunc:   time.Now,
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query returns the value for key.
//
// A fresh entry is returned without calling fetch. An entry past its stale
// time is returned immediately with StatusStale while a background refetch
// runs. Otherwise the caller joins the single in-flight fetch for the key, or
// starts one, and waits for it. Canceling ctx abandons the wait but not the
// shared fetch.
func (c *Cache) Query(ctx context.Context, key Key, policy Policy, fetch Fetcher) (Snapshot, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	now := c.nowFunc()
	e.lastAccess = now
	e.staleTime = policy.StaleTime

	if e.servable() {
		if now.Sub(e.fetchedAt) < policy.StaleTime {
			snap := e.snapshot()
			c.mu.Unlock()
			cacheRequests.WithLabelValues(key.Kind, "hit").Inc()
			return snap, nil
		}

		e.status = StatusStale
		snap := e.snapshot()
		c.startLocked(ctx, key, e, policy, fetch)
		c.notifyLocked(e)
		c.mu.Unlock()
		cacheRequests.WithLabelValues(key.Kind, "stale").Inc()
		return snap, nil
	}

	// Err is kept for reference while an errored entry refetches.
	if !e.hasData || e.status == StatusError {
		e.status = StatusPending
	}
	ch := c.startLocked(ctx, key, e, policy, fetch)
	c.notifyLocked(e)
	c.mu.Unlock()
	cacheRequests.WithLabelValues(key.Kind, "miss").Inc()

	select {
	case res := <-ch:
		if res.Err != nil {
			c.mu.Lock()
			snap := Snapshot{Status: StatusError, Err: res.Err}
			if cur, ok := c.entries[key]; ok && cur.hasData {
				snap.Data, snap.FetchedAt = cur.data, cur.fetchedAt
			}
			c.mu.Unlock()
			return snap, res.Err
		}
		r := res.Val.(fetchResult)
		return Snapshot{Data: r.data, Status: StatusFresh, FetchedAt: r.fetchedAt}, nil
	case <-ctx.Done():
		snap, _ := c.Snapshot(key)
		return snap, ctx.Err()
	}
}

// startLocked joins or starts the fetch for the entry's current generation.
// Only the starter's closure runs, so the sequence stamped here is the issue
// time of the fetch that actually goes out.
func (c *Cache) startLocked(ctx context.Context, key Key, e *entry, policy Policy, fetch Fetcher) <-chan singleflight.Result {
	c.seq++
	seq := c.seq
	flightKey := fmt.Sprintf("%s#%d", key.String(), e.generation)
	detached := context.WithoutCancel(ctx)

	return c.group.DoChan(flightKey, func() (any, error) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok {
			cur.inflight++
		}
		c.mu.Unlock()

		data, err := c.fetchWithRetry(detached, key, policy, fetch)
		at := c.complete(key, seq, data, err)
		if err != nil {
			return nil, err
		}
		return fetchResult{data: data, fetchedAt: at}, nil
	})
}

func (c *Cache) fetchWithRetry(ctx context.Context, key Key, policy Policy, fetch Fetcher) (any, error) {
	for attempt := 0; ; attempt++ {
		data, err := fetch(ctx)
		if err == nil {
			return data, nil
		}
		if attempt >= policy.Retry || !apperrors.IsRetryable(err) {
			return nil, err
		}

		cacheRetries.WithLabelValues(key.Kind).Inc()
		logger.WithContext(ctx, c.logger).DebugContext(ctx, "retrying query fetch",
			slog.String("key", key.String()),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		if d := policy.delay(attempt + 1); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}
	}
}

// complete applies a finished fetch unless a newer fetch was already applied
// or the key was invalidated after this fetch was issued.
func (c *Cache) complete(key Key, seq uint64, data any, err error) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	e, ok := c.entries[key]
	if !ok {
		return now
	}
	if e.inflight > 0 {
		e.inflight--
	}

	if seq <= e.appliedSeq || seq <= e.invalidatedSeq {
		cacheFetches.WithLabelValues(key.Kind, "discarded").Inc()
		if e.inflight == 0 && e.status == StatusPending && e.err != nil {
			e.status = StatusError
			c.notifyLocked(e)
		}
		return now
	}
	e.appliedSeq = seq

	if err != nil {
		e.err = err
		e.status = StatusError
		cacheFetches.WithLabelValues(key.Kind, "failed").Inc()
		c.logger.Warn("query fetch failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
	} else {
		e.data = data
		e.hasData = true
		e.err = nil
		e.fetchedAt = now
		e.status = StatusFresh
		e.invalidated = false
		cacheFetches.WithLabelValues(key.Kind, "applied").Inc()
	}
	c.notifyLocked(e)
	return now
}

// Invalidate marks key as not servable.
func (c *Cache) Invalidate(key Key) int {
	return c.InvalidateMatching(func(k Key) bool { return k == key })
}

// InvalidateKinds invalidates every entry whose kind is in kinds.
func (c *Cache) InvalidateKinds(kinds ...string) int {
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return c.InvalidateMatching(func(k Key) bool {
		_, ok := set[k.Kind]
		return ok
	})
}

// InvalidateMatching invalidates every entry whose key satisfies match and
// returns how many were invalidated. Results of fetches issued before the
// call are discarded.
func (c *Cache) InvalidateMatching(match func(Key) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if !match(key) {
			continue
		}
		e.invalidated = true
		e.generation++
		e.invalidatedSeq = c.seq
		if e.hasData && e.status != StatusError {
			e.status = StatusStale
		}
		c.notifyLocked(e)
		n++
	}
	return n
}

// Snapshot returns the current state of key without fetching.
func (c *Cache) Snapshot(key Key) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Snapshot{Status: StatusIdle}, false
	}
	snap := e.snapshot()
	if snap.Status == StatusFresh && c.nowFunc().Sub(e.fetchedAt) >= e.staleTime {
		snap.Status = StatusStale
	}
	return snap, true
}

// Subscribe delivers every state transition of key until cancel is called.
// A subscribed entry is never evicted. Slow subscribers only see the latest
// snapshots.
func (c *Cache) Subscribe(key Key) (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	if e.subs == nil {
		e.subs = make(map[int]chan Snapshot)
	}
	c.nextSub++
	id := c.nextSub
	ch := make(chan Snapshot, 4)
	e.subs[id] = ch
	if e.hasData || e.status == StatusError {
		ch <- e.snapshot()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if cur, ok := c.entries[key]; ok {
				delete(cur.subs, id)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Collect evicts entries that have no subscribers, no fetch in flight and
// were last accessed more than the retention window ago.
func (c *Cache) Collect() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	n := 0
	for key, e := range c.entries {
		if len(e.subs) > 0 || e.inflight > 0 {
			continue
		}
		if now.Sub(e.lastAccess) <= c.retention {
			continue
		}
		delete(c.entries, key)
		n++
	}
	if n > 0 {
		cacheEvictions.Add(float64(n))
		cacheEntries.Set(float64(len(c.entries)))
	}
	return n
}

// Run calls Collect every interval until ctx is canceled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := c.Collect(); n > 0 {
				c.logger.Debug("query cache collected", slog.Int("evicted", n))
			}
		}
	}
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{status: StatusPending}
		c.entries[key] = e
		cacheEntries.Set(float64(len(c.entries)))
	}
	return e
}

func (c *Cache) notifyLocked(e *entry) {
	if len(e.subs) == 0 {
		return
	}
	snap := e.snapshot()
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (e *entry) servable() bool {
	return e.hasData && !e.invalidated && e.status != StatusError
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Data:      e.data,
		Status:    e.status,
		Err:       e.err,
		FetchedAt: e.fetchedAt,
	}
}

// Load is Query with a typed fetcher. The returned value is the snapshot's
// data, or the zero value when there is none.
func Load[T any](ctx context.Context, c *Cache, key Key, policy Policy, fetch func(context.Context) (T, error)) (T, Snapshot, error) {
	snap, err := c.Query(ctx, key, policy, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	v, _ := snap.Data.(T)
	return v, snap, err
}
