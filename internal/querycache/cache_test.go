package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/EcommerceGo/storefront/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testPolicy(stale time.Duration) Policy {
	return Policy{StaleTime: stale, Retry: 3}
}

// counter returns a fetcher yielding "v1", "v2", ... and the call count.
func counter() (Fetcher, *atomic.Int32) {
	var n atomic.Int32
	return func(context.Context) (any, error) {
		i := n.Add(1)
		return "v" + string(rune('0'+i)), nil
	}, &n
}

func newTestCache(t *testing.T) (*Cache, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return New(WithClock(clock.Now)), clock
}

// ============================================================================
// Keys
// ============================================================================

func TestNewKey_StructuralEquality(t *testing.T) {
	a := NewKey("products", map[string]any{"limit": 10, "skip": 0, "sort": "price"})
	b := NewKey("products", map[string]any{"sort": "price", "skip": 0, "limit": 10})
	c := NewKey("products", map[string]any{"limit": 10, "skip": 10, "sort": "price"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, NewKey("search", map[string]any{"limit": 10, "skip": 0, "sort": "price"}))
	assert.Equal(t, Key{Kind: "categories"}, NewKey("categories", nil))
	assert.Equal(t, "categories", NewKey("categories", nil).String())
}

// ============================================================================
// Freshness and de-duplication
// ============================================================================

func TestQuery_FreshWithinStaleTime_SingleFetch(t *testing.T) {
	c, clock := newTestCache(t)
	fetch, calls := counter()
	key := NewKey("products", map[string]int{"limit": 10})

	first, err := c.Query(context.Background(), key, testPolicy(5*time.Minute), fetch)
	require.NoError(t, err)
	assert.Equal(t, StatusFresh, first.Status)

	clock.Advance(4 * time.Minute)
	second, err := c.Query(context.Background(), key, testPolicy(5*time.Minute), fetch)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "v1", second.Data)
	assert.Equal(t, StatusFresh, second.Status)
}

func TestQuery_ConcurrentCallersShareOneFetch(t *testing.T) {
	c, _ := newTestCache(t)
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}
	key := NewKey("search", map[string]string{"q": "phone"})

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := c.Query(context.Background(), key, testPolicy(time.Minute), fetch)
			assert.NoError(t, err)
			results[i] = snap.Data
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
}

func TestQuery_StaleServedWhileRevalidating(t *testing.T) {
	c, clock := newTestCache(t)
	fetch, calls := counter()
	key := NewKey("products", nil)

	_, err := c.Query(context.Background(), key, testPolicy(time.Minute), fetch)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	snap, err := c.Query(context.Background(), key, testPolicy(time.Minute), fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", snap.Data, "stale data is returned immediately")
	assert.Equal(t, StatusStale, snap.Status)

	require.Eventually(t, func() bool {
		s, _ := c.Snapshot(key)
		return s.Status == StatusFresh && s.Data == "v2"
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQuery_ZeroStaleTimeAlwaysRevalidates(t *testing.T) {
	c, _ := newTestCache(t)
	fetch, calls := counter()
	key := NewKey("product", map[string]string{"id": "1"})

	_, err := c.Query(context.Background(), key, testPolicy(0), fetch)
	require.NoError(t, err)
	snap, err := c.Query(context.Background(), key, testPolicy(0), fetch)
	require.NoError(t, err)

	assert.Equal(t, StatusStale, snap.Status)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
}

// ============================================================================
// Retry and errors
// ============================================================================

func TestQuery_RetriesTransientFailures(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		if calls.Add(1) < 3 {
			return nil, apperrors.Transport(503, "unavailable", nil)
		}
		return "ok", nil
	}

	snap, err := c.Query(context.Background(), NewKey("products", nil), testPolicy(time.Minute), fetch)
	require.NoError(t, err)
	assert.Equal(t, "ok", snap.Data)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQuery_RetryExhaustedBecomesError(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		return nil, apperrors.Transport(0, "dial", errors.New("connection refused"))
	}
	key := NewKey("products", nil)

	snap, err := c.Query(context.Background(), key, testPolicy(time.Minute), fetch)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTransport)
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, int32(4), calls.Load(), "one attempt plus three retries")

	stored, ok := c.Snapshot(key)
	require.True(t, ok)
	assert.Equal(t, StatusError, stored.Status)
	assert.ErrorIs(t, stored.Err, apperrors.ErrTransport)
}

func TestQuery_NonRetryableFailsOnce(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		return nil, apperrors.NotFound("product", "99")
	}

	_, err := c.Query(context.Background(), NewKey("product", nil), testPolicy(time.Minute), fetch)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQuery_ErrorKeepsLastGoodData(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("products", nil)
	_, err := c.Query(context.Background(), key, testPolicy(time.Minute), func(context.Context) (any, error) {
		return "good", nil
	})
	require.NoError(t, err)

	c.Invalidate(key)
	snap, err := c.Query(context.Background(), key, testPolicy(time.Minute), func(context.Context) (any, error) {
		return nil, apperrors.InvalidInput("bad")
	})
	require.Error(t, err)
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, "good", snap.Data)
}

func TestQuery_ErrorEntryRefetchesOnNextAccess(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("products", nil)
	var fail atomic.Bool
	fail.Store(true)
	fetch := func(context.Context) (any, error) {
		if fail.Load() {
			return nil, apperrors.InvalidInput("bad")
		}
		return "recovered", nil
	}

	_, err := c.Query(context.Background(), key, testPolicy(time.Minute), fetch)
	require.Error(t, err)

	fail.Store(false)
	snap, err := c.Query(context.Background(), key, testPolicy(time.Minute), fetch)
	require.NoError(t, err)
	assert.Equal(t, "recovered", snap.Data)
}

func TestQuery_ErrorEntryIsPendingWhileRefetching(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("products", nil)
	_, err := c.Query(context.Background(), key, testPolicy(time.Minute), func(context.Context) (any, error) {
		return nil, apperrors.InvalidInput("bad")
	})
	require.Error(t, err)

	started, release := make(chan struct{}), make(chan struct{})
	done := make(chan Snapshot, 1)
	go func() {
		snap, _ := c.Query(context.Background(), key, testPolicy(time.Minute), func(context.Context) (any, error) {
			close(started)
			<-release
			return "recovered", nil
		})
		done <- snap
	}()
	<-started

	inflight, ok := c.Snapshot(key)
	require.True(t, ok)
	assert.Equal(t, StatusPending, inflight.Status)
	assert.ErrorIs(t, inflight.Err, apperrors.ErrInvalidInput, "last error stays visible")

	close(release)
	snap := <-done
	assert.Equal(t, StatusFresh, snap.Status)
	assert.Equal(t, "recovered", snap.Data)
}

// ============================================================================
// Invalidation and ordering
// ============================================================================

func TestInvalidate_ForcesRefetch(t *testing.T) {
	c, _ := newTestCache(t)
	fetch, calls := counter()
	key := NewKey("products", nil)

	_, err := c.Query(context.Background(), key, testPolicy(time.Hour), fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Invalidate(key))

	snap, err := c.Query(context.Background(), key, testPolicy(time.Hour), fetch)
	require.NoError(t, err)
	assert.Equal(t, "v2", snap.Data, "invalidated data must not be served")
	assert.Equal(t, int32(2), calls.Load())
}

func TestInvalidateKinds_OnlyMatchingKinds(t *testing.T) {
	c, _ := newTestCache(t)
	fetch, _ := counter()
	for _, kind := range []string{"products", "products.category", "search"} {
		_, err := c.Query(context.Background(), NewKey(kind, nil), testPolicy(time.Hour), fetch)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.InvalidateKinds("products", "products.category"))

	s, _ := c.Snapshot(NewKey("search", nil))
	assert.Equal(t, StatusFresh, s.Status)
	s, _ = c.Snapshot(NewKey("products", nil))
	assert.Equal(t, StatusStale, s.Status)
}

func TestInvalidate_LateResultFromEarlierFetchIsDiscarded(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("products", nil)
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return "before-delete", nil
		}
		return "after-delete", nil
	}

	early := make(chan Snapshot, 1)
	go func() {
		snap, _ := c.Query(context.Background(), key, testPolicy(time.Hour), fetch)
		early <- snap
	}()
	<-started

	c.Invalidate(key)
	latest, err := c.Query(context.Background(), key, testPolicy(time.Hour), fetch)
	require.NoError(t, err)
	assert.Equal(t, "after-delete", latest.Data)

	close(release)
	assert.Equal(t, "before-delete", (<-early).Data, "waiters of the old fetch still get its result")

	stored, _ := c.Snapshot(key)
	assert.Equal(t, "after-delete", stored.Data)
	assert.Equal(t, StatusFresh, stored.Status)
}

func TestInvalidate_InFlightResultNotApplied(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("products", nil)
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return "payload", nil
	}

	done := make(chan struct{})
	go func() {
		_, _ = c.Query(context.Background(), key, testPolicy(time.Hour), fetch)
		close(done)
	}()
	<-started
	c.Invalidate(key)
	close(release)
	<-done

	stored, _ := c.Snapshot(key)
	assert.NotEqual(t, StatusFresh, stored.Status)

	_, err := c.Query(context.Background(), key, testPolicy(time.Hour), fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "next access refetches")
}

func TestQuery_CallerCancelLeavesFetchRunning(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("products", nil)
	release := make(chan struct{})
	var fetchCtxErr atomic.Value
	fetch := func(ctx context.Context) (any, error) {
		<-release
		fetchCtxErr.Store(ctx.Err() == nil)
		return "done", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Query(ctx, key, testPolicy(time.Hour), fetch)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		s, _ := c.Snapshot(key)
		return s.Status == StatusFresh
	}, time.Second, time.Millisecond)
	assert.Equal(t, true, fetchCtxErr.Load())
}

// ============================================================================
// Subscriptions and retention
// ============================================================================

func TestSubscribe_ReceivesTransitions(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("categories", nil)
	updates, cancel := c.Subscribe(key)
	defer cancel()

	_, err := c.Query(context.Background(), key, testPolicy(time.Hour), func(context.Context) (any, error) {
		return []string{"beauty"}, nil
	})
	require.NoError(t, err)

	var seen []Status
	deadline := time.After(time.Second)
	for len(seen) == 0 || seen[len(seen)-1] != StatusFresh {
		select {
		case s := <-updates:
			seen = append(seen, s.Status)
		case <-deadline:
			t.Fatalf("no fresh snapshot, saw %v", seen)
		}
	}
	assert.Equal(t, StatusPending, seen[0])

	c.Invalidate(key)
	select {
	case s := <-updates:
		assert.Equal(t, StatusStale, s.Status)
		assert.Equal(t, []string{"beauty"}, s.Data)
	case <-time.After(time.Second):
		t.Fatal("no snapshot after invalidation")
	}
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	c, _ := newTestCache(t)
	updates, cancel := c.Subscribe(NewKey("products", nil))
	cancel()
	cancel()

	_, open := <-updates
	assert.False(t, open)
}

func TestCollect_EvictsOnlyUnreferencedAfterRetention(t *testing.T) {
	c, clock := newTestCache(t)
	fetch, _ := counter()
	idle := NewKey("products", map[string]int{"page": 1})
	watched := NewKey("products", map[string]int{"page": 2})

	for _, k := range []Key{idle, watched} {
		_, err := c.Query(context.Background(), k, testPolicy(time.Minute), fetch)
		require.NoError(t, err)
	}
	_, cancel := c.Subscribe(watched)

	clock.Advance(9 * time.Minute)
	assert.Zero(t, c.Collect(), "nothing is older than the retention window yet")

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.Collect())
	_, ok := c.Snapshot(idle)
	assert.False(t, ok)
	_, ok = c.Snapshot(watched)
	assert.True(t, ok, "subscribed entries are pinned")

	cancel()
	assert.Equal(t, 1, c.Collect())
	assert.Zero(t, c.Len())
}

func TestRun_StopsOnCancel(t *testing.T) {
	c, _ := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, time.Millisecond) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

// ============================================================================
// Policy and typed access
// ============================================================================

func TestPolicy_DelayIsExponentialAndCapped(t *testing.T) {
	p := NewPolicy(time.Minute)
	assert.Equal(t, time.Second, p.delay(1))
	assert.Equal(t, 2*time.Second, p.delay(2))
	assert.Equal(t, 4*time.Second, p.delay(3))
	assert.Equal(t, 30*time.Second, p.delay(10))
	assert.Zero(t, Policy{}.delay(1))
}

func TestLoad_Typed(t *testing.T) {
	c, _ := newTestCache(t)
	v, snap, err := Load(context.Background(), c, NewKey("product", nil), testPolicy(time.Minute),
		func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, StatusFresh, snap.Status)

	_, snap, err = Load(context.Background(), c, NewKey("missing", nil), testPolicy(time.Minute),
		func(context.Context) (int, error) { return 0, apperrors.NotFound("product", "1") })
	require.Error(t, err)
	assert.Equal(t, StatusError, snap.Status)
}
