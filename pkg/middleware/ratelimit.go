package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/utafrali/EcommerceGo/storefront/pkg/httputil"
	"github.com/utafrali/EcommerceGo/storefront/pkg/logger"
)

const defaultLimiterIdleTTL = 3 * time.Minute

// RateLimitConfig sets the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// IdleTTL is how long an unseen client's bucket is kept.
	IdleTTL time.Duration
	// TrustProxyHeaders keys clients by X-Forwarded-For and X-Real-IP
	// instead of the socket address.
	TrustProxyHeaders bool
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// bucketSet holds one limiter per client key and sweeps idle ones.
type bucketSet struct {
	limit rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newBucketSet(cfg RateLimitConfig) *bucketSet {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = defaultLimiterIdleTTL
	}
	return &bucketSet{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		ttl:     ttl,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// take spends one token for key. When the bucket is empty it returns false
// and how long until a token is available.
func (s *bucketSet) take(key string) (bool, time.Duration) {
	s.mu.Lock()
	now := s.now()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	s.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, s.ttl
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

func (s *bucketSet) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	for key, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
	return len(s.buckets)
}

func (s *bucketSet) run(ctx context.Context) {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// RateLimit enforces a token bucket per client and answers 429 with a
// Retry-After hint once it is empty. Idle buckets are swept until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig, l *slog.Logger) func(http.Handler) http.Handler {
	set := newBucketSet(cfg)
	go set.run(ctx)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIP(r, cfg.TrustProxyHeaders)
			ok, wait := set.take(client)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			logger.WithContext(r.Context(), l).WarnContext(r.Context(), "rate limit exceeded",
				slog.String("client", client),
				slog.String("path", r.URL.Path),
				slog.Duration("retry_after", wait),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			httputil.WriteErrorCode(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		})
	}
}

// clientIP keys a request by the socket address, or by the first parseable
// forwarded hop when proxy headers are trusted.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
			if addr, err := netip.ParseAddr(strings.TrimSpace(hop)); err == nil {
				return addr.Unmap().String()
			}
		}
		if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
			return addr.Unmap().String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
