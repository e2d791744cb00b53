package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/EcommerceGo/storefront/pkg/logger"
)

func rateLimited(t *testing.T, rps float64, burst int) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mw := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: rps, Burst: burst}, logger.Discard())
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimit_WithinBurstPasses(t *testing.T) {
	h := rateLimited(t, 10, 10)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:12345").Code, "request %d", i+1)
	}
}

func TestRateLimit_ExceedingBurstReturns429(t *testing.T) {
	h := rateLimited(t, 0.5, 2)

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)

	rr := hit(h, "10.0.0.1:1")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "RATE_LIMITED")
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))
}

func TestRateLimit_RejectionDoesNotSpendTokens(t *testing.T) {
	now := time.Unix(0, 0)
	s := newBucketSet(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	s.now = func() time.Time { return now }

	ok, _ := s.take("10.0.0.1")
	require.True(t, ok)
	for i := 0; i < 3; i++ {
		ok, wait := s.take("10.0.0.1")
		assert.False(t, ok)
		assert.Equal(t, time.Second, wait)
	}

	now = now.Add(time.Second)
	ok, _ = s.take("10.0.0.1")
	assert.True(t, ok, "a refilled token must be available after rejected attempts")
}

func TestRateLimit_ZeroBurstAlwaysRejects(t *testing.T) {
	s := newBucketSet(RateLimitConfig{RequestsPerSecond: 5, Burst: 0, IdleTTL: time.Minute})

	ok, wait := s.take("10.0.0.1")

	assert.False(t, ok)
	assert.Equal(t, time.Minute, wait)
}

func TestRateLimit_IndependentPerIP(t *testing.T) {
	h := rateLimited(t, 0.001, 1)

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1").Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		trust   bool
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", true, nil, "10.1.1.1:5000", "10.1.1.1"},
		{"forwarded chain", true, map[string]string{"X-Forwarded-For": "bogus, 203.0.113.7, 10.0.0.1"}, "10.1.1.1:5000", "203.0.113.7"},
		{"mapped v4", true, map[string]string{"X-Forwarded-For": "::ffff:203.0.113.9"}, "10.1.1.1:5000", "203.0.113.9"},
		{"real ip", true, map[string]string{"X-Real-IP": "198.51.100.2"}, "10.1.1.1:5000", "198.51.100.2"},
		{"untrusted headers ignored", false, map[string]string{"X-Forwarded-For": "203.0.113.7"}, "10.1.1.1:5000", "10.1.1.1"},
		{"remote without port", false, nil, "10.1.1.1", "10.1.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trust))
		})
	}
}

func TestBucketSet_SweepEvictsIdle(t *testing.T) {
	now := time.Unix(0, 0)
	s := newBucketSet(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	s.now = func() time.Time { return now }

	s.take("10.0.0.1")
	now = now.Add(30 * time.Second)
	s.take("10.0.0.2")
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, s.sweep())
}
