package querycache

import "time"

// Default stale times per resource kind.
const (
	ListingStaleTime    = 5 * time.Minute
	CategoriesStaleTime = 30 * time.Minute
	SearchStaleTime     = 2 * time.Minute
	ProductStaleTime    = 0

	DefaultRetry         = 3
	DefaultRetryDelay    = time.Second
	DefaultMaxRetryDelay = 30 * time.Second
	DefaultRetention     = 10 * time.Minute
)

// Policy controls how long a result stays fresh and how transient failures
// are retried.
type Policy struct {
	StaleTime time.Duration

	// Retry is the number of extra attempts after a retryable failure.
	Retry int

	// RetryDelay is the base of the exponential backoff between attempts,
	// capped at MaxRetryDelay. Zero retries immediately.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewPolicy returns a Policy with the default retry settings.
func NewPolicy(staleTime time.Duration) Policy {
	return Policy{
		StaleTime:     staleTime,
		Retry:         DefaultRetry,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
	}
}

func (p Policy) delay(attempt int) time.Duration {
	if p.RetryDelay <= 0 {
		return 0
	}
	d := p.RetryDelay << (attempt - 1)
	if p.MaxRetryDelay > 0 && (d > p.MaxRetryDelay || d <= 0) {
		d = p.MaxRetryDelay
	}
	return d
}
