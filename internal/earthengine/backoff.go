package earthengine

import "time"

// RetryStrategy defines the backoff intervals for rate limit retries
type RetryStrategy struct {
	Intervals  []time.Duration
	MaxRetries int
}

// DefaultRetryStrategy returns the default escalating backoff. The API
// enforces per-project QPS and compute quotas; hitting them mid-run is
// normal for large AOIs.
func DefaultRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		Intervals: []time.Duration{
			2 * time.Second,
			10 * time.Second,
			30 * time.Second,
			1 * time.Minute,
			5 * time.Minute,
		},
		MaxRetries: 8,
	}
}

// Interval returns the wait before retry attempt n (0-based). Attempts
// past the table reuse the last interval.
func (s *RetryStrategy) Interval(n int) time.Duration {
	if len(s.Intervals) == 0 {
		return time.Minute
	}
	if n >= len(s.Intervals) {
		n = len(s.Intervals) - 1
	}
	return s.Intervals[n]
}

// isRateLimitStatus reports whether a status code indicates throttling
func isRateLimitStatus(code int) bool {
	return code == 429 || // Too Many Requests
		code == 403 || // Forbidden (quota exhaustion surfaces here too)
		code == 509 // Bandwidth Limit Exceeded
}
