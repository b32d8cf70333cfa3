package cache

import "time"

const (
	baseTTL = 5 * time.Minute
	minTTL  = 60 * time.Second
	maxTTL  = 3600 * time.Second
)

// ComputeTTL derives the time-to-live for a cached response at write time.
// Large result sets are popular and stable so they live longer; tiny or
// cheap results are likely to change and quick to recompute so they expire
// sooner; expensive queries are kept longest.
func ComputeTTL(totalCount int, executionTimeMs int64) time.Duration {
	ttl := baseTTL

	if totalCount > 100 {
		ttl *= 2
	}
	if totalCount < 5 || executionTimeMs < 50 {
		ttl /= 2
	}
	if executionTimeMs > 1000 {
		ttl *= 3
	}

	if ttl < minTTL {
		ttl = minTTL
	}
	if ttl > maxTTL {
		ttl = maxTTL
	}
	return ttl
}
