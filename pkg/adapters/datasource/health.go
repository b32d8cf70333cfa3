package datasource

import (
	"sync"
	"time"

	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
)

// DegradedLatencyMs is the rolling average latency above which a source is
// graded degraded even with a clean error rate.
const DegradedLatencyMs = 500

// Error-rate thresholds for health grading. A degraded source still serves
// traffic; an unhealthy one is excluded from fan-out until a probe recovers it.
const (
	degradedErrorRate  = 0.1
	unhealthyErrorRate = 0.5
)

type observation struct {
	latencyMs int64
	failed    bool
}

// HealthTracker grades a source from a rolling window of execution and
// probe observations.
type HealthTracker struct {
	mu     sync.Mutex
	window []observation
	size   int
	next   int
	filled bool
	last   time.Time
}

// NewHealthTracker creates a tracker with the given window size.
func NewHealthTracker(windowSize int) *HealthTracker {
	if windowSize <= 0 {
		windowSize = 20
	}
	return &HealthTracker{
		window: make([]observation, windowSize),
		size:   windowSize,
	}
}

// Observe records one execution or probe outcome.
func (t *HealthTracker) Observe(latency time.Duration, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.window[t.next] = observation{latencyMs: latency.Milliseconds(), failed: failed}
	t.next = (t.next + 1) % t.size
	if t.next == 0 {
		t.filled = true
	}
	t.last = time.Now()
}

// Reset clears the window. Used when a probe observes recovery so stale
// failures stop dragging the grade down.
func (t *HealthTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next = 0
	t.filled = false
	t.last = time.Now()
}

// Health returns the current grade with supporting numbers.
func (t *HealthTracker) Health() models.Health {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.next
	if t.filled {
		n = t.size
	}
	if n == 0 {
		return models.Health{Status: models.StatusHealthy, CheckedAt: t.last}
	}

	var failures int
	var totalLatency int64
	for i := 0; i < n; i++ {
		if t.window[i].failed {
			failures++
		}
		totalLatency += t.window[i].latencyMs
	}

	errorRate := float64(failures) / float64(n)
	avgLatency := totalLatency / int64(n)

	status := models.StatusHealthy
	switch {
	case errorRate >= unhealthyErrorRate:
		status = models.StatusUnhealthy
	case errorRate >= degradedErrorRate || avgLatency > DegradedLatencyMs:
		status = models.StatusDegraded
	}

	return models.Health{
		Status:         status,
		ResponseTimeMs: avgLatency,
		ErrorRate:      errorRate,
		CheckedAt:      t.last,
	}
}
