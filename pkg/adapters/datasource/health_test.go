package datasource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
)

func TestHealthTrackerEmptyWindowIsHealthy(t *testing.T) {
	tr := NewHealthTracker(10)
	assert.Equal(t, models.StatusHealthy, tr.Health().Status)
}

func TestHealthTrackerGrading(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		ok       int
		latency  time.Duration
		want     models.SourceStatus
	}{
		{name: "all fast successes", failures: 0, ok: 10, latency: 20 * time.Millisecond, want: models.StatusHealthy},
		{name: "occasional failures degrade", failures: 2, ok: 8, latency: 20 * time.Millisecond, want: models.StatusDegraded},
		{name: "slow but clean degrades", failures: 0, ok: 10, latency: 800 * time.Millisecond, want: models.StatusDegraded},
		{name: "majority failures unhealthy", failures: 6, ok: 4, latency: 20 * time.Millisecond, want: models.StatusUnhealthy},
		{name: "total failure unhealthy", failures: 10, ok: 0, latency: 20 * time.Millisecond, want: models.StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewHealthTracker(10)
			for i := 0; i < tt.ok; i++ {
				tr.Observe(tt.latency, false)
			}
			for i := 0; i < tt.failures; i++ {
				tr.Observe(tt.latency, true)
			}
			assert.Equal(t, tt.want, tr.Health().Status)
		})
	}
}

func TestHealthTrackerWindowSlides(t *testing.T) {
	tr := NewHealthTracker(4)
	for i := 0; i < 4; i++ {
		tr.Observe(10*time.Millisecond, true)
	}
	assert.Equal(t, models.StatusUnhealthy, tr.Health().Status)

	// New successes displace the old failures.
	for i := 0; i < 4; i++ {
		tr.Observe(10*time.Millisecond, false)
	}
	assert.Equal(t, models.StatusHealthy, tr.Health().Status)
}

func TestHealthTrackerReset(t *testing.T) {
	tr := NewHealthTracker(8)
	for i := 0; i < 8; i++ {
		tr.Observe(10*time.Millisecond, true)
	}
	assert.Equal(t, models.StatusUnhealthy, tr.Health().Status)

	tr.Reset()
	assert.Equal(t, models.StatusHealthy, tr.Health().Status)
}

func TestHealthTrackerReportsRates(t *testing.T) {
	tr := NewHealthTracker(10)
	tr.Observe(100*time.Millisecond, false)
	tr.Observe(300*time.Millisecond, true)

	h := tr.Health()
	assert.InDelta(t, 0.5, h.ErrorRate, 1e-9)
	assert.Equal(t, int64(200), h.ResponseTimeMs)
	assert.False(t, h.CheckedAt.IsZero())
}

func TestServesTraffic(t *testing.T) {
	assert.True(t, models.StatusHealthy.ServesTraffic())
	assert.True(t, models.StatusDegraded.ServesTraffic())
	assert.False(t, models.StatusUnhealthy.ServesTraffic())
}
