package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	assert.Equal(t, CircuitClosed, cb.State())
	allowed, err := cb.Allow()
	assert.True(t, allowed)
	assert.NoError(t, err)
}

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 3, ResetAfter: time.Minute})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		assert.Equal(t, CircuitClosed, cb.State())
	}

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	allowed, err := cb.Allow()
	assert.False(t, allowed)
	assert.Error(t, err)
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 3, ResetAfter: time.Minute})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	assert.Equal(t, 0, cb.ConsecutiveFailures())
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerHalfOpenAfterReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: 10 * time.Millisecond})

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	// First request after the reset window transitions to half-open
	allowed, err := cb.Allow()
	require.True(t, allowed)
	require.NoError(t, err)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// Concurrent requests are rejected while the test request is in flight
	allowed, err = cb.Allow()
	assert.False(t, allowed)
	assert.Error(t, err)

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: 10 * time.Millisecond})

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	allowed, _ := cb.Allow()
	require.True(t, allowed)

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}
