// Package retry provides exponential-backoff retry helpers for transient
// datasource and collaborator failures.
package retry

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, +/- fraction of delay to prevent thundering herd
}

// DefaultConfig returns sensible defaults for database operations:
// 3 retries starting at 100ms, doubling, capped at 5s, 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Once returns a config that retries exactly once with a short delay.
// Used by the source executor, which retries transient connection errors
// a single time with a fresh pool acquisition.
func Once() *Config {
	return &Config{
		MaxRetries:   1,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   1.0,
		JitterFactor: 0.1,
	}
}

// backoff tracks the delay sequence for one retry loop.
type backoff struct {
	cfg   *Config
	delay time.Duration
}

func newBackoff(cfg *Config) *backoff {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &backoff{cfg: cfg, delay: cfg.InitialDelay}
}

func (b *backoff) attempts() int { return b.cfg.MaxRetries + 1 }

// wait sleeps the current jittered delay and advances the sequence.
// Returns the context error if cancelled mid-wait.
func (b *backoff) wait(ctx context.Context) error {
	d := b.delay
	if b.cfg.JitterFactor > 0 {
		jitter := float64(d) * b.cfg.JitterFactor * (rand.Float64()*2 - 1)
		d = time.Duration(float64(d) + jitter)
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
		return ctx.Err()
	}

	b.delay = time.Duration(float64(b.delay) * b.cfg.Multiplier)
	if b.delay > b.cfg.MaxDelay {
		b.delay = b.cfg.MaxDelay
	}
	return nil
}

// Do executes fn with backoff, returning nil on success or the last error
// once retries are exhausted. Respects context cancellation between attempts.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes fn with backoff and returns its value. Useful for
// constructors like pool creation that return a handle.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	b := newBackoff(cfg)

	var result T
	var lastErr error
	for attempt := 0; attempt < b.attempts(); attempt++ {
		if attempt > 0 {
			if err := b.wait(ctx); err != nil {
				return result, err
			}
		}

		r, err := fn()
		if err == nil {
			return r, nil
		}
		result = r
		lastErr = err
	}
	return result, lastErr
}

// DoIfRetryable retries only while IsRetryable reports the error as
// transient. Permanent errors (bad SQL, permission denied) return
// immediately without burning retries.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	b := newBackoff(cfg)

	var lastErr error
	for attempt := 0; attempt < b.attempts(); attempt++ {
		if attempt > 0 {
			if err := b.wait(ctx); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// RetryableError lets errors declare their own retryability. Adapter and
// AI-client errors implement this to bypass pattern matching.
type RetryableError interface {
	error
	IsRetryable() bool
}

// transientPatterns covers network failures, MySQL server-side transient
// conditions, and throttling responses from the AI collaborator.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"i/o timeout",
	"network is unreachable",
	"invalid connection",
	"bad connection",
	"temporary failure",
	"too many connections",
	"deadlock",
	"lock wait timeout",
	"server shutdown in progress",
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"service unavailable",
	"too many requests",
}

// IsRetryable reports whether an error is transient and worth retrying.
// Errors implementing RetryableError decide for themselves; everything else
// is pattern-matched against known transient failure strings.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if r, ok := err.(RetryableError); ok {
		return r.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
