// Package resilience retries transient failures with exponential backoff.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

// RetryConfig configuration for retry logic
type RetryConfig struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Jitter      bool

	// Retryable decides whether an error is worth another attempt.
	// Nil means IsTransient.
	Retryable func(error) bool

	// OnRetry is called before each wait, if set.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Retry executes fn with exponential backoff. It stops early on a
// non-retryable error or when ctx is done.
func Retry(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error) error {
	retryable := config.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(attempt, config.BackoffBase, config.BackoffMax, config.Jitter)
			if config.OnRetry != nil {
				config.OnRetry(attempt, backoff, lastErr)
			}

			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// calculateBackoff calculates exponential backoff with optional jitter
func calculateBackoff(attempt int, base, max time.Duration, jitter bool) time.Duration {
	backoff := max
	if attempt <= 32 {
		backoff = base * time.Duration(math.Pow(2, float64(attempt-1)))
	}
	if backoff > max || backoff <= 0 {
		backoff = max
	}

	if jitter {
		// ±25%
		jitterRange := float64(backoff) * 0.25
		backoff += time.Duration((rand.Float64() - 0.5) * 2 * jitterRange)
	}

	if backoff < 0 {
		backoff = base
	}
	return backoff
}

// IsTransient reports whether err looks like a temporary network or
// database startup failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"no such host",
		"the database system is starting up",
		"too many connections",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
