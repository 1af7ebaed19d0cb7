// Package retry provides the exponential-backoff loop shared by the Glide
// client and the database pool bootstrap. Waits honor upstream delay hints
// (429 Retry-After) without stalling the backoff schedule.
package retry

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// Config tunes one backoff loop.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0 fraction of the delay, spread +/- evenly
}

// DefaultConfig suits transient infrastructure failures: 3 retries from
// 100ms, doubling up to 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// DelayHinter is implemented by errors that carry an upstream wait hint,
// such as a rate-limit response's Retry-After header. A positive hint
// replaces the computed wait for the next attempt only; the backoff
// schedule keeps advancing underneath it.
type DelayHinter interface {
	RetryDelayHint() time.Duration
}

// RetryableError is implemented by errors that declare their own
// retryability, which takes precedence over pattern matching in IsRetryable.
type RetryableError interface {
	error
	IsRetryable() bool
}

// Do runs fn until it succeeds or the retry ceiling is hit, returning the
// last error. Waits between attempts respect context cancellation.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that produce a value, such as pool
// construction. On exhaustion it returns the last result alongside the
// last error.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result = r
		lastErr = err

		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(nextWait(err, delay, cfg.JitterFactor)):
		case <-ctx.Done():
			return result, ctx.Err()
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return result, lastErr
}

// nextWait picks the wait before the next attempt: the error's own delay
// hint when it carries a positive one, otherwise the jittered backoff delay.
func nextWait(err error, delay time.Duration, jitterFactor float64) time.Duration {
	if hinter, ok := err.(DelayHinter); ok {
		if hint := hinter.RetryDelayHint(); hint > 0 {
			return hint
		}
	}
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// IsRetryable reports whether an error is transient. An error implementing
// RetryableError answers for itself; anything else is pattern-matched
// against known transient failure strings so permanent failures (bad
// credentials, constraint violations) do not burn retries.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if r, ok := err.(interface{ IsRetryable() bool }); ok {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"timed out",
		"temporary failure",
		"too many connections",
		"deadlock",
		"i/o timeout",
		"network is unreachable",
		"connection timed out",
		"429",
		"500",
		"502",
		"503",
		"504",
		"rate limit",
		"service busy",
		"service unavailable",
		"too many requests",
	}
	for _, pattern := range patterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
