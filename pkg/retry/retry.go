// Package retry retries transient failures, such as opening loader
// connections, with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
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
	JitterFactor float64 // 0.0-1.0, +/- share of each delay
}

// DefaultConfig returns defaults for database connections: 3 retries from
// 100ms, doubling, capped at 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// WithMaxRetries returns a copy of c with a different retry count.
func (c Config) WithMaxRetries(n int) *Config {
	c.MaxRetries = n
	return &c
}

type backoff struct {
	cfg   *Config
	delay time.Duration
}

// wait sleeps for the current delay with jitter and grows it.
func (b *backoff) wait(ctx context.Context) error {
	d := b.delay
	if b.cfg.JitterFactor > 0 {
		d += time.Duration(float64(d) * b.cfg.JitterFactor * (rand.Float64()*2 - 1))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.delay = min(time.Duration(float64(b.delay)*b.cfg.Multiplier), b.cfg.MaxDelay)
	return nil
}

// DoWithResult calls fn until it succeeds, retries are exhausted, or
// shouldRetry rejects the error. A nil shouldRetry retries every error.
func DoWithResult[T any](ctx context.Context, cfg *Config, shouldRetry func(error) bool, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	b := &backoff{cfg: cfg, delay: cfg.InitialDelay}

	var zero T
	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if attempt >= cfg.MaxRetries || (shouldRetry != nil && !shouldRetry(err)) {
			return zero, err
		}
		if waitErr := b.wait(ctx); waitErr != nil {
			return zero, errors.Join(err, waitErr)
		}
	}
}

// Do retries fn on every error.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, nil, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoIfRetryable retries fn only while its errors are transient.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, IsRetryable, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"network is unreachable",
	"server is starting up",
	"the database system is starting up",
}

// IsRetryable reports whether err looks transient. Errors that implement
// IsRetryable() bool decide for themselves; otherwise the message is matched
// against known network and database conditions. Context errors never retry.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
