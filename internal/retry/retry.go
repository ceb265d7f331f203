package retry

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config is the backoff policy for fallible remote calls. This package is
// the only place backoff lives; callers must not layer their own loops on
// top of it.
type Config struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
}

// DefaultConfig returns the production policy: five attempts, one second
// doubling to a sixty second cap, up to ten percent jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		BaseDelay:      time.Second,
		MaxDelay:       60 * time.Second,
		JitterFraction: 0.10,
	}
}

// retryableSignals mark rate-limit, quota, overload, timeout, and
// connection-class failures. Anything else is terminal.
var retryableSignals = []string{
	"rate limit",
	"rate_limit",
	"ratelimit",
	"quota",
	"429",
	"500",
	"502",
	"503",
	"504",
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection",
	"overloaded",
	"unavailable",
	"temporarily",
}

// IsRetryable classifies a remote-call failure by its text.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	for _, signal := range retryableSignals {
		if strings.Contains(message, signal) {
			return true
		}
	}
	return false
}

// Do executes op with bounded exponential backoff. Terminal failures
// propagate immediately; retryable failures sleep min(base*2^attempt, cap)
// plus jitter before the next attempt, and the last failure propagates once
// attempts are exhausted.
func Do[T any](ctx context.Context, logger zerolog.Logger, label string, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig().MaxDelay
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.BaseDelay << attempt
		if delay > cfg.MaxDelay || delay <= 0 {
			delay = cfg.MaxDelay
		}
		if cfg.JitterFraction > 0 {
			delay += time.Duration(rand.Float64() * cfg.JitterFraction * float64(delay))
		}

		logger.Warn().
			Err(err).
			Str("operation", label).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("retryable failure, backing off")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", label, cfg.MaxAttempts, lastErr)
}
