// Package reconnect retries live capture sessions with exponential backoff
// and classifies the errors that end them.
package reconnect

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Config contains configuration for exponential backoff reconnection
type Config struct {
	MaxRetries    int           // Maximum number of reconnection attempts (default: 5)
	RetryDelay    time.Duration // Initial retry delay (default: 1 second)
	MaxRetryDelay time.Duration // Maximum retry delay cap (default: 30 seconds)

	// Retryable decides whether an error is worth another attempt.
	// nil retries every error.
	Retryable func(error) bool
}

// DefaultConfig returns default reconnection configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// State tracks the current state of reconnection attempts
type State struct {
	CurrentRetries int
	Reconnects     atomic.Uint32 // Total reconnection attempts, read by Stats
}

// ConnectFunc runs one capture session. A nil return ends the loop; an
// error schedules a reconnect.
type ConnectFunc func(ctx context.Context) error

// Run executes connectFn with exponential backoff between failures.
//
// Backoff schedule with the default config:
//   - Attempt 1: 1 second
//   - Attempt 2: 2 seconds
//   - Attempt 3: 4 seconds
//   - Attempt 4: 8 seconds
//   - Attempt 5: 16 seconds
//   - After 5 failures: stop (max retries exceeded)
//
// connectFn should call Reset once it has a working session so that a
// long-lived stream which drops occasionally is not penalized by old
// failures.
//
// Returns nil when connectFn returns nil, the last error when it is not
// retryable, and an error when max retries are exceeded or ctx is done.
func Run(
	ctx context.Context,
	connectFn ConnectFunc,
	cfg Config,
	state *State,
	log *slog.Logger,
) error {
	if log == nil {
		log = slog.Default()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("mv-capture: context cancelled, stopping reconnection")
			return ctx.Err()
		default:
		}

		err := connectFn(ctx)
		if err == nil {
			state.CurrentRetries = 0
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		category := Classify(err)
		log.Error("mv-capture: capture session ended",
			"error", err,
			"category", category.String(),
		)

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return fmt.Errorf("mv-capture: not retrying %s error: %w", category, err)
		}

		state.CurrentRetries++
		state.Reconnects.Add(1)

		if state.CurrentRetries > cfg.MaxRetries {
			return fmt.Errorf("mv-capture: max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}

		delay := calculateBackoff(state.CurrentRetries, cfg)

		log.Warn("mv-capture: reconnecting",
			"attempt", state.CurrentRetries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
			continue
		case <-ctx.Done():
			timer.Stop()
			log.Info("mv-capture: context cancelled during backoff")
			return ctx.Err()
		}
	}
}

// calculateBackoff returns retryDelay * 2^(attempt-1), capped at
// maxRetryDelay.
func calculateBackoff(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		return cfg.MaxRetryDelay
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))

	if delay > cfg.MaxRetryDelay || delay <= 0 {
		delay = cfg.MaxRetryDelay
	}

	return delay
}

// Reset clears the retry counter after a session is established.
func Reset(state *State) {
	state.CurrentRetries = 0
}
