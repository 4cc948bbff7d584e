package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrMaxRetries is returned by Retry once every attempt has failed.
var ErrMaxRetries = errors.New("max retries reached")

// RetryConfig describes a bounded exponential backoff schedule
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int

	// InitialBackoff is the delay before the first retry
	InitialBackoff time.Duration

	// MaxBackoff caps every delay
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay on each retry
	BackoffMultiplier float64

	// Jitter spreads each delay by up to +/-10%
	Jitter bool

	// RetryableErrors decides whether an error is worth another attempt.
	// Defaults to DefaultRetryableErrors when nil.
	RetryableErrors func(error) bool

	// OnRetry, when set, is called before waiting for the next attempt
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig returns the schedule used when dialing the remote cache:
// 100ms growing by 1.5x up to 5s, giving up after 10 retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        10,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 1.5,
		RetryableErrors:   DefaultRetryableErrors,
	}
}

// DefaultRetryableErrors retries everything except cancellation. A deadline
// error is retryable: per-attempt timeouts and net dial timeouts both match
// context.DeadlineExceeded, and Retry itself stops once its own context is
// done.
func DefaultRetryableErrors(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Delay returns the wait before retry number attempt (0-based):
// min(InitialBackoff * BackoffMultiplier^attempt, MaxBackoff).
func (c RetryConfig) Delay(attempt int) time.Duration {
	return calculateBackoff(attempt, c)
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	multiplier := config.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	backoff := float64(config.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}
	if config.Jitter {
		backoff = backoff * (0.9 + rand.Float64()*0.2)
	}
	return time.Duration(backoff)
}

// Retry runs fn until it succeeds, returns a non-retryable error, the
// context is done, or MaxRetries retries have failed. In the last case the
// returned error matches ErrMaxRetries and wraps the final failure.
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	retryable := config.RetryableErrors
	if retryable == nil {
		retryable = DefaultRetryableErrors
	}
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errors.WithSecondaryError(ctx.Err(), err)
		}
		if !retryable(err) {
			return err
		}
		if attempt >= config.MaxRetries {
			return errors.Mark(errors.Wrapf(err, "gave up after %d retries", attempt), ErrMaxRetries)
		}
		delay := calculateBackoff(attempt, config)
		if config.OnRetry != nil {
			config.OnRetry(attempt+1, delay, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.WithSecondaryError(ctx.Err(), err)
		case <-timer.C:
		}
	}
}
