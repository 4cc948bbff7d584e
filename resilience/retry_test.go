package resilience

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestRetry_Success(t *testing.T) {
	config := DefaultRetryConfig()
	config.InitialBackoff = time.Millisecond
	attempts := 0

	err := Retry(context.Background(), config, func() error {
		attempts++
		if attempts < 2 {
			return errors.New("temporary error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}

	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestRetry_MaxRetriesExceeded(t *testing.T) {
	config := RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    1 * time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
		RetryableErrors:   DefaultRetryableErrors,
	}

	attempts := 0
	err := Retry(context.Background(), config, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if !errors.Is(err, ErrMaxRetries) {
		t.Errorf("Expected ErrMaxRetries, got %v", err)
	}

	if attempts != 3 { // Initial attempt + 2 retries
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	config := RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
		RetryableErrors: func(err error) bool {
			return err.Error() != "non-retryable"
		},
	}

	attempts := 0
	err := Retry(context.Background(), config, func() error {
		attempts++
		return errors.New("non-retryable")
	})

	if err == nil {
		t.Error("Expected error, got nil")
	}

	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	config := RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	err := Retry(ctx, config, func() error {
		attempts++
		return errors.New("temporary error")
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}

	if attempts != 1 {
		t.Errorf("Expected 1 attempt before the deadline, got %d", attempts)
	}
}

func TestRetry_OnRetry(t *testing.T) {
	config := RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	var seen []int
	var delays []time.Duration
	config.OnRetry = func(attempt int, delay time.Duration, err error) {
		seen = append(seen, attempt)
		delays = append(delays, delay)
	}

	_ = Retry(context.Background(), config, func() error {
		return errors.New("down")
	})

	if len(seen) != 3 {
		t.Fatalf("Expected 3 retry callbacks, got %d", len(seen))
	}
	for i, attempt := range seen {
		if attempt != i+1 {
			t.Errorf("Callback %d: expected attempt %d, got %d", i, i+1, attempt)
		}
	}
	if delays[0] != time.Millisecond || delays[1] != 2*time.Millisecond || delays[2] != 2*time.Millisecond {
		t.Errorf("Unexpected delays %v", delays)
	}
}

func TestDefaultRetryableErrors(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{errors.New("network error"), true},
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
		{errors.Wrap(context.Canceled, "ping"), false},
	}

	for _, tt := range tests {
		result := DefaultRetryableErrors(tt.err)
		if result != tt.retryable {
			t.Errorf("Error %v: expected retryable=%v, got %v", tt.err, tt.retryable, result)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	config := RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1 * time.Second}, // Capped at MaxBackoff
		{5, 1 * time.Second}, // Still capped
	}

	for _, tt := range tests {
		result := calculateBackoff(tt.attempt, config)
		if result != tt.expected {
			t.Errorf("Attempt %d: expected %v, got %v", tt.attempt, tt.expected, result)
		}
	}
}

func TestDefaultRetryConfigDelays(t *testing.T) {
	config := DefaultRetryConfig()

	if d := config.Delay(0); d != 100*time.Millisecond {
		t.Errorf("Expected 100ms, got %v", d)
	}
	if d := config.Delay(1); d != 150*time.Millisecond {
		t.Errorf("Expected 150ms, got %v", d)
	}
	if d := config.Delay(20); d != 5*time.Second {
		t.Errorf("Expected cap of 5s, got %v", d)
	}
}

func TestCalculateBackoffWithJitter(t *testing.T) {
	config := RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}

	results := make(map[time.Duration]bool)
	for range 10 {
		result := calculateBackoff(1, config)
		results[result] = true
	}

	if len(results) < 2 {
		t.Error("Expected jitter to produce different backoff values")
	}

	for duration := range results {
		if duration < 180*time.Millisecond || duration > 220*time.Millisecond {
			t.Errorf("Jittered backoff %v outside expected range [180ms, 220ms]", duration)
		}
	}
}

func TestRetry_DialTimeoutIsRetried(t *testing.T) {
	config := RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 1.5,
	}
	var retries []int
	config.OnRetry = func(attempt int, delay time.Duration, err error) {
		retries = append(retries, attempt)
	}

	attempts := 0
	dialer := net.Dialer{Timeout: time.Nanosecond}
	err := Retry(context.Background(), config, func() error {
		attempts++
		conn, err := dialer.Dial("tcp", "10.255.255.1:6379")
		if err == nil {
			conn.Close()
		}
		return err
	})

	if !errors.Is(err, ErrMaxRetries) {
		t.Errorf("Expected ErrMaxRetries, got %v", err)
	}
	if attempts != 4 {
		t.Errorf("Expected 4 attempts, got %d", attempts)
	}
	if len(retries) != 3 {
		t.Errorf("Expected 3 OnRetry calls, got %v", retries)
	}
}

func TestRetry_InnerDeadlineIsRetried(t *testing.T) {
	config := RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 1.5,
	}

	attempts := 0
	err := Retry(context.Background(), config, func() error {
		attempts++
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()
		return ctx.Err()
	})

	if !errors.Is(err, ErrMaxRetries) {
		t.Errorf("Expected ErrMaxRetries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_StopsWhenContextDoneDuringAttempt(t *testing.T) {
	config := RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 1.5,
	}
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := Retry(ctx, config, func() error {
		attempts++
		cancel()
		return errors.New("connection refused")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}
