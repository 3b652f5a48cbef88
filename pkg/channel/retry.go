package channel

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig bounds the backoff applied to transient queue and blob store
// failures before the channel gives up and surfaces a transport error.
type RetryConfig struct {
	// MaxAttempts caps total tries, the first included. Default: 5
	MaxAttempts int

	// InitialBackoff is the pause after the first failure. Default: 100ms
	InitialBackoff time.Duration

	// MaxBackoff caps the pause however many attempts fail. Default: 5s
	MaxBackoff time.Duration

	// BackoffMultiplier grows the pause between attempts. Default: 2.0
	BackoffMultiplier float64

	// JitterFraction randomizes each pause by up to this fraction either
	// way, so senders that failed together do not retry together.
	// Default: 0.1
	JitterFraction float64
}

// DefaultRetryConfig returns the retry policy used by Channel sends.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// retryWithBackoff runs operation until it succeeds, the attempt cap is hit,
// or ctx is cancelled. The last failure is returned; context errors are never
// retried since the caller is already gone.
func retryWithBackoff(ctx context.Context, config RetryConfig, operation func() error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if attempt >= config.MaxAttempts {
			break
		}

		jitter := time.Duration(float64(backoff) * config.JitterFraction * (rand.Float64()*2 - 1))
		sleep := backoff + jitter
		if sleep < 0 {
			sleep = backoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return lastErr
}
