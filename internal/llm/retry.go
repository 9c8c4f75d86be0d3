package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryProvider retries failed generations with exponential backoff
type RetryProvider struct {
	inner     Provider
	attempts  int
	baseDelay time.Duration
	logger    *slog.Logger
}

// WithRetry wraps p so each Generate makes up to retries+1 attempts
func WithRetry(p Provider, retries int, baseDelay time.Duration) *RetryProvider {
	if retries < 0 {
		retries = 0
	}
	return &RetryProvider{
		inner:     p,
		attempts:  retries + 1,
		baseDelay: baseDelay,
		logger:    slog.Default().With("component", "llm", "provider", p.Name()),
	}
}

// Name returns the wrapped provider name
func (r *RetryProvider) Name() string {
	return r.inner.Name()
}

// IsAvailable delegates to the wrapped provider
func (r *RetryProvider) IsAvailable(ctx context.Context) bool {
	return r.inner.IsAvailable(ctx)
}

// Generate calls the wrapped provider until it succeeds or attempts run out
func (r *RetryProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var resp *GenerateResponse
	err := retryWithBackoff(ctx, func() error {
		var err error
		resp, err = r.inner.Generate(ctx, req)
		if err != nil {
			r.logger.Debug("generation attempt failed", "error", err)
		}
		return err
	}, r.attempts, r.baseDelay)
	if err != nil {
		if !errors.Is(err, ErrGeneration) {
			err = fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		return nil, err
	}
	return resp, nil
}

// retryWithBackoff doubles the delay after every failed attempt and stops on
// context cancellation.
func retryWithBackoff(ctx context.Context, op func() error, maxAttempts int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled: %w (last error: %w)", ctx.Err(), lastErr)
			case <-timer.C:
			}
		}

		if err := op(); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return lastErr
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
