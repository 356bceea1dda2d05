package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config holds retry configuration
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// permanent marks an error that must not be retried.
type permanent struct {
	err error
}

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent wraps err so WithBackoff returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanent
	return errors.As(err, &p)
}

// WithBackoff executes a function with exponential backoff retry logic.
// Errors wrapped with Permanent stop the loop immediately.
func WithBackoff(ctx context.Context, config Config, operation func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.BaseDelay
	if config.MaxDelay > 0 {
		b.MaxInterval = config.MaxDelay
	}
	b.MaxElapsedTime = 0

	maxRetries := config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)

	attempts := 0
	var lastErr error
	err := backoff.Retry(func() error {
		attempts++
		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
	if err == nil {
		return nil
	}

	if IsPermanent(lastErr) {
		return fmt.Errorf("non-retryable error: %w", errors.Unwrap(lastErr))
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("retry aborted after %d attempts: %w", attempts, errors.Join(ctxErr, lastErr))
	}
	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}

// HTTPStatusRetryable checks if an HTTP status code is retryable
func HTTPStatusRetryable(statusCode int) bool {
	// Retry on server errors (5xx) and rate limiting (429)
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
