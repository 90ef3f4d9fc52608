package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/go-modpackinstaller/pkg/errdefs"
)

// RetryFunc represents a function that can be retried
type RetryFunc func(ctx context.Context) error

// ErrRetriesExhausted wraps the last error once every attempt has failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Retry executes operation until it succeeds, returns a non-retryable error
// (see errdefs.IsRetryable), ctx ends, or maxRetries retries have been spent.
// The delay grows exponentially from delay, capped at ten times delay.
// It returns the number of attempts made.
func Retry(ctx context.Context, operation RetryFunc, maxRetries int, delay time.Duration, description string, logger *Logger) (int, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var b backoff.BackOff
	if delay > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = delay
		exp.MaxInterval = delay * 10
		exp.MaxElapsedTime = 0
		b = exp
	} else {
		b = &backoff.ZeroBackOff{}
	}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)

	attempts := 0
	var lastErr error
	permanent := false

	err := backoff.RetryNotify(func() error {
		attempts++
		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errdefs.IsRetryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		logger.Info("Retry attempt %d/%d for %s (waiting %v): %v", attempts, maxRetries, description, wait, err)
	})

	if err == nil {
		if attempts > 1 {
			logger.Info("Succeeded on attempt %d for %s", attempts, description)
		} else {
			logger.Verbose("Succeeded on first attempt for %s", description)
		}
		return attempts, nil
	}

	if permanent {
		return attempts, lastErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return attempts, errdefs.Wrap(errdefs.KindCanceled, description, ctxErr)
	}

	logger.Error("Failed after %d attempts for %s: %v", attempts, description, lastErr)
	return attempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}
