package store

import (
	"context"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	maxRetries = 5
	retryBase  = 100 * time.Millisecond
)

// retry runs fn until it succeeds, fails with a non-transient error, or the
// attempts are exhausted. Backoff doubles from retryBase and is interrupted
// by ctx.
func retry(ctx context.Context, opName string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransient(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}

		timer := time.NewTimer(retryBase * (1 << (attempt - 1)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return errors.Wrapf(lastErr, "%s failed after %d attempts", opName, maxRetries)
}

// isTransient reports errors worth retrying: a locked or busy file.
func isTransient(err error) bool {
	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETIMEDOUT)
}
