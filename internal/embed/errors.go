package embed

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransientError wraps a failure that is worth retrying: timeouts, connection
// resets, server-side overload. The ingestion pipeline retries these with
// backoff and treats everything else as fatal for the chunk.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient embedding failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried. Network-level errors are
// considered transient even when not explicitly wrapped; context cancellation
// never is.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
