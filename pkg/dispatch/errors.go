package dispatch

import (
	"errors"
	"fmt"
)

// DispatchError reports that a work item could not be submitted.
type DispatchError struct {
	Reference string
	Attempts  int
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s failed after %d attempt(s): %v", e.Reference, e.Attempts, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// NoRetry marks a submission error as permanent so the dispatcher gives up on
// the item without further attempts.
//
//	return dispatch.NoRetry(fmt.Errorf("encode payload: %w", err))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }
