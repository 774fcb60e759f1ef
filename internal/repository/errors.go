// Package repository defines error types that are reused across the auction
// stores.  These sentinel values allow higher layers such as the auction
// engine and the handlers to distinguish between different failure
// scenarios.  ErrConflict in particular is the optimistic concurrency
// signal: it means the stored revision moved on and the caller should
// re-read and try again.
package repository

import (
    "context"
    "errors"
    "fmt"
)

// ErrNotFound is returned when no auction exists for the requested id.
var ErrNotFound = errors.New("auction not found")

// ErrConflict is returned by CompareAndSwap and Delete when the stored
// revision no longer matches the expected one.  Nothing was written.
var ErrConflict = errors.New("revision conflict")

// ErrUnavailable wraps failures of the underlying storage (network,
// driver, serialization).  It is never a concurrency signal and retrying
// the same call is not expected to help.
var ErrUnavailable = errors.New("store unavailable")

// ErrForbidden is returned when the caller attempts an operation on a
// listing they do not own.  Handlers should translate this into an HTTP
// 403 response.
var ErrForbidden = errors.New("forbidden")

// unavailable tags a storage error as ErrUnavailable while keeping the
// original cause inspectable.  Context cancellation is passed through
// untouched so callers can tell an abandoned call from a broken store.
func unavailable(op string, err error) error {
    if err == nil {
        return nil
    }
    if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
        return fmt.Errorf("%s: %w", op, err)
    }
    return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
