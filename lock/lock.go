// Package lock provides a scoped mutual-exclusion primitive keyed by a
// storage URL, usable across processes and machines.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrAcquire is returned when a lock cannot be acquired within its timeout.
var ErrAcquire = errors.New("lock: acquire timed out")

// Guard represents one held acquisition of a Lock.
type Guard interface {
	// Generation is the fencing token of this acquisition. It increases with
	// every successful acquire of the same lock, so a stale holder can be
	// told apart from the current one.
	Generation() uint64
	Release(ctx context.Context) error
}

// Lock is acquired with a timeout and released through the returned Guard.
// Only one holder across processes and machines proceeds between Acquire and
// Release.
type Lock interface {
	Acquire(ctx context.Context, timeout time.Duration) (Guard, error)
}
