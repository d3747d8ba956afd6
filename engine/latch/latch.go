// Package latch provides a one-shot broadcast latch used to propagate
// cancellation to an arbitrary number of waiters.
//
// A latch transitions from "untriggered" to "triggered" exactly once.
// Triggering is idempotent, observation is either non-blocking (IsTriggered)
// or awaitable (Done). Once triggered, a latch can never be reset.
package latch

import "sync"

// AsyncLatch is a one-shot, many-waiter broadcast primitive.
//
// The zero value is not usable; construct with New. A single latch may be
// shared by any number of goroutines: all of them observe the same trigger
// edge, whether they started waiting before or after it occurred.
type AsyncLatch struct {
	once sync.Once
	done chan struct{}
}

// New constructs an untriggered latch.
func New() *AsyncLatch {
	return &AsyncLatch{done: make(chan struct{})}
}

// Trigger sets the latch and wakes all current and future waiters. Calling
// Trigger more than once is equivalent to calling it once.
func (l *AsyncLatch) Trigger() {
	l.once.Do(func() { close(l.done) })
}

// IsTriggered reports whether the latch has been triggered, without blocking.
func (l *AsyncLatch) IsTriggered() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed exactly when the latch is triggered.
// If the latch is already triggered the channel is already closed. The wait
// itself is not cancellable: waiting on this channel is how cancellation
// propagates, not something to cancel.
func (l *AsyncLatch) Done() <-chan struct{} {
	return l.done
}
