package session

import (
	"runtime"
	"sync"

	"github.com/quarrybuild/quarry/engine/latch"
)

// sessionHandle is the cancellable portion of a session: build identifier,
// cancellation latch, isolation flag, and display mode. Shallow copies of a
// Session share one handle; an isolated clone gets a fresh one.
//
// A handle that becomes unreachable without Close having been called still
// triggers its latch: a runtime cleanup fires once the last reference is
// dropped, so work observing the latch winds down even for ungraceful
// callers. Close remains the deterministic path.
type sessionHandle struct {
	// buildID is the unique id for this session, used for metrics
	// gathering. Immutable after construction.
	buildID string
	// cancelled is triggered at most meaningfully once. All work started
	// by the session should poll it and exit in an orderly fashion.
	cancelled *latch.AsyncLatch
	// isolated handles are shielded from interrupt-driven mass
	// cancellation.
	isolated bool

	// displayMu serializes initialize/teardown/suspend against render.
	// Render uses TryLock and skips silently on contention so progress
	// rendering never stalls the work it reports on.
	displayMu sync.Mutex
	display   display
}

func newHandle(buildID string, cancelled *latch.AsyncLatch, isolated bool, d display) *sessionHandle {
	if cancelled == nil {
		cancelled = latch.New()
	}
	h := &sessionHandle{
		buildID:   buildID,
		cancelled: cancelled,
		isolated:  isolated,
		display:   d,
	}
	runtime.AddCleanup(h, func(l *latch.AsyncLatch) { l.Trigger() }, cancelled)
	return h
}

// cancel triggers the handle's latch. Idempotent.
func (h *sessionHandle) cancel() {
	h.cancelled.Trigger()
}
