package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"goa.design/clue/log"

	"github.com/quarrybuild/quarry/engine/executor"
)

// ErrShuttingDown is returned by Add once Shutdown has begun.
var ErrShuttingDown = errors.New("the scheduler is shutting down: no new sessions may be created")

// Registry is the process-wide collection of live sessions. Membership is
// by weak reference only: the registry never keeps a session alive, and
// dead entries are pruned opportunistically on each Add.
//
// The registry owns one background task that watches for OS interrupts
// arriving at this process and cancels all non-isolated live sessions each
// time one arrives. Close aborts that task; Shutdown additionally drains
// the registry, waiting for every live session's latch within a deadline.
type Registry struct {
	mu sync.Mutex
	// sessions is nil exactly when Shutdown has run; the shutdown flag
	// distinguishes that from an empty live registry.
	sessions []weak.Pointer[sessionHandle]
	shutdown bool

	// runIDs generates RunID values. Monotonic, but no meaning is
	// assigned to ordering: only equality is relevant.
	runIDs atomic.Uint32

	signals   chan os.Signal
	closeOnce sync.Once
	closed    chan struct{}
}

// NewRegistry constructs a live registry and spawns its interrupt-watching
// task on the executor. The task runs until Close (or ctx cancellation).
func NewRegistry(ctx context.Context, exec *executor.Executor) (*Registry, error) {
	if exec == nil {
		return nil, errors.New("session registry requires an executor")
	}
	r := &Registry{
		signals: make(chan os.Signal, 1),
		closed:  make(chan struct{}),
	}
	signal.Notify(r.signals, os.Interrupt)
	exec.Go(ctx, r.watchInterrupts)
	return r, nil
}

// watchInterrupts cancels all live non-isolated sessions on each received
// interrupt, for the registry's lifetime.
func (r *Registry) watchInterrupts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.closed:
			return
		case <-r.signals:
			r.cancelAll(ctx)
		}
	}
}

// cancelAll snapshots the currently-live, non-isolated sessions and cancels
// each. Isolated sessions are never touched by this path. Idempotent when
// no sessions are live.
func (r *Registry) cancelAll(ctx context.Context) {
	r.mu.Lock()
	var targets []*sessionHandle
	for _, w := range r.sessions {
		if h := w.Value(); h != nil && !h.isolated {
			targets = append(targets, h)
		}
	}
	r.mu.Unlock()
	for _, h := range targets {
		log.Printf(ctx, "cancelling session %q on interrupt", h.buildID)
		h.cancel()
	}
}

// Add registers a session handle, pruning dead entries first. It fails
// with ErrShuttingDown once Shutdown has begun.
func (r *Registry) Add(h *sessionHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return ErrShuttingDown
	}
	live := r.sessions[:0]
	for _, w := range r.sessions {
		if w.Value() != nil {
			live = append(live, w)
		}
	}
	r.sessions = append(live, weak.Make(h))
	return nil
}

// GenerateRunID atomically increments the run-id counter and returns the
// prior value. Uniqueness across all sessions in the process is guaranteed
// without locking.
func (r *Registry) GenerateRunID() RunID {
	return RunID(r.runIDs.Add(1) - 1)
}

// Shutdown drains the registry: it atomically takes the live-session list
// (all subsequent Add calls fail) and waits for every session still live at
// that instant to acknowledge cancellation by triggering its latch, either
// from an explicit cancel or from the natural drop of all owners.
//
// The wait is bounded by a single wall-clock timeout covering all sessions;
// exceeding it returns an error naming the bound. A timeout does not
// force-kill outstanding work and does not un-cancel anything.
func (r *Registry) Shutdown(ctx context.Context, timeout time.Duration) error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = nil
	r.shutdown = true
	r.mu.Unlock()

	var live []*sessionHandle
	for _, w := range sessions {
		if h := w.Value(); h != nil {
			live = append(live, h)
		}
	}
	if len(live) == 0 {
		return nil
	}

	buildIDs := make([]string, len(live))
	for i, h := range live {
		buildIDs[i] = h.buildID
	}
	log.Printf(ctx, "waiting for shutdown of: %q", buildIDs)

	// done is closed when the select below resolves so that waiter
	// goroutines for never-cancelled sessions do not outlive this call.
	done := make(chan struct{})
	defer close(done)
	var wg sync.WaitGroup
	for _, h := range live {
		wg.Add(1)
		go func(h *sessionHandle) {
			defer wg.Done()
			select {
			case <-h.cancelled.Done():
				log.Printf(ctx, "shutdown completed: %q", h.buildID)
			case <-done:
			}
		}(h)
	}
	all := make(chan struct{})
	go func() {
		wg.Wait()
		close(all)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-all:
		return nil
	case <-timer.C:
		return fmt.Errorf("some sessions did not shut down within %s", timeout)
	}
}

// Close aborts the interrupt-watching task unconditionally, without
// waiting. It does not drain the registry; call Shutdown first for a
// graceful stop.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		signal.Stop(r.signals)
		close(r.closed)
	})
}
