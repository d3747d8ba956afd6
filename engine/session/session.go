// Package session tracks every concurrently active run of the engine: the
// shared identity and metrics of a run, its independent cancellation and
// display state, and the process-wide registry that coordinates interrupt
// cancellation and graceful shutdown.
//
// A Session splits into two halves. The shared state (work-graph handle,
// roots, workunit store, session values, run id) may be referenced by many
// sessions at once; the handle (latch, display, isolation flag) belongs to
// exactly one session and its shallow copies. This split is what allows an
// isolated clone to share metrics and identity with its origin while being
// independently cancellable.
package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/quarrybuild/quarry/engine/executor"
	"github.com/quarrybuild/quarry/engine/graph"
	"github.com/quarrybuild/quarry/engine/latch"
	"github.com/quarrybuild/quarry/engine/telemetry"
	"github.com/quarrybuild/quarry/engine/workunit"
)

type (
	// Root is a top-level client request tracked for re-polling across the
	// session's lifetime.
	Root = graph.Select

	// RootEntry pairs a root with its last-observed marker. A nil marker
	// means the root has never been polled.
	RootEntry struct {
		Root         Root
		LastObserved *graph.LastObserved
	}

	// RunID controls the visibility of uncacheable results within a
	// session. Ordering carries no meaning beyond generation order; only
	// equality distinguishes runs.
	RunID uint32

	// Engine is the narrow surface of the engine core that sessions
	// consume. The core outlives individual sessions; many sessions
	// reference the same core concurrently.
	Engine interface {
		// Sessions returns the process-wide session registry.
		Sessions() *Registry
		// GraphSize returns the current size of the work graph.
		GraphSize() int
		// Parallelism returns the engine's local concurrency width.
		Parallelism() int
	}

	// sessionState is the shared, metrics-bearing portion of a run. Each
	// field that needs mutation carries its own lock scoped to that field
	// alone; no operation holds two of these locks at once.
	sessionState struct {
		core               Engine
		precedingGraphSize int

		rootsMu sync.Mutex
		roots   map[Root]*graph.LastObserved

		workunits *workunit.Store

		valuesMu sync.Mutex
		values   any

		// runID is rewritten mid-session on each iteration of a
		// long-lived interactive run, so it is atomic rather than
		// sharing a lock with anything else.
		runID atomic.Uint32

		metadataMu sync.RWMutex
		metadata   map[workunit.UserMetadataKey]any
	}

	// Session is one client-visible run scope: a handle composed with a
	// possibly shared state. Copying a Session is shallow and shares both
	// halves.
	Session struct {
		handle *sessionHandle
		state  *sessionState
	}
)

// New registers a new session against the engine core. The session captures
// the work graph's size at construction and allocates a fresh run id. When
// buildID is empty a generated one is used; when cancelled is nil a fresh
// latch is created. New fails if the registry is shutting down.
func New(core Engine, shouldRenderUI bool, buildID string, sessionValues any, cancelled *latch.AsyncLatch) (*Session, error) {
	if buildID == "" {
		buildID = uuid.NewString()
	}
	store := workunit.New(!shouldRenderUI,
		workunit.WithLogger(telemetry.NewClueLogger()),
		workunit.WithMetrics(telemetry.NewClueMetrics()),
	)
	h := newHandle(buildID, cancelled, false, newDisplay(store, core.Parallelism(), shouldRenderUI))
	if err := core.Sessions().Add(h); err != nil {
		return nil, err
	}
	runID := core.Sessions().GenerateRunID()
	state := &sessionState{
		core:               core,
		precedingGraphSize: core.GraphSize(),
		roots:              make(map[Root]*graph.LastObserved),
		workunits:          store,
		values:             sessionValues,
		metadata:           make(map[workunit.UserMetadataKey]any),
	}
	state.runID.Store(uint32(runID))
	return &Session{handle: h, state: state}, nil
}

// IsolatedShallowClone creates a session that shares metrics, identity, and
// state with this one but is independently cancellable and shielded from
// interrupt-driven mass cancellation.
//
// Useful when executing background work on behalf of a session which should
// not be torn down when a client disconnects or killed by Ctrl+C. Fails if
// the registry is shutting down.
func (s *Session) IsolatedShallowClone(buildID string) (*Session, error) {
	if buildID == "" {
		buildID = uuid.NewString()
	}
	h := newHandle(buildID, latch.New(), true, newDisplay(s.state.workunits, s.state.core.Parallelism(), false))
	if err := s.state.core.Sessions().Add(h); err != nil {
		return nil, err
	}
	return &Session{handle: h, state: s.state}, nil
}

// Core returns the engine core this session runs on.
func (s *Session) Core() Engine {
	return s.state.core
}

// Cancel cancels this session. Idempotent.
func (s *Session) Cancel() {
	s.handle.cancel()
}

// IsCancelled reports whether this session has been cancelled, without
// blocking.
func (s *Session) IsCancelled() bool {
	return s.handle.cancelled.IsTriggered()
}

// Cancelled returns a channel closed exactly when this session is
// cancelled. Long-running work is expected to poll it cooperatively;
// cancellation is never enforced by force-termination.
func (s *Session) Cancelled() <-chan struct{} {
	return s.handle.cancelled.Done()
}

// Close releases the caller's ownership of the session, cancelling it. The
// session's handle also auto-cancels once all references are dropped, but
// Close is the deterministic path and should be preferred.
func (s *Session) Close() {
	s.handle.cancel()
}

// BuildID returns the session's stable human-readable identifier.
func (s *Session) BuildID() string {
	return s.handle.buildID
}

// PrecedingGraphSize returns the size of the work graph as of session
// creation.
func (s *Session) PrecedingGraphSize() int {
	return s.state.precedingGraphSize
}

// WorkunitStore returns the session's shared workunit store.
func (s *Session) WorkunitStore() *workunit.Store {
	return s.state.workunits
}

// RunID returns the session's current run id.
func (s *Session) RunID() RunID {
	return RunID(s.state.runID.Load())
}

// NewRunID replaces the session's run id with a freshly generated one. A
// long-lived interactive session uses this to make previously-hidden
// uncacheable results visible again without starting a new session.
func (s *Session) NewRunID() RunID {
	id := s.state.core.Sessions().GenerateRunID()
	s.state.runID.Store(uint32(id))
	return id
}

// SessionValues returns the host-supplied per-session values.
func (s *Session) SessionValues() any {
	s.state.valuesMu.Lock()
	defer s.state.valuesMu.Unlock()
	return s.state.values
}

// SetSessionValues replaces the host-supplied per-session values wholesale.
func (s *Session) SetSessionValues(values any) {
	s.state.valuesMu.Lock()
	defer s.state.valuesMu.Unlock()
	s.state.values = values
}

// RootsExtend merges the given entries into the tracked roots. A later
// entry for an already-tracked root overwrites its marker.
func (s *Session) RootsExtend(entries []RootEntry) {
	s.state.rootsMu.Lock()
	defer s.state.rootsMu.Unlock()
	for _, e := range entries {
		s.state.roots[e.Root] = cloneObserved(e.LastObserved)
	}
}

// RootsZipLastObserved pairs each given root with its tracked last-observed
// marker, defaulting to nil for roots never seen. Used to resume
// incremental polling.
func (s *Session) RootsZipLastObserved(roots []Root) []RootEntry {
	s.state.rootsMu.Lock()
	defer s.state.rootsMu.Unlock()
	out := make([]RootEntry, len(roots))
	for i, r := range roots {
		out[i] = RootEntry{Root: r, LastObserved: cloneObserved(s.state.roots[r])}
	}
	return out
}

// RootsNodes returns the node identity of every currently tracked root. The
// result is a snapshot at call time, not a live view.
func (s *Session) RootsNodes() []graph.NodeID {
	s.state.rootsMu.Lock()
	defer s.state.rootsMu.Unlock()
	nodes := make([]graph.NodeID, 0, len(s.state.roots))
	for r := range s.state.roots {
		nodes = append(nodes, r.Node)
	}
	return nodes
}

// WithMetadataMap runs f with exclusive access to the session's workunit
// metadata map. The map must not escape f.
func (s *Session) WithMetadataMap(f func(m map[workunit.UserMetadataKey]any)) {
	s.state.metadataMu.Lock()
	defer s.state.metadataMu.Unlock()
	f(s.state.metadata)
}

// MaybeDisplayInitialize starts the session's display. Interactive
// initialization failures are logged as warnings and do not fail the run;
// passive mode arms the straggler deadline.
func (s *Session) MaybeDisplayInitialize(ctx context.Context, exec *executor.Executor) {
	s.handle.displayMu.Lock()
	defer s.handle.displayMu.Unlock()
	if err := s.handle.display.initialize(ctx, exec); err != nil {
		log.Warnf(ctx, "failed to initialize display: %v", err)
	}
}

// MaybeDisplayTeardown stops the session's display. Failures are logged and
// otherwise ignored.
func (s *Session) MaybeDisplayTeardown(ctx context.Context) {
	s.handle.displayMu.Lock()
	defer s.handle.displayMu.Unlock()
	if err := s.handle.display.teardown(ctx); err != nil {
		log.Warnf(ctx, "failed to tear down display: %v", err)
	}
}

// MaybeDisplayRender renders the session's display on a best-effort basis.
// If the display is currently busy the call is skipped rather than blocked.
func (s *Session) MaybeDisplayRender(ctx context.Context) {
	if !s.handle.displayMu.TryLock() {
		// The display is busy: skip rendering.
		return
	}
	defer s.handle.displayMu.Unlock()
	s.handle.display.render(ctx, s.state.workunits)
}

// WithConsoleUIDisabled runs f with the interactive display suspended,
// restoring it afterward on every exit path. In passive mode f runs
// unchanged. The display lock is held for the duration of f, so concurrent
// render attempts are skipped.
func (s *Session) WithConsoleUIDisabled(ctx context.Context, f func(ctx context.Context) error) error {
	s.handle.displayMu.Lock()
	defer s.handle.displayMu.Unlock()
	return s.handle.display.withConsoleUIDisabled(ctx, f)
}

func cloneObserved(o *graph.LastObserved) *graph.LastObserved {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}
