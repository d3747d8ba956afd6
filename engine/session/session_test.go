package session

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quarrybuild/quarry/engine/executor"
	"github.com/quarrybuild/quarry/engine/graph"
	"github.com/quarrybuild/quarry/engine/latch"
	"github.com/quarrybuild/quarry/engine/workunit"
)

// stubEngine satisfies Engine for tests without pulling in the full core.
type stubEngine struct {
	reg         *Registry
	graphSize   int
	parallelism int
}

func (e *stubEngine) Sessions() *Registry { return e.reg }
func (e *stubEngine) GraphSize() int      { return e.graphSize }
func (e *stubEngine) Parallelism() int    { return e.parallelism }

func newTestEngine(t *testing.T) *stubEngine {
	t.Helper()
	exec := executor.New(2)
	ctx, cancel := context.WithCancel(context.Background())
	reg, err := NewRegistry(ctx, exec)
	require.NoError(t, err)
	t.Cleanup(func() {
		reg.Close()
		cancel()
		exec.Wait()
	})
	return &stubEngine{reg: reg, graphSize: 3, parallelism: 2}
}

func TestNewSessionCapturesIdentity(t *testing.T) {
	eng := newTestEngine(t)
	sess, err := New(eng, false, "build-1", map[string]string{"k": "v"}, nil)
	require.NoError(t, err)
	defer sess.Close()

	require.Equal(t, "build-1", sess.BuildID())
	require.Equal(t, 3, sess.PrecedingGraphSize())
	require.False(t, sess.IsCancelled())
	require.NotNil(t, sess.WorkunitStore())
	require.Equal(t, map[string]string{"k": "v"}, sess.SessionValues())
}

func TestNewSessionGeneratesBuildID(t *testing.T) {
	eng := newTestEngine(t)
	sess, err := New(eng, false, "", nil, nil)
	require.NoError(t, err)
	defer sess.Close()
	require.NotEmpty(t, sess.BuildID())
}

func TestCancelIsIdempotentAndObservable(t *testing.T) {
	eng := newTestEngine(t)
	sess, err := New(eng, false, "build-1", nil, nil)
	require.NoError(t, err)

	waited := make(chan struct{})
	go func() {
		<-sess.Cancelled()
		close(waited)
	}()

	sess.Cancel()
	sess.Cancel()
	require.True(t, sess.IsCancelled())
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("waiter did not observe cancellation")
	}

	// Waiters registered after the trigger resolve immediately.
	select {
	case <-sess.Cancelled():
	default:
		t.Fatal("late waiter did not observe cancellation")
	}
}

func TestExternalLatchIsShared(t *testing.T) {
	eng := newTestEngine(t)
	l := latch.New()
	sess, err := New(eng, false, "build-1", nil, l)
	require.NoError(t, err)
	defer sess.Close()

	l.Trigger()
	require.True(t, sess.IsCancelled())
}

func TestCloseTriggersLatchObservedViaWeakUpgrade(t *testing.T) {
	eng := newTestEngine(t)
	sess, err := New(eng, false, "build-1", nil, nil)
	require.NoError(t, err)

	// Upgrade the registry's weak reference before dropping the session.
	eng.reg.mu.Lock()
	require.Len(t, eng.reg.sessions, 1)
	h := eng.reg.sessions[0].Value()
	eng.reg.mu.Unlock()
	require.NotNil(t, h)

	sess.Close()
	require.True(t, h.cancelled.IsTriggered(), "dropping the last owner must cancel")
}

func TestHandleAutoCancelsWhenUnreachable(t *testing.T) {
	l := latch.New()
	h := newHandle("build-1", l, false, &loggingDisplay{threshold: stragglerThreshold, now: time.Now})
	require.False(t, l.IsTriggered())
	h = nil
	_ = h
	require.Eventually(t, func() bool {
		runtime.GC()
		return l.IsTriggered()
	}, 5*time.Second, 10*time.Millisecond, "unreachable handle must trigger its latch")
}

func TestRootsLastWriteWins(t *testing.T) {
	eng := newTestEngine(t)
	sess, err := New(eng, false, "build-1", nil, nil)
	require.NoError(t, err)
	defer sess.Close()

	rootA := Root{Node: "node/a", Product: "binary"}
	sess.RootsExtend([]RootEntry{{Root: rootA}})

	got := sess.RootsZipLastObserved([]Root{rootA})
	require.Equal(t, []RootEntry{{Root: rootA}}, got)

	marker := &graph.LastObserved{Generation: 7}
	sess.RootsExtend([]RootEntry{{Root: rootA, LastObserved: marker}})
	got = sess.RootsZipLastObserved([]Root{rootA})
	require.Len(t, got, 1)
	require.Equal(t, rootA, got[0].Root)
	require.NotNil(t, got[0].LastObserved)
	require.Equal(t, uint64(7), got[0].LastObserved.Generation)

	// Unknown roots default to no marker.
	rootB := Root{Node: "node/b", Product: "binary"}
	got = sess.RootsZipLastObserved([]Root{rootB})
	require.Equal(t, []RootEntry{{Root: rootB}}, got)
}

func TestRootsNodes(t *testing.T) {
	eng := newTestEngine(t)
	sess, err := New(eng, false, "build-1", nil, nil)
	require.NoError(t, err)
	defer sess.Close()

	sess.RootsExtend([]RootEntry{
		{Root: Root{Node: "node/a", Product: "binary"}},
		{Root: Root{Node: "node/b", Product: "test"}},
	})
	require.ElementsMatch(t, []graph.NodeID{"node/a", "node/b"}, sess.RootsNodes())
}

func TestRunIDReplacement(t *testing.T) {
	eng := newTestEngine(t)
	sess, err := New(eng, false, "build-1", nil, nil)
	require.NoError(t, err)
	defer sess.Close()

	first := sess.RunID()
	second := sess.NewRunID()
	require.NotEqual(t, first, second)
	require.Equal(t, second, sess.RunID())
}

func TestSessionValuesReplacedWholesale(t *testing.T) {
	eng := newTestEngine(t)
	sess, err := New(eng, false, "build-1", map[string]string{"a": "1"}, nil)
	require.NoError(t, err)
	defer sess.Close()

	sess.SetSessionValues(map[string]string{"b": "2"})
	require.Equal(t, map[string]string{"b": "2"}, sess.SessionValues())
}

func TestWithMetadataMap(t *testing.T) {
	eng := newTestEngine(t)
	sess, err := New(eng, false, "build-1", nil, nil)
	require.NoError(t, err)
	defer sess.Close()

	sess.WithMetadataMap(func(m map[workunit.UserMetadataKey]any) {
		m["artifacts"] = 3
	})
	var got any
	sess.WithMetadataMap(func(m map[workunit.UserMetadataKey]any) {
		got = m["artifacts"]
	})
	require.Equal(t, 3, got)
}

func TestIsolatedShallowCloneSharesStateIndependentCancel(t *testing.T) {
	eng := newTestEngine(t)
	origin, err := New(eng, false, "origin", nil, nil)
	require.NoError(t, err)
	defer origin.Close()

	clone, err := origin.IsolatedShallowClone("background")
	require.NoError(t, err)
	defer clone.Close()

	require.True(t, clone.handle.isolated)
	require.Same(t, origin.state, clone.state)
	require.Same(t, origin.WorkunitStore(), clone.WorkunitStore())

	// Root mutations through one are visible through the other.
	rootA := Root{Node: "node/a", Product: "binary"}
	clone.RootsExtend([]RootEntry{{Root: rootA, LastObserved: &graph.LastObserved{Generation: 1}}})
	got := origin.RootsZipLastObserved([]Root{rootA})
	require.NotNil(t, got[0].LastObserved)

	// Cancellation is independent in both directions.
	clone.Cancel()
	require.True(t, clone.IsCancelled())
	require.False(t, origin.IsCancelled())

	origin2, err := origin.IsolatedShallowClone("background-2")
	require.NoError(t, err)
	defer origin2.Close()
	origin.Cancel()
	require.True(t, origin.IsCancelled())
	require.False(t, origin2.IsCancelled())
}

func TestNewFailsDuringShutdown(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.reg.Shutdown(context.Background(), time.Second))

	_, err := New(eng, false, "late", nil, nil)
	require.ErrorIs(t, err, ErrShuttingDown)
}

func TestIsolatedCloneFailsDuringShutdown(t *testing.T) {
	eng := newTestEngine(t)
	origin, err := New(eng, false, "origin", nil, nil)
	require.NoError(t, err)

	origin.Cancel()
	require.NoError(t, eng.reg.Shutdown(context.Background(), time.Second))

	_, err = origin.IsolatedShallowClone("late")
	require.ErrorIs(t, err, ErrShuttingDown)
}
