package latch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTriggerIdempotent(t *testing.T) {
	l := New()
	require.False(t, l.IsTriggered())
	l.Trigger()
	require.True(t, l.IsTriggered())
	l.Trigger()
	require.True(t, l.IsTriggered(), "second trigger must be equivalent to one")
}

func TestWaitersBeforeAndAfterTrigger(t *testing.T) {
	l := New()

	const before = 8
	var wg sync.WaitGroup
	for i := 0; i < before; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-l.Done()
		}()
	}

	l.Trigger()
	wg.Wait()

	// Waiters registered after the trigger resolve immediately.
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("late waiter did not observe trigger")
	}
}

func TestDoneNotClosedUntilTriggered(t *testing.T) {
	l := New()
	select {
	case <-l.Done():
		t.Fatal("latch reported triggered before Trigger")
	default:
	}
}
