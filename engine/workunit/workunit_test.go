package workunit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartCompleteTracksActive(t *testing.T) {
	s := New(true)
	ctx := context.Background()

	id := s.Start(ctx, "compile //src:lib")
	require.Equal(t, 1, s.ActiveCount())

	s.Complete(ctx, id)
	require.Equal(t, 0, s.ActiveCount())

	// Completing again is a no-op.
	s.Complete(ctx, id)
	require.Equal(t, 0, s.ActiveCount())
}

func TestStragglingWorkunits(t *testing.T) {
	s := New(true)
	ctx := context.Background()

	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	oldID := s.Start(ctx, "old")
	s.now = func() time.Time { return base.Add(30 * time.Second) }
	s.Start(ctx, "young")

	s.now = func() time.Time { return base.Add(90 * time.Second) }
	stragglers := s.StragglingWorkunits(time.Minute)
	require.Len(t, stragglers, 1)
	require.Equal(t, "old", stragglers[0].Description)
	require.Equal(t, 90*time.Second, stragglers[0].Duration)

	// Both qualify at a lower threshold, longest-running first.
	stragglers = s.StragglingWorkunits(10 * time.Second)
	require.Len(t, stragglers, 2)
	require.Equal(t, []string{"old", "young"}, []string{stragglers[0].Description, stragglers[1].Description})

	s.Complete(ctx, oldID)
	require.Empty(t, s.StragglingWorkunits(time.Minute))
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "3.14s", FormatDuration(3140*time.Millisecond))
	require.Equal(t, "90.00s", FormatDuration(90*time.Second))
}
