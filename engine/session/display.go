package session

import (
	"context"
	"strings"
	"time"

	"goa.design/clue/log"

	"github.com/quarrybuild/quarry/engine/executor"
	"github.com/quarrybuild/quarry/engine/ui"
	"github.com/quarrybuild/quarry/engine/workunit"
)

// stragglerLoggingInterval is the interval at which stragglers that have
// been running for longer than the threshold are logged in passive mode.
// The threshold might become configurable; this interval does not need to be.
const (
	stragglerLoggingInterval = 30 * time.Second
	stragglerThreshold       = 60 * time.Second
)

// display is the per-session display mode: either an interactive console
// renderer or passive logging with periodic straggler reports. The mode is
// chosen once at session construction and never changes. Callers serialize
// access through the handle's display lock.
type display interface {
	// initialize starts the display. Interactive mode may fail; passive
	// mode arms the straggler deadline and cannot.
	initialize(ctx context.Context, exec *executor.Executor) error
	// render redraws or, in passive mode, emits a straggler report when
	// the deadline has passed. Never blocks.
	render(ctx context.Context, store *workunit.Store)
	// teardown stops the display. Passive mode clears the straggler
	// deadline so no further reports are emitted until re-initialized.
	teardown(ctx context.Context) error
	// withConsoleUIDisabled runs f with rendering suspended, restoring it
	// on every exit path. Passive mode runs f unchanged.
	withConsoleUIDisabled(ctx context.Context, f func(ctx context.Context) error) error
}

// newDisplay selects the display mode for a session. The straggler deadline
// starts unarmed: no reports are emitted before initialize.
func newDisplay(store *workunit.Store, parallelism int, shouldRenderUI bool) display {
	if shouldRenderUI {
		return &interactiveDisplay{ui: ui.New(store, parallelism)}
	}
	return &loggingDisplay{
		threshold: stragglerThreshold,
		now:       time.Now,
	}
}

// interactiveDisplay wraps the console renderer.
type interactiveDisplay struct {
	ui *ui.ConsoleUI
}

func (d *interactiveDisplay) initialize(ctx context.Context, exec *executor.Executor) error {
	return d.ui.Initialize(ctx, exec)
}

func (d *interactiveDisplay) render(_ context.Context, _ *workunit.Store) {
	d.ui.Render()
}

func (d *interactiveDisplay) teardown(ctx context.Context) error {
	return d.ui.Teardown(ctx)
}

func (d *interactiveDisplay) withConsoleUIDisabled(ctx context.Context, f func(ctx context.Context) error) error {
	return d.ui.WithConsoleUIDisabled(ctx, f)
}

// loggingDisplay reports stragglers at a fixed interval. The deadline is
// zero while unarmed; each report re-arms it exactly one interval forward
// regardless of how much time has passed.
type loggingDisplay struct {
	threshold time.Duration
	deadline  time.Time
	now       func() time.Time
}

func (d *loggingDisplay) initialize(context.Context, *executor.Executor) error {
	d.deadline = d.now().Add(stragglerLoggingInterval)
	return nil
}

func (d *loggingDisplay) render(ctx context.Context, store *workunit.Store) {
	if d.deadline.IsZero() || d.now().Before(d.deadline) {
		return
	}
	d.deadline = d.now().Add(stragglerLoggingInterval)
	if report := formatStragglers(store.StragglingWorkunits(d.threshold)); report != "" {
		log.Infof(ctx, "Long running tasks:\n  %s", report)
	}
}

// formatStragglers renders one "<duration>\t<description>" line per
// straggler, newline-joined with the report indentation. Empty when there
// are no stragglers.
func formatStragglers(stragglers []workunit.Straggler) string {
	if len(stragglers) == 0 {
		return ""
	}
	lines := make([]string, len(stragglers))
	for i, s := range stragglers {
		lines[i] = workunit.FormatDuration(s.Duration) + "\t" + s.Description
	}
	return strings.Join(lines, "\n  ")
}

func (d *loggingDisplay) teardown(context.Context) error {
	d.deadline = time.Time{}
	return nil
}

func (d *loggingDisplay) withConsoleUIDisabled(ctx context.Context, f func(ctx context.Context) error) error {
	return f(ctx)
}
