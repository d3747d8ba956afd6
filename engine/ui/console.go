// Package ui renders live build progress to an interactive terminal. One
// ConsoleUI instance belongs to one session display; it reads in-flight work
// from the shared workunit store and redraws a fixed block of swimlanes, one
// per parallelism slot.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/quarrybuild/quarry/engine/executor"
	"github.com/quarrybuild/quarry/engine/workunit"
)

// renderInterval is the period of the background redraw loop started by
// Initialize. Render may additionally be called at any time by the session.
const renderInterval = 100 * time.Millisecond

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	laneStyle   = lipgloss.NewStyle().Faint(true)
	idleStyle   = lipgloss.NewStyle().Faint(true).Italic(true)
)

type (
	// ConsoleUI is the interactive progress renderer. All methods are safe
	// for concurrent use; Render never blocks on in-progress terminal
	// writes beyond its own internal mutex.
	ConsoleUI struct {
		store       *workunit.Store
		parallelism int

		mu        sync.Mutex
		out       io.Writer
		explicit  bool // out was injected; skip the TTY check
		running   bool
		suspended bool
		lastLines int
		stop      chan struct{}

		width func() int
	}

	// Option configures a ConsoleUI.
	Option func(*ConsoleUI)
)

// WithOutput redirects rendering to w instead of stderr and disables the
// TTY requirement. Intended for tests.
func WithOutput(w io.Writer) Option {
	return func(ui *ConsoleUI) {
		ui.out = w
		ui.explicit = true
	}
}

// New constructs a renderer over the given workunit store with one swimlane
// per parallelism slot.
func New(store *workunit.Store, parallelism int, opts ...Option) *ConsoleUI {
	if parallelism < 1 {
		parallelism = 1
	}
	ui := &ConsoleUI{
		store:       store,
		parallelism: parallelism,
		out:         os.Stderr,
		width:       terminalWidth,
	}
	for _, opt := range opts {
		opt(ui)
	}
	return ui
}

// Initialize starts rendering: it validates that the output is a terminal
// and spawns a background redraw loop on the executor. Initializing an
// already-initialized renderer is an error.
func (ui *ConsoleUI) Initialize(ctx context.Context, exec *executor.Executor) error {
	ui.mu.Lock()
	if ui.running {
		ui.mu.Unlock()
		return errors.New("console UI is already initialized")
	}
	if !ui.explicit && !term.IsTerminal(int(os.Stderr.Fd())) {
		ui.mu.Unlock()
		return errors.New("console UI requires a terminal: stderr is not a TTY")
	}
	ui.running = true
	ui.stop = make(chan struct{})
	stop := ui.stop
	ui.mu.Unlock()

	exec.Go(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(renderInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				ui.Render()
			}
		}
	})
	return nil
}

// Render redraws the progress block. It is synchronous, never suspends, and
// is a no-op while the renderer is torn down or suspended.
func (ui *ConsoleUI) Render() {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if !ui.running || ui.suspended {
		return
	}
	ui.clearLocked()

	width := ui.width()
	active := ui.store.StragglingWorkunits(0)
	lines := make([]string, 0, ui.parallelism+1)
	lines = append(lines, headerStyle.Render(fmt.Sprintf("%d/%d running", min(len(active), ui.parallelism), ui.parallelism)))
	for lane := 0; lane < ui.parallelism; lane++ {
		if lane < len(active) {
			w := active[lane]
			lines = append(lines, laneStyle.Render(truncate(fmt.Sprintf("%s %s", workunit.FormatDuration(w.Duration), w.Description), width)))
		} else {
			lines = append(lines, idleStyle.Render("idle"))
		}
	}
	fmt.Fprint(ui.out, strings.Join(lines, "\n")+"\n")
	ui.lastLines = len(lines)
}

// Teardown stops the redraw loop and clears the progress block. Tearing
// down an uninitialized renderer is an error.
func (ui *ConsoleUI) Teardown(ctx context.Context) error {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if !ui.running {
		return errors.New("console UI is not initialized")
	}
	close(ui.stop)
	ui.stop = nil
	ui.running = false
	ui.clearLocked()
	return nil
}

// WithConsoleUIDisabled suspends rendering, clears the progress block, runs
// f, and restores rendering afterward. Restoration is guaranteed on every
// exit path, including a panic in f.
func (ui *ConsoleUI) WithConsoleUIDisabled(ctx context.Context, f func(ctx context.Context) error) error {
	ui.mu.Lock()
	ui.suspended = true
	ui.clearLocked()
	ui.mu.Unlock()
	defer func() {
		ui.mu.Lock()
		ui.suspended = false
		ui.mu.Unlock()
	}()
	return f(ctx)
}

// clearLocked erases the previously rendered block. Callers must hold ui.mu.
func (ui *ConsoleUI) clearLocked() {
	if ui.lastLines == 0 {
		return
	}
	fmt.Fprintf(ui.out, "\x1b[%dA\x1b[J", ui.lastLines)
	ui.lastLines = 0
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

func truncate(s string, width int) string {
	if width <= 3 || len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}
