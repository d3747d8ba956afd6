// Command quarry runs a demonstration build session against an in-memory
// work graph: it creates an engine core, opens a session, executes a batch
// of simulated work at the configured parallelism, and renders progress
// either interactively or through periodic straggler logging. Ctrl+C cancels
// the session cooperatively.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"goa.design/clue/log"

	"github.com/quarrybuild/quarry/engine/core"
	"github.com/quarrybuild/quarry/engine/graph"
	"github.com/quarrybuild/quarry/engine/session"
)

func main() {
	var (
		parallelismF = flag.Int("parallelism", 4, "Local parallelism for executed work")
		uiF          = flag.Bool("ui", false, "Render an interactive progress UI (requires a TTY)")
		unitsF       = flag.Int("units", 16, "Number of simulated work units to run")
		timeoutF     = flag.Duration("shutdown-timeout", 5*time.Second, "How long to wait for sessions on shutdown")
		dbgF         = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	if err := run(ctx, *parallelismF, *uiF, *unitsF, *timeoutF); err != nil {
		log.Errorf(ctx, err, "build failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, parallelism int, renderUI bool, units int, shutdownTimeout time.Duration) error {
	g := graph.NewStore()
	for i := 0; i < units; i++ {
		g.Add(graph.NodeID(fmt.Sprintf("unit/%d", i)))
	}

	c, err := core.New(ctx, core.Options{Graph: g, LocalParallelism: parallelism})
	if err != nil {
		return err
	}

	sess, err := session.New(c, renderUI, "", nil, nil)
	if err != nil {
		return err
	}
	log.Printf(ctx, "session %q started against %d graph nodes", sess.BuildID(), sess.PrecedingGraphSize())

	sess.MaybeDisplayInitialize(ctx, c.Executor())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < units; i++ {
			if sess.IsCancelled() {
				return
			}
			i := i
			_ = c.Executor().Submit(ctx, func(ctx context.Context) error {
				id := sess.WorkunitStore().Start(ctx, fmt.Sprintf("simulate unit/%d", i))
				defer sess.WorkunitStore().Complete(ctx, id)
				select {
				case <-time.After(time.Duration(50+i*25) * time.Millisecond):
				case <-sess.Cancelled():
				}
				return nil
			})
		}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-done:
			break loop
		case <-sess.Cancelled():
			log.Printf(ctx, "session %q cancelled", sess.BuildID())
			break loop
		case <-ticker.C:
			sess.MaybeDisplayRender(ctx)
		}
	}

	sess.MaybeDisplayTeardown(ctx)
	sess.Close()
	return c.Shutdown(ctx, shutdownTimeout)
}
