// Package core composes the long-lived engine state shared by every
// session: the work graph, the session registry, and the task executor.
// A Core outlives individual sessions and is handed to session.New as the
// session.Engine collaborator.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/quarrybuild/quarry/engine/executor"
	"github.com/quarrybuild/quarry/engine/graph"
	"github.com/quarrybuild/quarry/engine/session"
)

// Core is the engine handle shared across sessions. All fields are
// internally synchronized; Core itself adds no locking.
type Core struct {
	graph    graph.Graph
	sessions *session.Registry
	exec     *executor.Executor

	localParallelism int
	buildRoot        string
}

// Options configures a Core.
type Options struct {
	// Graph is the work graph handle. Required.
	Graph graph.Graph
	// LocalParallelism is the engine's concurrency width. Values below
	// one are clamped to one.
	LocalParallelism int
	// BuildRoot is the root directory of the build being served.
	BuildRoot string
}

// New constructs a Core: it creates the executor and the session registry
// (installing the registry's interrupt listener). The passed context bounds
// the registry's background task.
func New(ctx context.Context, opts Options) (*Core, error) {
	if opts.Graph == nil {
		return nil, fmt.Errorf("core requires a work graph")
	}
	if opts.LocalParallelism < 1 {
		opts.LocalParallelism = 1
	}
	exec := executor.New(opts.LocalParallelism)
	sessions, err := session.NewRegistry(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("failed to create session registry: %w", err)
	}
	return &Core{
		graph:            opts.Graph,
		sessions:         sessions,
		exec:             exec,
		localParallelism: opts.LocalParallelism,
		buildRoot:        opts.BuildRoot,
	}, nil
}

// Sessions returns the process-wide session registry.
func (c *Core) Sessions() *session.Registry {
	return c.sessions
}

// GraphSize returns the current size of the work graph.
func (c *Core) GraphSize() int {
	return c.graph.Len()
}

// Graph returns the work graph handle.
func (c *Core) Graph() graph.Graph {
	return c.graph
}

// Parallelism returns the engine's local concurrency width.
func (c *Core) Parallelism() int {
	return c.localParallelism
}

// Executor returns the shared task executor.
func (c *Core) Executor() *executor.Executor {
	return c.exec
}

// BuildRoot returns the root directory of the build being served.
func (c *Core) BuildRoot() string {
	return c.buildRoot
}

// Shutdown drains the session registry within timeout, then aborts its
// interrupt listener and waits for background tasks to return. The registry
// error, if any, is returned after the listener is stopped.
func (c *Core) Shutdown(ctx context.Context, timeout time.Duration) error {
	err := c.sessions.Shutdown(ctx, timeout)
	c.sessions.Close()
	c.exec.Wait()
	return err
}
