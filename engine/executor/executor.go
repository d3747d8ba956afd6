// Package executor provides the shared task executor that session-scoped
// work runs on: a tracked spawn for long-lived background tasks (signal
// handling, UI render loops) and a slot-bounded submit for parallel work.
package executor

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Executor runs work on behalf of the engine with a fixed parallelism bound
// for submitted work. Background tasks started with Go are tracked but not
// bounded: they are expected to be few and long-lived.
type Executor struct {
	parallelism int
	slots       *semaphore.Weighted
	wg          sync.WaitGroup
}

// New constructs an executor with the given parallelism. Parallelism values
// below one are clamped to one.
func New(parallelism int) *Executor {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Executor{
		parallelism: parallelism,
		slots:       semaphore.NewWeighted(int64(parallelism)),
	}
}

// Parallelism returns the configured concurrency width.
func (e *Executor) Parallelism() int {
	return e.parallelism
}

// Go starts fn as a tracked background task. The task does not consume a
// parallelism slot; callers are responsible for making fn return when the
// passed context is done.
func (e *Executor) Go(ctx context.Context, fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(ctx)
	}()
}

// Submit runs fn once a parallelism slot is available, blocking until then
// or until ctx is done. The slot is released when fn returns.
func (e *Executor) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("executor: fn is required")
	}
	if err := e.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.slots.Release(1)
	return fn(ctx)
}

// Wait blocks until all tracked background tasks have returned. It does not
// itself cancel anything: cancel the contexts passed to Go first.
func (e *Executor) Wait() {
	e.wg.Wait()
}
