// Package workunit tracks in-flight units of work for metrics and progress
// reporting. A single Store is shared by every session of an engine; sharing
// is by pointer and all methods are safe for concurrent use.
package workunit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quarrybuild/quarry/engine/telemetry"
)

type (
	// ID identifies one started workunit within a Store.
	ID uint64

	// UserMetadataKey keys host-supplied metadata attached to workunits.
	// The engine treats the associated values as opaque.
	UserMetadataKey string

	// Straggler describes a workunit that has been running longer than a
	// straggler threshold.
	Straggler struct {
		Duration    time.Duration
		Description string
	}

	// Store records started workunits and answers straggler queries. Quiet
	// stores still track workunits (straggler reporting depends on it) but
	// do not log start and completion.
	Store struct {
		quiet   bool
		logger  telemetry.Logger
		metrics telemetry.Metrics

		nextID atomic.Uint64
		mu     sync.Mutex
		active map[ID]record

		now func() time.Time
	}

	// Option configures a Store.
	Option func(*Store)

	record struct {
		description string
		started     time.Time
	}
)

// WithLogger configures the store logger. When nil, the store logs nothing.
func WithLogger(logger telemetry.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics configures the store metrics recorder. When nil, no metrics
// are recorded.
func WithMetrics(metrics telemetry.Metrics) Option {
	return func(s *Store) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// New constructs an empty store. Quiet suppresses per-workunit logging but
// not tracking.
func New(quiet bool, opts ...Option) *Store {
	s := &Store{
		quiet:   quiet,
		logger:  telemetry.NewNoopLogger(),
		metrics: telemetry.NewNoopMetrics(),
		active:  make(map[ID]record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start records a new in-flight workunit and returns its handle.
func (s *Store) Start(ctx context.Context, description string) ID {
	id := ID(s.nextID.Add(1))
	s.mu.Lock()
	s.active[id] = record{description: description, started: s.now()}
	s.mu.Unlock()
	s.metrics.IncCounter("engine.workunits.started", 1)
	if !s.quiet {
		s.logger.Debug(ctx, "workunit started", "id", uint64(id), "description", description)
	}
	return id
}

// Complete removes a workunit from the in-flight set. Completing an unknown
// or already-completed ID is a no-op.
func (s *Store) Complete(ctx context.Context, id ID) {
	s.mu.Lock()
	rec, ok := s.active[id]
	if ok {
		delete(s.active, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	elapsed := s.now().Sub(rec.started)
	s.metrics.IncCounter("engine.workunits.completed", 1)
	s.metrics.RecordTimer("engine.workunit.duration", elapsed)
	if !s.quiet {
		s.logger.Debug(ctx, "workunit completed", "id", uint64(id), "description", rec.description, "duration", elapsed.String())
	}
}

// ActiveCount returns the number of in-flight workunits.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// StragglingWorkunits returns every in-flight workunit that has been running
// for at least threshold, longest-running first.
func (s *Store) StragglingWorkunits(threshold time.Duration) []Straggler {
	now := s.now()
	s.mu.Lock()
	var out []Straggler
	for _, rec := range s.active {
		if d := now.Sub(rec.started); d >= threshold {
			out = append(out, Straggler{Duration: d, Description: rec.description})
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Duration != out[j].Duration {
			return out[i].Duration > out[j].Duration
		}
		return out[i].Description < out[j].Description
	})
	return out
}

// FormatDuration renders a workunit duration for straggler reports, in
// seconds with two decimals.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
