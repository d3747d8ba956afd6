// Package graph exposes the narrow surface of the work graph that the
// session layer consumes: the graph's current size, node identity for root
// requests, and last-observed markers used for incremental re-polling.
//
// The graph's internal scheduling is out of scope here; sessions treat it as
// an opaque, internally-synchronized collaborator.
package graph

import (
	"sync"
	"sync/atomic"
)

type (
	// NodeID identifies a node in the work graph.
	NodeID string

	// Select is a root request: a top-level node requested by a client,
	// qualified by the product it should produce. Select values are
	// comparable and are used as map keys by the session root tracker.
	Select struct {
		// Node is the underlying work-graph node identity.
		Node NodeID
		// Product names the requested output of the node.
		Product string
	}

	// LastObserved marks the generation at which a root's value was last
	// observed. Sessions record one marker per polled root and hand it back
	// to the graph to resume incremental polling. Only equality and
	// presence carry meaning outside the graph.
	LastObserved struct {
		Generation uint64
	}

	// Graph is the handle the session layer holds on the work graph.
	Graph interface {
		// Len returns the current number of nodes in the graph.
		Len() int
		// Observe returns a marker for the graph's current generation.
		Observe() LastObserved
	}
)

// Store is an in-memory Graph suitable for tests and single-process runs.
// All methods are safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	nodes      map[NodeID]struct{}
	generation atomic.Uint64
}

// NewStore returns an empty in-memory graph.
func NewStore() *Store {
	return &Store{nodes: make(map[NodeID]struct{})}
}

// Add registers a node, bumping the graph generation if it was not already
// present.
func (s *Store) Add(id NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; ok {
		return
	}
	s.nodes[id] = struct{}{}
	s.generation.Add(1)
}

// Len returns the number of nodes currently in the graph.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Observe returns a marker for the graph's current generation.
func (s *Store) Observe() LastObserved {
	return LastObserved{Generation: s.generation.Load()}
}
