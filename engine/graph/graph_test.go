package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreLenAndGeneration(t *testing.T) {
	s := NewStore()
	require.Equal(t, 0, s.Len())
	before := s.Observe()

	s.Add("root/a")
	s.Add("root/b")
	require.Equal(t, 2, s.Len())
	require.NotEqual(t, before, s.Observe())

	// Re-adding an existing node changes neither size nor generation.
	after := s.Observe()
	s.Add("root/a")
	require.Equal(t, 2, s.Len())
	require.Equal(t, after, s.Observe())
}

func TestSelectIsComparable(t *testing.T) {
	m := map[Select]int{}
	m[Select{Node: "n", Product: "p"}] = 1
	m[Select{Node: "n", Product: "q"}] = 2
	require.Len(t, m, 2)
	require.Equal(t, 1, m[Select{Node: "n", Product: "p"}])
}
