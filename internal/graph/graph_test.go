package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pake/internal/pakeerr"
)

func TestTopologicalOrder_DependencyFirst(t *testing.T) {
	g := New()
	g.AddNode("foo")
	g.AddEdge("bar", "foo") // bar depends on foo

	order, err := g.TopologicalOrder([]string{"bar"}, map[string]int{"foo": 0, "bar": 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "bar"}, order)
}

func TestTopologicalOrder_TieBreakByRegistrationOrder(t *testing.T) {
	g := New()
	g.AddEdge("c", "a")
	g.AddEdge("c", "b")

	order, err := g.TopologicalOrder([]string{"c"}, map[string]int{"a": 0, "b": 1, "c": 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTopologicalOrder_DetectsCycle(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")

	_, err := g.TopologicalOrder([]string{"a"}, map[string]int{"a": 0, "b": 1})
	require.Error(t, err)
	var cyc *pakeerr.CyclicDependency
	require.ErrorAs(t, err, &cyc)
	assert.NotEmpty(t, cyc.Cycle)
}

func TestAddNode_IdempotentPlaceholder(t *testing.T) {
	g := New()
	g.AddEdge("bar", "foo") // "foo" created only as a dependency placeholder
	assert.True(t, g.Has("foo"))
	assert.Empty(t, g.Dependencies("foo"))
}
