package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwkit/ioc/internal/graph"
)

func TestDependencyGraph_AddRemove(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.Add("a")
	g.Add("b")
	g.Add("a") // no-op

	assert.Equal(t, 2, g.Len())
	assert.True(t, g.Has("a"))
	assert.False(t, g.Has("c"))

	require.NoError(t, g.AddEdge("a", "b"))
	assert.Equal(t, []string{"b"}, g.Dependencies("a"))
	assert.Equal(t, []string{"a"}, g.Dependents("b"))

	g.Remove("b")
	assert.False(t, g.Has("b"))
	assert.Empty(t, g.Dependencies("a"))

	g.Clear()
	assert.Equal(t, 0, g.Len())
}

func TestDependencyGraph_AddEdge(t *testing.T) {
	t.Run("rejects unknown nodes", func(t *testing.T) {
		t.Parallel()

		g := graph.New()
		g.Add("a")

		assert.Error(t, g.AddEdge("a", "missing"))
		assert.Error(t, g.AddEdge("missing", "a"))
	})

	t.Run("duplicate edges collapse", func(t *testing.T) {
		t.Parallel()

		g := graph.New()
		g.Add("a")
		g.Add("b")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("a", "b"))

		assert.Equal(t, []string{"b"}, g.Dependencies("a"))
	})
}

func TestDependencyGraph_Sort(t *testing.T) {
	t.Run("dependencies come first", func(t *testing.T) {
		t.Parallel()

		g := graph.New()
		g.Add("app")
		g.Add("db")
		g.Add("cache")
		require.NoError(t, g.AddEdge("app", "db"))
		require.NoError(t, g.AddEdge("app", "cache"))
		require.NoError(t, g.AddEdge("cache", "db"))

		order, err := g.Sort(nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"db", "cache", "app"}, order)
	})

	t.Run("nil less falls back to registration order", func(t *testing.T) {
		t.Parallel()

		g := graph.New()
		g.Add("c")
		g.Add("a")
		g.Add("b")

		order, err := g.Sort(nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a", "b"}, order)
	})

	t.Run("custom less breaks ties", func(t *testing.T) {
		t.Parallel()

		g := graph.New()
		g.Add("c")
		g.Add("a")
		g.Add("b")

		order, err := g.Sort(func(x, y *graph.Node) bool { return x.Name < y.Name })
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, order)
	})

	t.Run("cycle yields the offending path", func(t *testing.T) {
		t.Parallel()

		g := graph.New()
		g.Add("a")
		g.Add("b")
		g.Add("c")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("c", "a"))

		_, err := g.Sort(nil)
		require.Error(t, err)

		var cycleErr *graph.CircularDependencyError
		require.ErrorAs(t, err, &cycleErr)
		assert.Len(t, cycleErr.Path, 3)
	})

	t.Run("acyclic part sorts even when another part cycles", func(t *testing.T) {
		t.Parallel()

		g := graph.New()
		g.Add("ok")
		g.Add("x")
		g.Add("y")
		require.NoError(t, g.AddEdge("x", "y"))
		require.NoError(t, g.AddEdge("y", "x"))

		_, err := g.Sort(nil)
		require.Error(t, err)

		var cycleErr *graph.CircularDependencyError
		require.ErrorAs(t, err, &cycleErr)
		assert.NotContains(t, cycleErr.Path, "ok")
	})
}

func TestDependencyGraph_DetectCycle(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.Add("a")
	g.Add("b")
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.DetectCycle())

	require.NoError(t, g.AddEdge("b", "a"))
	assert.Error(t, g.DetectCycle())
}
