package modgraph

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgridgo/internal/manifest"
)

func mod(name string, deps ...string) *manifest.Module {
	return &manifest.Module{
		Name:        name,
		BuildSystem: "simple",
		DependsOn:   deps,
	}
}

// assertOrderRespects verifies dep appears before name in the order.
func assertOrderRespects(t *testing.T, order []string, dep, name string) {
	t.Helper()
	di := slices.Index(order, dep)
	ni := slices.Index(order, name)
	require.GreaterOrEqual(t, di, 0, "dependency %s missing from order", dep)
	require.GreaterOrEqual(t, ni, 0, "module %s missing from order", name)
	assert.Less(t, di, ni, "expected %s before %s in %v", dep, name, order)
}

func TestBuildExplicitEdges(t *testing.T) {
	g, err := Build(context.Background(), []*manifest.Module{
		mod("libsass"),
		mod("sassc", "libsass"),
		mod("toolkit"),
		mod("app", "sassc", "toolkit"),
	})
	require.NoError(t, err)
	require.Equal(t, 4, g.Len())

	order := g.Order()
	assertOrderRespects(t, order, "libsass", "sassc")
	assertOrderRespects(t, order, "sassc", "app")
	assertOrderRespects(t, order, "toolkit", "app")

	assert.ElementsMatch(t, []string{"sassc", "toolkit"}, g.Dependencies("app"))
	assert.ElementsMatch(t, []string{"sassc"}, g.Dependents("libsass"))
}

func TestBuildImplicitSequentialFallback(t *testing.T) {
	// No module declares depends_on, so list order is a chain.
	g, err := Build(context.Background(), []*manifest.Module{
		mod("a"), mod("b"), mod("c"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, g.Order())
	assert.Equal(t, []string{"a"}, g.Dependencies("b"))
	assert.Equal(t, []string{"b"}, g.Dependencies("c"))
}

func TestBuildExplicitEdgesDisableFallback(t *testing.T) {
	// One explicit edge means list order stops implying anything: b has
	// no dependencies even though it is declared after a.
	g, err := Build(context.Background(), []*manifest.Module{
		mod("a"),
		mod("b"),
		mod("c", "a"),
	})
	require.NoError(t, err)
	assert.Empty(t, g.Dependencies("b"))
}

func TestBuildDuplicateModuleName(t *testing.T) {
	_, err := Build(context.Background(), []*manifest.Module{
		mod("a"), mod("a"),
	})
	var dup *DuplicateModuleNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.Name)
}

func TestBuildDanglingDependency(t *testing.T) {
	_, err := Build(context.Background(), []*manifest.Module{
		mod("a"),
		mod("b", "nope"),
	})
	var dangling *DanglingDependencyError
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, "b", dangling.Module)
	assert.Equal(t, "nope", dangling.Dependency)
}

func TestBuildCycleDetected(t *testing.T) {
	_, err := Build(context.Background(), []*manifest.Module{
		mod("a", "c"),
		mod("b", "a"),
		mod("c", "b"),
	})
	var cyclic *CyclicDependencyError
	require.ErrorAs(t, err, &cyclic)

	// The cycle path is closed: first and last entries match, and every
	// participant appears.
	require.GreaterOrEqual(t, len(cyclic.Cycle), 4)
	assert.Equal(t, cyclic.Cycle[0], cyclic.Cycle[len(cyclic.Cycle)-1])
	for _, name := range []string{"a", "b", "c"} {
		assert.Contains(t, cyclic.Cycle, name)
	}
}

func TestBuildSelfDependency(t *testing.T) {
	_, err := Build(context.Background(), []*manifest.Module{
		mod("a", "a"),
	})
	var cyclic *CyclicDependencyError
	require.ErrorAs(t, err, &cyclic)
	assert.Equal(t, []string{"a", "a"}, cyclic.Cycle)
}

func TestBuildTwoNodeCycle(t *testing.T) {
	_, err := Build(context.Background(), []*manifest.Module{
		mod("a", "b"),
		mod("b", "a"),
	})
	var cyclic *CyclicDependencyError
	require.True(t, errors.As(err, &cyclic))
}

func TestBuildDeterministicOrder(t *testing.T) {
	mods := []*manifest.Module{
		mod("base"),
		mod("mid1", "base"),
		mod("mid2", "base"),
		mod("top", "mid1", "mid2"),
	}
	first, err := Build(context.Background(), mods)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Build(context.Background(), mods)
		require.NoError(t, err)
		assert.Equal(t, first.Order(), again.Order())
	}
}
