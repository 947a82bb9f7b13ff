package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/ports"
)

func TestReconcileDefinition_ShrunkInputs(t *testing.T) {
	ctx := context.Background()
	defs, ids := setupCatalog(t)
	g := New("p")

	a := mustAdd(t, g, defs, ids["A"])
	d := mustAdd(t, g, defs, ids["D"])
	m1 := mustAdd(t, g, defs, ids["Merge"])
	m2 := mustAdd(t, g, defs, ids["Merge"])

	keep := []Connection{
		{a, "out1", m1, "a"},
		{d, "out1", m2, "a"},
	}
	drop := []Connection{
		{d, "out1", m1, "b"},
		{a, "out1", m2, "b"},
	}
	for _, c := range append(append([]Connection{}, keep...), drop...) {
		require.NoError(t, g.Connect(c))
	}

	updated, err := defs.Update(ctx, ids["Merge"], catalog.Draft{Name: "Merge", Inputs: []string{"a"}, Outputs: []string{"out"}})
	require.NoError(t, err)

	results := g.ReconcileDefinition(updated)
	require.Len(t, results, 2)
	assert.Equal(t, 2, RemovedConnections(results))
	for _, r := range results {
		assert.Equal(t, []ports.Handle{{Direction: ports.Input, Port: "b"}}, r.Removed)
		assert.Empty(t, r.Added)
	}

	for _, c := range keep {
		assert.True(t, g.HasEdge(c), "connection on port a removed: %s", c)
	}
	for _, c := range drop {
		assert.False(t, g.HasEdge(c), "connection on port b survived: %s", c)
	}

	n, _ := g.Node(m1)
	assert.Equal(t, []string{"a"}, n.Inputs)
	assert.True(t, Validate(g).OK)
}

func TestReconcile_ReorderIsAChange(t *testing.T) {
	ctx := context.Background()
	defs, ids := setupCatalog(t)
	g := New("p")

	a := mustAdd(t, g, defs, ids["A"])
	m := mustAdd(t, g, defs, ids["Merge"])
	require.NoError(t, g.Connect(Connection{a, "out1", m, "b"}))

	updated, err := defs.Update(ctx, ids["Merge"], catalog.Draft{Name: "Merge", Inputs: []string{"b", "a"}, Outputs: []string{"out"}})
	require.NoError(t, err)

	res, err := g.Reconcile(m, updated)
	require.NoError(t, err)
	assert.True(t, res.Reordered)
	assert.True(t, res.Changed())
	assert.Empty(t, res.Added)
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.RemovedConnections)

	n, _ := g.Node(m)
	assert.Equal(t, []string{"b", "a"}, n.Inputs)
	assert.True(t, g.HasEdge(Connection{a, "out1", m, "b"}))

	res, err = g.Reconcile(m, updated)
	require.NoError(t, err)
	assert.False(t, res.Changed(), "second pass is a no-op")
}

func TestReconcile_AddedPortsHaveNoConnections(t *testing.T) {
	ctx := context.Background()
	defs, ids := setupCatalog(t)
	g := New("p")
	b := mustAdd(t, g, defs, ids["B"])

	updated, err := defs.Update(ctx, ids["B"], catalog.Draft{Name: "B2", Inputs: []string{"in1", "in2"}, Outputs: []string{"out"}})
	require.NoError(t, err)

	res, err := g.Reconcile(b, updated)
	require.NoError(t, err)
	assert.True(t, res.Renamed)
	assert.Equal(t, []ports.Handle{
		{Direction: ports.Input, Port: "in2"},
		{Direction: ports.Output, Port: "out"},
	}, res.Added)
	assert.Empty(t, res.RemovedConnections)

	n, _ := g.Node(b)
	assert.Equal(t, "B2", n.Name)
	assert.Equal(t, []string{"out"}, n.Outputs)
}

func TestReconcile_Errors(t *testing.T) {
	defs, ids := setupCatalog(t)
	g := New("p")
	a := mustAdd(t, g, defs, ids["A"])

	other, err := defs.Get(context.Background(), ids["B"])
	require.NoError(t, err)

	_, err = g.Reconcile(a, other)
	assert.True(t, errors.Is(err, ErrDefinitionMismatch), "got %v", err)

	_, err = g.Reconcile("ghost", other)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestReconcileAll_MissingDefinition(t *testing.T) {
	ctx := context.Background()
	defs, ids := setupCatalog(t)
	g := New("p")
	a := mustAdd(t, g, defs, ids["A"])
	b := mustAdd(t, g, defs, ids["B"])
	require.NoError(t, g.Connect(Connection{a, "out1", b, "in1"}))

	require.NoError(t, defs.Delete(ctx, ids["A"]))
	_, err := defs.Update(ctx, ids["B"], catalog.Draft{Name: "B", Inputs: []string{"in1"}})
	require.NoError(t, err)

	results, err := g.ReconcileAll(ctx, defs)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, a, results[0].InstanceID)
	assert.True(t, results[0].Missing)

	assert.Len(t, g.Edges(), 1, "missing definition must not cascade")
	_, ok := g.Node(a)
	assert.True(t, ok)
}
