package tagscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeIDs(g *RefGraph) []TagID {
	out := make([]TagID, len(g.Nodes))
	for i, n := range g.Nodes {
		out[i] = n.ID
	}
	return out
}

// =============================================================================
// TransitiveReferences
// =============================================================================

func TestTransitiveReferences(t *testing.T) {
	t.Parallel()
	q := scannedQuery(t)

	g, err := q.TransitiveReferences(b1, 10)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, b1, g.Root)
	// b1 -> b0 -> {a1, b1(cycle)} ; a1 -> a0
	assert.Equal(t, []TagID{b1, b0, a1, a0}, nodeIDs(g))
	assert.Equal(t, 3, g.Depth)
	assert.Equal(t, []Edge{
		{From: a1, To: a0, Offset: 8},
		{From: b0, To: a1, Offset: 0},
		{From: b0, To: b1, Offset: 8},
		{From: b1, To: b0, Offset: 0},
	}, g.Edges)
}

func TestTransitiveReferences_DepthLimit(t *testing.T) {
	t.Parallel()
	q := scannedQuery(t)

	g, err := q.TransitiveReferences(b1, 1)
	require.NoError(t, err)
	assert.Equal(t, []TagID{b1, b0}, nodeIDs(g))
	assert.Equal(t, 1, g.Depth)
	assert.Equal(t, []Edge{{From: b1, To: b0, Offset: 0}}, g.Edges)

	g, err = q.TransitiveReferences(b1, 0)
	require.NoError(t, err)
	assert.Equal(t, []TagID{b1}, nodeIDs(g))
	assert.Empty(t, g.Edges)
}

func TestTransitiveReferences_Errors(t *testing.T) {
	t.Parallel()
	q := scannedQuery(t)

	_, err := q.TransitiveReferences(b1, -1)
	require.Error(t, err)

	g, err := q.TransitiveReferences(NewTagID(9, 1), 5)
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = q.TransitiveReferences(b1, 10_000)
	require.NoError(t, err)
	assert.LessOrEqual(t, g.Depth, 100)
}

// =============================================================================
// TransitiveReferrers
// =============================================================================

func TestTransitiveReferrers(t *testing.T) {
	t.Parallel()
	q := scannedQuery(t)

	g, err := q.TransitiveReferrers(a0, 10)
	require.NoError(t, err)
	// a0 <- a1 <- b0 <- b1 <- b0 (visited)
	assert.Equal(t, []TagID{a0, a1, b0, b1}, nodeIDs(g))
	for _, n := range g.Nodes {
		assert.False(t, n.Missing)
	}
	assert.Equal(t, 3, g.Depth)
	assert.Len(t, g.Edges, 4)
}

func TestTransitive_CycleTerminates(t *testing.T) {
	t.Parallel()
	q := scannedQuery(t)
	g, err := q.TransitiveReferrers(b0, 100)
	require.NoError(t, err)
	assert.Equal(t, []TagID{b0, b1}, nodeIDs(g))
	assert.Equal(t, []Edge{
		{From: b0, To: b1, Offset: 8},
		{From: b1, To: b0, Offset: 0},
	}, g.Edges)
}
