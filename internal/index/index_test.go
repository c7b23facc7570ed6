package index

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/tagscan/internal/model"
)

var (
	a0 = model.NewTagID(1, 0)
	a1 = model.NewTagID(1, 1)
	a2 = model.NewTagID(1, 2)
	b0 = model.NewTagID(2, 0)
	b1 = model.NewTagID(2, 1)
)

func tagRef(off uint64, to model.TagID) model.Reference {
	return model.Reference{Offset: off, Kind: model.TargetTag, Value: uint64(to)}
}

func strRef(off uint64, h uint32) model.Reference {
	return model.Reference{Offset: off, Kind: model.TargetString, Value: uint64(h)}
}

func localized(h uint32, text string, src ...model.TagID) model.StringEntry {
	return model.StringEntry{Hash: h, Text: text, Kind: model.StringLocalized, Language: "en", Sources: src}
}

// archiveA: A1 -> A0 at 8, A2 -> B0 at 0 and A2 -> A0 at 4, A2 -> "weapon".
func archiveA() *Contribution {
	return NewContribution(1, []model.Tag{
		{ID: a2, TypeHash: 0x20, References: []model.Reference{tagRef(0, b0), tagRef(4, a0), strRef(12, 0x99)}},
		{ID: a0, TypeHash: 0x10},
		{ID: a1, TypeHash: 0x20, References: []model.Reference{tagRef(8, a0)}},
	}, []model.StringEntry{localized(0x1234, "Hello", a0)})
}

// archiveB: B1 -> A0 at 16, B1 -> B0 at 20 (wide).
func archiveB() *Contribution {
	wide := tagRef(20, b0)
	wide.Wide = true
	return NewContribution(2, []model.Tag{
		{ID: b0, TypeHash: 0x10},
		{ID: b1, TypeHash: 0x30, References: []model.Reference{tagRef(16, a0), wide, strRef(24, 0x99)}},
	}, []model.StringEntry{localized(0x1234, "Hello", b0)})
}

func testIndex() *Index {
	x := New()
	x.Replace(archiveA())
	x.Replace(archiveB())
	return x
}

func fromSet(edges []model.Edge) []model.TagID {
	var out []model.TagID
	for _, e := range edges {
		out = append(out, e.From)
	}
	return out
}

// ============================================================================
// Contribution
// ============================================================================

func TestNewContribution_SortsTags(t *testing.T) {
	t.Parallel()
	c := archiveA()
	require.Len(t, c.Tags(), 3)
	assert.Equal(t, a0, c.Tags()[0].ID)
	assert.Equal(t, a2, c.Tags()[2].ID)
	assert.Equal(t, uint16(1), c.Archive())
	assert.Equal(t, 3, c.EdgeCount())
}

func TestNewContribution_DoesNotAliasInput(t *testing.T) {
	t.Parallel()
	tags := []model.Tag{{ID: a1}, {ID: a0}}
	c := NewContribution(1, tags, nil)
	assert.Equal(t, a1, tags[0].ID, "input order untouched")
	assert.Equal(t, a0, c.Tags()[0].ID)
}

func TestMergeStrings(t *testing.T) {
	t.Parallel()
	got := MergeStrings([]model.StringEntry{
		localized(0x42, "Hello", a1),
		localized(0x42, "Howdy", a0),
		localized(0x42, "Hello", a0),
		localized(0x42, "Hello", a0),
		{Hash: 0x42, Text: "Hello", Kind: model.StringLocalized, Language: "fr", Sources: []model.TagID{a2}},
	})
	require.Len(t, got, 3, "collisions kept, exact duplicates collapsed")
	assert.Equal(t, "Hello", got[0].Text)
	assert.Equal(t, "en", got[0].Language)
	assert.Equal(t, []model.TagID{a0, a1}, got[0].Sources)
	assert.Equal(t, "Howdy", got[1].Text)
	assert.Equal(t, "fr", got[2].Language)
}

// ============================================================================
// Graph queries
// ============================================================================

func TestIndex_ReferencesOf(t *testing.T) {
	t.Parallel()
	x := testIndex()
	edges := x.ReferencesOf(a2)
	require.Len(t, edges, 2)
	assert.Equal(t, model.Edge{From: a2, To: b0, Offset: 0}, edges[0])
	assert.Equal(t, model.Edge{From: a2, To: a0, Offset: 4}, edges[1])

	assert.Empty(t, x.ReferencesOf(a0))
	assert.Empty(t, x.ReferencesOf(model.NewTagID(9, 0)))
}

func TestIndex_ReferencedByUnionsArchives(t *testing.T) {
	t.Parallel()
	x := testIndex()
	assert.Equal(t, []model.TagID{a1, a2, b1}, fromSet(x.ReferencedBy(a0)))

	in := x.ReferencedBy(b0)
	require.Len(t, in, 2)
	assert.Equal(t, a2, in[0].From)
	assert.Equal(t, b1, in[1].From)
	assert.True(t, in[1].Wide)
}

func TestIndex_GraphSymmetry(t *testing.T) {
	t.Parallel()
	x := testIndex()
	for _, c := range x.Snapshot() {
		for _, tag := range c.Tags() {
			for _, e := range x.ReferencesOf(tag.ID) {
				assert.Contains(t, x.ReferencedBy(e.To), e)
			}
		}
	}
}

func TestIndex_RemoveDropsOnlyItsEdges(t *testing.T) {
	t.Parallel()
	x := testIndex()
	require.True(t, x.Remove(1))
	assert.False(t, x.Remove(1))

	assert.Equal(t, []model.TagID{b1}, fromSet(x.ReferencedBy(a0)))
	assert.Equal(t, []model.TagID{b1}, fromSet(x.ReferencedBy(b0)))
	_, ok := x.Tag(a0)
	assert.False(t, ok)
	assert.NotEmpty(t, x.ReferencesOf(b1))
}

func TestIndex_ReplaceIsWholesale(t *testing.T) {
	t.Parallel()
	x := testIndex()
	x.Replace(NewContribution(1, []model.Tag{{ID: a0, TypeHash: 0x10}}, nil))

	assert.Equal(t, []model.TagID{b1}, fromSet(x.ReferencedBy(a0)))
	_, ok := x.Tag(a2)
	assert.False(t, ok)
	assert.Empty(t, x.StringsOf(a0))
}

// ============================================================================
// Strings and types
// ============================================================================

func TestIndex_StringsMergeAcrossArchives(t *testing.T) {
	t.Parallel()
	x := testIndex()
	got := x.Strings(func(s model.StringEntry) bool { return s.Hash == 0x1234 })
	require.Len(t, got, 1)
	assert.Equal(t, []model.TagID{a0, b0}, got[0].Sources)

	assert.Len(t, x.Strings(nil), 1)
	assert.Empty(t, x.Strings(func(model.StringEntry) bool { return false }))
}

func TestIndex_StringsOf(t *testing.T) {
	t.Parallel()
	x := testIndex()
	got := x.StringsOf(a0)
	require.Len(t, got, 1)
	assert.Equal(t, "Hello", got[0].Text)
	assert.Empty(t, x.StringsOf(a1))
}

func TestIndex_StringReferrers(t *testing.T) {
	t.Parallel()
	x := testIndex()
	assert.Equal(t, []model.TagID{a2, b1}, x.StringReferrers(0x99))
	assert.Empty(t, x.StringReferrers(0x1))
}

func TestIndex_TagsByType(t *testing.T) {
	t.Parallel()
	x := testIndex()
	got := x.TagsByType(0x10)
	require.Len(t, got, 2)
	assert.Equal(t, a0, got[0].ID)
	assert.Equal(t, b0, got[1].ID)
	assert.Empty(t, x.TagsByType(0xFFFF))
}

func TestIndex_Stats(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Stats{Archives: 2, Tags: 5, Strings: 2, Edges: 5}, testIndex().Stats())
}

func TestIndex_ConcurrentReadersAndWriters(t *testing.T) {
	t.Parallel()
	x := testIndex()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				if i%2 == 0 {
					x.Replace(archiveA())
					continue
				}
				edges := x.ReferencedBy(a0)
				// Either archive A is fully present or fully absent.
				assert.Contains(t, []int{1, 3}, len(edges))
			}
		}()
	}
	wg.Wait()
}
