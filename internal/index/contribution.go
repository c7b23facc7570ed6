package index

import (
	"cmp"
	"slices"

	"github.com/jward/tagscan/internal/model"
)

// Contribution is everything one archive adds to the index. It is built
// once, outside any lock, and never modified afterwards. Slices returned by
// its methods are shared and must not be changed by callers.
type Contribution struct {
	archive uint16
	tags    []model.Tag
	strings []model.StringEntry

	byID       map[model.TagID]int
	bySource   map[model.TagID][]int
	byType     map[uint32][]model.TagID
	reverse    map[model.TagID][]model.Edge
	stringRefs map[uint32][]model.TagID
	edgeCount  int
}

// NewContribution sorts the tags by id, merges duplicate strings and
// derives the reverse maps.
func NewContribution(archive uint16, tags []model.Tag, strings []model.StringEntry) *Contribution {
	c := &Contribution{
		archive:    archive,
		tags:       slices.Clone(tags),
		byID:       make(map[model.TagID]int, len(tags)),
		bySource:   make(map[model.TagID][]int),
		byType:     make(map[uint32][]model.TagID),
		reverse:    make(map[model.TagID][]model.Edge),
		stringRefs: make(map[uint32][]model.TagID),
	}
	slices.SortStableFunc(c.tags, func(a, b model.Tag) int { return cmp.Compare(a.ID, b.ID) })

	for i, t := range c.tags {
		c.byID[t.ID] = i
		c.byType[t.TypeHash] = append(c.byType[t.TypeHash], t.ID)
		for _, r := range t.References {
			switch r.Kind {
			case model.TargetTag:
				to := r.Tag()
				c.reverse[to] = append(c.reverse[to], model.Edge{From: t.ID, To: to, Offset: r.Offset, Wide: r.Wide})
				c.edgeCount++
			case model.TargetString:
				h := r.StringHash()
				if refs := c.stringRefs[h]; len(refs) == 0 || refs[len(refs)-1] != t.ID {
					c.stringRefs[h] = append(refs, t.ID)
				}
			}
		}
	}

	c.strings = MergeStrings(strings)
	for i, s := range c.strings {
		for _, src := range s.Sources {
			c.bySource[src] = append(c.bySource[src], i)
		}
	}
	return c
}

// MergeStrings collapses entries with the same hash, kind, language and
// text into one, unioning their sources. Distinct texts under one hash are
// all kept. The result is sorted.
func MergeStrings(in []model.StringEntry) []model.StringEntry {
	out := make([]model.StringEntry, 0, len(in))
	for _, s := range in {
		s.Sources = slices.Clone(s.Sources)
		out = append(out, s)
	}
	slices.SortStableFunc(out, compareStrings)
	merged := out[:0]
	for _, s := range out {
		if n := len(merged); n > 0 && compareStrings(merged[n-1], s) == 0 {
			merged[n-1].Sources = append(merged[n-1].Sources, s.Sources...)
			continue
		}
		merged = append(merged, s)
	}
	for i := range merged {
		slices.Sort(merged[i].Sources)
		merged[i].Sources = slices.Compact(merged[i].Sources)
	}
	return merged
}

func compareStrings(a, b model.StringEntry) int {
	return cmp.Or(
		cmp.Compare(a.Hash, b.Hash),
		cmp.Compare(a.Kind, b.Kind),
		cmp.Compare(a.Language, b.Language),
		cmp.Compare(a.Text, b.Text),
	)
}

func (c *Contribution) Archive() uint16 { return c.archive }

// Tags returns the archive's tags sorted by id.
func (c *Contribution) Tags() []model.Tag { return c.tags }

// Strings returns the merged strings sorted by hash.
func (c *Contribution) Strings() []model.StringEntry { return c.strings }

// EdgeCount is the number of tag-to-tag references in the archive.
func (c *Contribution) EdgeCount() int { return c.edgeCount }

func (c *Contribution) Tag(id model.TagID) (model.Tag, bool) {
	i, ok := c.byID[id]
	if !ok {
		return model.Tag{}, false
	}
	return c.tags[i], true
}

// stringsFrom returns the strings extracted from tag id.
func (c *Contribution) stringsFrom(id model.TagID) []model.StringEntry {
	idx := c.bySource[id]
	out := make([]model.StringEntry, len(idx))
	for i, j := range idx {
		out[i] = c.strings[j]
	}
	return out
}
