// Package index holds the in-memory reference graph as one immutable
// contribution per archive. Forward edges live in each tag's references;
// reverse edges are derived when a contribution is built and are unioned
// across contributions at query time.
package index

import (
	"cmp"
	"slices"
	"sync"

	"github.com/jward/tagscan/internal/model"
)

// Index is safe for concurrent use. Writers only swap contribution
// pointers, so readers never see a half-merged archive.
type Index struct {
	mu       sync.RWMutex
	archives map[uint16]*Contribution
}

func New() *Index {
	return &Index{archives: make(map[uint16]*Contribution)}
}

// Replace installs c, dropping whatever the archive contributed before.
func (x *Index) Replace(c *Contribution) {
	x.mu.Lock()
	x.archives[c.archive] = c
	x.mu.Unlock()
}

// Remove drops an archive's contribution and reports whether one existed.
func (x *Index) Remove(archive uint16) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.archives[archive]
	delete(x.archives, archive)
	return ok
}

func (x *Index) Contribution(archive uint16) (*Contribution, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.archives[archive]
	return c, ok
}

// Snapshot returns the current contributions ordered by archive id.
func (x *Index) Snapshot() []*Contribution {
	x.mu.RLock()
	out := make([]*Contribution, 0, len(x.archives))
	for _, c := range x.archives {
		out = append(out, c)
	}
	x.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Contribution) int { return cmp.Compare(a.archive, b.archive) })
	return out
}

func (x *Index) Tag(id model.TagID) (model.Tag, bool) {
	c, ok := x.Contribution(id.Package())
	if !ok {
		return model.Tag{}, false
	}
	return c.Tag(id)
}

// ReferencesOf returns the tag-to-tag edges leaving id in offset order.
func (x *Index) ReferencesOf(id model.TagID) []model.Edge {
	t, ok := x.Tag(id)
	if !ok {
		return nil
	}
	var out []model.Edge
	for _, r := range t.References {
		if r.Kind == model.TargetTag {
			out = append(out, model.Edge{From: id, To: r.Tag(), Offset: r.Offset, Wide: r.Wide})
		}
	}
	return out
}

// ReferencedBy returns every edge pointing at id, from any archive.
func (x *Index) ReferencedBy(id model.TagID) []model.Edge {
	var out []model.Edge
	for _, c := range x.Snapshot() {
		out = append(out, c.reverse[id]...)
	}
	slices.SortStableFunc(out, func(a, b model.Edge) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.Offset, b.Offset))
	})
	return out
}

// StringReferrers returns the tags holding a reference to string hash h.
func (x *Index) StringReferrers(h uint32) []model.TagID {
	var out []model.TagID
	for _, c := range x.Snapshot() {
		out = append(out, c.stringRefs[h]...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// StringsOf returns the strings extracted from tag id.
func (x *Index) StringsOf(id model.TagID) []model.StringEntry {
	c, ok := x.Contribution(id.Package())
	if !ok {
		return nil
	}
	return c.stringsFrom(id)
}

// Strings returns the strings accepted by match, merged across archives.
// A nil match accepts everything.
func (x *Index) Strings(match func(model.StringEntry) bool) []model.StringEntry {
	var hits []model.StringEntry
	for _, c := range x.Snapshot() {
		for _, s := range c.strings {
			if match == nil || match(s) {
				hits = append(hits, s)
			}
		}
	}
	return MergeStrings(hits)
}

// TagsByType returns the tags with type hash h ordered by id.
func (x *Index) TagsByType(h uint32) []model.Tag {
	var out []model.Tag
	for _, c := range x.Snapshot() {
		for _, id := range c.byType[h] {
			t, _ := c.Tag(id)
			out = append(out, t)
		}
	}
	return out
}

// Stats counts what the index holds.
type Stats struct {
	Archives int
	Tags     int
	Strings  int
	Edges    int
}

func (x *Index) Stats() Stats {
	var s Stats
	for _, c := range x.Snapshot() {
		s.Archives++
		s.Tags += len(c.tags)
		s.Strings += len(c.strings)
		s.Edges += c.edgeCount
	}
	return s
}
