package tagscan

import (
	"github.com/jward/tagscan/internal/catalog"
	"github.com/jward/tagscan/internal/index"
)

// QueryBuilder provides read-only queries over the scan index. It is safe
// for concurrent use and sees each archive either fully before or fully
// after a concurrent merge.
type QueryBuilder struct {
	index   *index.Index
	catalog *catalog.Catalog
}

// TagResult is a tag with what the catalog knows about its type.
type TagResult struct {
	Tag
	ClassName  string // empty when the type hash is not in the catalog
	Recognized bool
	Referrers  int // number of edges pointing at the tag
}

// GetTag returns the tag with the given id.
func (q *QueryBuilder) GetTag(id TagID) (*TagResult, bool) {
	t, ok := q.index.Tag(id)
	if !ok {
		return nil, false
	}
	r := &TagResult{Tag: t, Referrers: len(q.index.ReferencedBy(id))}
	if cl, ok := q.catalog.Class(t.TypeHash); ok {
		r.ClassName = cl.Name
		r.Recognized = true
	}
	return r, true
}

// ReferencesOf returns the tag-to-tag edges leaving id in offset order.
// Targets need not exist in the index.
func (q *QueryBuilder) ReferencesOf(id TagID) []Edge {
	return q.index.ReferencesOf(id)
}

// ReferencedBy returns every edge pointing at id, ordered by source tag and
// offset.
func (q *QueryBuilder) ReferencedBy(id TagID) []Edge {
	return q.index.ReferencedBy(id)
}

// StringsOf returns the strings extracted from tag id.
func (q *QueryBuilder) StringsOf(id TagID) []StringEntry {
	return q.index.StringsOf(id)
}

// StringRefsOf returns the string-hash references of tag id together with
// every known text for each hash.
func (q *QueryBuilder) StringRefsOf(id TagID) []StringRef {
	t, ok := q.index.Tag(id)
	if !ok {
		return nil
	}
	var out []StringRef
	for _, r := range t.References {
		if r.Kind != TargetString {
			continue
		}
		h := r.StringHash()
		out = append(out, StringRef{Offset: r.Offset, Hash: h, Texts: q.StringsByHash(h)})
	}
	return out
}

// StringRef is one string-hash field of a tag.
type StringRef struct {
	Offset uint64
	Hash   uint32
	Texts  []StringEntry
}

// TagsReferencingString returns the tags holding a reference to string
// hash h, in id order.
func (q *QueryBuilder) TagsReferencingString(h uint32) []TagID {
	return q.index.StringReferrers(h)
}

// StringsByHash returns every string entry for hash h in any language.
func (q *QueryBuilder) StringsByHash(h uint32) []StringEntry {
	return q.index.Strings(func(e StringEntry) bool { return e.Hash == h })
}

// Summary counts what the index holds.
type Summary struct {
	Archives   int
	Tags       int
	Strings    int
	Edges      int
	Degraded   int // tags with quality Partial or Unreadable
	Unresolved int // references with an unresolved target
	ByQuality  map[Quality]int
}

// Summary walks the whole index once.
func (q *QueryBuilder) Summary() Summary {
	st := q.index.Stats()
	s := Summary{
		Archives:  st.Archives,
		Tags:      st.Tags,
		Strings:   st.Strings,
		Edges:     st.Edges,
		ByQuality: make(map[Quality]int),
	}
	for _, c := range q.index.Snapshot() {
		for _, t := range c.Tags() {
			s.ByQuality[t.Quality]++
			if t.Quality.Degraded() {
				s.Degraded++
			}
			for _, r := range t.References {
				if r.Kind == TargetUnresolved {
					s.Unresolved++
				}
			}
		}
	}
	return s
}
