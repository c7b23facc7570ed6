package tagscan

import "strings"

// Pagination controls offset+limit paging on list/search results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// PagedResult wraps a page of results with total count for pagination.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int // total matching results (before pagination)
}

func paginate[T any](all []T, p Pagination) PagedResult[T] {
	p = p.normalize()
	res := PagedResult[T]{Items: []T{}, TotalCount: len(all)}
	if p.Offset >= len(all) {
		return res
	}
	end := min(p.Offset+p.Limit, len(all))
	res.Items = all[p.Offset:end]
	return res
}

// StringFilter narrows FindStrings.
type StringFilter struct {
	Exact bool        // whole-text, case-sensitive match instead of substring
	Kind  *StringKind // restrict to localized or raw strings
}

// FindStrings searches string text. By default the match is a
// case-insensitive substring; an empty query matches everything. Only
// localized strings in the catalog's default language and raw strings are
// searched; other languages are reachable through StringsByHash. Results
// are ordered by hash, then kind and text.
func (q *QueryBuilder) FindStrings(query string, filter StringFilter, page Pagination) PagedResult[StringEntry] {
	lang := q.catalog.DefaultLanguage()
	needle := strings.ToLower(query)
	hits := q.index.Strings(func(e StringEntry) bool {
		if filter.Kind != nil && e.Kind != *filter.Kind {
			return false
		}
		if e.Kind == StringLocalized && e.Language != lang {
			return false
		}
		if filter.Exact {
			return e.Text == query
		}
		return strings.Contains(strings.ToLower(e.Text), needle)
	})
	return paginate(hits, page)
}

// FindTagsByType returns the tags whose type hash is h, ordered by id.
func (q *QueryBuilder) FindTagsByType(h uint32, page Pagination) PagedResult[Tag] {
	return paginate(q.index.TagsByType(h), page)
}
