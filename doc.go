// Package tagscan scans directories of game package archives, decodes every
// entry into a tag record classified by its type hash, and indexes the
// tag-to-tag and tag-to-string references it finds. Results are cached in a
// single SQLite file keyed by archive fingerprints, so a rescan only decodes
// archives that changed.
//
// # Pipeline
//
// A scan runs in three phases:
//
//  1. Enumerate: list the *.pkg files of a directory, read their headers and
//     fingerprints in parallel, build the address space of valid tag ids and
//     compare every archive against the cache.
//
//  2. Scan: a bounded worker pool decodes the stale archives. Each worker
//     handles one archive at a time and sends a single batch of tags and
//     strings to the merger.
//
//  3. Merge: one goroutine builds an index contribution per batch, commits
//     it to the in-memory cache state and finally saves the cache.
//
// # Usage
//
//	cat, err := tagscan.LoadCatalog(ctx, "d2_bl")
//	if err != nil { ... }
//	e, err := tagscan.New("tagscan.cache", cat)
//	if err != nil { ... }
//
//	report, err := e.Scan(ctx, "path/to/packages")
//
//	q := e.Query()
//	edges := q.ReferencedBy(id)
//	page := q.FindStrings("hello", tagscan.StringFilter{}, tagscan.Pagination{})
//
// # Catalogs
//
// Version-specific knowledge (recognized type hashes, known string hashes,
// byte order, alignment and array markers) lives in Risor scripts embedded
// from the catalogs directory. [LoadCatalog] evaluates them into an immutable
// [Catalog]; [CatalogVersions] lists what is available.
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] reads the current index:
//
//   - [QueryBuilder.GetTag]: one tag with its class name.
//   - [QueryBuilder.ReferencesOf] and [QueryBuilder.ReferencedBy]: direct
//     edges in either direction.
//   - [QueryBuilder.FindStrings]: substring or exact text search.
//   - [QueryBuilder.FindTagsByType]: tags of one type hash.
//   - [QueryBuilder.TransitiveReferences] and
//     [QueryBuilder.TransitiveReferrers]: bounded BFS walks.
package tagscan
