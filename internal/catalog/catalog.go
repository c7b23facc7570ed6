// Package catalog holds the per-version hash tables used to classify tag
// bytes: recognized structure classes, known string hashes, and the layout
// rules (byte order, alignment, pointer width) of that version's tag data.
//
// A Catalog is immutable once built and safe for concurrent use.
package catalog

import (
	"encoding/binary"
	"errors"
	"sort"
)

// ErrUnknownVersion is returned when no catalog definition exists for a
// requested version.
var ErrUnknownVersion = errors.New("catalog: unknown version")

// ClassKind tells the string extractor how to treat a class.
type ClassKind uint8

const (
	KindStruct ClassKind = iota
	KindPrimitive
	KindLocalizedStrings
	KindRawStrings
)

var kindNames = map[string]ClassKind{
	"struct":            KindStruct,
	"primitive":         KindPrimitive,
	"localized_strings": KindLocalizedStrings,
	"raw_strings":       KindRawStrings,
}

// ParseKind maps a kind name to a ClassKind.
func ParseKind(s string) (ClassKind, bool) {
	k, ok := kindNames[s]
	return k, ok
}

func (k ClassKind) String() string {
	for name, v := range kindNames {
		if v == k {
			return name
		}
	}
	return "unknown"
}

// Class is one recognized structure type.
type Class struct {
	Hash      uint32
	Name      string
	Size      uint32 // element size in bytes, 0 when unknown
	BlockTags bool   // arrays of this class never contain references
	Kind      ClassKind
}

// EntryMode selects how much of an entry the decoder scans.
type EntryMode uint8

const (
	ModeOpaque EntryMode = iota
	ModeTag
	ModeHashes
)

// ParseMode maps a mode name to an EntryMode.
func ParseMode(s string) (EntryMode, bool) {
	switch s {
	case "opaque":
		return ModeOpaque, true
	case "tag":
		return ModeTag, true
	case "hashes":
		return ModeHashes, true
	}
	return 0, false
}

func (m EntryMode) String() string {
	switch m {
	case ModeTag:
		return "tag"
	case ModeHashes:
		return "hashes"
	}
	return "opaque"
}

// Catalog is the immutable table for one version.
type Catalog struct {
	version         string
	cacheKey        string
	order           binary.ByteOrder
	alignment       int
	pointerWidth    int
	defaultLanguage string

	classes      map[uint32]Class
	arrayMarkers map[uint32]struct{}
	rawMarkers   map[uint32]struct{}
	knownStrings map[uint32][]string
	typeModes    map[uint8]EntryMode
	subtypeModes map[uint16]EntryMode
}

func (c *Catalog) Version() string { return c.version }

// CacheKey identifies the exact definition this catalog was built from.
// Caches written under a different key are discarded.
func (c *Catalog) CacheKey() string { return c.cacheKey }

func (c *Catalog) ByteOrder() binary.ByteOrder { return c.order }
func (c *Catalog) Alignment() int              { return c.alignment }
func (c *Catalog) PointerWidth() int           { return c.pointerWidth }
func (c *Catalog) DefaultLanguage() string     { return c.defaultLanguage }

// Class looks up a type hash. Unknown hashes return false.
func (c *Catalog) Class(hash uint32) (Class, bool) {
	cl, ok := c.classes[hash]
	return cl, ok
}

// Classes returns every class sorted by hash.
func (c *Catalog) Classes() []Class {
	out := make([]Class, 0, len(c.classes))
	for _, cl := range c.classes {
		out = append(out, cl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

func (c *Catalog) IsArrayMarker(v uint32) bool {
	_, ok := c.arrayMarkers[v]
	return ok
}

func (c *Catalog) IsRawStringMarker(v uint32) bool {
	_, ok := c.rawMarkers[v]
	return ok
}

// IsKnownString reports whether v is the hash of a string this catalog knows.
func (c *Catalog) IsKnownString(v uint32) bool {
	_, ok := c.knownStrings[v]
	return ok
}

// KnownStrings returns the texts known for a hash, if any.
func (c *Catalog) KnownStrings(v uint32) []string {
	return c.knownStrings[v]
}

// KnownStringCount is the number of distinct known hashes.
func (c *Catalog) KnownStringCount() int { return len(c.knownStrings) }

// EntryMode returns the scan mode for an archive entry kind. A subtype rule
// wins over a type rule; anything unlisted is opaque.
func (c *Catalog) EntryMode(fileType, subtype uint8) EntryMode {
	if m, ok := c.subtypeModes[uint16(fileType)<<8|uint16(subtype)]; ok {
		return m
	}
	if m, ok := c.typeModes[fileType]; ok {
		return m
	}
	return ModeOpaque
}
