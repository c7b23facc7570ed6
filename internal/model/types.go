package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag-id layout: 0x80800000 | pkg<<13 | entry.
const (
	tagIDPrefix  = 0x80800000
	tagIDMask    = 0xFF800000
	pkgShift     = 13
	pkgMask      = 0x3FF
	entryMask    = 0x1FFF
	MaxPackageID = pkgMask
	MaxEntries   = entryMask + 1
)

// TagID identifies one entry of one archive.
type TagID uint32

// NewTagID packs a package id and entry index. Out-of-range parts are masked.
func NewTagID(pkg uint16, entry uint16) TagID {
	return TagID(tagIDPrefix | (uint32(pkg)&pkgMask)<<pkgShift | uint32(entry)&entryMask)
}

// HasTagIDPattern reports whether v is shaped like a tag id.
func HasTagIDPattern(v uint32) bool {
	return v&tagIDMask == tagIDPrefix
}

func (id TagID) Package() uint16 { return uint16((uint32(id) >> pkgShift) & pkgMask) }
func (id TagID) Entry() uint16   { return uint16(uint32(id) & entryMask) }
func (id TagID) Valid() bool     { return HasTagIDPattern(uint32(id)) }

func (id TagID) String() string {
	return fmt.Sprintf("%08X", uint32(id))
}

// ParseTagID accepts either the packed hex form ("80802001", "0x80802001")
// or "pkg:entry" with both halves in hex ("1:1").
func ParseTagID(s string) (TagID, error) {
	s = strings.TrimSpace(s)
	if pkg, entry, ok := strings.Cut(s, ":"); ok {
		p, err := strconv.ParseUint(strings.TrimPrefix(pkg, "0x"), 16, 16)
		if err != nil || p > MaxPackageID {
			return 0, fmt.Errorf("invalid package id %q", pkg)
		}
		e, err := strconv.ParseUint(strings.TrimPrefix(entry, "0x"), 16, 16)
		if err != nil || e >= MaxEntries {
			return 0, fmt.Errorf("invalid entry index %q", entry)
		}
		return NewTagID(uint16(p), uint16(e)), nil
	}
	v, err := ParseHash(s)
	if err != nil {
		return 0, err
	}
	if !HasTagIDPattern(v) {
		return 0, fmt.Errorf("%08X is not a tag id", v)
	}
	return TagID(v), nil
}

// ParseHash parses a 32-bit hex hash with or without a 0x prefix.
func ParseHash(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return uint32(v), nil
}

// Quality records how completely a tag's bytes were decoded.
type Quality uint8

const (
	QualityResolved Quality = iota
	QualityPartial
	QualityUnreadable
	QualityOpaque
)

var qualityNames = [...]string{"resolved", "partial", "unreadable", "opaque"}

func (q Quality) String() string {
	if int(q) < len(qualityNames) {
		return qualityNames[q]
	}
	return "quality(" + strconv.Itoa(int(q)) + ")"
}

// Degraded reports whether the tag lost information while decoding.
func (q Quality) Degraded() bool {
	return q == QualityPartial || q == QualityUnreadable
}

// TargetKind classifies what a reference field points at.
type TargetKind uint8

const (
	TargetTag TargetKind = iota
	TargetString
	TargetUnresolved
)

func (k TargetKind) String() string {
	switch k {
	case TargetTag:
		return "tag"
	case TargetString:
		return "string"
	case TargetUnresolved:
		return "unresolved"
	}
	return "target(" + strconv.Itoa(int(k)) + ")"
}

// Reference is one classified hash-sized field inside a tag.
type Reference struct {
	Offset uint64
	Kind   TargetKind
	Wide   bool // read from a 64-bit field
	Value  uint64
}

// Tag returns the referenced tag id for TargetTag references.
func (r Reference) Tag() TagID { return TagID(uint32(r.Value)) }

// StringHash returns the referenced string hash for TargetString references.
func (r Reference) StringHash() uint32 { return uint32(r.Value) }

// EntryKind is the file type and subtype an archive declares for an entry.
type EntryKind struct {
	Type    uint8
	Subtype uint8
}

type Tag struct {
	ID         TagID
	TypeHash   uint32
	Size       uint32
	Kind       EntryKind
	Quality    Quality
	References []Reference
}

// StringKind separates hash-keyed localized text from raw debug strings.
type StringKind uint8

const (
	StringLocalized StringKind = iota
	StringRaw
)

func (k StringKind) String() string {
	if k == StringRaw {
		return "raw"
	}
	return "localized"
}

type StringEntry struct {
	Hash     uint32
	Text     string
	Kind     StringKind
	Language string
	Sources  []TagID
}

// Edge is one tag-to-tag reference in the graph.
type Edge struct {
	From   TagID
	To     TagID
	Offset uint64
	Wide   bool
}

// Fingerprint is the per-archive snapshot used for cache validity.
type Fingerprint struct {
	Archive       uint16
	Path          string
	Size          int64
	ModTime       int64
	FormatVersion uint16
	Patch         uint16
	ContentHash   string
}

// Matches reports whether two fingerprints describe the same archive state.
func (f Fingerprint) Matches(o Fingerprint) bool {
	return f == o
}
