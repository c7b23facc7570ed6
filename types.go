package tagscan

import (
	"github.com/jward/tagscan/internal/catalog"
	"github.com/jward/tagscan/internal/model"
)

// Public aliases for the internal model. They are identical to the
// internal types, so no conversion is needed.

type TagID = model.TagID
type Tag = model.Tag
type Reference = model.Reference
type TargetKind = model.TargetKind
type Quality = model.Quality
type EntryKind = model.EntryKind
type StringEntry = model.StringEntry
type StringKind = model.StringKind
type Edge = model.Edge
type Fingerprint = model.Fingerprint
type Catalog = catalog.Catalog

const (
	TargetTag        = model.TargetTag
	TargetString     = model.TargetString
	TargetUnresolved = model.TargetUnresolved

	QualityResolved   = model.QualityResolved
	QualityPartial    = model.QualityPartial
	QualityUnreadable = model.QualityUnreadable
	QualityOpaque     = model.QualityOpaque

	StringLocalized = model.StringLocalized
	StringRaw       = model.StringRaw
)

// NewTagID packs a package id and entry index into a TagID.
func NewTagID(pkg, entry uint16) TagID { return model.NewTagID(pkg, entry) }

// ParseTagID parses "80802001" or "1:1" forms.
func ParseTagID(s string) (TagID, error) { return model.ParseTagID(s) }

// ParseHash parses a 32-bit hex hash.
func ParseHash(s string) (uint32, error) { return model.ParseHash(s) }
