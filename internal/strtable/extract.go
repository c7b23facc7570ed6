package strtable

import (
	"github.com/jward/tagscan/internal/catalog"
	"github.com/jward/tagscan/internal/model"
)

// Extract runs the decoder that applies to tag. String table classes are
// decoded whole; other tag and hashes mode entries are searched for embedded
// raw blobs.
// A nil data slice yields nothing.
func Extract(cat *catalog.Catalog, tag model.Tag, data []byte) Result {
	if data == nil {
		return Result{}
	}
	if cl, ok := cat.Class(tag.TypeHash); ok {
		switch cl.Kind {
		case catalog.KindLocalizedStrings:
			return DecodeLocalized(cat.ByteOrder(), cat.DefaultLanguage(), tag.ID, data)
		case catalog.KindRawStrings:
			return DecodeRawTable(cat.ByteOrder(), cat.PointerWidth(), tag.ID, data)
		}
	}
	if cat.EntryMode(tag.Kind.Type, tag.Kind.Subtype) == catalog.ModeOpaque {
		return Result{}
	}
	return DecodeEmbeddedRaw(cat, tag.ID, data)
}
