package tagscan

import (
	"github.com/jward/tagscan/internal/model"
	"github.com/jward/tagscan/internal/pkgfile"
)

// ArchiveEntry is one entry of an archive's entry table.
type ArchiveEntry struct {
	TypeHash uint32
	Kind     EntryKind
	Size     uint32
	Block    uint32 // first data block, used to read entries in storage order
	Offset   uint32 // offset within Block
}

// WideHash is a 64-bit hash an archive registers for one of its entries.
type WideHash struct {
	Hash  uint64
	Entry uint32
}

// Archive is an open package archive. ReadEntry may be called from one
// goroutine at a time.
type Archive interface {
	PackageID() uint16
	PatchID() uint16
	FormatVersion() uint16
	ListEntries() []ArchiveEntry
	WideHashes() []WideHash
	ReadEntry(i int) ([]byte, error)
	Close() error
}

// ArchiveOpener opens the archive stored at path.
type ArchiveOpener interface {
	Open(path string) (Archive, error)
}

// OpenerFunc adapts a function to ArchiveOpener.
type OpenerFunc func(path string) (Archive, error)

func (f OpenerFunc) Open(path string) (Archive, error) { return f(path) }

// TPKGOpener opens TPKG archives with internal/pkgfile. It is the default.
var TPKGOpener ArchiveOpener = OpenerFunc(openTPKG)

func openTPKG(path string) (Archive, error) {
	p, err := pkgfile.Open(path)
	if err != nil {
		return nil, err
	}
	return tpkgArchive{p}, nil
}

type tpkgArchive struct {
	*pkgfile.Package
}

func (a tpkgArchive) ListEntries() []ArchiveEntry {
	src := a.Entries()
	out := make([]ArchiveEntry, len(src))
	for i, e := range src {
		out[i] = ArchiveEntry{
			TypeHash: e.TypeHash,
			Kind:     model.EntryKind{Type: e.FileType, Subtype: e.Subtype},
			Size:     e.Size,
			Block:    e.StartBlock,
			Offset:   e.StartOffset,
		}
	}
	return out
}

func (a tpkgArchive) WideHashes() []WideHash {
	src := a.Hash64Entries()
	out := make([]WideHash, len(src))
	for i, h := range src {
		out[i] = WideHash{Hash: h.Hash, Entry: h.Entry}
	}
	return out
}
