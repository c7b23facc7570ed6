// Package pkgfile reads and writes TPKG package archives: a header, an
// entry table, a block table of independently compressed blocks, and an
// optional table of 64-bit entry hashes.
//
// All header and table integers are little-endian. Entry payloads are
// opaque to this package.
package pkgfile

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jward/tagscan/internal/model"
)

var (
	ErrBadMagic          = errors.New("pkgfile: not a TPKG archive")
	ErrUnsupportedFormat = errors.New("pkgfile: unsupported format revision")
	ErrCorrupt           = errors.New("pkgfile: corrupt archive")
)

var magic = [4]byte{'T', 'P', 'K', 'G'}

// Format revisions. Revision 2 added LZ4 blocks.
const (
	Revision1       uint16 = 1
	Revision2       uint16 = 2
	CurrentRevision        = Revision2
)

// MaxBlockSize bounds the uncompressed size of one block. Readers reject
// larger blocks as corrupt and the writer never emits them.
const MaxBlockSize = 16 << 20

const (
	headerSize = 64
	entrySize  = 24
	blockSize  = 24
	hash64Size = 16
)

// Header is the fixed archive header.
type Header struct {
	Revision    uint16
	PackageID   uint16
	PatchID     uint16
	Flags       uint16
	EntryCount  uint32
	BlockCount  uint32
	Hash64Count uint32
	EntryTable  uint64
	BlockTable  uint64
	Hash64Table uint64
}

// Entry describes one stored payload.
type Entry struct {
	TypeHash    uint32
	FileType    uint8
	Subtype     uint8
	StartBlock  uint32
	StartOffset uint32
	Size        uint32
}

// Block describes one compressed block of the data stream.
type Block struct {
	Offset         uint64
	CompressedSize uint32
	Size           uint32
	Codec          Codec
}

// Hash64 maps a 64-bit hash to an entry of this archive.
type Hash64 struct {
	Hash  uint64
	Entry uint32
}

func supportsCodec(revision uint16, c Codec) bool {
	switch c {
	case CodecNone, CodecZstd:
		return true
	case CodecLZ4:
		return revision >= Revision2
	}
	return false
}

func parseHeader(b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if [4]byte(b[0:4]) != magic {
		return Header{}, ErrBadMagic
	}
	le := binary.LittleEndian
	h := Header{
		Revision:    le.Uint16(b[4:]),
		PackageID:   le.Uint16(b[6:]),
		PatchID:     le.Uint16(b[8:]),
		Flags:       le.Uint16(b[10:]),
		EntryCount:  le.Uint32(b[12:]),
		BlockCount:  le.Uint32(b[16:]),
		Hash64Count: le.Uint32(b[20:]),
		EntryTable:  le.Uint64(b[24:]),
		BlockTable:  le.Uint64(b[32:]),
		Hash64Table: le.Uint64(b[40:]),
	}
	if h.Revision != Revision1 && h.Revision != Revision2 {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedFormat, h.Revision)
	}
	if h.PackageID > model.MaxPackageID {
		return Header{}, fmt.Errorf("%w: package id %#x out of range", ErrCorrupt, h.PackageID)
	}
	if h.EntryCount > model.MaxEntries {
		return Header{}, fmt.Errorf("%w: %d entries exceeds %d", ErrCorrupt, h.EntryCount, model.MaxEntries)
	}
	return h, nil
}

func (h Header) encode() []byte {
	b := make([]byte, headerSize)
	copy(b, magic[:])
	le := binary.LittleEndian
	le.PutUint16(b[4:], h.Revision)
	le.PutUint16(b[6:], h.PackageID)
	le.PutUint16(b[8:], h.PatchID)
	le.PutUint16(b[10:], h.Flags)
	le.PutUint32(b[12:], h.EntryCount)
	le.PutUint32(b[16:], h.BlockCount)
	le.PutUint32(b[20:], h.Hash64Count)
	le.PutUint64(b[24:], h.EntryTable)
	le.PutUint64(b[32:], h.BlockTable)
	le.PutUint64(b[40:], h.Hash64Table)
	return b
}

func parseEntry(b []byte) Entry {
	le := binary.LittleEndian
	return Entry{
		TypeHash:    le.Uint32(b[0:]),
		FileType:    b[4],
		Subtype:     b[5],
		StartBlock:  le.Uint32(b[8:]),
		StartOffset: le.Uint32(b[12:]),
		Size:        le.Uint32(b[16:]),
	}
}

func (e Entry) appendTo(dst []byte) []byte {
	var b [entrySize]byte
	le := binary.LittleEndian
	le.PutUint32(b[0:], e.TypeHash)
	b[4] = e.FileType
	b[5] = e.Subtype
	le.PutUint32(b[8:], e.StartBlock)
	le.PutUint32(b[12:], e.StartOffset)
	le.PutUint32(b[16:], e.Size)
	return append(dst, b[:]...)
}

func parseBlock(b []byte) Block {
	le := binary.LittleEndian
	return Block{
		Offset:         le.Uint64(b[0:]),
		CompressedSize: le.Uint32(b[8:]),
		Size:           le.Uint32(b[12:]),
		Codec:          Codec(b[16]),
	}
}

func (bl Block) appendTo(dst []byte) []byte {
	var b [blockSize]byte
	le := binary.LittleEndian
	le.PutUint64(b[0:], bl.Offset)
	le.PutUint32(b[8:], bl.CompressedSize)
	le.PutUint32(b[12:], bl.Size)
	b[16] = byte(bl.Codec)
	return append(dst, b[:]...)
}

func parseHash64(b []byte) Hash64 {
	le := binary.LittleEndian
	return Hash64{Hash: le.Uint64(b[0:]), Entry: le.Uint32(b[8:])}
}

func (h Hash64) appendTo(dst []byte) []byte {
	var b [hash64Size]byte
	le := binary.LittleEndian
	le.PutUint64(b[0:], h.Hash)
	le.PutUint32(b[8:], h.Entry)
	return append(dst, b[:]...)
}
