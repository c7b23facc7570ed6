package pkgfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/jward/tagscan/internal/model"
)

// DefaultBlockSize is the uncompressed size of each block the writer emits.
const DefaultBlockSize = 256 << 10

// Spec describes an archive to build.
type Spec struct {
	PackageID uint16
	PatchID   uint16
	Revision  uint16 // 0 means CurrentRevision
	Codec     Codec
	BlockSize int // 0 means DefaultBlockSize
	Entries   []EntrySpec
}

// EntrySpec is one payload to store.
type EntrySpec struct {
	TypeHash uint32
	FileType uint8
	Subtype  uint8
	Data     []byte
	Hash64   uint64 // registered in the hash64 table when non-zero
}

// Build serializes spec into a complete archive image.
func Build(spec Spec) ([]byte, error) {
	rev := spec.Revision
	if rev == 0 {
		rev = CurrentRevision
	}
	if rev != Revision1 && rev != Revision2 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, rev)
	}
	if !supportsCodec(rev, spec.Codec) {
		return nil, fmt.Errorf("pkgfile: codec %s not available in revision %d", spec.Codec, rev)
	}
	if spec.PackageID > model.MaxPackageID {
		return nil, fmt.Errorf("pkgfile: package id %#x out of range", spec.PackageID)
	}
	if len(spec.Entries) > model.MaxEntries {
		return nil, fmt.Errorf("pkgfile: %d entries exceeds %d", len(spec.Entries), model.MaxEntries)
	}
	bs := spec.BlockSize
	if bs <= 0 {
		bs = DefaultBlockSize
	}
	if bs > MaxBlockSize {
		return nil, fmt.Errorf("pkgfile: block size %d exceeds %d", bs, MaxBlockSize)
	}

	// Lay entries out back to back in one logical stream.
	var stream []byte
	entries := make([]Entry, len(spec.Entries))
	var hashes []Hash64
	for i, es := range spec.Entries {
		pos := len(stream)
		entries[i] = Entry{
			TypeHash:    es.TypeHash,
			FileType:    es.FileType,
			Subtype:     es.Subtype,
			StartBlock:  uint32(pos / bs),
			StartOffset: uint32(pos % bs),
			Size:        uint32(len(es.Data)),
		}
		stream = append(stream, es.Data...)
		if es.Hash64 != 0 {
			hashes = append(hashes, Hash64{Hash: es.Hash64, Entry: uint32(i)})
		}
	}

	out := make([]byte, headerSize)
	var blocks []Block
	for start := 0; start < len(stream); start += bs {
		chunk := stream[start:min(start+bs, len(stream))]
		codec := spec.Codec
		payload, err := compressBlock(chunk, codec)
		if errors.Is(err, errIncompressible) {
			codec, payload, err = CodecNone, chunk, nil
		}
		if err != nil {
			return nil, fmt.Errorf("pkgfile: block %d: %w", len(blocks), err)
		}
		blocks = append(blocks, Block{
			Offset:         uint64(len(out)),
			CompressedSize: uint32(len(payload)),
			Size:           uint32(len(chunk)),
			Codec:          codec,
		})
		out = append(out, payload...)
	}

	h := Header{
		Revision:    rev,
		PackageID:   spec.PackageID,
		PatchID:     spec.PatchID,
		EntryCount:  uint32(len(entries)),
		BlockCount:  uint32(len(blocks)),
		Hash64Count: uint32(len(hashes)),
	}
	h.EntryTable = uint64(len(out))
	for _, e := range entries {
		out = e.appendTo(out)
	}
	h.BlockTable = uint64(len(out))
	for _, b := range blocks {
		out = b.appendTo(out)
	}
	h.Hash64Table = uint64(len(out))
	for _, hh := range hashes {
		out = hh.appendTo(out)
	}
	copy(out, h.encode())
	return out, nil
}

// WriteFile builds spec and writes it to path.
func WriteFile(path string, spec Spec) error {
	data, err := Build(spec)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
