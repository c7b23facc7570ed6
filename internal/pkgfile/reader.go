package pkgfile

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Package is an open archive. ReadEntry is safe for concurrent use.
type Package struct {
	f       *os.File
	size    int64
	header  Header
	entries []Entry
	blocks  []Block
	tail    []uint64 // tail[i] is the uncompressed size of blocks[i:]
	hashes  []Hash64

	mu        sync.Mutex
	lastIndex int
	lastBlock []byte
}

// Open reads an archive's header and tables. Block data is read lazily.
func Open(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pkgfile: %w", err)
	}
	p, err := newPackage(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pkgfile: %s: %w", path, err)
	}
	return p, nil
}

func newPackage(f *os.File) (*Package, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	p := &Package{f: f, size: st.Size(), lastIndex: -1}

	hb := make([]byte, headerSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, p.size), hb); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrCorrupt, err)
	}
	if p.header, err = parseHeader(hb); err != nil {
		return nil, err
	}
	h := p.header

	entryBytes, err := p.readTable(h.EntryTable, h.EntryCount, entrySize)
	if err != nil {
		return nil, fmt.Errorf("entry table: %w", err)
	}
	p.entries = make([]Entry, h.EntryCount)
	for i := range p.entries {
		p.entries[i] = parseEntry(entryBytes[i*entrySize:])
	}

	blockBytes, err := p.readTable(h.BlockTable, h.BlockCount, blockSize)
	if err != nil {
		return nil, fmt.Errorf("block table: %w", err)
	}
	p.blocks = make([]Block, h.BlockCount)
	for i := range p.blocks {
		b := parseBlock(blockBytes[i*blockSize:])
		if !supportsCodec(h.Revision, b.Codec) {
			return nil, fmt.Errorf("%w: block %d uses codec %s in revision %d", ErrUnsupportedFormat, i, b.Codec, h.Revision)
		}
		if b.Size > MaxBlockSize {
			return nil, fmt.Errorf("%w: block %d declares %d bytes, limit %d", ErrCorrupt, i, b.Size, MaxBlockSize)
		}
		p.blocks[i] = b
	}
	p.tail = make([]uint64, len(p.blocks)+1)
	for i := len(p.blocks) - 1; i >= 0; i-- {
		p.tail[i] = p.tail[i+1] + uint64(p.blocks[i].Size)
	}

	hashBytes, err := p.readTable(h.Hash64Table, h.Hash64Count, hash64Size)
	if err != nil {
		return nil, fmt.Errorf("hash64 table: %w", err)
	}
	p.hashes = make([]Hash64, h.Hash64Count)
	for i := range p.hashes {
		p.hashes[i] = parseHash64(hashBytes[i*hash64Size:])
		if p.hashes[i].Entry >= h.EntryCount {
			return nil, fmt.Errorf("%w: hash64 %d points past entry table", ErrCorrupt, i)
		}
	}
	return p, nil
}

func (p *Package) readTable(offset uint64, count uint32, size int) ([]byte, error) {
	n := uint64(count) * uint64(size)
	if n == 0 {
		return nil, nil
	}
	if offset > uint64(p.size) || n > uint64(p.size)-offset {
		return nil, fmt.Errorf("%w: table [%d, +%d) outside file of %d bytes", ErrCorrupt, offset, n, p.size)
	}
	buf := make([]byte, n)
	if _, err := p.f.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return buf, nil
}

func (p *Package) PackageID() uint16 { return p.header.PackageID }
func (p *Package) PatchID() uint16 { return p.header.PatchID }
func (p *Package) FormatVersion() uint16 { return p.header.Revision }
func (p *Package) Entries() []Entry { return p.entries }
func (p *Package) Hash64Entries() []Hash64 { return p.hashes }

// ReadEntry returns the decompressed payload of entry i.
func (p *Package) ReadEntry(i int) ([]byte, error) {
	if i < 0 || i >= len(p.entries) {
		return nil, fmt.Errorf("pkgfile: entry %d out of range [0, %d)", i, len(p.entries))
	}
	e := p.entries[i]
	if avail := p.available(e); uint64(e.Size) > avail {
		return nil, fmt.Errorf("%w: entry %d declares %d bytes, blocks hold %d", ErrCorrupt, i, e.Size, avail)
	}
	out := make([]byte, 0, e.Size)
	block := int(e.StartBlock)
	offset := int(e.StartOffset)
	for uint32(len(out)) < e.Size {
		if block >= len(p.blocks) {
			return nil, fmt.Errorf("%w: entry %d runs past block table", ErrCorrupt, i)
		}
		data, err := p.block(block)
		if err != nil {
			return nil, fmt.Errorf("pkgfile: entry %d: %w", i, err)
		}
		if offset > len(data) {
			return nil, fmt.Errorf("%w: entry %d starts past block %d", ErrCorrupt, i, block)
		}
		need := int(e.Size) - len(out)
		chunk := data[offset:]
		if len(chunk) > need {
			chunk = chunk[:need]
		}
		out = append(out, chunk...)
		block++
		offset = 0
	}
	return out, nil
}

// available is how many bytes the blocks from e's start position onward
// can supply.
func (p *Package) available(e Entry) uint64 {
	if uint64(e.StartBlock) >= uint64(len(p.blocks)) {
		return 0
	}
	n := p.tail[e.StartBlock]
	if uint64(e.StartOffset) > n {
		return 0
	}
	return n - uint64(e.StartOffset)
}

// block returns block i decompressed. The most recent block is kept since
// consecutive entries usually share it.
func (p *Package) block(i int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastIndex == i {
		return p.lastBlock, nil
	}

	b := p.blocks[i]
	if b.Offset > uint64(p.size) || uint64(b.CompressedSize) > uint64(p.size)-b.Offset {
		return nil, fmt.Errorf("%w: block %d outside file", ErrCorrupt, i)
	}
	raw := make([]byte, b.CompressedSize)
	if _, err := p.f.ReadAt(raw, int64(b.Offset)); err != nil {
		return nil, fmt.Errorf("block %d: %w", i, err)
	}
	data, err := decompressBlock(raw, b.Codec, int(b.Size))
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", i, err)
	}
	p.lastIndex, p.lastBlock = i, data
	return data, nil
}

func (p *Package) Close() error {
	return p.f.Close()
}
