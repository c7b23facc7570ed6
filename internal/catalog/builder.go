package catalog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/jward/tagscan/internal/model"
)

const cacheKeyContext = "tagscan 2026 catalog cache key"

// Builder accumulates a catalog definition. It is not safe for concurrent use.
type Builder struct {
	c      *Catalog
	digest *blake3.Hasher
	err    error
}

// NewBuilder starts a catalog for version with little-endian, 4-byte aligned
// words and 8-byte pointers.
func NewBuilder(version string) *Builder {
	h := blake3.NewDeriveKey(cacheKeyContext)
	h.WriteString(version)
	return &Builder{
		digest: h,
		c: &Catalog{
			version:         version,
			order:           binary.LittleEndian,
			alignment:       4,
			pointerWidth:    8,
			defaultLanguage: "en",
			classes:         make(map[uint32]Class),
			arrayMarkers:    make(map[uint32]struct{}),
			rawMarkers:      make(map[uint32]struct{}),
			knownStrings:    make(map[uint32][]string),
			typeModes:       make(map[uint8]EntryMode),
			subtypeModes:    make(map[uint16]EntryMode),
		},
	}
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("catalog %s: "+format, append([]any{b.c.version}, args...)...)
	}
}

// AddSource mixes definition bytes into the cache key.
func (b *Builder) AddSource(name string, src []byte) {
	b.digest.WriteString(name)
	b.digest.Write(src)
}

func (b *Builder) SetByteOrder(big bool) {
	if big {
		b.c.order = binary.BigEndian
	} else {
		b.c.order = binary.LittleEndian
	}
	fmt.Fprintf(b.digest, "endian=%t;", big)
}

func (b *Builder) SetAlignment(n int) {
	if n != 4 && n != 8 {
		b.fail("alignment must be 4 or 8, got %d", n)
		return
	}
	b.c.alignment = n
	fmt.Fprintf(b.digest, "align=%d;", n)
}

func (b *Builder) SetPointerWidth(n int) {
	if n != 4 && n != 8 {
		b.fail("pointer width must be 4 or 8, got %d", n)
		return
	}
	b.c.pointerWidth = n
	fmt.Fprintf(b.digest, "ptr=%d;", n)
}

func (b *Builder) SetDefaultLanguage(lang string) {
	b.c.defaultLanguage = lang
	fmt.Fprintf(b.digest, "lang=%s;", lang)
}

// AddClass registers a class. Redefining a hash replaces the earlier entry,
// so version scripts can override shared definitions.
func (b *Builder) AddClass(cl Class) {
	b.c.classes[cl.Hash] = cl
	fmt.Fprintf(b.digest, "class=%08x,%s,%d,%t,%d;", cl.Hash, cl.Name, cl.Size, cl.BlockTags, cl.Kind)
}

func (b *Builder) AddArrayMarker(v uint32) {
	b.c.arrayMarkers[v] = struct{}{}
	fmt.Fprintf(b.digest, "array=%08x;", v)
}

func (b *Builder) AddRawStringMarker(v uint32) {
	b.c.rawMarkers[v] = struct{}{}
	fmt.Fprintf(b.digest, "raw=%08x;", v)
}

// AddKnownString registers text under its FNV-1 hash.
func (b *Builder) AddKnownString(text string) {
	h := model.FNV1String(text)
	if slices.Contains(b.c.knownStrings[h], text) {
		return
	}
	b.c.knownStrings[h] = append(b.c.knownStrings[h], text)
	b.digest.WriteString(text)
	b.digest.Write([]byte{0})
}

// AddKnownHash registers a string hash whose text is not known.
func (b *Builder) AddKnownHash(h uint32) {
	if _, ok := b.c.knownStrings[h]; ok {
		return
	}
	b.c.knownStrings[h] = nil
	fmt.Fprintf(b.digest, "hash=%08x;", h)
}

// AddWordlist registers every non-empty, non-comment line of data.
func (b *Builder) AddWordlist(name string, data []byte) int {
	b.AddSource(name, data)
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		b.AddKnownString(line)
		n++
	}
	if err := sc.Err(); err != nil {
		b.fail("wordlist %s: %v", name, err)
	}
	return n
}

// SetEntryMode sets the scan mode for every entry of fileType.
func (b *Builder) SetEntryMode(fileType uint8, mode EntryMode) {
	b.c.typeModes[fileType] = mode
	fmt.Fprintf(b.digest, "mode=%d,%d;", fileType, mode)
}

// SetSubtypeMode sets the scan mode for one (fileType, subtype) pair.
func (b *Builder) SetSubtypeMode(fileType, subtype uint8, mode EntryMode) {
	b.c.subtypeModes[uint16(fileType)<<8|uint16(subtype)] = mode
	fmt.Fprintf(b.digest, "mode=%d.%d,%d;", fileType, subtype, mode)
}

// Build finalizes the catalog. The builder must not be used afterwards.
func (b *Builder) Build() (*Catalog, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.c.version == "" {
		return nil, fmt.Errorf("catalog: empty version")
	}
	var sum [32]byte
	b.digest.Sum(sum[:0])
	b.c.cacheKey = b.c.version + ":" + hex.EncodeToString(sum[:8])
	c := b.c
	b.c = nil
	return c, nil
}
