package decoder

import (
	"encoding/binary"
	"encoding/hex"
	"slices"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/jward/tagscan/internal/model"
)

// AddressSpace is the set of tag ids that exist in the current archive set,
// plus the 64-bit hashes that alias some of them and the string hashes the
// archives' localized tables define. Built once per scan run and read
// concurrently by decoders.
type AddressSpace struct {
	entries map[uint16]uint32 // package id -> entry count
	wide    map[uint64]model.TagID
	strings map[uint32]struct{}
}

// AddressBuilder collects archive headers into an AddressSpace.
type AddressBuilder struct {
	space *AddressSpace
}

func NewAddressBuilder() *AddressBuilder {
	return &AddressBuilder{space: &AddressSpace{
		entries: make(map[uint16]uint32),
		wide:    make(map[uint64]model.TagID),
		strings: make(map[uint32]struct{}),
	}}
}

// AddArchive registers pkg with entryCount entries.
func (b *AddressBuilder) AddArchive(pkg uint16, entryCount int) {
	b.space.entries[pkg] = uint32(min(max(entryCount, 0), model.MaxEntries))
}

// AddHash64 registers a 64-bit alias for id.
func (b *AddressBuilder) AddHash64(h uint64, id model.TagID) {
	b.space.wide[h] = id
}

// AddStringHash registers a hash some localized string table defines.
func (b *AddressBuilder) AddStringHash(h uint32) {
	if h != model.EmptyHash {
		b.space.strings[h] = struct{}{}
	}
}

func (b *AddressBuilder) Build() *AddressSpace {
	s := b.space
	b.space = nil
	return s
}

// Contains reports whether id names an entry that exists.
func (s *AddressSpace) Contains(id model.TagID) bool {
	if !id.Valid() {
		return false
	}
	n, ok := s.entries[id.Package()]
	return ok && uint32(id.Entry()) < n
}

// Lookup64 resolves a 64-bit hash to the tag it aliases.
func (s *AddressSpace) Lookup64(h uint64) (model.TagID, bool) {
	id, ok := s.wide[h]
	return id, ok
}

// KnownString reports whether a localized table in the archive set defines h.
func (s *AddressSpace) KnownString(h uint32) bool {
	_, ok := s.strings[h]
	return ok
}

// Packages returns the registered package ids in ascending order.
func (s *AddressSpace) Packages() []uint16 {
	out := make([]uint16, 0, len(s.entries))
	for p := range s.entries {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Digest fingerprints the address space. Tag-id validity and string-hash
// recognition depend on every archive, so a changed digest invalidates all
// cached decodes.
func (s *AddressSpace) Digest() string {
	h := blake3.NewDeriveKey("tagscan 2026 address space")
	var buf [12]byte
	for _, p := range s.Packages() {
		binary.LittleEndian.PutUint16(buf[0:], p)
		binary.LittleEndian.PutUint32(buf[2:], s.entries[p])
		h.Write(buf[:6])
	}
	keys := make([]uint64, 0, len(s.wide))
	for k := range s.wide {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		binary.LittleEndian.PutUint64(buf[0:], k)
		binary.LittleEndian.PutUint32(buf[8:], uint32(s.wide[k]))
		h.Write(buf[:12])
	}
	hashes := make([]uint32, 0, len(s.strings))
	for k := range s.strings {
		hashes = append(hashes, k)
	}
	slices.Sort(hashes)
	h.Write([]byte{0xFF}) // separates the string set from the wide table
	for _, k := range hashes {
		binary.LittleEndian.PutUint32(buf[0:], k)
		h.Write(buf[:4])
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
