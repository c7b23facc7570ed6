// Package decoder classifies the hash-sized fields of a tag's bytes into
// references. Decoding is a pure function of the entry bytes, the catalog
// and the address space; it never fails; problems lower the tag's quality.
package decoder

import (
	"encoding/binary"
	"sort"

	"github.com/jward/tagscan/internal/catalog"
	"github.com/jward/tagscan/internal/model"
)

// Input is one archive entry ready to decode.
type Input struct {
	ID       model.TagID
	TypeHash uint32
	Kind     model.EntryKind
	Size     uint32 // declared size, used when Data is nil
	Data     []byte // nil when the entry could not be read
}

// Decode produces the tag record for in.
func Decode(cat *catalog.Catalog, space *AddressSpace, in Input) model.Tag {
	tag := model.Tag{
		ID:       in.ID,
		TypeHash: in.TypeHash,
		Size:     uint32(len(in.Data)),
		Kind:     in.Kind,
		Quality:  model.QualityResolved,
	}
	if in.Data == nil {
		tag.Size = in.Size
		tag.Quality = model.QualityUnreadable
		return tag
	}

	mode := cat.EntryMode(in.Kind.Type, in.Kind.Subtype)
	if mode == catalog.ModeOpaque {
		tag.Quality = model.QualityOpaque
		return tag
	}
	if cl, ok := cat.Class(in.TypeHash); ok && (cl.Kind == catalog.KindLocalizedStrings || cl.Kind == catalog.KindRawStrings) {
		// String tables hold text and string keys, not references.
		return tag
	}

	s := scanner{cat: cat, space: space, data: in.Data, mode: mode}
	s.order = cat.ByteOrder()
	s.align = max(cat.Alignment(), 1)
	s.blocked = s.blockedRanges()
	tag.References = s.classify()
	if s.partial {
		tag.Quality = model.QualityPartial
	}
	return tag
}

type span struct{ start, end int }

type scanner struct {
	cat     *catalog.Catalog
	space   *AddressSpace
	data    []byte
	mode    catalog.EntryMode
	order   binary.ByteOrder
	align   int
	blocked []span
	partial bool
}

// blockedRanges finds array bodies whose element class never holds
// references and embedded raw string blobs. Both are skipped by classify.
func (s *scanner) blockedRanges() []span {
	var out []span
	n := len(s.data)
	for off := 0; off+4 <= n; off += s.align {
		v := s.order.Uint32(s.data[off:])
		switch {
		case s.cat.IsArrayMarker(v):
			if r, ok := s.arrayRange(off); ok {
				out = append(out, r)
			}
		case s.cat.IsRawStringMarker(v):
			if r, ok := s.rawRange(off); ok {
				out = append(out, r)
			}
		}
	}
	return mergeSpans(out)
}

// readCount reads a pointer-width count at off.
func (s *scanner) readCount(off int) (uint64, int, bool) {
	w := s.cat.PointerWidth()
	if off < 0 || off+w > len(s.data) {
		return 0, 0, false
	}
	if w == 8 {
		return s.order.Uint64(s.data[off:]), 8, true
	}
	return uint64(s.order.Uint32(s.data[off:])), 4, true
}

func (s *scanner) arrayRange(off int) (span, bool) {
	start := off + 4
	count, w, ok := s.readCount(start)
	if !ok || start+w+4 > len(s.data) {
		s.partial = true
		return span{}, false
	}
	cl, ok := s.cat.Class(s.order.Uint32(s.data[start+w:]))
	if !ok || !cl.BlockTags {
		return span{}, false
	}
	size := uint64(cl.Size)
	if size == 0 {
		size = 1
	}
	return s.clamp(start, count, size), true
}

func (s *scanner) rawRange(off int) (span, bool) {
	start := off + 4
	size, w, ok := s.readCount(start)
	if !ok {
		s.partial = true
		return span{}, false
	}
	r := s.clamp(start+w, size, 1)
	r.start = start
	return r, true
}

// clamp returns [start, start+count*size) cut to the buffer. A range that
// runs past the end marks the tag partial.
func (s *scanner) clamp(start int, count, size uint64) span {
	avail := uint64(len(s.data) - start)
	if count > avail/size {
		s.partial = true
		return span{start, len(s.data)}
	}
	return span{start, start + int(count*size)}
}

func mergeSpans(in []span) []span {
	if len(in) < 2 {
		return in
	}
	sort.Slice(in, func(i, j int) bool { return in[i].start < in[j].start })
	out := in[:1]
	for _, r := range in[1:] {
		last := &out[len(out)-1]
		if r.start <= last.end {
			last.end = max(last.end, r.end)
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *scanner) classify() []model.Reference {
	var refs []model.Reference
	n := len(s.data)
	bi := 0
	off := 0
	for off+4 <= n {
		for bi < len(s.blocked) && s.blocked[bi].end <= off {
			bi++
		}
		if bi < len(s.blocked) && s.blocked[bi].start <= off {
			off = alignUp(s.blocked[bi].end, s.align)
			continue
		}

		v := s.order.Uint32(s.data[off:])
		step := s.align
		switch {
		case v == model.EmptyHash:
		case s.mode == catalog.ModeTag && model.HasTagIDPattern(v) && s.space.Contains(model.TagID(v)):
			// Marker values that name a real entry are recorded too.
			refs = append(refs, model.Reference{Offset: uint64(off), Kind: model.TargetTag, Value: uint64(v)})
		case s.cat.IsArrayMarker(v) || s.cat.IsRawStringMarker(v):
		case s.cat.IsKnownString(v) || s.space.KnownString(v):
			refs = append(refs, model.Reference{Offset: uint64(off), Kind: model.TargetString, Value: uint64(v)})
		case s.mode != catalog.ModeTag:
		default:
			if off%8 == 0 && off+8 <= n {
				if id, ok := s.space.Lookup64(s.order.Uint64(s.data[off:])); ok {
					refs = append(refs, model.Reference{Offset: uint64(off), Kind: model.TargetTag, Wide: true, Value: uint64(id)})
					step = max(step, 8)
					break
				}
			}
			if model.HasTagIDPattern(v) {
				refs = append(refs, model.Reference{Offset: uint64(off), Kind: model.TargetUnresolved, Value: uint64(v)})
			}
		}
		if len(refs) > 0 && refs[len(refs)-1].Offset == uint64(off) {
			// A recorded word is never reread at a finer alignment.
			step = max(step, 4)
		}
		off += step
	}
	if off < n {
		s.partial = true
	}
	return refs
}

func alignUp(v, a int) int {
	if r := v % a; r != 0 {
		return v + a - r
	}
	return v
}
