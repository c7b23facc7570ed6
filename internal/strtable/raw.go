package strtable

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"

	"github.com/jward/tagscan/internal/catalog"
	"github.com/jward/tagscan/internal/model"
)

// DecodeRawTable decodes a raw string table: a pointer-width size followed
// by that many bytes of NUL-separated text.
func DecodeRawTable(order binary.ByteOrder, pointerWidth int, src model.TagID, data []byte) Result {
	var res Result
	blob, _, ok := readBlob(order, pointerWidth, data)
	if !ok {
		res.Skipped++
	}
	splitRaw(&res, src, blob)
	return res
}

// DecodeEmbeddedRaw finds raw string blobs inside ordinary tag data. Each
// blob follows a raw-string marker word and has the DecodeRawTable layout.
func DecodeEmbeddedRaw(cat *catalog.Catalog, src model.TagID, data []byte) Result {
	var res Result
	order := cat.ByteOrder()
	align := max(cat.Alignment(), 1)
	for off := 0; off+4 <= len(data); {
		if !cat.IsRawStringMarker(order.Uint32(data[off:])) {
			off += align
			continue
		}
		blob, n, ok := readBlob(order, cat.PointerWidth(), data[off+4:])
		if !ok {
			res.Skipped++
		}
		splitRaw(&res, src, blob)
		off = alignUp(off+4+max(n, 1), align)
	}
	return res
}

// readBlob returns the blob and the bytes consumed. ok is false when the
// header or blob was cut short; what remains is still returned.
func readBlob(order binary.ByteOrder, pointerWidth int, data []byte) ([]byte, int, bool) {
	if len(data) < pointerWidth {
		return nil, len(data), false
	}
	var size uint64
	if pointerWidth == 8 {
		size = order.Uint64(data)
	} else {
		size = uint64(order.Uint32(data))
	}
	body := data[pointerWidth:]
	if size > uint64(len(body)) {
		return body, len(data), false
	}
	return body[:size], pointerWidth + int(size), true
}

func splitRaw(res *Result, src model.TagID, blob []byte) {
	for piece := range bytes.SplitSeq(blob, []byte{0}) {
		if len(piece) == 0 {
			continue
		}
		if !utf8.Valid(piece) {
			res.Skipped++
			continue
		}
		text := string(piece)
		res.add(model.StringEntry{
			Hash:    model.FNV1String(text),
			Text:    text,
			Kind:    model.StringRaw,
			Sources: []model.TagID{src},
		})
	}
}

func alignUp(v, a int) int {
	if r := v % a; r != 0 {
		return v + a - r
	}
	return v
}
