// Package strtable extracts localized and raw strings from tag bytes.
//
// Extraction is fail-soft: malformed pairs and pieces are skipped and
// counted, and a table that decodes to nothing is not an error.
package strtable

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/jward/tagscan/internal/model"
)

// Text encodings of a localized table.
const (
	EncodingUTF8  uint16 = 0
	EncodingUTF16 uint16 = 1
)

const (
	localizedHeaderSize = 12
	pairSize            = 8
)

// Result is the output of one extraction.
type Result struct {
	Strings []model.StringEntry
	Skipped int
}

func (r *Result) add(e model.StringEntry) { r.Strings = append(r.Strings, e) }

// DecodeLocalized decodes a localized string table:
//
//	count u32 | encoding u16 | cipher u16 | language [4]byte
//	count x {hash u32, offset u32}
//	blob
//
// Offsets are relative to the blob. Each string ends at a NUL or at the end
// of the blob. Language falls back to defaultLang when the field is empty.
func DecodeLocalized(order binary.ByteOrder, defaultLang string, src model.TagID, data []byte) Result {
	var res Result
	if len(data) < localizedHeaderSize {
		res.Skipped = 1
		return res
	}
	count := uint64(order.Uint32(data[0:]))
	enc := order.Uint16(data[4:])
	cipher := order.Uint16(data[6:])
	lang := string(bytes.TrimRight(data[8:12], "\x00"))
	if lang == "" {
		lang = defaultLang
	}
	if enc != EncodingUTF8 && enc != EncodingUTF16 {
		res.Skipped = int(min(count, 1<<30))
		return res
	}

	pairs := data[localizedHeaderSize:]
	avail := uint64(len(pairs) / pairSize)
	if count > avail {
		res.Skipped += int(min(count-avail, 1<<30))
		count = avail
	}
	blob := pairs[count*pairSize:]

	for i := range count {
		p := pairs[i*pairSize:]
		hash := order.Uint32(p[0:])
		off := uint64(order.Uint32(p[4:]))
		if hash == model.EmptyHash || off >= uint64(len(blob)) {
			res.Skipped++
			continue
		}
		text, ok := decodeText(order, enc, cipher, blob[off:])
		if !ok {
			res.Skipped++
			continue
		}
		res.add(model.StringEntry{
			Hash:     hash,
			Text:     text,
			Kind:     model.StringLocalized,
			Language: lang,
			Sources:  []model.TagID{src},
		})
	}
	return res
}

func decodeText(order binary.ByteOrder, enc, cipher uint16, b []byte) (string, bool) {
	if enc == EncodingUTF16 {
		end := len(b) &^ 1
		for i := 0; i+1 < len(b); i += 2 {
			if b[i] == 0 && b[i+1] == 0 {
				end = i
				break
			}
		}
		out, err := utf16Codec(order).NewDecoder().Bytes(b[:end])
		if err != nil || !utf8.Valid(out) {
			return "", false
		}
		return string(out), true
	}

	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	b = unshift(b, cipher)
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

func utf16Codec(order binary.ByteOrder) encoding.Encoding {
	if order == binary.ByteOrder(binary.BigEndian) {
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
}
