package strtable

import (
	"encoding/binary"
	"fmt"
)

// LocalizedString is one hash/text pair to encode.
type LocalizedString struct {
	Hash uint32
	Text string
}

// LocalizedTable describes a table for EncodeLocalized.
type LocalizedTable struct {
	Language string
	Encoding uint16
	Cipher   uint16
	Strings  []LocalizedString
}

// EncodeLocalized builds the byte form DecodeLocalized reads. Each text is
// stored once and NUL terminated.
func EncodeLocalized(order binary.ByteOrder, t LocalizedTable) ([]byte, error) {
	if len(t.Language) > 4 {
		return nil, fmt.Errorf("strtable: language %q longer than 4 bytes", t.Language)
	}
	head := make([]byte, localizedHeaderSize+pairSize*len(t.Strings))
	order.PutUint32(head[0:], uint32(len(t.Strings)))
	order.PutUint16(head[4:], t.Encoding)
	order.PutUint16(head[6:], t.Cipher)
	copy(head[8:12], t.Language)

	var blob []byte
	for i, s := range t.Strings {
		var text []byte
		var err error
		switch t.Encoding {
		case EncodingUTF8:
			text, err = shift([]byte(s.Text), t.Cipher)
			text = append(text, 0)
		case EncodingUTF16:
			text, err = utf16Codec(order).NewEncoder().Bytes([]byte(s.Text))
			text = append(text, 0, 0)
		default:
			err = fmt.Errorf("strtable: unknown encoding %d", t.Encoding)
		}
		if err != nil {
			return nil, err
		}
		p := head[localizedHeaderSize+i*pairSize:]
		order.PutUint32(p[0:], s.Hash)
		order.PutUint32(p[4:], uint32(len(blob)))
		blob = append(blob, text...)
	}
	return append(head, blob...), nil
}

// EncodeRawTable builds the byte form DecodeRawTable reads.
func EncodeRawTable(order binary.ByteOrder, pointerWidth int, texts ...string) []byte {
	var blob []byte
	for _, s := range texts {
		blob = append(blob, s...)
		blob = append(blob, 0)
	}
	out := make([]byte, pointerWidth, pointerWidth+len(blob))
	if pointerWidth == 8 {
		order.PutUint64(out, uint64(len(blob)))
	} else {
		order.PutUint32(out, uint32(len(blob)))
	}
	return append(out, blob...)
}
