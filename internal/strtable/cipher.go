package strtable

import (
	"fmt"
	"unicode/utf8"
)

// unshift undoes the legacy localization cipher. Each UTF-8 code unit has
// one byte shifted: the lead byte of a single-byte unit, otherwise the
// byte at the unit's length minus one. The lead byte of the stored data
// picks the unit length.
func unshift(data []byte, amount uint16) []byte {
	if amount == 0 {
		return data
	}
	s := byte(amount)
	out := make([]byte, len(data))
	copy(out, data)
	for off := 0; off < len(data); {
		n := unitLen(data[off])
		if i := off + n - 1; i < len(out) {
			out[i] += s
		}
		off += n
	}
	return out
}

// shift is the inverse of unshift. It fails when a single-byte unit would
// be stored as a lead byte.
func shift(text []byte, amount uint16) ([]byte, error) {
	if amount == 0 {
		return text, nil
	}
	s := byte(amount)
	out := make([]byte, len(text))
	copy(out, text)
	for off := 0; off < len(text); {
		_, n := utf8.DecodeRune(text[off:])
		i := off + n - 1
		out[i] -= s
		if n == 1 && out[i] > 0xBF {
			return nil, fmt.Errorf("strtable: byte %#x at %d cannot carry shift %d", text[off], off, amount)
		}
		if unitLen(out[off]) != n {
			return nil, fmt.Errorf("strtable: invalid UTF-8 at %d", off)
		}
		off += n
	}
	return out, nil
}

func unitLen(lead byte) int {
	switch {
	case lead <= 0xBF:
		return 1
	case lead <= 0xDF:
		return 2
	case lead <= 0xEF:
		return 3
	}
	return 4
}
