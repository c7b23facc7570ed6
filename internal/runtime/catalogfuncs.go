package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/tagscan/internal/catalog"
)

// Catalog host functions. Hashes may be given as hex strings ("0x808099EF")
// or ints; strings are preferred since Risor ints are signed.

// set_endian("big" | "little")
func makeSetEndianFn(b *catalog.Builder) *object.Builtin {
	return object.NewBuiltin("set_endian", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("set_endian", 1, len(args))
		}
		s, err := toString(args[0])
		if err != nil {
			return object.Errorf("set_endian: %v", err)
		}
		switch s {
		case "big":
			b.SetByteOrder(true)
		case "little":
			b.SetByteOrder(false)
		default:
			return object.Errorf("set_endian: expected \"big\" or \"little\", got %q", s)
		}
		return object.Nil
	})
}

// set_alignment(4 | 8)
func makeSetAlignmentFn(b *catalog.Builder) *object.Builtin {
	return object.NewBuiltin("set_alignment", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("set_alignment", 1, len(args))
		}
		n, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("set_alignment: %v", err)
		}
		if n != 4 && n != 8 {
			return object.Errorf("set_alignment: must be 4 or 8, got %d", n)
		}
		b.SetAlignment(int(n))
		return object.Nil
	})
}

// set_pointer_width(4 | 8)
func makeSetPointerWidthFn(b *catalog.Builder) *object.Builtin {
	return object.NewBuiltin("set_pointer_width", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("set_pointer_width", 1, len(args))
		}
		n, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("set_pointer_width: %v", err)
		}
		if n != 4 && n != 8 {
			return object.Errorf("set_pointer_width: must be 4 or 8, got %d", n)
		}
		b.SetPointerWidth(int(n))
		return object.Nil
	})
}

// default_language(code)
func makeDefaultLanguageFn(b *catalog.Builder) *object.Builtin {
	return object.NewBuiltin("default_language", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("default_language", 1, len(args))
		}
		s, err := toString(args[0])
		if err != nil {
			return object.Errorf("default_language: %v", err)
		}
		b.SetDefaultLanguage(s)
		return object.Nil
	})
}

// define_class(hash, name, {"size": n, "block_tags": bool, "kind": name})
//
// The options map is optional.
func makeDefineClassFn(b *catalog.Builder) *object.Builtin {
	return object.NewBuiltin("define_class", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 && len(args) != 3 {
			return object.NewArgsError("define_class", 3, len(args))
		}
		hash, err := toHash(args[0])
		if err != nil {
			return object.Errorf("define_class: %v", err)
		}
		name, err := toString(args[1])
		if err != nil {
			return object.Errorf("define_class: name: %v", err)
		}

		cl := catalog.Class{Hash: hash, Name: name}
		if len(args) == 3 {
			m, err := extractMap(args[2])
			if err != nil {
				return object.Errorf("define_class: %v", err)
			}
			size := getInt64(m, "size")
			if size < 0 {
				return object.Errorf("define_class: %s: negative size", name)
			}
			cl.Size = uint32(size)
			cl.BlockTags = getBool(m, "block_tags")
			kind, ok := catalog.ParseKind(getStringDefault(m, "kind", "struct"))
			if !ok {
				return object.Errorf("define_class: %s: unknown kind %q", name, getString(m, "kind"))
			}
			cl.Kind = kind
		}
		b.AddClass(cl)
		return object.Nil
	})
}

// array_marker(hash)
func makeArrayMarkerFn(b *catalog.Builder) *object.Builtin {
	return makeHashFn("array_marker", b.AddArrayMarker)
}

// raw_string_marker(hash)
func makeRawStringMarkerFn(b *catalog.Builder) *object.Builtin {
	return makeHashFn("raw_string_marker", b.AddRawStringMarker)
}

// known_hash(hash)
func makeKnownHashFn(b *catalog.Builder) *object.Builtin {
	return makeHashFn("known_hash", b.AddKnownHash)
}

func makeHashFn(name string, add func(uint32)) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		h, err := toHash(args[0])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		add(h)
		return object.Nil
	})
}

// entry_mode(file_type, mode) or entry_mode(file_type, mode, subtype)
func makeEntryModeFn(b *catalog.Builder) *object.Builtin {
	return object.NewBuiltin("entry_mode", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 && len(args) != 3 {
			return object.NewArgsError("entry_mode", 2, len(args))
		}
		ft, err := toInt64(args[0])
		if err != nil || ft < 0 || ft > 0xFF {
			return object.Errorf("entry_mode: file type must be an int in [0, 255]")
		}
		s, err := toString(args[1])
		if err != nil {
			return object.Errorf("entry_mode: %v", err)
		}
		mode, ok := catalog.ParseMode(s)
		if !ok {
			return object.Errorf("entry_mode: unknown mode %q", s)
		}
		if len(args) == 3 {
			st, err := toInt64(args[2])
			if err != nil || st < 0 || st > 0xFF {
				return object.Errorf("entry_mode: subtype must be an int in [0, 255]")
			}
			b.SetSubtypeMode(uint8(ft), uint8(st), mode)
			return object.Nil
		}
		b.SetEntryMode(uint8(ft), mode)
		return object.Nil
	})
}

// known_string(text)
func makeKnownStringFn(b *catalog.Builder) *object.Builtin {
	return object.NewBuiltin("known_string", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("known_string", 1, len(args))
		}
		s, err := toString(args[0])
		if err != nil {
			return object.Errorf("known_string: %v", err)
		}
		b.AddKnownString(s)
		return object.Nil
	})
}

// load_wordlist(path) → number of words added
func makeLoadWordlistFn(b *catalog.Builder, read func(string) ([]byte, error)) *object.Builtin {
	return object.NewBuiltin("load_wordlist", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("load_wordlist", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("load_wordlist: %v", err)
		}
		data, err := read(path)
		if err != nil {
			return object.Errorf("load_wordlist: %v", err)
		}
		return object.NewInt(int64(b.AddWordlist(path, data)))
	})
}

// --- Argument helpers ---

func toHash(obj object.Object) (uint32, error) {
	switch v := obj.(type) {
	case *object.String:
		s := strings.TrimSpace(v.Value())
		n, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid hash %q", s)
		}
		return uint32(n), nil
	case *object.Int:
		n := v.Value()
		if n < 0 || n > 0xFFFFFFFF {
			return 0, fmt.Errorf("hash %d out of range", n)
		}
		return uint32(n), nil
	}
	return 0, fmt.Errorf("expected hash string or int, got %s", obj.Type())
}

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, ok := v.(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getStringDefault(m map[string]object.Object, key, def string) string {
	v := getString(m, key)
	if v == "" {
		return def
	}
	return v
}

func getInt64(m map[string]object.Object, key string) int64 {
	v, ok := m[key]
	if !ok {
		return 0
	}
	if i, ok := v.(*object.Int); ok {
		return i.Value()
	}
	if f, ok := v.(*object.Float); ok {
		return int64(f.Value())
	}
	return 0
}

func getBool(m map[string]object.Object, key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	if b, ok := v.(*object.Bool); ok {
		return b.Value()
	}
	return false
}

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
