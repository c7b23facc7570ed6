package runtime

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/tagscan/internal/catalog"
	"github.com/jward/tagscan/internal/model"
)

// runCatalog evaluates source against a fresh builder and returns the
// resulting catalog.
func runCatalog(t *testing.T, source string, opts ...RuntimeOption) (*catalog.Catalog, error) {
	t.Helper()
	b := catalog.NewBuilder("test")
	rt := NewRuntime(b, "", opts...)
	if err := rt.RunSource(context.Background(), source, nil); err != nil {
		return nil, err
	}
	return b.Build()
}

// ============================================================================
// Catalog host functions
// ============================================================================

func TestDefineClass(t *testing.T) {
	t.Parallel()
	c, err := runCatalog(t, `
define_class("0x80800090", "vec4", {"size": 16, "block_tags": true, "kind": "primitive"})
define_class("0x808099EF", "s_localized_strings", {"kind": "localized_strings"})
define_class("0x80801234", "s_plain")
`)
	require.NoError(t, err)

	vec4, ok := c.Class(0x80800090)
	require.True(t, ok)
	assert.Equal(t, "vec4", vec4.Name)
	assert.Equal(t, uint32(16), vec4.Size)
	assert.True(t, vec4.BlockTags)
	assert.Equal(t, catalog.KindPrimitive, vec4.Kind)

	ls, ok := c.Class(0x808099EF)
	require.True(t, ok)
	assert.Equal(t, catalog.KindLocalizedStrings, ls.Kind)

	plain, ok := c.Class(0x80801234)
	require.True(t, ok)
	assert.Equal(t, catalog.KindStruct, plain.Kind)
}

func TestDefineClass_InvalidHash(t *testing.T) {
	t.Parallel()
	_, err := runCatalog(t, `define_class("not-a-hash", "x")`)
	require.Error(t, err)
}

func TestDefineClass_UnknownKind(t *testing.T) {
	t.Parallel()
	_, err := runCatalog(t, `define_class("0x1", "x", {"kind": "bogus"})`)
	require.Error(t, err)
}

func TestLayoutFunctions(t *testing.T) {
	t.Parallel()
	c, err := runCatalog(t, `
set_endian("big")
set_alignment(4)
set_pointer_width(4)
default_language("fr")
`)
	require.NoError(t, err)
	assert.Equal(t, binary.BigEndian, c.ByteOrder())
	assert.Equal(t, 4, c.Alignment())
	assert.Equal(t, 4, c.PointerWidth())
	assert.Equal(t, "fr", c.DefaultLanguage())
}

func TestLayoutFunctions_Rejected(t *testing.T) {
	t.Parallel()
	for _, src := range []string{
		`set_endian("middle")`,
		`set_alignment(3)`,
		`set_pointer_width(16)`,
		`entry_mode(8, "sometimes")`,
		`entry_mode(300, "tag")`,
	} {
		_, err := runCatalog(t, src)
		assert.Error(t, err, src)
	}
}

func TestMarkersAndModes(t *testing.T) {
	t.Parallel()
	c, err := runCatalog(t, `
array_marker("0x80809fbd")
raw_string_marker("0x80800065")
entry_mode(8, "tag")
entry_mode(26, "hashes", 6)
`)
	require.NoError(t, err)
	assert.True(t, c.IsArrayMarker(0x80809FBD))
	assert.True(t, c.IsRawStringMarker(0x80800065))
	assert.Equal(t, catalog.ModeTag, c.EntryMode(8, 0))
	assert.Equal(t, catalog.ModeHashes, c.EntryMode(26, 6))
	assert.Equal(t, catalog.ModeOpaque, c.EntryMode(26, 0))
}

func TestKnownStrings(t *testing.T) {
	t.Parallel()
	c, err := runCatalog(t, `
known_string("destination")
known_hash("0x1234")
`)
	require.NoError(t, err)
	assert.True(t, c.IsKnownString(model.FNV1String("destination")))
	assert.True(t, c.IsKnownString(0x1234))
}

func TestLoadWordlist_FromFS(t *testing.T) {
	t.Parallel()
	mapFS := fstest.MapFS{
		"words.txt": &fstest.MapFile{Data: []byte("alpha\nbeta\n")},
	}
	b := catalog.NewBuilder("test")
	rt := NewRuntime(b, "", WithRuntimeFS(mapFS))
	err := rt.RunSource(context.Background(), `
n := load_wordlist("words.txt")
assert(n == 2, 'expected 2 words, got {n}')
`, nil)
	require.NoError(t, err)
	c, err := b.Build()
	require.NoError(t, err)
	assert.True(t, c.IsKnownString(model.FNV1String("beta")))
}

func TestLoadWordlist_Missing(t *testing.T) {
	t.Parallel()
	_, err := runCatalog(t, `load_wordlist("nope.txt")`, WithRuntimeFS(fstest.MapFS{}))
	require.Error(t, err)
}

func TestNilBuilder_OnlyLog(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, "")
	err := rt.RunSource(context.Background(), `log.Info("hello")`, nil)
	require.NoError(t, err)

	err = rt.RunSource(context.Background(), `define_class("0x1", "x")`, nil)
	require.Error(t, err, "catalog functions require a builder")
}

// ============================================================================
// Script loading
// ============================================================================

func TestRunScript_LoadsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.risor"), []byte(`result := 1 + 1`), 0644))

	rt := NewRuntime(nil, dir)
	require.NoError(t, rt.RunScript(context.Background(), "test.risor", nil))
}

func TestRunScript_MissingFile(t *testing.T) {
	rt := NewRuntime(nil, t.TempDir())
	err := rt.RunScript(context.Background(), "nonexistent.risor", nil)
	require.Error(t, err)
}

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()
	mapFS := fstest.MapFS{
		"versions/d2_bl.risor": &fstest.MapFile{Data: []byte(`x := 42`)},
	}
	rt := NewRuntime(nil, "", WithRuntimeFS(mapFS))

	got, err := rt.LoadScript("/versions/d2_bl.risor")
	require.NoError(t, err)
	assert.Equal(t, `x := 42`, got)

	_, err = rt.LoadScript("versions/none.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

func TestCatalogScriptPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, filepath.Join("versions", "d2_bl.risor"), CatalogScriptPath("d2_bl"))
}

// ============================================================================
// Importer wiring
// ============================================================================

func TestImport_SharedDefinitions(t *testing.T) {
	// Imported modules see host globals, so shared class tables can live in
	// their own module.
	mapFS := fstest.MapFS{
		"primitives.risor": &fstest.MapFile{Data: []byte(`
func define_primitives() {
	define_class("0x80800009", "byte", {"size": 1, "block_tags": true, "kind": "primitive"})
}
`)},
	}
	c, err := runCatalog(t, `
import primitives
primitives.define_primitives()
`, WithRuntimeFS(mapFS))
	require.NoError(t, err)
	_, ok := c.Class(0x80800009)
	assert.True(t, ok)
}

func TestImport_LocalImporter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "math_utils.risor"), []byte(`
func double(x) {
	return x * 2
}
`), 0644))

	rt := NewRuntime(nil, dir)
	err := rt.RunSource(context.Background(), `
import math_utils
result := math_utils.double(21)
assert(result == 42, 'expected 42, got {result}')
`, nil)
	require.NoError(t, err)
}

func TestRunSource_ExtraGlobals(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, "")
	err := rt.RunSource(context.Background(), `assert(answer == 42, "expected 42")`, map[string]any{"answer": 42})
	require.NoError(t, err)
}
