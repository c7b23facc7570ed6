package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/tagscan"
	"github.com/jward/tagscan/internal/model"
	"github.com/jward/tagscan/internal/pkgfile"
	"github.com/jward/tagscan/internal/strtable"
)

const (
	localizedClass = 0x808099EF
	meshClass      = 0x80806D44
)

var (
	t0       = tagscan.NewTagID(1, 0)
	t1       = tagscan.NewTagID(1, 1)
	t2       = tagscan.NewTagID(1, 2)
	idleHash = model.FNV1String("idle")
)

func words(vals ...uint32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}
	return out
}

// packageDir writes one archive: T0 holds "Idle Stance" under the hash of
// "idle", T1 references T0 and that hash, T2 references T1.
func packageDir(t *testing.T) string {
	t.Helper()
	table, err := strtable.EncodeLocalized(binary.LittleEndian, strtable.LocalizedTable{
		Language: "en",
		Encoding: strtable.EncodingUTF8,
		Strings:  []strtable.LocalizedString{{Hash: idleHash, Text: "Idle Stance"}},
	})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, pkgfile.WriteFile(filepath.Join(dir, "w64_test_001.pkg"), pkgfile.Spec{
		PackageID: 1, PatchID: 1, Codec: pkgfile.CodecZstd,
		Entries: []pkgfile.EntrySpec{
			{TypeHash: localizedClass, FileType: 8, Data: table},
			{TypeHash: meshClass, FileType: 8, Data: words(0, 0, uint32(t0), idleHash)},
			{TypeHash: meshClass, FileType: 8, Data: words(uint32(t1))},
		},
	}))
	return dir
}

// run executes the CLI in-process and returns stdout, stderr and the error.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c := newCLI(&stdout, &stderr)
	cmd := c.root()
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// runJSON executes a command expected to succeed and decodes its envelope.
func runJSON(t *testing.T, args ...string) map[string]any {
	t.Helper()
	stdout, stderr, err := run(t, args...)
	require.NoError(t, err, "stderr: %s", stderr)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &result), "invalid JSON output: %s", stdout)
	return result
}

// scanned returns a cache path already populated from packageDir.
func scanned(t *testing.T) string {
	t.Helper()
	cache := filepath.Join(t.TempDir(), "tagscan.cache")
	runJSON(t, "--cache", cache, "scan", packageDir(t))
	return cache
}

func results(t *testing.T, result map[string]any) []any {
	t.Helper()
	items, ok := result["results"].([]any)
	require.True(t, ok, "results is %T", result["results"])
	return items
}

// =============================================================================
// Scan
// =============================================================================

func TestScan_ReportsArchives(t *testing.T) {
	t.Parallel()
	dir := packageDir(t)
	cache := filepath.Join(t.TempDir(), "tagscan.cache")

	result := runJSON(t, "--cache", cache, "scan", dir)
	assert.Equal(t, "scan", result["command"])
	report := result["results"].(map[string]any)
	assert.Equal(t, "done", report["state"])
	assert.Equal(t, map[string]any{"resolved": float64(1)}, report["counts"])
	archives := report["archives"].([]any)
	require.Len(t, archives, 1)
	a := archives[0].(map[string]any)
	assert.Equal(t, float64(3), a["tags"])
	assert.Equal(t, float64(2), a["edges"])
	assert.FileExists(t, cache)

	again := runJSON(t, "--cache", cache, "scan", dir)
	assert.Equal(t, map[string]any{"cached": float64(1)}, again["results"].(map[string]any)["counts"])
}

func TestScan_MissingDirectory(t *testing.T) {
	t.Parallel()
	stdout, _, err := run(t, "--cache", filepath.Join(t.TempDir(), "c"), "scan", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory not found")

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, "scan", result["command"])
	assert.Contains(t, result["error"], "directory not found")
}

func TestScan_NoArchives(t *testing.T) {
	t.Parallel()
	_, _, err := run(t, "--cache", filepath.Join(t.TempDir(), "c"), "scan", t.TempDir())
	require.ErrorIs(t, err, tagscan.ErrNoArchives)
}

func TestScan_TextFormat(t *testing.T) {
	t.Parallel()
	stdout, _, err := run(t, "--format", "text", "--cache", filepath.Join(t.TempDir(), "c"), "scan", packageDir(t))
	require.NoError(t, err)
	assert.Contains(t, stdout, "PATH")
	assert.Contains(t, stdout, "w64_test_001.pkg")
	assert.Contains(t, stdout, "done: 1 archives")
	assert.Contains(t, stdout, "1 resolved")
}

// =============================================================================
// Configuration
// =============================================================================

func TestConfig_FileProvidesDefaults(t *testing.T) {
	t.Parallel()
	dir := packageDir(t)
	cache := filepath.Join(t.TempDir(), "from-config.cache")
	cfgPath := filepath.Join(t.TempDir(), "tagscan.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"packages_dir: "+dir+"\ncache_path: "+cache+"\nworkers: 2\nfingerprint: quick\n",
	), 0o644))

	runJSON(t, "--config", cfgPath, "scan")
	assert.FileExists(t, cache)

	// An explicit flag wins over the file.
	other := filepath.Join(t.TempDir(), "flag.cache")
	_, _, err := run(t, "--config", cfgPath, "--cache", other, "query", "summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache not found")
}

func TestConfig_InvalidValues(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "tagscan.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("workers: -1\n"), 0o644))
	_, _, err := run(t, "--config", cfgPath, "catalogs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")

	_, _, err = run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "catalogs")
	require.Error(t, err)
}

func TestScan_RejectsBadFingerprintFlag(t *testing.T) {
	t.Parallel()
	_, _, err := run(t, "--cache", filepath.Join(t.TempDir(), "c"), "scan", "--fingerprint", "sometimes", packageDir(t))
	require.Error(t, err)
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.Error(t, validateFormat("xml"))

	_, _, err := run(t, "--format", "xml", "catalogs")
	require.Error(t, err)
}

// =============================================================================
// Query
// =============================================================================

func TestQuery_Tag(t *testing.T) {
	t.Parallel()
	cache := scanned(t)

	result := runJSON(t, "--cache", cache, "query", "tag", "1:1")
	tag := result["results"].(map[string]any)
	assert.Equal(t, t1.String(), tag["id"])
	assert.Equal(t, "s_static_mesh", tag["class"])
	assert.Equal(t, true, tag["recognized"])
	assert.Equal(t, float64(1), tag["referrers"])

	refs := tag["references"].([]any)
	require.Len(t, refs, 2)
	assert.Equal(t, "tag", refs[0].(map[string]any)["kind"])
	assert.Equal(t, "string", refs[1].(map[string]any)["kind"])

	strs := tag["string_refs"].([]any)
	require.Len(t, strs, 1)
	sr := strs[0].(map[string]any)
	assert.Equal(t, []any{"idle"}, sr["names"])
	texts := sr["texts"].([]any)
	require.Len(t, texts, 1)
	assert.Equal(t, "Idle Stance", texts[0].(map[string]any)["text"])
}

func TestQuery_TagNotFound(t *testing.T) {
	t.Parallel()
	cache := scanned(t)
	stdout, _, err := run(t, "--cache", cache, "query", "tag", "1:1FF")
	require.Error(t, err)
	assert.Contains(t, stdout, "not found")

	_, _, err = run(t, "--cache", cache, "query", "tag", "12345678")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tag id")
}

func TestQuery_RefsAndRefby(t *testing.T) {
	t.Parallel()
	cache := scanned(t)

	refs := results(t, runJSON(t, "--cache", cache, "query", "refs", t1.String()))
	require.Len(t, refs, 1)
	assert.Equal(t, t0.String(), refs[0].(map[string]any)["to"])
	assert.Equal(t, float64(8), refs[0].(map[string]any)["offset"])

	refby := results(t, runJSON(t, "--cache", cache, "query", "refby", t0.String()))
	require.Len(t, refby, 1)
	assert.Equal(t, t1.String(), refby[0].(map[string]any)["from"])

	byString := results(t, runJSON(t, "--cache", cache, "query", "refby", "--string", hashString(idleHash)))
	assert.Equal(t, []any{t1.String()}, byString)
}

func TestQuery_Strings(t *testing.T) {
	t.Parallel()
	cache := scanned(t)

	found := runJSON(t, "--cache", cache, "query", "strings", "stance")
	assert.Equal(t, float64(1), found["total_count"])
	entry := results(t, found)[0].(map[string]any)
	assert.Equal(t, "Idle Stance", entry["text"])
	assert.Equal(t, "localized", entry["kind"])
	assert.Equal(t, "en", entry["language"])

	exact := runJSON(t, "--cache", cache, "query", "strings", "--exact", "stance")
	assert.Equal(t, float64(0), exact["total_count"])

	raw := runJSON(t, "--cache", cache, "query", "strings", "--kind", "raw")
	assert.Equal(t, float64(0), raw["total_count"])

	byHash := runJSON(t, "--cache", cache, "query", "strings", "--hash", hashString(idleHash))
	assert.Equal(t, float64(1), byHash["total_count"])

	ofTag := runJSON(t, "--cache", cache, "query", "strings", "--tag", t0.String())
	assert.Equal(t, float64(1), ofTag["total_count"])

	_, _, err := run(t, "--cache", cache, "query", "strings", "--kind", "other")
	require.Error(t, err)
}

func TestQuery_TypePagination(t *testing.T) {
	t.Parallel()
	cache := scanned(t)

	result := runJSON(t, "--cache", cache, "query", "type", "0x80806D44", "--limit", "1")
	assert.Equal(t, float64(2), result["total_count"])
	items := results(t, result)
	require.Len(t, items, 1)
	assert.Equal(t, t1.String(), items[0].(map[string]any)["id"])

	next := results(t, runJSON(t, "--cache", cache, "query", "type", "80806D44", "--limit", "1", "--offset", "1"))
	require.Len(t, next, 1)
	assert.Equal(t, t2.String(), next[0].(map[string]any)["id"])

	stdout, _, err := run(t, "--format", "text", "--cache", cache, "query", "type", "80806D44", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Showing 1 of 2 results")
}

func TestQuery_Graph(t *testing.T) {
	t.Parallel()
	cache := scanned(t)

	g := runJSON(t, "--cache", cache, "query", "graph", t2.String())["results"].(map[string]any)
	nodes := g["nodes"].([]any)
	require.Len(t, nodes, 3)
	assert.Equal(t, t0.String(), nodes[2].(map[string]any)["id"])
	assert.Equal(t, "s_localized_strings", nodes[2].(map[string]any)["class"])
	assert.Equal(t, float64(2), g["depth"])

	shallow := runJSON(t, "--cache", cache, "query", "graph", t2.String(), "--max-depth", "1")["results"].(map[string]any)
	assert.Len(t, shallow["nodes"].([]any), 2)

	reverse := runJSON(t, "--cache", cache, "query", "graph", t0.String(), "--reverse")["results"].(map[string]any)
	assert.Equal(t, "referrers", reverse["direction"])
	assert.Len(t, reverse["nodes"].([]any), 3)

	_, _, err := run(t, "--cache", cache, "query", "graph", t2.String(), "--max-depth", "-1")
	require.Error(t, err)
}

func TestQuery_Summary(t *testing.T) {
	t.Parallel()
	cache := scanned(t)

	s := runJSON(t, "--cache", cache, "query", "summary")["results"].(map[string]any)
	assert.Equal(t, float64(1), s["archives"])
	assert.Equal(t, float64(3), s["tags"])
	assert.Equal(t, float64(2), s["edges"])
	assert.Equal(t, "d2_bl", s["catalog"])
	assert.NotEmpty(t, s["run_id"])

	stdout, _, err := run(t, "--format", "text", "--cache", cache, "query", "summary")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Tags: 3")
	assert.Contains(t, stdout, "Catalog: d2_bl")
}

func TestQuery_CacheNotFound(t *testing.T) {
	t.Parallel()
	_, _, err := run(t, "--cache", filepath.Join(t.TempDir(), "none.cache"), "query", "summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run 'tagscan scan' first")
}

func TestQuery_CacheFromOtherCatalog(t *testing.T) {
	t.Parallel()
	cache := scanned(t)
	_, _, err := run(t, "--cache", cache, "--version", "d2_sk", "query", "summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unusable")
}

// =============================================================================
// Catalogs
// =============================================================================

func TestCatalogs(t *testing.T) {
	t.Parallel()
	items := results(t, runJSON(t, "catalogs"))
	require.Len(t, items, len(tagscan.CatalogVersions()))

	var selected []string
	for _, item := range items {
		m := item.(map[string]any)
		assert.Positive(t, m["classes"].(float64), m["version"])
		if m["selected"] == true {
			selected = append(selected, m["version"].(string))
		}
	}
	assert.Equal(t, []string{"d2_bl"}, selected)

	stdout, _, err := run(t, "--format", "text", "--version", "d1_ttk", "catalogs")
	require.NoError(t, err)
	assert.Contains(t, stdout, "d1_ttk")
	assert.Contains(t, stdout, "VERSION")
}
