package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/tagscan/internal/index"
	"github.com/jward/tagscan/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

var (
	a0 = model.NewTagID(1, 0)
	a1 = model.NewTagID(1, 1)
	b0 = model.NewTagID(2, 0)
)

func fingerprint(archive uint16) model.Fingerprint {
	return model.Fingerprint{
		Archive:       archive,
		Path:          filepath.Join("packages", fmt.Sprintf("w64_sr_%03d.pkg", archive)),
		Size:          4096,
		ModTime:       1_700_000_000_000_000_000,
		FormatVersion: 2,
		Patch:         1,
		ContentHash:   "abc123",
	}
}

func contributionA() *index.Contribution {
	wide := model.Reference{Offset: 16, Kind: model.TargetTag, Wide: true, Value: uint64(b0)}
	return index.NewContribution(1, []model.Tag{
		{ID: a0, TypeHash: 0x8080001, Size: 40, Kind: model.EntryKind{Type: 8}},
		{
			ID: a1, TypeHash: 0x80806D44, Size: 24, Kind: model.EntryKind{Type: 8, Subtype: 2}, Quality: model.QualityPartial,
			References: []model.Reference{
				{Offset: 8, Kind: model.TargetTag, Value: uint64(a0)},
				{Offset: 12, Kind: model.TargetString, Value: 0xE810D505},
				wide,
				{Offset: 20, Kind: model.TargetUnresolved, Value: 0x80FFFFFF},
			},
		},
	}, []model.StringEntry{
		{Hash: 0x1234, Text: "Hello", Kind: model.StringLocalized, Language: "en", Sources: []model.TagID{a0}},
		{Hash: 0x1234, Text: "Hallo", Kind: model.StringLocalized, Language: "de", Sources: []model.TagID{a0}},
		{Hash: model.FNV1String("dbg"), Text: "dbg", Kind: model.StringRaw, Sources: []model.TagID{a0, a1}},
	})
}

func contributionB() *index.Contribution {
	return index.NewContribution(2, []model.Tag{{ID: b0, TypeHash: 0x10, Size: 4, Kind: model.EntryKind{Type: 32}, Quality: model.QualityOpaque}}, nil)
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"metadata", "archives", "tags", "strings"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, ok, err := s.GetMetadata(MetaCatalogVersion)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMetadata(MetaCatalogVersion, "d2_bl:0011"))
	require.NoError(t, s.SetMetadata(MetaCatalogVersion, "d2_bl:2233"))
	v, ok, err := s.GetMetadata(MetaCatalogVersion)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "d2_bl:2233", v)
}

func TestOpenReadOnly_RejectsWrites(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ro.db")
	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	require.NoError(t, s.Close())

	ro, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer ro.Close()
	require.Error(t, ro.SetMetadata("k", "v"))
}

func TestOpen_PathWithURIMetacharacters(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "odd?dir#1")
	require.NoError(t, os.Mkdir(dir, 0o755))
	path := filepath.Join(dir, "cache 100%?v=2#x.db")

	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	require.NoError(t, s.SetMetadata(MetaRunID, "run-1"))
	require.NoError(t, s.Close())
	_, err = os.Stat(path)
	require.NoError(t, err, "database created at the literal path")

	ro, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer ro.Close()
	v, ok, err := ro.GetMetadata(MetaRunID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "run-1", v)
}

// =============================================================================
// Archives
// =============================================================================

func TestCommitArchive_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	c := contributionA()
	require.NoError(t, s.CommitArchive(fingerprint(1), c))

	fps, err := s.Archives()
	require.NoError(t, err)
	require.Len(t, fps, 1)
	assert.Equal(t, fingerprint(1), fps[0])

	tags, err := s.ArchiveTags(1)
	require.NoError(t, err)
	assert.Equal(t, c.Tags(), tags)

	strs, err := s.ArchiveStrings(1)
	require.NoError(t, err)
	assert.ElementsMatch(t, c.Strings(), strs)
}

func TestCommitArchive_Replaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.CommitArchive(fingerprint(1), contributionA()))

	fp := fingerprint(1)
	fp.Size = 1
	smaller := index.NewContribution(1, []model.Tag{{ID: a0, TypeHash: 0x1}}, nil)
	require.NoError(t, s.CommitArchive(fp, smaller))

	fps, err := s.Archives()
	require.NoError(t, err)
	require.Len(t, fps, 1)
	assert.Equal(t, int64(1), fps[0].Size)
	tags, err := s.ArchiveTags(1)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Nil(t, tags[0].References)
	strs, err := s.ArchiveStrings(1)
	require.NoError(t, err)
	assert.Empty(t, strs)
}

func TestDeleteArchivesTx(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.CommitArchive(fingerprint(1), contributionA()))
	require.NoError(t, s.CommitArchive(fingerprint(2), contributionB()))

	tx, err := s.db.Begin()
	require.NoError(t, err)
	require.NoError(t, deleteArchivesTx(tx, []uint16{1}))
	require.NoError(t, tx.Commit())

	fps, err := s.Archives()
	require.NoError(t, err)
	require.Len(t, fps, 1)
	assert.Equal(t, uint16(2), fps[0].Archive)
	tags, err := s.ArchiveTags(1)
	require.NoError(t, err)
	assert.Empty(t, tags)
	tags, err = s.ArchiveTags(2)
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

// =============================================================================
// Blob codec
// =============================================================================

func TestRefs_Deterministic(t *testing.T) {
	t.Parallel()
	refs := contributionA().Tags()[1].References
	first, err := encodeRefs(refs)
	require.NoError(t, err)
	second, err := encodeRefs(refs)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	back, err := decodeRefs(first)
	require.NoError(t, err)
	assert.Equal(t, refs, back)
}

func TestRefs_Empty(t *testing.T) {
	t.Parallel()
	b, err := encodeRefs(nil)
	require.NoError(t, err)
	assert.Nil(t, b)
	refs, err := decodeRefs(nil)
	require.NoError(t, err)
	assert.Nil(t, refs)
}

func TestRefs_RejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := decodeRefs([]byte{0xFF})
	require.Error(t, err)

	// A well-formed record with an unknown target kind.
	b, err := encMode.Marshal([]refRecord{{Offset: 0, Kind: 9}})
	require.NoError(t, err)
	_, err = decodeRefs(b)
	require.Error(t, err)
}
