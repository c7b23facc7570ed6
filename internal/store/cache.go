package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jward/tagscan/internal/index"
)

// LoadInfo describes what Load found. Discarded is empty when the file was
// used and otherwise says why it was ignored.
type LoadInfo struct {
	Path      string
	Found     bool
	Discarded string
	Archives  int
	RunID     string
	SavedAt   time.Time
}

// Load reads the cache artifact at path. A missing, unreadable or
// incompatible artifact yields an empty state; the reason is reported in
// LoadInfo and never returned as an error.
func Load(path, catalogVersion string) (*CacheState, LoadInfo) {
	info := LoadInfo{Path: path}
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			info.Discarded = err.Error()
		}
		return NewState(catalogVersion), info
	}
	info.Found = true

	state, err := load(path, catalogVersion, &info)
	if err != nil {
		info.Discarded = err.Error()
		info.Archives, info.RunID, info.SavedAt = 0, "", time.Time{}
		return NewState(catalogVersion), info
	}
	return state, info
}

func load(path, catalogVersion string, info *LoadInfo) (*CacheState, error) {
	s, err := OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	meta := make(map[string]string)
	for _, key := range []string{MetaSchemaVersion, MetaCatalogVersion, MetaAddressDigest, MetaRunID, MetaSavedAt} {
		v, _, err := s.GetMetadata(key)
		if err != nil {
			return nil, err
		}
		meta[key] = v
	}
	if v := meta[MetaSchemaVersion]; v != SchemaVersion {
		return nil, fmt.Errorf("schema version %q, want %q", v, SchemaVersion)
	}
	if v := meta[MetaCatalogVersion]; v != catalogVersion {
		return nil, fmt.Errorf("catalog version %q, want %q", v, catalogVersion)
	}

	state := NewState(catalogVersion)
	state.addressDigest = meta[MetaAddressDigest]
	state.runID = meta[MetaRunID]
	if t, err := time.Parse(time.RFC3339Nano, meta[MetaSavedAt]); err == nil {
		state.savedAt = t
	}

	fps, err := s.Archives()
	if err != nil {
		return nil, err
	}
	for _, fp := range fps {
		tags, err := s.ArchiveTags(fp.Archive)
		if err != nil {
			return nil, fmt.Errorf("archive %d: %w", fp.Archive, err)
		}
		strs, err := s.ArchiveStrings(fp.Archive)
		if err != nil {
			return nil, fmt.Errorf("archive %d: %w", fp.Archive, err)
		}
		state.Commit(fp, index.NewContribution(fp.Archive, tags, strs))
	}

	info.Archives = len(fps)
	info.RunID = state.runID
	info.SavedAt = state.savedAt
	return state, nil
}

// Save writes state to path atomically: a fresh database is built next to
// the target, synced, and renamed over it. Readers of the old artifact
// never see a partial write.
func Save(state *CacheState, path string) error {
	snap := state.snapshot()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tagscan-*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp cache: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	savedAt := time.Now().UTC()
	if err := writeSnapshot(tmpPath, snap, savedAt); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: %w", err)
	}
	if err := syncFile(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: sync temp cache: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: rename cache: %w", err)
	}
	if err := syncFile(dir); err != nil {
		return fmt.Errorf("store: sync cache directory: %w", err)
	}

	state.mu.Lock()
	state.savedAt = savedAt
	state.mu.Unlock()
	return nil
}

func writeSnapshot(path string, snap snapshot, savedAt time.Time) (err error) {
	s, err := NewStore(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	if err := s.Migrate(); err != nil {
		return err
	}
	for key, value := range map[string]string{
		MetaSchemaVersion:  SchemaVersion,
		MetaCatalogVersion: snap.catalogVersion,
		MetaAddressDigest:  snap.addressDigest,
		MetaRunID:          snap.runID,
		MetaSavedAt:        savedAt.Format(time.RFC3339Nano),
	} {
		if err := s.SetMetadata(key, value); err != nil {
			return err
		}
	}
	for _, a := range snap.archives {
		if err := s.CommitArchive(a.fp, a.c); err != nil {
			return err
		}
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
