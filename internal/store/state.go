package store

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/jward/tagscan/internal/index"
	"github.com/jward/tagscan/internal/model"
)

// Freshness is the outcome of validating one archive against the cache.
type Freshness uint8

const (
	Stale Freshness = iota
	Fresh
)

func (f Freshness) String() string {
	if f == Fresh {
		return "fresh"
	}
	return "stale"
}

// CacheState is the in-memory scan cache: per-archive fingerprints and the
// index built from them. The scheduler's merger is its only writer.
type CacheState struct {
	mu             sync.RWMutex
	catalogVersion string
	addressDigest  string
	runID          string
	savedAt        time.Time
	fingerprints   map[uint16]model.Fingerprint
	index          *index.Index
}

// NewState returns an empty state for catalogVersion.
func NewState(catalogVersion string) *CacheState {
	return &CacheState{
		catalogVersion: catalogVersion,
		fingerprints:   make(map[uint16]model.Fingerprint),
		index:          index.New(),
	}
}

func (s *CacheState) Index() *index.Index    { return s.index }
func (s *CacheState) CatalogVersion() string { return s.catalogVersion }

func (s *CacheState) AddressDigest() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addressDigest
}

func (s *CacheState) SetAddressDigest(d string) {
	s.mu.Lock()
	s.addressDigest = d
	s.mu.Unlock()
}

// RunID is the id of the scan run that last wrote the state.
func (s *CacheState) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

func (s *CacheState) SetRunID(id string) {
	s.mu.Lock()
	s.runID = id
	s.mu.Unlock()
}

// SavedAt is when the state was last persisted, zero if never.
func (s *CacheState) SavedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.savedAt
}

func (s *CacheState) Fingerprint(archive uint16) (model.Fingerprint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fp, ok := s.fingerprints[archive]
	return fp, ok
}

// Fingerprints returns the cached fingerprints ordered by archive id.
func (s *CacheState) Fingerprints() []model.Fingerprint {
	s.mu.RLock()
	out := make([]model.Fingerprint, 0, len(s.fingerprints))
	for _, fp := range s.fingerprints {
		out = append(out, fp)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.Fingerprint) int { return cmp.Compare(a.Archive, b.Archive) })
	return out
}

// Validate compares current fingerprints with the cached ones. Any field
// mismatch, a missing entry, or a changed address-space digest is Stale.
func (s *CacheState) Validate(current []model.Fingerprint, addressDigest string) map[uint16]Freshness {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint16]Freshness, len(current))
	digestOK := s.addressDigest != "" && s.addressDigest == addressDigest
	for _, fp := range current {
		cached, ok := s.fingerprints[fp.Archive]
		if digestOK && ok && cached.Matches(fp) {
			out[fp.Archive] = Fresh
		} else {
			out[fp.Archive] = Stale
		}
	}
	return out
}

// Commit replaces an archive's fingerprint and contribution.
func (s *CacheState) Commit(fp model.Fingerprint, c *index.Contribution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprints[fp.Archive] = fp
	s.index.Replace(c)
}

// Drop removes an archive entirely.
func (s *CacheState) Drop(archive uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fingerprints, archive)
	s.index.Remove(archive)
}

// Prune drops every archive not in present and returns the ids removed.
func (s *CacheState) Prune(present map[uint16]bool) []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var gone []uint16
	for id := range s.fingerprints {
		if !present[id] {
			gone = append(gone, id)
		}
	}
	for _, c := range s.index.Snapshot() {
		if !present[c.Archive()] && !slices.Contains(gone, c.Archive()) {
			gone = append(gone, c.Archive())
		}
	}
	for _, id := range gone {
		delete(s.fingerprints, id)
		s.index.Remove(id)
	}
	slices.Sort(gone)
	return gone
}

// Forget clears an archive's fingerprint so the next run rescans it. Its
// contribution stays queryable until then but is not saved.
func (s *CacheState) Forget(archive uint16) {
	s.mu.Lock()
	delete(s.fingerprints, archive)
	s.mu.Unlock()
}

type snapshot struct {
	catalogVersion string
	addressDigest  string
	runID          string
	archives       []archiveSnapshot
}

type archiveSnapshot struct {
	fp model.Fingerprint
	c  *index.Contribution
}

// snapshot captures the saveable archives: those with both a fingerprint
// and a contribution.
func (s *CacheState) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{catalogVersion: s.catalogVersion, addressDigest: s.addressDigest, runID: s.runID}
	for _, c := range s.index.Snapshot() {
		if fp, ok := s.fingerprints[c.Archive()]; ok {
			snap.archives = append(snap.archives, archiveSnapshot{fp: fp, c: c})
		}
	}
	return snap
}
