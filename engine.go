package tagscan

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/jward/tagscan/internal/fingerprint"
	"github.com/jward/tagscan/internal/store"
)

var (
	// ErrNoArchives is returned by Scan when the directory holds no *.pkg
	// files.
	ErrNoArchives = errors.New("tagscan: no archives found")
	// ErrScanInProgress is returned by Scan while another scan is running
	// on the same Engine.
	ErrScanInProgress = errors.New("tagscan: scan already in progress")
)

// FingerprintMode selects how archives are fingerprinted.
type FingerprintMode = fingerprint.Mode

const (
	FingerprintFull  = fingerprint.Full
	FingerprintQuick = fingerprint.Quick
)

// Engine owns one catalog and one cache. It runs scans and serves queries;
// queries may run concurrently with a scan.
type Engine struct {
	catalog   *Catalog
	cachePath string
	logger    *slog.Logger
	workers   int
	opener    ArchiveOpener
	fpMode    fingerprint.Mode

	state    *store.CacheState
	loadInfo store.LoadInfo

	running  atomic.Bool
	progress progressHub
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithWorkers bounds the number of archives decoded at once. Values below
// one mean one worker per CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithOpener replaces the archive reader. The default reads TPKG archives.
func WithOpener(o ArchiveOpener) Option {
	return func(e *Engine) {
		e.opener = o
	}
}

// WithFingerprintMode selects full content hashing (the default) or the
// quick size and mtime check.
func WithFingerprintMode(m FingerprintMode) Option {
	return func(e *Engine) {
		e.fpMode = m
	}
}

// New creates an Engine for cat backed by the cache file at cachePath. An
// existing cache is loaded; one that is missing, corrupt or built from a
// different catalog is ignored and replaced by the next successful Scan.
func New(cachePath string, cat *Catalog, opts ...Option) (*Engine, error) {
	if cat == nil {
		return nil, fmt.Errorf("tagscan: nil catalog")
	}
	if cachePath == "" {
		return nil, fmt.Errorf("tagscan: empty cache path")
	}
	e := &Engine{
		catalog:   cat,
		cachePath: cachePath,
		logger:    slog.New(slog.DiscardHandler),
		opener:    TPKGOpener,
		fpMode:    fingerprint.Full,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = runtime.NumCPU()
	}

	e.state, e.loadInfo = store.Load(cachePath, cat.CacheKey())
	switch {
	case e.loadInfo.Discarded != "":
		e.logger.Warn("cache discarded", "path", cachePath, "err", e.loadInfo.Discarded)
	case e.loadInfo.Found:
		e.logger.Debug("cache loaded", "path", cachePath, "archives", e.loadInfo.Archives, "run_id", e.loadInfo.RunID)
	}
	return e, nil
}

// Catalog returns the catalog the engine scans with.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// CachePath returns the path the cache is saved to.
func (e *Engine) CachePath() string { return e.cachePath }

// CacheInfo describes the cache as it was found when the Engine was created.
type CacheInfo struct {
	Path      string
	Found     bool
	Discarded string // why an existing file was ignored, empty if it was used
	Archives  int
	RunID     string
	SavedAt   time.Time // zero when no cache was loaded
}

// CacheInfo reports what New found at the cache path.
func (e *Engine) CacheInfo() CacheInfo {
	return CacheInfo{
		Path:      e.loadInfo.Path,
		Found:     e.loadInfo.Found,
		Discarded: e.loadInfo.Discarded,
		Archives:  e.loadInfo.Archives,
		RunID:     e.loadInfo.RunID,
		SavedAt:   e.loadInfo.SavedAt,
	}
}

// Query returns a QueryBuilder over the engine's current index.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{index: e.state.Index(), catalog: e.catalog}
}

// absPath returns path made absolute, or path itself if that fails.
func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
