package tagscan

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jward/tagscan/internal/catalog"
	"github.com/jward/tagscan/internal/decoder"
	"github.com/jward/tagscan/internal/fingerprint"
	"github.com/jward/tagscan/internal/index"
	"github.com/jward/tagscan/internal/model"
	"github.com/jward/tagscan/internal/store"
	"github.com/jward/tagscan/internal/strtable"
)

// archiveInfo is what enumeration learns about one archive.
type archiveInfo struct {
	path    string
	fp      model.Fingerprint
	entries int
	wide    []WideHash
	strings []uint32 // hashes defined by the archive's localized tables
	err     error
}

// batch is one worker's output for one archive.
type batch struct {
	info     *archiveInfo
	tags     []model.Tag
	strings  []model.StringEntry
	skipped  int
	degraded int
	pending  bool // handed out after cancellation, never decoded
	err      error
}

// Scan brings the cache up to date with the archives under dir using a
// three-phase pipeline:
//
//	Phase A (serial):   Enumerate, fingerprint, collect localized string
//	                    hashes, build the address space, validate.
//	Phase B (parallel): Decode stale archives in a bounded worker pool.
//	Phase C (serial):   Merge each batch into the cache state, then save.
//
// Per-archive failures are recorded in the report and never abort the run.
// Cancelling ctx stops dispatching new archives; archives already in flight
// are finished, committed and saved, and the returned error wraps ctx.Err().
func (e *Engine) Scan(ctx context.Context, dir string) (*Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer e.running.Store(false)

	report := newReport(absPath(dir))
	log := e.logger.With("run_id", report.RunID)
	e.progress.update(func(p *Progress) { *p = Progress{State: StateEnumerating} })

	// ---- Phase A: Enumerate and validate ----
	paths, err := listArchives(report.Dir)
	if err == nil && len(paths) == 0 {
		err = fmt.Errorf("%w in %s", ErrNoArchives, report.Dir)
	}
	if err != nil {
		e.progress.update(func(p *Progress) { p.State = StateIdle })
		return nil, err
	}
	log.Info("scan started", "path", report.Dir, "archives", len(paths), "version", e.catalog.Version())

	infos := e.probeArchives(paths)
	var readable []*archiveInfo
	for _, info := range infos {
		if info.err != nil {
			log.Warn("archive unreadable", "path", info.path, "err", info.err)
			report.add(ArchiveResult{Path: info.path, Status: StatusErrored, Err: info.err})
			continue
		}
		readable = append(readable, info)
	}

	kept, superseded := resolveSuperseded(readable)
	for _, info := range superseded {
		log.Debug("archive superseded", "archive", info.fp.Archive, "path", info.path, "patch", info.fp.Patch)
		report.add(ArchiveResult{Path: info.path, Archive: info.fp.Archive, Patch: info.fp.Patch, Status: StatusSuperseded})
	}

	space := buildAddressSpace(kept)
	digest := space.Digest()

	present := make(map[uint16]bool, len(kept))
	current := make([]model.Fingerprint, len(kept))
	for i, info := range kept {
		present[info.fp.Archive] = true
		current[i] = info.fp
	}
	if gone := e.state.Prune(present); len(gone) > 0 {
		log.Info("archives removed from cache", "archives", gone)
	}
	if digest != e.state.AddressDigest() && e.state.AddressDigest() != "" {
		log.Info("archive set changed, rescanning everything")
	}

	freshness := e.state.Validate(current, digest)
	var work []*archiveInfo
	for _, info := range kept {
		if freshness[info.fp.Archive] == store.Fresh {
			report.add(e.cachedResult(info))
			continue
		}
		work = append(work, info)
	}

	// ---- Phase B: Parallel decode ----
	report.State = StateScanning
	e.progress.update(func(p *Progress) {
		*p = Progress{State: StateScanning, ArchivesTotal: len(work)}
	})

	numWorkers := min(e.workers, len(work))
	workCh := make(chan *archiveInfo)
	resultCh := make(chan batch, numWorkers)
	pendingCh := make(chan []*archiveInfo, 1)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for info := range workCh {
				if ctx.Err() != nil {
					resultCh <- batch{info: info, pending: true}
					continue
				}
				resultCh <- e.scanArchive(info, space, log)
			}
		}()
	}

	go func() {
		defer close(workCh)
		for i, info := range work {
			if ctx.Err() != nil {
				pendingCh <- work[i:]
				return
			}
			select {
			case workCh <- info:
				e.progress.update(func(p *Progress) { p.CurrentArchive = info.path })
			case <-ctx.Done():
				pendingCh <- work[i:]
				return
			}
		}
		pendingCh <- nil
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// ---- Phase C: Serial merge ----
	var pending []*archiveInfo
	for b := range resultCh {
		if b.pending {
			pending = append(pending, b.info)
			continue
		}
		report.add(e.merge(b, log))
		e.progress.update(func(p *Progress) { p.ArchivesDone++ })
	}

	pending = append(pending, <-pendingCh...)
	for _, info := range pending {
		e.state.Forget(info.fp.Archive)
		report.add(ArchiveResult{Path: info.path, Archive: info.fp.Archive, Patch: info.fp.Patch, Status: StatusPending})
	}

	report.State = StateMerging
	e.progress.update(func(p *Progress) { p.State = StateMerging })
	e.state.SetAddressDigest(digest)
	e.state.SetRunID(report.RunID)
	saveErr := store.Save(e.state, e.cachePath)

	final := StateDone
	if len(pending) > 0 {
		final = StateCancelled
	}
	slices.SortFunc(report.Archives, func(a, b ArchiveResult) int { return cmp.Compare(a.Path, b.Path) })
	report.State = final
	report.Finished = time.Now()
	e.progress.update(func(p *Progress) { p.State = final })

	log.Info("scan finished",
		"state", final,
		"decoded", len(work)-len(pending),
		"cached", report.Count(StatusCached),
		"errored", report.Count(StatusErrored),
		"pending", len(pending),
		"duration", report.Duration(),
	)

	if saveErr != nil {
		log.Error("cache save failed", "path", e.cachePath, "err", saveErr)
		return report, fmt.Errorf("tagscan: save cache: %w", saveErr)
	}
	if final == StateCancelled {
		return report, fmt.Errorf("tagscan: scan cancelled: %w", ctx.Err())
	}
	return report, nil
}

// listArchives returns the *.pkg files under dir in lexical order, skipping
// hidden directories.
func listArchives(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pkg") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tagscan: list archives: %w", err)
	}
	return paths, nil
}

// probeArchives fingerprints and reads the header of every path in
// parallel. Results keep the order of paths.
func (e *Engine) probeArchives(paths []string) []*archiveInfo {
	out := make([]*archiveInfo, len(paths))
	idxCh := make(chan int, len(paths))
	for i := range paths {
		idxCh <- i
	}
	close(idxCh)

	var wg sync.WaitGroup
	for range min(e.workers, len(paths)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				out[i] = e.probeArchive(paths[i])
			}
		}()
	}
	wg.Wait()
	return out
}

func (e *Engine) probeArchive(path string) *archiveInfo {
	info := &archiveInfo{path: path}
	fp, err := fingerprint.Compute(path, e.fpMode)
	if err != nil {
		info.err = err
		return info
	}
	a, err := e.opener.Open(path)
	if err != nil {
		info.err = err
		return info
	}
	defer a.Close()

	fp.Archive = a.PackageID()
	fp.Patch = a.PatchID()
	fp.FormatVersion = a.FormatVersion()
	if fp.Archive > model.MaxPackageID {
		info.err = fmt.Errorf("package id %#x exceeds %#x", fp.Archive, model.MaxPackageID)
		return info
	}
	info.fp = fp
	entries := a.ListEntries()
	info.entries = len(entries)
	info.wide = a.WideHashes()
	info.strings = e.localizedHashes(a, entries)
	return info
}

// localizedHashes decodes the archive's localized string tables and returns
// the hashes they define. Unreadable tables are left for the decode phase
// to report.
func (e *Engine) localizedHashes(a Archive, entries []ArchiveEntry) []uint32 {
	var out []uint32
	for i, ent := range entries[:min(len(entries), model.MaxEntries)] {
		cl, ok := e.catalog.Class(ent.TypeHash)
		if !ok || cl.Kind != catalog.KindLocalizedStrings {
			continue
		}
		data, err := a.ReadEntry(i)
		if err != nil {
			continue
		}
		id := model.NewTagID(a.PackageID(), uint16(i))
		res := strtable.DecodeLocalized(e.catalog.ByteOrder(), e.catalog.DefaultLanguage(), id, data)
		for _, s := range res.Strings {
			out = append(out, s.Hash)
		}
	}
	return out
}

// resolveSuperseded keeps the highest patch of each package id. Ties go to
// the lexically first path.
func resolveSuperseded(infos []*archiveInfo) (kept, superseded []*archiveInfo) {
	sorted := slices.Clone(infos)
	slices.SortFunc(sorted, func(a, b *archiveInfo) int {
		return cmp.Or(
			cmp.Compare(a.fp.Archive, b.fp.Archive),
			cmp.Compare(b.fp.Patch, a.fp.Patch),
			cmp.Compare(a.path, b.path),
		)
	})
	for i, info := range sorted {
		if i > 0 && sorted[i-1].fp.Archive == info.fp.Archive {
			superseded = append(superseded, info)
			continue
		}
		kept = append(kept, info)
	}
	return kept, superseded
}

func buildAddressSpace(kept []*archiveInfo) *decoder.AddressSpace {
	b := decoder.NewAddressBuilder()
	for _, info := range kept {
		n := min(info.entries, model.MaxEntries)
		b.AddArchive(info.fp.Archive, n)
		for _, w := range info.wide {
			if int(w.Entry) < n {
				b.AddHash64(w.Hash, model.NewTagID(info.fp.Archive, uint16(w.Entry)))
			}
		}
		for _, h := range info.strings {
			b.AddStringHash(h)
		}
	}
	return b.Build()
}

// scanArchive decodes every entry of one archive in storage order. Entry
// read failures produce Unreadable tags; only a failure to open the archive
// fails the batch.
func (e *Engine) scanArchive(info *archiveInfo, space *decoder.AddressSpace, log *slog.Logger) batch {
	b := batch{info: info}
	a, err := e.opener.Open(info.path)
	if err != nil {
		b.err = err
		return b
	}
	defer a.Close()
	if a.PackageID() != info.fp.Archive || a.PatchID() != info.fp.Patch {
		b.err = fmt.Errorf("archive header changed during scan")
		return b
	}

	entries := a.ListEntries()
	n := min(len(entries), model.MaxEntries)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(x, y int) int {
		return cmp.Or(
			cmp.Compare(entries[x].Block, entries[y].Block),
			cmp.Compare(entries[x].Offset, entries[y].Offset),
		)
	})

	b.tags = make([]model.Tag, 0, n)
	for _, i := range order {
		ent := entries[i]
		data, err := a.ReadEntry(i)
		switch {
		case err != nil:
			log.Debug("entry unreadable", "archive", info.fp.Archive, "entry", i, "err", err)
			data = nil
		case data == nil:
			data = []byte{}
		}
		tag := decoder.Decode(e.catalog, space, decoder.Input{
			ID:       model.NewTagID(info.fp.Archive, uint16(i)),
			TypeHash: ent.TypeHash,
			Kind:     ent.Kind,
			Size:     ent.Size,
			Data:     data,
		})
		res := strtable.Extract(e.catalog, tag, data)
		if tag.Quality.Degraded() {
			b.degraded++
		}
		b.tags = append(b.tags, tag)
		b.strings = append(b.strings, res.Strings...)
		b.skipped += res.Skipped
	}
	return b
}

// merge commits one batch to the cache state. It runs on the single merging
// goroutine.
func (e *Engine) merge(b batch, log *slog.Logger) ArchiveResult {
	info := b.info
	res := ArchiveResult{Path: info.path, Archive: info.fp.Archive, Patch: info.fp.Patch}
	if b.err != nil {
		e.state.Drop(info.fp.Archive)
		log.Warn("archive failed", "archive", info.fp.Archive, "path", info.path, "err", b.err)
		res.Status = StatusErrored
		res.Err = b.err
		return res
	}

	c := index.NewContribution(info.fp.Archive, b.tags, b.strings)
	e.state.Commit(info.fp, c)

	res.Tags = len(c.Tags())
	res.Strings = len(c.Strings())
	res.Edges = c.EdgeCount()
	res.DegradedTags = b.degraded
	res.SkippedStrings = b.skipped
	res.Status = StatusResolved
	if b.degraded > 0 || b.skipped > 0 {
		res.Status = StatusPartial
	}
	log.Debug("archive merged", "archive", info.fp.Archive, "path", info.path, "tags", res.Tags, "status", res.Status)
	return res
}

// cachedResult reports a fresh archive from its cached contribution.
func (e *Engine) cachedResult(info *archiveInfo) ArchiveResult {
	res := ArchiveResult{Path: info.path, Archive: info.fp.Archive, Patch: info.fp.Patch, Status: StatusCached}
	if c, ok := e.state.Index().Contribution(info.fp.Archive); ok {
		res.Tags = len(c.Tags())
		res.Strings = len(c.Strings())
		res.Edges = c.EdgeCount()
		for _, t := range c.Tags() {
			if t.Quality.Degraded() {
				res.DegradedTags++
			}
		}
	}
	return res
}
