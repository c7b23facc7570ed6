package tagscan

import (
	"time"

	"github.com/google/uuid"
)

// ArchiveStatus is the outcome for one archive in a scan run.
type ArchiveStatus uint8

const (
	// StatusCached archives matched the cache and were not decoded.
	StatusCached ArchiveStatus = iota
	StatusResolved
	// StatusPartial archives were decoded but some tags or strings were
	// degraded.
	StatusPartial
	StatusErrored
	// StatusSuperseded archives share a package id with a higher patch.
	StatusSuperseded
	// StatusPending archives were not dispatched before cancellation.
	StatusPending
)

var archiveStatusNames = [...]string{"cached", "resolved", "partial", "errored", "superseded", "pending"}

func (s ArchiveStatus) String() string {
	if int(s) < len(archiveStatusNames) {
		return archiveStatusNames[s]
	}
	return "unknown"
}

func (s ArchiveStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ArchiveResult describes one archive's outcome.
type ArchiveResult struct {
	Path           string        `json:"path"`
	Archive        uint16        `json:"archive"`
	Patch          uint16        `json:"patch"`
	Status         ArchiveStatus `json:"status"`
	Tags           int           `json:"tags"`
	Strings        int           `json:"strings"`
	Edges          int           `json:"edges"`
	DegradedTags   int           `json:"degraded_tags,omitempty"`
	SkippedStrings int           `json:"skipped_strings,omitempty"`
	Err            error         `json:"-"`
	Error          string        `json:"error,omitempty"`
}

// Report summarizes a scan run.
type Report struct {
	RunID    string          `json:"run_id"`
	Dir      string          `json:"dir"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
	State    ScanState       `json:"state"`
	Archives []ArchiveResult `json:"archives"`
}

func newReport(dir string) *Report {
	return &Report{RunID: uuid.NewString(), Dir: dir, Started: time.Now(), State: StateEnumerating}
}

func (r *Report) add(res ArchiveResult) {
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	r.Archives = append(r.Archives, res)
}

// Count returns how many archives ended with status s.
func (r *Report) Count(s ArchiveStatus) int {
	n := 0
	for _, a := range r.Archives {
		if a.Status == s {
			n++
		}
	}
	return n
}

// Archive returns the result for the archive at path.
func (r *Report) Archive(path string) (ArchiveResult, bool) {
	for _, a := range r.Archives {
		if a.Path == path {
			return a, true
		}
	}
	return ArchiveResult{}, false
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}
