package main

import "time"

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLITag is a JSON-friendly tag representation.
type CLITag struct {
	ID         string         `json:"id"`
	Package    uint16         `json:"package"`
	Entry      uint16         `json:"entry"`
	TypeHash   string         `json:"type_hash"`
	Class      string         `json:"class,omitempty"`
	Recognized bool           `json:"recognized"`
	Size       uint32         `json:"size"`
	FileType   uint8          `json:"file_type"`
	Subtype    uint8          `json:"subtype"`
	Quality    string         `json:"quality"`
	Referrers  int            `json:"referrers"`
	References []CLIReference `json:"references,omitempty"`
	StringRefs []CLIStringRef `json:"string_refs,omitempty"`
}

// CLIReference is one classified field of a tag.
type CLIReference struct {
	Offset uint64 `json:"offset"`
	Kind   string `json:"kind"`
	Wide   bool   `json:"wide,omitempty"`
	Value  string `json:"value"`
}

// CLIStringRef is a string-hash field with every text known for it.
type CLIStringRef struct {
	Offset uint64      `json:"offset"`
	Hash   string      `json:"hash"`
	Names  []string    `json:"names,omitempty"`
	Texts  []CLIString `json:"texts,omitempty"`
}

// CLIEdge is a JSON-friendly tag-to-tag reference.
type CLIEdge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Offset uint64 `json:"offset"`
	Wide   bool   `json:"wide,omitempty"`
}

// CLIString is a JSON-friendly string entry.
type CLIString struct {
	Hash     string   `json:"hash"`
	Text     string   `json:"text"`
	Kind     string   `json:"kind"`
	Language string   `json:"language,omitempty"`
	Sources  []string `json:"sources,omitempty"`
}

// CLIGraph is a transitive reference walk.
type CLIGraph struct {
	Root      string         `json:"root"`
	Direction string         `json:"direction"`
	Depth     int            `json:"depth"`
	Nodes     []CLIGraphNode `json:"nodes"`
	Edges     []CLIEdge      `json:"edges"`
}

// CLIGraphNode is one tag reached by a walk.
type CLIGraphNode struct {
	ID      string `json:"id"`
	Depth   int    `json:"depth"`
	Class   string `json:"class,omitempty"`
	Missing bool   `json:"missing,omitempty"`
}

// CLISummary describes the cache and what its index holds.
type CLISummary struct {
	CachePath  string         `json:"cache_path"`
	Catalog    string         `json:"catalog"`
	RunID      string         `json:"run_id,omitempty"`
	SavedAt    *time.Time     `json:"saved_at,omitempty"`
	Archives   int            `json:"archives"`
	Tags       int            `json:"tags"`
	Strings    int            `json:"strings"`
	Edges      int            `json:"edges"`
	Degraded   int            `json:"degraded"`
	Unresolved int            `json:"unresolved"`
	ByQuality  map[string]int `json:"by_quality"`
}

// CLIScanReport is a JSON-friendly scan report.
type CLIScanReport struct {
	RunID      string             `json:"run_id"`
	Dir        string             `json:"dir"`
	State      string             `json:"state"`
	DurationMS int64              `json:"duration_ms"`
	Counts     map[string]int     `json:"counts"`
	Archives   []CLIArchiveResult `json:"archives"`
}

// CLIArchiveResult is one archive's scan outcome.
type CLIArchiveResult struct {
	Path           string `json:"path"`
	Archive        uint16 `json:"archive"`
	Patch          uint16 `json:"patch"`
	Status         string `json:"status"`
	Tags           int    `json:"tags"`
	Strings        int    `json:"strings"`
	Edges          int    `json:"edges"`
	DegradedTags   int    `json:"degraded_tags,omitempty"`
	SkippedStrings int    `json:"skipped_strings,omitempty"`
	Error          string `json:"error,omitempty"`
}

// CLICatalog describes one embedded catalog version.
type CLICatalog struct {
	Version         string `json:"version"`
	Selected        bool   `json:"selected"`
	Classes         int    `json:"classes"`
	KnownStrings    int    `json:"known_strings"`
	ByteOrder       string `json:"byte_order"`
	PointerWidth    int    `json:"pointer_width"`
	Alignment       int    `json:"alignment"`
	DefaultLanguage string `json:"default_language"`
}
