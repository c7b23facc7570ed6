// Package fingerprint computes the per-archive snapshot used to decide
// whether cached scan results are still valid.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/jward/tagscan/internal/model"
)

// Mode selects how much of an archive is read.
type Mode uint8

const (
	// Full hashes the archive contents with blake3.
	Full Mode = iota
	// Quick trusts size and modification time and leaves ContentHash empty.
	Quick
)

func (m Mode) String() string {
	if m == Quick {
		return "quick"
	}
	return "full"
}

// ParseMode maps "full" or "quick" to a Mode. Empty means Full.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "full":
		return Full, nil
	case "quick":
		return Quick, nil
	}
	return Full, fmt.Errorf("fingerprint: unknown mode %q", s)
}

// Compute stats path and, in Full mode, hashes it. Archive, patch and
// format fields are left for the caller, which reads them from the header.
func Compute(path string, mode Mode) (model.Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Fingerprint{}, fmt.Errorf("fingerprint: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return model.Fingerprint{}, fmt.Errorf("fingerprint: %w", err)
	}
	fp := model.Fingerprint{Path: path, Size: st.Size(), ModTime: st.ModTime().UnixNano()}
	if mode == Full {
		if fp.ContentHash, err = ContentHash(f); err != nil {
			return model.Fingerprint{}, fmt.Errorf("fingerprint: %s: %w", path, err)
		}
	}
	return fp, nil
}

// ContentHash returns the hex blake3 digest of everything r yields.
func ContentHash(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
