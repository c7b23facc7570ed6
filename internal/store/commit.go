package store

import (
	"database/sql"
	"fmt"

	"github.com/jward/tagscan/internal/index"
	"github.com/jward/tagscan/internal/model"
)

// CommitArchive writes one archive's fingerprint and contribution within a
// single transaction, replacing whatever was stored for it. A failure
// leaves the previous rows untouched.
//
// Insert order respects FK dependencies:
//  1. Archive row
//  2. Tags
//  3. Strings
func (s *Store) CommitArchive(fp model.Fingerprint, c *index.Contribution) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit archive %d: begin: %w", fp.Archive, err)
	}
	defer tx.Rollback()

	if err := deleteArchivesTx(tx, []uint16{fp.Archive}); err != nil {
		return fmt.Errorf("commit archive %d: %w", fp.Archive, err)
	}
	if err := insertArchiveTx(tx, fp); err != nil {
		return fmt.Errorf("commit archive %d: %w", fp.Archive, err)
	}
	if err := insertTagsTx(tx, fp.Archive, c.Tags()); err != nil {
		return fmt.Errorf("commit archive %d: %w", fp.Archive, err)
	}
	if err := insertStringsTx(tx, fp.Archive, c.Strings()); err != nil {
		return fmt.Errorf("commit archive %d: %w", fp.Archive, err)
	}
	return tx.Commit()
}

func insertArchiveTx(tx *sql.Tx, fp model.Fingerprint) error {
	_, err := tx.Exec(
		`INSERT INTO archives (id, path, size, mod_time, format_version, patch, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(fp.Archive), fp.Path, fp.Size, fp.ModTime, int64(fp.FormatVersion), int64(fp.Patch), fp.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("insert archive: %w", err)
	}
	return nil
}

func insertTagsTx(tx *sql.Tx, archive uint16, tags []model.Tag) error {
	stmt, err := tx.Prepare(
		`INSERT INTO tags (id, archive_id, type_hash, size, file_type, subtype, quality, refs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare tag insert: %w", err)
	}
	defer stmt.Close()
	for _, t := range tags {
		refs, err := encodeRefs(t.References)
		if err != nil {
			return fmt.Errorf("tag %s: %w", t.ID, err)
		}
		if _, err := stmt.Exec(
			int64(t.ID), int64(archive), int64(t.TypeHash), int64(t.Size),
			int64(t.Kind.Type), int64(t.Kind.Subtype), int64(t.Quality), refs,
		); err != nil {
			return fmt.Errorf("insert tag %s: %w", t.ID, err)
		}
	}
	return nil
}

func insertStringsTx(tx *sql.Tx, archive uint16, entries []model.StringEntry) error {
	stmt, err := tx.Prepare(
		`INSERT INTO strings (archive_id, hash, kind, language, text, sources)
		VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare string insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		sources, err := encodeSources(e.Sources)
		if err != nil {
			return fmt.Errorf("string %08X: %w", e.Hash, err)
		}
		if _, err := stmt.Exec(int64(archive), int64(e.Hash), int64(e.Kind), e.Language, e.Text, sources); err != nil {
			return fmt.Errorf("insert string %08X: %w", e.Hash, err)
		}
	}
	return nil
}
