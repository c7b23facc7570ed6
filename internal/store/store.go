package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jward/tagscan/internal/model"
)

// SchemaVersion is bumped whenever the table layout or a blob encoding
// changes. Caches with another version are discarded on load.
const SchemaVersion = "1"

// Metadata keys.
const (
	MetaSchemaVersion  = "schema_version"
	MetaCatalogVersion = "catalog_version"
	MetaAddressDigest  = "address_digest"
	MetaRunID          = "run_id"
	MetaSavedAt        = "saved_at"
)

// Store is the SQLite data access layer for the cache artifact.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) a SQLite database at dbPath. The
// artifact is a single file, so the rollback journal is used instead of WAL.
func NewStore(dbPath string) (*Store, error) {
	return open(fileURI(dbPath, "_journal_mode=DELETE&_foreign_keys=ON&_busy_timeout=30000"))
}

// OpenReadOnly opens an existing database without write access.
func OpenReadOnly(dbPath string) (*Store, error) {
	return open(fileURI(dbPath, "mode=ro&_foreign_keys=ON&_busy_timeout=30000"))
}

// fileURI builds a SQLite URI filename. The path is percent-escaped so that
// '?', '#' and '%' in a file name reach SQLite literally.
func fileURI(dbPath, query string) string {
	return "file:" + (&url.URL{Path: dbPath}).EscapedPath() + "?" + query
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS archives (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL,
  size            INTEGER NOT NULL,
  mod_time        INTEGER NOT NULL,
  format_version  INTEGER NOT NULL,
  patch           INTEGER NOT NULL,
  content_hash    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
  id              INTEGER PRIMARY KEY,
  archive_id      INTEGER NOT NULL REFERENCES archives(id),
  type_hash       INTEGER NOT NULL,
  size            INTEGER NOT NULL,
  file_type       INTEGER NOT NULL,
  subtype         INTEGER NOT NULL,
  quality         INTEGER NOT NULL,
  refs            BLOB
);

CREATE TABLE IF NOT EXISTS strings (
  id              INTEGER PRIMARY KEY,
  archive_id      INTEGER NOT NULL REFERENCES archives(id),
  hash            INTEGER NOT NULL,
  kind            INTEGER NOT NULL,
  language        TEXT NOT NULL,
  text            TEXT NOT NULL,
  sources         BLOB
);

CREATE INDEX IF NOT EXISTS idx_tags_archive ON tags(archive_id);
CREATE INDEX IF NOT EXISTS idx_tags_type ON tags(type_hash);
CREATE INDEX IF NOT EXISTS idx_strings_archive ON strings(archive_id);
CREATE INDEX IF NOT EXISTS idx_strings_hash ON strings(hash);
`

// GetMetadata returns the value stored under key.
func (s *Store) GetMetadata(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get metadata %s: %w", key, err)
	}
	return v, true, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec("INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", key, value)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

// Archives returns every stored fingerprint ordered by archive id.
func (s *Store) Archives() ([]model.Fingerprint, error) {
	rows, err := s.db.Query("SELECT id, path, size, mod_time, format_version, patch, content_hash FROM archives ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query archives: %w", err)
	}
	defer rows.Close()
	var out []model.Fingerprint
	for rows.Next() {
		var fp model.Fingerprint
		var id, version, patch int64
		if err := rows.Scan(&id, &fp.Path, &fp.Size, &fp.ModTime, &version, &patch, &fp.ContentHash); err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		fp.Archive, fp.FormatVersion, fp.Patch = uint16(id), uint16(version), uint16(patch)
		out = append(out, fp)
	}
	return out, rows.Err()
}

// ArchiveTags returns the tags stored for an archive ordered by id.
func (s *Store) ArchiveTags(archive uint16) ([]model.Tag, error) {
	rows, err := s.db.Query("SELECT id, type_hash, size, file_type, subtype, quality, refs FROM tags WHERE archive_id = ? ORDER BY id", archive)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()
	var out []model.Tag
	for rows.Next() {
		var id, typeHash, size, fileType, subtype, quality int64
		var blob []byte
		if err := rows.Scan(&id, &typeHash, &size, &fileType, &subtype, &quality, &blob); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		refs, err := decodeRefs(blob)
		if err != nil {
			return nil, fmt.Errorf("tag %08X: %w", uint32(id), err)
		}
		out = append(out, model.Tag{
			ID:         model.TagID(id),
			TypeHash:   uint32(typeHash),
			Size:       uint32(size),
			Kind:       model.EntryKind{Type: uint8(fileType), Subtype: uint8(subtype)},
			Quality:    model.Quality(quality),
			References: refs,
		})
	}
	return out, rows.Err()
}

// ArchiveStrings returns the strings stored for an archive.
func (s *Store) ArchiveStrings(archive uint16) ([]model.StringEntry, error) {
	rows, err := s.db.Query("SELECT hash, kind, language, text, sources FROM strings WHERE archive_id = ? ORDER BY id", archive)
	if err != nil {
		return nil, fmt.Errorf("query strings: %w", err)
	}
	defer rows.Close()
	var out []model.StringEntry
	for rows.Next() {
		var hash, kind int64
		var e model.StringEntry
		var blob []byte
		if err := rows.Scan(&hash, &kind, &e.Language, &e.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan string: %w", err)
		}
		e.Hash, e.Kind = uint32(hash), model.StringKind(kind)
		if e.Sources, err = decodeSources(blob); err != nil {
			return nil, fmt.Errorf("string %08X: %w", e.Hash, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// deleteArchivesTx removes everything stored for the given archives.
// Children are deleted before the archive rows.
func deleteArchivesTx(tx *sql.Tx, archives []uint16) error {
	placeholders := placeholderList(len(archives))
	args := uint16sToArgs(archives)
	for _, q := range []string{
		"DELETE FROM strings WHERE archive_id IN (" + placeholders + ")",
		"DELETE FROM tags WHERE archive_id IN (" + placeholders + ")",
		"DELETE FROM archives WHERE id IN (" + placeholders + ")",
	} {
		if _, err := tx.Exec(q, args...); err != nil {
			return fmt.Errorf("delete archive data: %w", err)
		}
	}
	return nil
}
