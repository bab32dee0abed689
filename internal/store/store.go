// Package store mirrors the note index into SQLite so a repository can be
// reopened without a full walk and searched with SQL full-text queries.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/gitnote/internal/models"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS folders (
	path TEXT PRIMARY KEY,
	id   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	path          TEXT PRIMARY KEY,
	id            INTEGER NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	last_modified INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const revisionKey = "revision"

// Store wraps a sql.DB with mirror operations.
type Store struct {
	conn *sql.DB
}

// SearchResult is a full-text hit.
type SearchResult struct {
	Path    string `json:"path"`
	Snippet string `json:"snippet"`
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) tx(op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: %s: begin: %w", op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store: %s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: %s: commit: %w", op, err)
	}
	return nil
}

func clearTx(tx *sql.Tx) error {
	for _, table := range []string{"folders", "notes"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return err
		}
	}
	return ftsClear(tx)
}

func upsertFolderTx(tx *sql.Tx, f models.Folder) error {
	_, err := tx.Exec(`
		INSERT INTO folders (path, id) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET id = excluded.id
	`, f.RelativePath, f.ID)
	return err
}

func upsertNoteTx(tx *sql.Tx, n models.Note) error {
	_, err := tx.Exec(`
		INSERT INTO notes (path, id, content, last_modified) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			id = excluded.id,
			content = excluded.content,
			last_modified = excluded.last_modified
	`, n.RelativePath, n.ID, n.Content, n.LastModified.UnixMilli())
	if err != nil {
		return err
	}
	return ftsUpsert(tx, n.RelativePath, n.Content)
}

func setMetaTx(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// ReplaceAll swaps the mirrored contents for folders and notes and records
// the repository revision they were built from, in one transaction.
func (s *Store) ReplaceAll(folders []models.Folder, notes []models.Note, revision string) error {
	return s.tx("replace all", func(tx *sql.Tx) error {
		if err := clearTx(tx); err != nil {
			return err
		}
		for _, f := range folders {
			if err := upsertFolderTx(tx, f); err != nil {
				return fmt.Errorf("folder %s: %w", f.RelativePath, err)
			}
		}
		for _, n := range notes {
			if err := upsertNoteTx(tx, n); err != nil {
				return fmt.Errorf("note %s: %w", n.RelativePath, err)
			}
		}
		return setMetaTx(tx, revisionKey, revision)
	})
}

// UpsertFolder inserts or replaces a folder.
func (s *Store) UpsertFolder(f models.Folder) error {
	return s.tx("upsert folder", func(tx *sql.Tx) error { return upsertFolderTx(tx, f) })
}

// UpsertNote inserts or replaces a note.
func (s *Store) UpsertNote(n models.Note) error {
	return s.tx("upsert note", func(tx *sql.Tx) error { return upsertNoteTx(tx, n) })
}

// DeleteNote removes a note and returns the number of rows deleted.
func (s *Store) DeleteNote(path string) (int64, error) {
	var n int64
	err := s.tx("delete note", func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM notes WHERE path = ?`, path)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return ftsDelete(tx, path)
	})
	return n, err
}

// DeleteFolder removes a folder with everything below it and returns the
// number of notes deleted.
func (s *Store) DeleteFolder(path string) (int64, error) {
	if path == "" {
		return 0, errors.New("store: delete folder: refusing to delete the root")
	}
	prefix := escapeLike(path) + "/%"
	var n int64
	err := s.tx("delete folder", func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM folders WHERE path = ? OR path LIKE ? ESCAPE '\'`, path, prefix); err != nil {
			return err
		}
		rows, err := tx.Query(`SELECT path FROM notes WHERE path LIKE ? ESCAPE '\'`, prefix)
		if err != nil {
			return err
		}
		var paths []string
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return err
			}
			paths = append(paths, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, p := range paths {
			if _, err := tx.Exec(`DELETE FROM notes WHERE path = ?`, p); err != nil {
				return err
			}
			if err := ftsDelete(tx, p); err != nil {
				return err
			}
		}
		n = int64(len(paths))
		return nil
	})
	return n, err
}

// Clear removes every folder and note. The revision is reset too.
func (s *Store) Clear() error {
	return s.tx("clear", func(tx *sql.Tx) error {
		if err := clearTx(tx); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM meta WHERE key = ?`, revisionKey)
		return err
	})
}

// Load returns every mirrored folder and note, sorted by path.
func (s *Store) Load() ([]models.Folder, []models.Note, error) {
	folders := make([]models.Folder, 0)
	rows, err := s.conn.Query(`SELECT path, id FROM folders ORDER BY path`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load folders: %w", err)
	}
	for rows.Next() {
		var f models.Folder
		if err := rows.Scan(&f.RelativePath, &f.ID); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("store: scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("store: load folders: %w", err)
	}

	notes := make([]models.Note, 0)
	rows, err = s.conn.Query(`SELECT path, id, content, last_modified FROM notes ORDER BY path`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load notes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n models.Note
		var millis int64
		if err := rows.Scan(&n.RelativePath, &n.ID, &n.Content, &millis); err != nil {
			return nil, nil, fmt.Errorf("store: scan note: %w", err)
		}
		n.LastModified = time.UnixMilli(millis)
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("store: load notes: %w", err)
	}
	return folders, notes, nil
}

// Timestamps returns the last known modification time of every note.
func (s *Store) Timestamps() (map[string]time.Time, error) {
	rows, err := s.conn.Query(`SELECT path, last_modified FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("store: timestamps: %w", err)
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var path string
		var millis int64
		if err := rows.Scan(&path, &millis); err != nil {
			return nil, fmt.Errorf("store: timestamps: %w", err)
		}
		out[path] = time.UnixMilli(millis)
	}
	return out, rows.Err()
}

// Revision returns the revision recorded by the last ReplaceAll, or "" when
// none was recorded.
func (s *Store) Revision() (string, error) {
	var rev string
	err := s.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, revisionKey).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: revision: %w", err)
	}
	return rev, nil
}

// SetRevision records the repository revision the mirror matches.
func (s *Store) SetRevision(rev string) error {
	return s.tx("set revision", func(tx *sql.Tx) error { return setMetaTx(tx, revisionKey, rev) })
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	out := make([]SearchResult, 0)
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Snippet); err != nil {
			return nil, fmt.Errorf("store: scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
