//go:build sqlite_fts5

package store

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			path,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, path, content string) error {
	if _, err := tx.Exec(`DELETE FROM notes_fts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("fts delete: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO notes_fts (path, content) VALUES (?, ?)`, path, content); err != nil {
		return fmt.Errorf("fts insert: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) error {
	_, err := tx.Exec(`DELETE FROM notes_fts WHERE path = ?`, path)
	return err
}

func ftsClear(tx *sql.Tx) error {
	_, err := tx.Exec(`DELETE FROM notes_fts`)
	return err
}

// matchQuery quotes every term so user input never hits FTS5 syntax.
func matchQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

// Search runs an FTS5 query. Path matches weigh twice as much as content.
func (s *Store) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	match := matchQuery(query)
	if match == "" {
		return []SearchResult{}, nil
	}
	rows, err := s.conn.Query(`
		SELECT path,
		       snippet(notes_fts, 1, '<b>', '</b>', '...', 32)
		FROM notes_fts
		WHERE notes_fts MATCH ?
		ORDER BY bm25(notes_fts, 2.0, 1.0)
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return scanResults(rows)
}
