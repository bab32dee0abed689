//go:build !sqlite_fts5

package store

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; Search falls back to LIKE on notes.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _ string) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) error { return nil }

func ftsClear(_ *sql.Tx) error { return nil }

// Search matches notes whose path or content contains query. Path hits
// come first.
func (s *Store) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}
	like := "%" + escapeLike(query) + "%"
	rows, err := s.conn.Query(`
		SELECT path, substr(content, 1, 200)
		FROM notes
		WHERE path LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'
		ORDER BY (path LIKE ? ESCAPE '\') DESC, path
		LIMIT ?
	`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return scanResults(rows)
}
