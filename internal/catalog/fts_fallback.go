//go:build !sqlite_fts5

package catalog

import (
	"database/sql"
	"fmt"

	"github.com/starford/artselect/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search falls back to LIKE on the canvases table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ models.Canvas) error { return nil }

func ftsDelete(_ *sql.Tx, _ int64) {}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT id, title, category, substr(description, 1, 120)
		FROM canvases
		WHERE title LIKE ? OR description LIKE ? OR category LIKE ?
		ORDER BY category COLLATE NOCASE, title COLLATE NOCASE
		LIMIT ?
	`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Title, &r.Category, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
