//go:build sqlite_fts5

package catalog

import (
	"database/sql"
	"fmt"

	"github.com/starford/artselect/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS canvases_fts USING fts5(
			canvas_id UNINDEXED,
			title,
			description,
			category,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, c models.Canvas) error {
	_, _ = tx.Exec(`DELETE FROM canvases_fts WHERE canvas_id = ?`, c.ID)
	_, err := tx.Exec(`INSERT INTO canvases_fts (canvas_id, title, description, category) VALUES (?, ?, ?, ?)`,
		c.ID, c.Title, c.Description, c.Category)
	if err != nil {
		return fmt.Errorf("catalog: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id int64) {
	_, _ = tx.Exec(`DELETE FROM canvases_fts WHERE canvas_id = ?`, id)
}

// Search performs an FTS5 query over title, description and category.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT canvas_id,
		       title,
		       category,
		       snippet(canvases_fts, 2, '<b>', '</b>', '...', 32)
		FROM canvases_fts
		WHERE canvases_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
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
