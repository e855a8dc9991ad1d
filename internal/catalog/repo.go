package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/artselect/internal/apperr"
	"github.com/starford/artselect/internal/models"
)

const canvasColumns = `id, title, description, category, image_id, checksum, created_at, updated_at`

// SearchResult represents one search hit.
type SearchResult struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Snippet  string `json:"snippet"`
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCanvas(s scanner) (*models.Canvas, error) {
	var (
		c       models.Canvas
		imageID sql.NullInt64
	)
	if err := s.Scan(&c.ID, &c.Title, &c.Description, &c.Category, &imageID, &c.Checksum, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if imageID.Valid {
		v := imageID.Int64
		c.ImageID = &v
	}
	return &c, nil
}

func nullable(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// NextIdentifier returns the next bitmap identifier. The counter lives in the
// database, so identifiers keep increasing across restarts.
func (db *DB) NextIdentifier() (int64, error) {
	var v int64
	err := db.conn.QueryRow(`
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`, bitmapCounter).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("catalog: next identifier: %w", err)
	}
	return v, nil
}

// EnsureIdentifierAtLeast raises the counter so the next identifier is
// greater than n.
func (db *DB) EnsureIdentifierAtLeast(n int64) error {
	_, err := db.conn.Exec(`
		INSERT INTO counters (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = max(value, excluded.value)
	`, bitmapCounter, n)
	if err != nil {
		return fmt.Errorf("catalog: raise identifier: %w", err)
	}
	return nil
}

// Insert adds a record and returns it with its assigned ID.
func (db *DB) Insert(c models.Canvas) (*models.Canvas, error) {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.Exec(`
		INSERT INTO canvases (title, description, category, image_id, checksum, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.Title, c.Description, c.Category, nullable(c.ImageID), c.Checksum, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("catalog: insert canvas: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("catalog: insert id: %w", err)
	}
	if err := ftsUpsert(tx, c); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("catalog: commit: %w", err)
	}
	return &c, nil
}

// Update rewrites the title, description and category of a record.
func (db *DB) Update(c models.Canvas) (*models.Canvas, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`
		UPDATE canvases SET title = ?, description = ?, category = ?, updated_at = ?
		WHERE id = ?
	`, c.Title, c.Description, c.Category, time.Now().UTC(), c.ID)
	if err != nil {
		return nil, fmt.Errorf("catalog: update canvas: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.ErrNotFound
	}
	if err := ftsUpsert(tx, c); err != nil {
		return nil, err
	}
	updated, err := scanCanvas(tx.QueryRow(`SELECT `+canvasColumns+` FROM canvases WHERE id = ?`, c.ID))
	if err != nil {
		return nil, fmt.Errorf("catalog: reload canvas: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("catalog: commit: %w", err)
	}
	return updated, nil
}

// Get returns one record or apperr.ErrNotFound.
func (db *DB) Get(id int64) (*models.Canvas, error) {
	c, err := scanCanvas(db.conn.QueryRow(`SELECT `+canvasColumns+` FROM canvases WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get canvas: %w", err)
	}
	return c, nil
}

// Delete removes a record and its search entry.
func (db *DB) Delete(id int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`DELETE FROM canvases WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete canvas: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	ftsDelete(tx, id)
	return tx.Commit()
}

// List returns records ordered by category then title, plus the total
// count before paging. limit <= 0 means no limit.
func (db *DB) List(limit, offset int, category string) ([]models.Canvas, int, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{}
	if category != "" {
		where = ` WHERE category = ?`
		args = append(args, category)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM canvases`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count canvases: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+canvasColumns+` FROM canvases`+where+`
		ORDER BY category COLLATE NOCASE, title COLLATE NOCASE, id
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list canvases: %w", err)
	}
	defer rows.Close()

	out := []models.Canvas{}
	for rows.Next() {
		c, err := scanCanvas(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// Categories returns the distinct categories in gallery order.
func (db *DB) Categories() ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT category FROM canvases ORDER BY category COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("catalog: categories: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FindByImageID returns the record owning bitmap imageID.
func (db *DB) FindByImageID(imageID int64) (*models.Canvas, error) {
	c, err := scanCanvas(db.conn.QueryRow(`SELECT `+canvasColumns+` FROM canvases WHERE image_id = ?`, imageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: find by image: %w", err)
	}
	return c, nil
}

// SetImage attaches bitmap imageID to record id.
func (db *DB) SetImage(id, imageID int64, checksum string) error {
	res, err := db.conn.Exec(`
		UPDATE canvases SET image_id = ?, checksum = ?, updated_at = ? WHERE id = ?
	`, imageID, checksum, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("catalog: set image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// SetImageChecksum records a new checksum for the record owning imageID and
// returns that record's ID. It returns 0 when no record owns imageID or the
// checksum is unchanged.
func (db *DB) SetImageChecksum(imageID int64, checksum string) (int64, error) {
	var id int64
	err := db.conn.QueryRow(`
		UPDATE canvases SET checksum = ?, updated_at = ?
		WHERE image_id = ? AND checksum <> ?
		RETURNING id
	`, checksum, time.Now().UTC(), imageID, checksum).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("catalog: set checksum: %w", err)
	}
	return id, nil
}

// ClearImage detaches the bitmap from record id.
func (db *DB) ClearImage(id int64) error {
	_, err := db.conn.Exec(`
		UPDATE canvases SET image_id = NULL, checksum = '', updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("catalog: clear image: %w", err)
	}
	return nil
}

// ImageChecksums maps every attached bitmap identifier to its checksum.
func (db *DB) ImageChecksums() (map[int64]string, error) {
	rows, err := db.conn.Query(`SELECT image_id, checksum FROM canvases WHERE image_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("catalog: image checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]string)
	for rows.Next() {
		var (
			id int64
			cs string
		)
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}
