// Package storage keeps canvas bitmaps as JPEG files on disk.
package storage

import "github.com/starford/artselect/internal/models"

// Provider is the bitmap file store. Bitmaps are addressed by the numeric
// identifier handed out by the catalog.
type Provider interface {
	// List returns metadata for every Canvas-<id>.jpg under the root.
	List() ([]models.BitmapMetadata, error)
	// Load returns the encoded bitmap for id.
	Load(id int64) ([]byte, error)
	// Save atomically writes the encoded bitmap for id.
	Save(id int64, data []byte) error
	// Delete removes the bitmap for id.
	Delete(id int64) error
	// Exists reports whether a bitmap for id is on disk.
	Exists(id int64) bool
}
