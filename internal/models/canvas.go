// Package models defines the domain types for ArtSelect.
package models

import "time"

// Record defaults applied when a field is left empty.
const (
	DefaultTitle       = "Untitled"
	DefaultDescription = "No Notes"
	DefaultCategory    = "No Category"
)

// Canvas is a saved drawing. ImageID is nil until a bitmap has been written;
// a bitmap file exists exactly when it is set.
type Canvas struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	ImageID     *int64    `json:"image_id"`
	Checksum    string    `json:"checksum"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasBitmap reports whether a bitmap file is attached.
func (c Canvas) HasBitmap() bool {
	return c.ImageID != nil
}

// BitmapMetadata describes one bitmap file on disk.
type BitmapMetadata struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GallerySection is one category group of the gallery.
type GallerySection struct {
	Category string   `json:"category"`
	Canvases []Canvas `json:"canvases"`
}
