package api

import (
	"fmt"

	"github.com/starford/artselect/internal/apperr"
	"github.com/starford/artselect/internal/canvasservice"
	"github.com/starford/artselect/internal/catalog"
	"github.com/starford/artselect/internal/models"
	"github.com/starford/artselect/internal/raster"
)

// CanvasRequest is the body for creating or updating a canvas record.
// Bitmap is an optional base64 encoded image (JPEG, PNG, GIF, WebP, BMP or
// TIFF) used on create only.
type CanvasRequest struct {
	Title       string `json:"title" example:"Harbour at dusk"`
	Description string `json:"description" example:"Charcoal study"`
	Category    string `json:"category" example:"Landscapes"`
	Bitmap      []byte `json:"bitmap,omitempty" swaggertype:"string" format:"base64"`
}

func (c CanvasRequest) input() canvasservice.Input {
	return canvasservice.Input{Title: c.Title, Description: c.Description, Category: c.Category}
}

// CanvasListResponse wraps paginated canvas listings.
type CanvasListResponse struct {
	Canvases []models.Canvas `json:"canvases" validate:"required"`
	Total    int             `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps catalog search results.
type SearchResponse struct {
	Results []catalog.SearchResult `json:"results" validate:"required"`
}

// GalleryResponse lists the gallery sections.
type GalleryResponse struct {
	Sections []models.GallerySection `json:"sections" validate:"required"`
}

// OpenSessionRequest starts a session. CanvasID 0 starts a blank drawing.
type OpenSessionRequest struct {
	CanvasID int64 `json:"canvas_id" example:"0"`
}

// PointRequest is one pointer sample in view coordinates.
type PointRequest struct {
	X *float64 `json:"x" example:"120.5" validate:"required"`
	Y *float64 `json:"y" example:"48" validate:"required"`
}

func (p PointRequest) point() (raster.Point, error) {
	if p.X == nil || p.Y == nil {
		return raster.Point{}, fmt.Errorf("%w: x and y are required", apperr.ErrInvalidInput)
	}
	pt := raster.Point{X: *p.X, Y: *p.Y}
	if !pt.IsFinite() {
		return raster.Point{}, fmt.Errorf("%w: x and y must be finite", apperr.ErrInvalidInput)
	}
	return pt, nil
}

// StrokesRequest draws whole polylines, each as begin, extends and end.
type StrokesRequest struct {
	Brush   *BrushRequest    `json:"brush,omitempty"`
	Strokes [][]raster.Point `json:"strokes" validate:"required"`
}

// BrushRequest changes the session brush. Fields left out keep their value.
// Color accepts #rgb, #rrggbb, #rrggbbaa or a colour name; an alpha byte
// sets the opacity unless Opacity is also given.
type BrushRequest struct {
	Tool    *raster.Tool `json:"tool,omitempty" swaggertype:"string" enums:"brush,eraser"`
	Color   *string      `json:"color,omitempty" example:"#ff0000"`
	Width   *float64     `json:"width,omitempty" example:"10"`
	Opacity *float64     `json:"opacity,omitempty" example:"1"`
}

func (b BrushRequest) update() (raster.BrushUpdate, error) {
	u := raster.BrushUpdate{Tool: b.Tool, Width: b.Width, Opacity: b.Opacity}
	if b.Color != nil {
		c, alpha, hasAlpha, err := raster.ParseColor(*b.Color)
		if err != nil {
			return u, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
		}
		u.Color = &c
		if hasAlpha {
			u.ColorAlpha = &alpha
		}
	}
	return u, nil
}

// CompositeRequest fills the canvas with a remote picture. URL may be an
// http(s) address or a data URI.
type CompositeRequest struct {
	URL     string   `json:"url" example:"https://images.unsplash.com/photo-1" validate:"required"`
	Opacity *float64 `json:"opacity,omitempty" example:"1"`
}

// SaveRequest persists a session. Metadata fields are applied when given.
// Keep leaves the session open for further drawing.
type SaveRequest struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	IfMatch     string `json:"if_match,omitempty"`
	Keep        bool   `json:"keep,omitempty"`
}

func (s SaveRequest) hasMetadata() bool {
	return s.Title != "" || s.Description != "" || s.Category != ""
}
