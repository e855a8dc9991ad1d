// Package raster implements the two-layer canvas: a committed base image and
// a draft overlay holding the stroke in progress. Every visible change to the
// base image is a draft followed by a source-over commit.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// DefaultJPEGQuality is the export quality used when none is configured.
const DefaultJPEGQuality = 50

// Point is a position in view space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Option configures a Canvas.
type Option func(*Canvas)

// WithBackground sets the placeholder colour. The default is white.
func WithBackground(bg Color) Option {
	return func(c *Canvas) {
		c.background = bg
	}
}

// WithJPEGQuality sets the export quality (1..100).
func WithJPEGQuality(q int) Option {
	return func(c *Canvas) {
		if q >= 1 && q <= 100 {
			c.quality = q
		}
	}
}

// WithBrush sets the initial brush.
func WithBrush(b BrushState) Option {
	return func(c *Canvas) {
		c.brush = b
	}
}

// Canvas owns the base image and draft overlay of one drawing surface.
// Buffers are mutated in place, so a Canvas must not be used from more than
// one goroutine without external locking.
type Canvas struct {
	background  Color
	quality     int
	placeholder *image.RGBA
	base        *image.RGBA
	draft       *image.RGBA

	hasDraft     bool
	draftOpacity float64

	brush       BrushState
	strokeBrush BrushState
	stroke      []Point
	last        Point
	active      bool
	moved       bool

	z vector.Rasterizer
}

// New returns a canvas of the given size showing the blank placeholder.
// Non-positive dimensions are raised to 1.
func New(width, height int, opts ...Option) *Canvas {
	width, height = max(width, 1), max(height, 1)
	c := &Canvas{
		background: White,
		quality:    DefaultJPEGQuality,
		brush:      DefaultBrush(),
	}
	for _, opt := range opts {
		opt(c)
	}

	r := image.Rect(0, 0, width, height)
	c.placeholder = image.NewRGBA(r)
	draw.Draw(c.placeholder, r, image.NewUniform(c.background.ToRGBA()), image.Point{}, draw.Src)
	c.base = image.NewRGBA(r)
	copy(c.base.Pix, c.placeholder.Pix)
	c.draft = image.NewRGBA(r)
	c.strokeBrush = c.brush
	return c
}

// NewFromImage returns a canvas whose base is img filled over the placeholder.
func NewFromImage(width, height int, img image.Image, opts ...Option) *Canvas {
	c := New(width, height, opts...)
	c.CompositeImage(img, 1)
	return c
}

// Size returns the fixed viewport size.
func (c *Canvas) Size() image.Point {
	return c.base.Bounds().Size()
}

// Brush returns the current brush.
func (c *Canvas) Brush() BrushState {
	return c.brush
}

// SetBrush replaces the current brush. An active stroke keeps the brush it
// was last extended with.
func (c *Canvas) SetBrush(b BrushState) {
	c.brush = b
}

// StrokeActive reports whether a stroke has begun and not yet ended.
func (c *Canvas) StrokeActive() bool {
	return c.active
}

// LastPoint returns the most recent stroke sample.
func (c *Canvas) LastPoint() Point {
	return c.last
}

// BeginStroke starts a stroke at p and drops any stale draft.
func (c *Canvas) BeginStroke(p Point) {
	c.clearDraft()
	c.stroke = append(c.stroke[:0], p)
	c.strokeBrush = c.brush
	c.last = p
	c.active = true
	c.moved = false
}

// ExtendStroke adds a sample and re-renders the draft from nothing.
// The draft is painted at full alpha; brush.Opacity only sets the alpha the
// overlay is displayed and committed with. Without an active stroke it does
// nothing.
func (c *Canvas) ExtendStroke(p Point, brush BrushState) {
	if !c.active {
		return
	}
	c.stroke = append(c.stroke, p)
	c.strokeBrush = brush
	c.renderStroke(c.stroke, brush)
	c.last = p
	c.moved = true
}

// EndStroke finishes the stroke and commits the draft into the base image.
// A stroke with no movement leaves a dot of the brush width at its anchor.
func (c *Canvas) EndStroke(_ Point) {
	if !c.active {
		c.clearDraft()
		return
	}
	if !c.moved {
		c.renderStroke(c.stroke[:1], c.strokeBrush)
	}
	c.commit()
	c.stroke = c.stroke[:0]
	c.active = false
	c.moved = false
}

// CompositeImage fills the viewport with img (aspect fill, centred crop) and
// commits it at opacity. Any active stroke is abandoned.
func (c *Canvas) CompositeImage(img image.Image, opacity float64) {
	c.active = false
	c.stroke = c.stroke[:0]
	c.clearDraft()
	if img == nil || img.Bounds().Empty() {
		return
	}
	fill(c.draft, img)
	c.hasDraft = true
	c.draftOpacity = clamp01(opacity)
	c.commit()
}

// Reset restores the blank placeholder and discards the draft.
func (c *Canvas) Reset() {
	copy(c.base.Pix, c.placeholder.Pix)
	c.clearDraft()
	c.stroke = c.stroke[:0]
	c.active = false
	c.moved = false
}

// Export encodes the base image as JPEG.
func (c *Canvas) Export() ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, c.base, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fmt.Errorf("raster: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Base returns a copy of the committed image.
func (c *Canvas) Base() *image.RGBA {
	return cloneRGBA(c.base)
}

// Draft returns a copy of the overlay and the opacity it is shown with.
// ok is false when no draft is present.
func (c *Canvas) Draft() (img *image.RGBA, opacity float64, ok bool) {
	if !c.hasDraft {
		return nil, 0, false
	}
	return cloneRGBA(c.draft), c.draftOpacity, true
}

// Placeholder returns a copy of the blank image Reset restores.
func (c *Canvas) Placeholder() *image.RGBA {
	return cloneRGBA(c.placeholder)
}

func (c *Canvas) renderStroke(pts []Point, brush BrushState) {
	clear(c.draft.Pix)
	size := c.draft.Bounds().Size()
	c.z.Reset(size.X, size.Y)
	r := brush.Width / 2
	if math.IsNaN(r) || r > MaxWidth/2 {
		r = MaxWidth / 2
	}
	// Geometry more than a radius (plus one pixel of antialiasing) outside
	// the viewport cannot touch it, so segments are cut to that box before
	// the rasterizer sees them in float32.
	m := r + 1
	clip := rect{minX: -m, minY: -m, maxX: float64(size.X) + m, maxY: float64(size.Y) + m}
	if len(pts) == 1 && pts[0].IsFinite() && clip.contains(pts[0]) {
		addDisc(&c.z, pts[0], r)
	}
	for i := 1; i < len(pts); i++ {
		if !pts[i-1].IsFinite() || !pts[i].IsFinite() {
			continue
		}
		if a, b, ok := clipSegment(pts[i-1], pts[i], clip); ok {
			addCapsule(&c.z, a, b, r)
		}
	}
	c.z.Draw(c.draft, c.draft.Bounds(), image.NewUniform(brush.Color.ToRGBA()), image.Point{})
	c.hasDraft = true
	c.draftOpacity = clamp01(brush.Opacity)
}

func (c *Canvas) commit() {
	if c.hasDraft {
		a := uint8(math.Round(c.draftOpacity * 255))
		if a > 0 {
			mask := image.NewUniform(color.Alpha{A: a})
			draw.DrawMask(c.base, c.base.Bounds(), c.draft, image.Point{}, mask, image.Point{}, draw.Over)
		}
	}
	c.clearDraft()
}

func (c *Canvas) clearDraft() {
	if c.hasDraft {
		clear(c.draft.Pix)
	}
	c.hasDraft = false
	c.draftOpacity = 0
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}
