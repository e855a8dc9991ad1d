// Package session hosts live drawing sessions. Each session owns one raster
// canvas behind its own mutex, so HTTP, WebSocket and MCP callers can share
// it safely.
package session

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/starford/artselect/internal/apperr"
	"github.com/starford/artselect/internal/raster"
)

// State is a point-in-time summary of a session.
type State struct {
	ID           string            `json:"id"`
	CanvasID     int64             `json:"canvas_id,omitempty"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Brush        raster.BrushState `json:"brush"`
	StrokeActive bool              `json:"stroke_active"`
	HasDraft     bool              `json:"has_draft"`
	DraftOpacity float64           `json:"draft_opacity,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	TouchedAt    time.Time         `json:"touched_at"`
}

// Result is what a finished session hands back to its owner.
type Result struct {
	SessionID string `json:"session_id"`
	CanvasID  int64  `json:"canvas_id,omitempty"`
	Bitmap    []byte `json:"-"`
}

// Session is one drawing surface in use.
type Session struct {
	id       string
	canvasID int64
	created  time.Time

	// saveMu serialises Persist so a new drawing is created once.
	saveMu sync.Mutex

	mu      sync.Mutex
	canvas  *raster.Canvas
	touched time.Time
	closed  bool
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CanvasID returns the record the session edits, or 0 for a new drawing.
func (s *Session) CanvasID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvasID
}

// Bind ties a new drawing to the record it was first saved as.
func (s *Session) Bind(canvasID int64) error {
	return s.do(func(*raster.Canvas) error {
		if s.canvasID != 0 && s.canvasID != canvasID {
			return fmt.Errorf("%w: session already bound to canvas %d", apperr.ErrConflict, s.canvasID)
		}
		s.canvasID = canvasID
		return nil
	})
}

// SaveFunc stores bitmap for canvasID (0 for a drawing never saved) and
// returns the id of the record it was written to.
type SaveFunc func(canvasID int64, bitmap []byte) (int64, error)

// Persist exports the committed image and hands it to save. Calls on one
// session run one at a time; after the first successful save of a new
// drawing the session is bound to the created record, so later calls update
// it. On error the session is left as it was.
func (s *Session) Persist(save SaveFunc) (int64, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	var (
		canvasID int64
		bitmap   []byte
	)
	err := s.do(func(c *raster.Canvas) error {
		canvasID = s.canvasID
		var encErr error
		bitmap, encErr = c.Export()
		return encErr
	})
	if err != nil {
		return 0, err
	}

	saved, err := save(canvasID, bitmap)
	if err != nil {
		return 0, err
	}
	if canvasID == 0 {
		// Closed meanwhile: the record exists, there is just nothing left to bind.
		if err := s.Bind(saved); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return saved, err
		}
	}
	return saved, nil
}

// do runs fn with the canvas locked.
func (s *Session) do(fn func(c *raster.Canvas) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperr.ErrNotFound
	}
	s.touched = time.Now()
	return fn(s.canvas)
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

func checkPoints(pts ...raster.Point) error {
	for _, p := range pts {
		if !p.IsFinite() {
			return fmt.Errorf("%w: point (%v, %v) is not finite", apperr.ErrInvalidInput, p.X, p.Y)
		}
	}
	return nil
}

// Begin starts a stroke at p.
func (s *Session) Begin(p raster.Point) error {
	if err := checkPoints(p); err != nil {
		return err
	}
	return s.do(func(c *raster.Canvas) error {
		c.BeginStroke(p)
		return nil
	})
}

// Extend adds a sample to the active stroke using the session brush.
func (s *Session) Extend(p raster.Point) error {
	if err := checkPoints(p); err != nil {
		return err
	}
	return s.do(func(c *raster.Canvas) error {
		if !c.StrokeActive() {
			return apperr.ErrNoActiveStroke
		}
		c.ExtendStroke(p, c.Brush())
		return nil
	})
}

// End finishes the active stroke and commits it.
func (s *Session) End(p raster.Point) error {
	if err := checkPoints(p); err != nil {
		return err
	}
	return s.do(func(c *raster.Canvas) error {
		if !c.StrokeActive() {
			return apperr.ErrNoActiveStroke
		}
		c.EndStroke(p)
		return nil
	})
}

// Stroke draws a whole polyline in one call: begin, extend through the
// remaining points, end.
func (s *Session) Stroke(points []raster.Point) error {
	if len(points) == 0 {
		return apperr.ErrInvalidInput
	}
	if err := checkPoints(points...); err != nil {
		return err
	}
	return s.do(func(c *raster.Canvas) error {
		c.BeginStroke(points[0])
		for _, p := range points[1:] {
			c.ExtendStroke(p, c.Brush())
		}
		c.EndStroke(points[len(points)-1])
		return nil
	})
}

// ApplyBrush updates the session brush and returns the result.
func (s *Session) ApplyBrush(u raster.BrushUpdate) (raster.BrushState, error) {
	var out raster.BrushState
	err := s.do(func(c *raster.Canvas) error {
		next := c.Brush().Apply(u)
		if err := next.Validate(); err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
		}
		c.SetBrush(next)
		out = next
		return nil
	})
	return out, err
}

// Composite fills the canvas with img at opacity.
func (s *Session) Composite(img image.Image, opacity float64) error {
	return s.do(func(c *raster.Canvas) error {
		c.CompositeImage(img, opacity)
		return nil
	})
}

// Reset restores the blank placeholder.
func (s *Session) Reset() error {
	return s.do(func(c *raster.Canvas) error {
		c.Reset()
		return nil
	})
}

// Snapshot returns a copy of the committed image.
func (s *Session) Snapshot() (*image.RGBA, error) {
	var img *image.RGBA
	err := s.do(func(c *raster.Canvas) error {
		img = c.Base()
		return nil
	})
	return img, err
}

// Draft returns a copy of the overlay and its display opacity.
func (s *Session) Draft() (img *image.RGBA, opacity float64, ok bool, err error) {
	err = s.do(func(c *raster.Canvas) error {
		img, opacity, ok = c.Draft()
		return nil
	})
	return img, opacity, ok, err
}

// Export encodes the committed image.
func (s *Session) Export() ([]byte, error) {
	var data []byte
	err := s.do(func(c *raster.Canvas) error {
		var encErr error
		data, encErr = c.Export()
		return encErr
	})
	return data, err
}

// State summarises the session.
func (s *Session) State() (State, error) {
	var st State
	err := s.do(func(c *raster.Canvas) error {
		size := c.Size()
		_, opacity, ok := c.Draft()
		st = State{
			ID:           s.id,
			CanvasID:     s.canvasID,
			Width:        size.X,
			Height:       size.Y,
			Brush:        c.Brush(),
			StrokeActive: c.StrokeActive(),
			HasDraft:     ok,
			DraftOpacity: opacity,
			CreatedAt:    s.created,
			TouchedAt:    s.touched,
		}
		return nil
	})
	return st, err
}

// close marks the session finished and, when export is set, returns the
// final bitmap. An unfinished stroke is dropped.
func (s *Session) close(export bool) (int64, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, nil, apperr.ErrNotFound
	}
	s.closed = true
	if !export {
		return s.canvasID, nil, nil
	}
	data, err := s.canvas.Export()
	return s.canvasID, data, err
}
