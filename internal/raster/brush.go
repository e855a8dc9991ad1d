package raster

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Default brush parameters.
const (
	DefaultWidth   = 10.0
	DefaultOpacity = 1.0
	MaxWidth       = 1000.0
)

// Tool selects the painting preset.
type Tool int

const (
	Brush Tool = iota
	Eraser
)

// String returns the tool name used on the wire.
func (t Tool) String() string {
	switch t {
	case Brush:
		return "brush"
	case Eraser:
		return "eraser"
	default:
		return fmt.Sprintf("tool(%d)", int(t))
	}
}

// ParseTool maps a wire name to a Tool.
func ParseTool(s string) (Tool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "brush":
		return Brush, nil
	case "eraser":
		return Eraser, nil
	default:
		return Brush, fmt.Errorf("raster: unknown tool %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tool) MarshalText() ([]byte, error) {
	if t != Brush && t != Eraser {
		return nil, fmt.Errorf("raster: unknown tool %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tool) UnmarshalText(b []byte) error {
	v, err := ParseTool(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Preset returns the colour and opacity the tool paints with.
func (t Tool) Preset() (Color, float64) {
	if t == Eraser {
		return White, 1.0
	}
	return Black, 1.0
}

// BrushState describes how the next stroke is painted.
type BrushState struct {
	Color   Color   `json:"color"`
	Width   float64 `json:"width"`
	Opacity float64 `json:"opacity"`
	Tool    Tool    `json:"tool"`
}

// DefaultBrush returns a black, fully opaque, 10 unit wide brush.
func DefaultBrush() BrushState {
	return BrushState{
		Color:   Black,
		Width:   DefaultWidth,
		Opacity: DefaultOpacity,
		Tool:    Brush,
	}
}

// Validate reports whether the brush can be rendered.
func (b BrushState) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Color),
		validation.Field(&b.Width, validation.Required, validation.Min(0.0).Exclusive(), validation.Max(MaxWidth)),
		validation.Field(&b.Opacity, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&b.Tool, validation.In(Brush, Eraser)),
	)
}

// WithTool switches to t and loads its preset. Width is kept.
func (b BrushState) WithTool(t Tool) BrushState {
	b.Tool = t
	b.Color, b.Opacity = t.Preset()
	return b
}

// BrushUpdate is a partial change to a BrushState. Nil fields are left alone.
type BrushUpdate struct {
	Tool       *Tool    `json:"tool,omitempty"`
	Color      *Color   `json:"color,omitempty"`
	ColorAlpha *float64 `json:"color_alpha,omitempty"`
	Width      *float64 `json:"width,omitempty"`
	Opacity    *float64 `json:"opacity,omitempty"`
}

// Apply returns b with u applied.
//
// Precedence: tool preset, then colour, then the colour's alpha, then an
// explicit opacity. An explicit opacity always wins over a colour alpha sent
// in the same update.
func (b BrushState) Apply(u BrushUpdate) BrushState {
	if u.Tool != nil {
		b = b.WithTool(*u.Tool)
	}
	if u.Color != nil {
		b.Color = *u.Color
	}
	if u.ColorAlpha != nil {
		b.Opacity = clamp01(*u.ColorAlpha)
	}
	if u.Opacity != nil {
		b.Opacity = clamp01(*u.Opacity)
	}
	if u.Width != nil {
		b.Width = *u.Width
	}
	return b
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
