package raster

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/image/colornames"
)

// Color is an opaque RGB colour with channels in [0, 1].
type Color struct {
	R, G, B float64
}

var (
	Black = Color{0, 0, 0}
	White = Color{1, 1, 1}
)

// Validate checks the channel range.
func (c Color) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.R, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.G, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.B, validation.Min(0.0), validation.Max(1.0)),
	)
}

// ToRGBA converts c to a fully opaque 8-bit colour.
func (c Color) ToRGBA() color.RGBA {
	return color.RGBA{R: to8(c.R), G: to8(c.G), B: to8(c.B), A: 0xff}
}

// Hex formats c as #rrggbb.
func (c Color) Hex() string {
	v := c.ToRGBA()
	return fmt.Sprintf("#%02x%02x%02x", v.R, v.G, v.B)
}

// MarshalText encodes c as #rrggbb.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText accepts anything ParseColor does. Alpha is ignored.
func (c *Color) UnmarshalText(b []byte) error {
	v, _, _, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// FromColor converts any image colour, dropping alpha after un-premultiplying.
func FromColor(in color.Color) Color {
	n := color.NRGBAModel.Convert(in).(color.NRGBA)
	return Color{R: float64(n.R) / 255, G: float64(n.G) / 255, B: float64(n.B) / 255}
}

// ParseColor accepts #rgb, #rrggbb, #rrggbbaa or an SVG colour name.
// The alpha, when present in the input, is returned separately with ok=true.
func ParseColor(s string) (c Color, alpha float64, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Color{}, 0, false, fmt.Errorf("raster: empty colour")
	}
	if !strings.HasPrefix(s, "#") {
		named, found := colornames.Map[strings.ToLower(s)]
		if !found {
			return Color{}, 0, false, fmt.Errorf("raster: unknown colour name %q", s)
		}
		return FromColor(named), 0, false, nil
	}

	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 && len(hex) != 8 {
		return Color{}, 0, false, fmt.Errorf("raster: malformed colour %q", s)
	}
	v, perr := strconv.ParseUint(hex, 16, 32)
	if perr != nil {
		return Color{}, 0, false, fmt.Errorf("raster: malformed colour %q: %w", s, perr)
	}
	if len(hex) == 8 {
		alpha = float64(v&0xff) / 255
		ok = true
		v >>= 8
	}
	c = Color{
		R: float64((v>>16)&0xff) / 255,
		G: float64((v>>8)&0xff) / 255,
		B: float64(v&0xff) / 255,
	}
	return c, alpha, ok, nil
}

func to8(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}
