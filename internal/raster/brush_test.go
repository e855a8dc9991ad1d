package raster

import (
	"encoding/json"
	"math"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestDefaultBrush(t *testing.T) {
	b := DefaultBrush()
	if b.Width != 10 || b.Opacity != 1 || b.Color != Black || b.Tool != Brush {
		t.Fatalf("unexpected default brush %+v", b)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("default brush invalid: %v", err)
	}
}

func TestWithTool_LoadsPresetKeepsWidth(t *testing.T) {
	b := DefaultBrush()
	b.Width = 25
	b.Opacity = 0.3

	e := b.WithTool(Eraser)
	if e.Color != White || e.Opacity != 1 || e.Width != 25 || e.Tool != Eraser {
		t.Fatalf("eraser preset = %+v", e)
	}
	back := e.WithTool(Brush)
	if back.Color != Black || back.Opacity != 1 || back.Width != 25 {
		t.Fatalf("brush preset = %+v", back)
	}
}

func TestApply_OpacityBeatsColorAlpha(t *testing.T) {
	red := Color{R: 1}
	got := DefaultBrush().Apply(BrushUpdate{
		Color:      &red,
		ColorAlpha: ptr(0.25),
		Opacity:    ptr(0.75),
	})
	if got.Opacity != 0.75 {
		t.Errorf("opacity = %v, want 0.75", got.Opacity)
	}
	if got.Color != red {
		t.Errorf("color = %+v", got.Color)
	}

	got = DefaultBrush().Apply(BrushUpdate{ColorAlpha: ptr(0.25)})
	if got.Opacity != 0.25 {
		t.Errorf("colour alpha alone: opacity = %v, want 0.25", got.Opacity)
	}
}

func TestApply_ToolThenOverrides(t *testing.T) {
	tool := Eraser
	got := DefaultBrush().Apply(BrushUpdate{Tool: &tool, Opacity: ptr(0.5), Width: ptr(40.0)})
	if got.Color != White || got.Opacity != 0.5 || got.Width != 40 {
		t.Fatalf("got %+v", got)
	}
}

func TestApply_ClampsOpacity(t *testing.T) {
	if got := DefaultBrush().Apply(BrushUpdate{Opacity: ptr(3.0)}); got.Opacity != 1 {
		t.Errorf("opacity = %v", got.Opacity)
	}
	if got := DefaultBrush().Apply(BrushUpdate{Opacity: ptr(-1.0)}); got.Opacity != 0 {
		t.Errorf("opacity = %v", got.Opacity)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]BrushState{
		"zero width":     {Color: Black, Width: 0, Opacity: 1},
		"negative width": {Color: Black, Width: -2, Opacity: 1},
		"opacity > 1":    {Color: Black, Width: 5, Opacity: 1.5},
		"channel > 1":    {Color: Color{R: 2}, Width: 5, Opacity: 1},
	}
	for name, b := range cases {
		if err := b.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseColor(t *testing.T) {
	c, _, hasAlpha, err := ParseColor("#ff0000")
	if err != nil || hasAlpha || c != (Color{R: 1}) {
		t.Fatalf("#ff0000 -> %+v %v %v", c, hasAlpha, err)
	}

	c, _, _, err = ParseColor("#0f0")
	if err != nil || c != (Color{G: 1}) {
		t.Fatalf("#0f0 -> %+v %v", c, err)
	}

	c, a, hasAlpha, err := ParseColor("#0000ff80")
	if err != nil || !hasAlpha || c != (Color{B: 1}) {
		t.Fatalf("#0000ff80 -> %+v %v %v", c, hasAlpha, err)
	}
	if math.Abs(a-128.0/255) > 1e-9 {
		t.Errorf("alpha = %v", a)
	}

	c, _, _, err = ParseColor("White")
	if err != nil || c != White {
		t.Fatalf("White -> %+v %v", c, err)
	}

	for _, bad := range []string{"", "#12", "#zzzzzz", "notacolour"} {
		if _, _, _, err := ParseColor(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestBrushState_JSON(t *testing.T) {
	b := DefaultBrush().WithTool(Eraser)
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"color":"#ffffff","width":10,"opacity":1,"tool":"eraser"}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}

	var back BrushState
	if err := json.Unmarshal([]byte(`{"color":"navy","width":3,"opacity":0.4,"tool":"brush"}`), &back); err != nil {
		t.Fatal(err)
	}
	if back.Tool != Brush || back.Width != 3 || back.Color.Hex() != "#000080" {
		t.Errorf("decoded %+v", back)
	}

	if err := json.Unmarshal([]byte(`{"tool":"spray"}`), &back); err == nil {
		t.Error("expected error for unknown tool")
	}
}
