package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

func near(a, b uint8, tol int) bool {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func assertPixel(t *testing.T, img *image.RGBA, x, y int, want color.RGBA, tol int) {
	t.Helper()
	got := img.RGBAAt(x, y)
	if !near(got.R, want.R, tol) || !near(got.G, want.G, tol) || !near(got.B, want.B, tol) || !near(got.A, want.A, tol) {
		t.Errorf("pixel (%d,%d) = %v, want %v (±%d)", x, y, got, want, tol)
	}
}

var (
	black = color.RGBA{0, 0, 0, 255}
	white = color.RGBA{255, 255, 255, 255}
)

func TestNew_PlaceholderIsWhite(t *testing.T) {
	c := New(20, 10)
	if c.Size() != (image.Point{X: 20, Y: 10}) {
		t.Fatalf("size = %v", c.Size())
	}
	assertPixel(t, c.Base(), 0, 0, white, 0)
	assertPixel(t, c.Base(), 19, 9, white, 0)
	if c.StrokeActive() {
		t.Error("new canvas should have no active stroke")
	}
	if _, _, ok := c.Draft(); ok {
		t.Error("new canvas should have no draft")
	}
}

func TestNew_ClampsSize(t *testing.T) {
	c := New(0, -3)
	if c.Size() != (image.Point{X: 1, Y: 1}) {
		t.Fatalf("size = %v", c.Size())
	}
}

func TestStroke_HorizontalBand(t *testing.T) {
	c := New(200, 40)
	c.BeginStroke(Point{0, 0})
	c.ExtendStroke(Point{100, 0}, DefaultBrush())
	c.EndStroke(Point{100, 0})

	base := c.Base()
	for _, x := range []int{1, 50, 99} {
		assertPixel(t, base, x, 2, black, 8)
	}
	assertPixel(t, base, 50, 20, white, 0)
	assertPixel(t, base, 150, 2, white, 0)
	assertPixel(t, base, 120, 0, white, 0)
	// Width 10 dilates the segment by 5; pixels starting past that are untouched.
	for y := 0; y < 40; y++ {
		for x := 0; x < 200; x++ {
			if x <= 105 && y <= 5 {
				continue
			}
			if got := base.RGBAAt(x, y); got != white {
				t.Fatalf("pixel (%d,%d) = %v outside the stroke region", x, y, got)
			}
		}
	}
	if c.StrokeActive() {
		t.Error("stroke should be inactive after EndStroke")
	}
	if _, _, ok := c.Draft(); ok {
		t.Error("draft should be cleared after EndStroke")
	}
}

func TestStroke_EraserOverBlack(t *testing.T) {
	c := NewFromImage(100, 100, solid(100, 100, black))
	assertPixel(t, c.Base(), 50, 50, black, 0)

	eraser := DefaultBrush().WithTool(Eraser)
	c.BeginStroke(Point{10, 50})
	c.ExtendStroke(Point{90, 50}, eraser)
	c.EndStroke(Point{90, 50})

	base := c.Base()
	assertPixel(t, base, 50, 50, white, 8)
	assertPixel(t, base, 50, 10, black, 0)
}

func TestStroke_HalfOpacityBlend(t *testing.T) {
	c := New(100, 100)
	b := DefaultBrush()
	b.Opacity = 0.5
	b.Width = 20
	c.BeginStroke(Point{10, 50})
	c.ExtendStroke(Point{90, 50}, b)

	draft, opacity, ok := c.Draft()
	if !ok {
		t.Fatal("expected draft while stroke is active")
	}
	if opacity != 0.5 {
		t.Errorf("draft opacity = %v, want 0.5", opacity)
	}
	// The overlay itself is painted at full alpha.
	assertPixel(t, draft, 50, 50, black, 0)
	// Nothing reaches the base before commit.
	assertPixel(t, c.Base(), 50, 50, white, 0)

	c.EndStroke(Point{90, 50})
	assertPixel(t, c.Base(), 50, 50, color.RGBA{127, 127, 127, 255}, 2)
}

func TestStroke_TapLeavesRoundDot(t *testing.T) {
	c := New(100, 100)
	c.BeginStroke(Point{50, 50})
	c.EndStroke(Point{50, 50})

	base := c.Base()
	assertPixel(t, base, 50, 50, black, 8)
	assertPixel(t, base, 52, 49, black, 8)
	// Beyond the radius.
	assertPixel(t, base, 58, 50, white, 0)
	// Inside the bounding square but outside the circle.
	assertPixel(t, base, 54, 54, white, 0)
	assertPixel(t, base, 45, 45, white, 0)
}

func TestStroke_ExtendRedrawsWholeStroke(t *testing.T) {
	c := New(100, 100)
	c.BeginStroke(Point{10, 10})
	c.ExtendStroke(Point{50, 10}, DefaultBrush())
	c.ExtendStroke(Point{50, 80}, DefaultBrush())

	draft, _, ok := c.Draft()
	if !ok {
		t.Fatal("expected draft")
	}
	assertPixel(t, draft, 30, 10, black, 8)
	assertPixel(t, draft, 50, 60, black, 8)
	if got := c.LastPoint(); got != (Point{50, 80}) {
		t.Errorf("last point = %v", got)
	}

	c.EndStroke(Point{50, 80})
	assertPixel(t, c.Base(), 30, 10, black, 8)
	assertPixel(t, c.Base(), 50, 60, black, 8)
}

func TestStroke_ExtendWithoutBeginIsNoop(t *testing.T) {
	c := New(50, 50)
	c.ExtendStroke(Point{10, 10}, DefaultBrush())
	if _, _, ok := c.Draft(); ok {
		t.Error("extend without begin should not produce a draft")
	}
	c.EndStroke(Point{10, 10})
	assertPixel(t, c.Base(), 10, 10, white, 0)
}

func TestStroke_OutOfBoundsClipped(t *testing.T) {
	c := New(50, 50)
	c.BeginStroke(Point{-100, 25})
	c.ExtendStroke(Point{200, 25}, DefaultBrush())
	c.EndStroke(Point{200, 25})

	if c.Size() != (image.Point{X: 50, Y: 50}) {
		t.Fatalf("size changed: %v", c.Size())
	}
	assertPixel(t, c.Base(), 0, 25, black, 8)
	assertPixel(t, c.Base(), 49, 25, black, 8)
}

func TestStroke_FarEndpointStillPaintsViewport(t *testing.T) {
	for _, far := range []float64{1e7, 1e8, 1e15} {
		c := New(200, 200)
		c.BeginStroke(Point{10, 10})
		c.ExtendStroke(Point{far, 10}, DefaultBrush())
		c.EndStroke(Point{far, 10})

		base := c.Base()
		assertPixel(t, base, 100, 10, black, 8)
		assertPixel(t, base, 199, 10, black, 8)
		assertPixel(t, base, 100, 40, white, 0)
	}
}

func TestStroke_ExtremeCoordinatesAreTotal(t *testing.T) {
	cases := map[string][2]Point{
		"beyond float32":  {{10, 10}, {1e39, 10}},
		"max float64":     {{10, 10}, {1e308, 10}},
		"opposite maxima": {{-math.MaxFloat64, 50}, {math.MaxFloat64, 50}},
		"diagonal":        {{-1e300, -1e300}, {1e300, 1e300}},
		"not a number":    {{10, 10}, {math.NaN(), 10}},
		"infinite":        {{10, 10}, {math.Inf(1), math.Inf(-1)}},
	}
	for name, pts := range cases {
		t.Run(name, func(t *testing.T) {
			c := New(100, 100)
			c.BeginStroke(pts[0])
			c.ExtendStroke(pts[1], DefaultBrush())
			c.EndStroke(pts[1])
			if c.StrokeActive() {
				t.Error("stroke still active")
			}
			if c.Size() != (image.Point{X: 100, Y: 100}) {
				t.Errorf("size changed: %v", c.Size())
			}
		})
	}

	c := New(100, 100)
	c.BeginStroke(Point{-math.MaxFloat64, 50})
	c.ExtendStroke(Point{math.MaxFloat64, 50}, DefaultBrush())
	c.EndStroke(Point{math.MaxFloat64, 50})
	assertPixel(t, c.Base(), 50, 50, black, 8)
	assertPixel(t, c.Base(), 50, 10, white, 0)
}

func TestStroke_FarTapLeavesBaseUntouched(t *testing.T) {
	c := New(50, 50)
	want := c.Placeholder()
	c.BeginStroke(Point{1e39, -1e39})
	c.EndStroke(Point{1e39, -1e39})
	if !bytes.Equal(c.Base().Pix, want.Pix) {
		t.Fatal("tap far outside the viewport changed the base")
	}
}

func TestClipSegment(t *testing.T) {
	r := rect{minX: 0, minY: 0, maxX: 10, maxY: 10}
	a, b, ok := clipSegment(Point{-5, 5}, Point{15, 5}, r)
	if !ok || a != (Point{0, 5}) || b != (Point{10, 5}) {
		t.Errorf("horizontal clip = %v %v %v", a, b, ok)
	}
	a, b, ok = clipSegment(Point{2, 2}, Point{3, 4}, r)
	if !ok || a != (Point{2, 2}) || b != (Point{3, 4}) {
		t.Errorf("inside segment changed: %v %v %v", a, b, ok)
	}
	if _, _, ok := clipSegment(Point{-5, -5}, Point{-1, 20}, r); ok {
		t.Error("segment left of the box should be dropped")
	}
	if _, _, ok := clipSegment(Point{20, 20}, Point{20, 20}, r); ok {
		t.Error("outside point should be dropped")
	}
}

func TestBeginStroke_ClearsStaleDraft(t *testing.T) {
	c := New(50, 50)
	c.BeginStroke(Point{5, 5})
	c.ExtendStroke(Point{45, 5}, DefaultBrush())
	c.BeginStroke(Point{25, 25})
	if _, _, ok := c.Draft(); ok {
		t.Error("BeginStroke should clear the stale draft")
	}
	c.EndStroke(Point{25, 25})
	assertPixel(t, c.Base(), 25, 5, white, 0)
}

func TestCompositeImage_HalfOpacity(t *testing.T) {
	c := NewFromImage(40, 40, solid(40, 40, color.RGBA{200, 0, 0, 255}))
	c.CompositeImage(solid(10, 30, color.RGBA{0, 0, 200, 255}), 0.5)
	assertPixel(t, c.Base(), 20, 20, color.RGBA{100, 0, 100, 255}, 2)
	if _, _, ok := c.Draft(); ok {
		t.Error("composite should leave no draft")
	}
}

func TestCompositeImage_AspectFillCropsCentre(t *testing.T) {
	// Left half red, right half blue, twice as wide as the viewport.
	src := image.NewRGBA(image.Rect(0, 0, 200, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 200; x++ {
			c := color.RGBA{255, 0, 0, 255}
			if x >= 100 {
				c = color.RGBA{0, 0, 255, 255}
			}
			src.SetRGBA(x, y, c)
		}
	}
	c := New(50, 50)
	c.CompositeImage(src, 1)

	base := c.Base()
	// Height decides the scale, so only the central 50x50 survives.
	assertPixel(t, base, 5, 25, color.RGBA{255, 0, 0, 255}, 4)
	assertPixel(t, base, 45, 25, color.RGBA{0, 0, 255, 255}, 4)
	assertPixel(t, base, 25, 0, base.RGBAAt(25, 49), 4)
}

func TestCompositeImage_AbandonsActiveStroke(t *testing.T) {
	c := New(20, 20)
	c.BeginStroke(Point{1, 1})
	c.CompositeImage(solid(4, 4, black), 1)
	if c.StrokeActive() {
		t.Error("composite should end the active stroke")
	}
	assertPixel(t, c.Base(), 10, 10, black, 0)
}

func TestReset_RestoresPlaceholderExactly(t *testing.T) {
	c := New(64, 48, WithBackground(Color{R: 0.2, G: 0.4, B: 0.6}))
	want := c.Placeholder()

	c.CompositeImage(solid(10, 10, color.RGBA{10, 200, 30, 255}), 1)
	c.BeginStroke(Point{0, 0})
	c.ExtendStroke(Point{60, 40}, DefaultBrush())
	c.Reset()

	if !bytes.Equal(c.Base().Pix, want.Pix) {
		t.Fatal("reset base differs from placeholder")
	}
	if c.StrokeActive() {
		t.Error("reset should abandon the stroke")
	}
	if _, _, ok := c.Draft(); ok {
		t.Error("reset should discard the draft")
	}
}

func TestExport_Deterministic(t *testing.T) {
	c := New(32, 32)
	c.BeginStroke(Point{4, 4})
	c.ExtendStroke(Point{28, 28}, DefaultBrush())
	c.EndStroke(Point{28, 28})

	a, err := c.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	b, err := c.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("export is not deterministic")
	}

	img, err := jpeg.Decode(bytes.NewReader(a))
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if img.Bounds().Size() != (image.Point{X: 32, Y: 32}) {
		t.Errorf("export size = %v", img.Bounds().Size())
	}
}

func TestExport_QualityAffectsSize(t *testing.T) {
	noisy := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := range noisy.Pix {
		noisy.Pix[i] = uint8(i * 31)
	}
	lo := NewFromImage(64, 64, noisy, WithJPEGQuality(10))
	hi := NewFromImage(64, 64, noisy, WithJPEGQuality(95))
	a, _ := lo.Export()
	b, _ := hi.Export()
	if len(a) >= len(b) {
		t.Errorf("quality 10 size %d should be smaller than quality 95 size %d", len(a), len(b))
	}
}
