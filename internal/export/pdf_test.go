package export

import (
	"bytes"
	"image/color"
	"strings"
	"testing"

	"github.com/starford/artselect/internal/models"
	"github.com/starford/artselect/internal/testutil"
)

func TestPDF_WithBitmap(t *testing.T) {
	rec := models.Canvas{ID: 3, Title: "Harbour at dusk", Category: "Landscapes", Description: "Charcoal study."}
	var buf bytes.Buffer
	if err := PDF(&buf, rec, testutil.JPEG(t, 320, 200, color.RGBA{40, 80, 160, 255})); err != nil {
		t.Fatalf("PDF: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "%PDF-") {
		t.Fatalf("not a pdf: %q", out[:min(len(out), 16)])
	}
	if !strings.Contains(out, "/Subtype /Image") {
		t.Error("pdf carries no image")
	}
}

func TestPDF_WithoutBitmap(t *testing.T) {
	var buf bytes.Buffer
	rec := models.Canvas{ID: 1, Title: models.DefaultTitle, Category: models.DefaultCategory, Description: models.DefaultDescription}
	if err := PDF(&buf, rec, nil); err != nil {
		t.Fatalf("PDF: %v", err)
	}
	if strings.Contains(buf.String(), "/Subtype /Image") {
		t.Error("unexpected image in pdf")
	}
}

func TestPDF_RejectsGarbageBitmap(t *testing.T) {
	var buf bytes.Buffer
	if err := PDF(&buf, models.Canvas{ID: 1, Title: "x"}, []byte("not a jpeg")); err == nil {
		t.Fatal("expected error")
	}
}
