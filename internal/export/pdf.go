// Package export renders a saved canvas onto a printable PDF page.
package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/starford/artselect/internal/models"
)

const (
	margin     = 15.0
	titleSize  = 20.0
	labelSize  = 11.0
	bodySize   = 11.0
	lineHeight = 6.0
)

// PDF writes an A4 portrait page with the record's title and category, the
// bitmap scaled to the printable width, and the description underneath.
// bitmap must be JPEG.
func PDF(w io.Writer, rec models.Canvas, bitmap []byte) error {
	p := gofpdf.New("P", "mm", "A4", "")
	p.SetMargins(margin, margin, margin)
	p.SetAutoPageBreak(true, margin)
	p.SetCreator("artselect", true)
	p.SetTitle(rec.Title, true)
	p.SetSubject(rec.Category, true)
	tr := p.UnicodeTranslatorFromDescriptor("")

	p.AddPage()
	pageW, pageH := p.GetPageSize()
	printW := pageW - 2*margin

	p.SetFont("Helvetica", "B", titleSize)
	p.CellFormat(printW, 10, tr(rec.Title), "", 1, "L", false, 0, "")
	p.SetFont("Helvetica", "I", labelSize)
	p.SetTextColor(96, 96, 96)
	p.CellFormat(printW, lineHeight, tr(rec.Category), "", 1, "L", false, 0, "")
	p.SetTextColor(0, 0, 0)
	p.Ln(4)

	if len(bitmap) > 0 {
		name := fmt.Sprintf("canvas-%d", rec.ID)
		info := p.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "JPG"}, bytes.NewReader(bitmap))
		if err := p.Error(); err != nil {
			return fmt.Errorf("export: register bitmap: %w", err)
		}
		imgW, imgH := printW, printW*info.Height()/info.Width()
		// Leave room for a few lines of description.
		if maxH := pageH - p.GetY() - margin - 4*lineHeight; imgH > maxH && maxH > 0 {
			imgW, imgH = imgW*maxH/imgH, maxH
		}
		x := margin + (printW-imgW)/2
		p.ImageOptions(name, x, p.GetY(), imgW, imgH, true, gofpdf.ImageOptions{ImageType: "JPG"}, 0, "")
		p.Ln(4)
	}

	p.SetFont("Helvetica", "", bodySize)
	p.MultiCell(printW, lineHeight, tr(strings.TrimSpace(rec.Description)), "", "L", false)

	if err := p.Output(w); err != nil {
		return fmt.Errorf("export: write pdf: %w", err)
	}
	return nil
}
