package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Field is a single labelled value inside a document section. When Image is set the
// value cell shows the picture and Value is only used if the image cannot be decoded.
type Field struct {
	Label string
	Value string
	Image *Image
}

// Image is raw PNG or JPEG data embedded in a field.
type Image struct {
	Data []byte
	Type string
}

// Section groups related fields under a heading.
type Section struct {
	Heading string
	Fields  []Field
}

// Document is a printable form made of titled sections.
type Document struct {
	Title    string
	Subtitle string
	Sections []Section
	Footer   string
}

// PDFExporter renders documents into A4 PDFs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render lays the document out as a two-column label/value form.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("pdf requires at least one section")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	if doc.Footer != "" {
		pdf.SetFooterFunc(func() {
			pdf.SetY(-12)
			pdf.SetFont("Arial", "I", 8)
			pdf.CellFormat(0, 6, doc.Footer, "", 0, "C", false, 0, "")
		})
	}
	pdf.AddPage()

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(doc.Title), "", 1, "C", false, 0, "")
	}
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, doc.Subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	const labelWidth, valueWidth = 60.0, 120.0
	for _, section := range doc.Sections {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, section.Heading, "B", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for i, field := range section.Fields {
			if field.Image != nil && drawImageRow(pdf, fmt.Sprintf("%s-%d", section.Heading, i), field, labelWidth, valueWidth) {
				continue
			}
			pdf.CellFormat(labelWidth, 7, field.Label, "1", 0, "", false, 0, "")
			pdf.CellFormat(valueWidth, 7, field.Value, "1", 1, "", false, 0, "")
		}
		pdf.Ln(3)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

const imageRowHeight = 20.0

// drawImageRow renders a label with an embedded picture. It reports false, leaving the
// document untouched, when the image data is unusable.
func drawImageRow(pdf *gofpdf.Fpdf, name string, field Field, labelWidth, valueWidth float64) bool {
	opts := gofpdf.ImageOptions{ImageType: strings.ToUpper(field.Image.Type)}
	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(field.Image.Data))
	if !pdf.Ok() || info == nil {
		pdf.ClearError()
		return false
	}
	x, y := pdf.GetXY()
	pdf.CellFormat(labelWidth, imageRowHeight, field.Label, "1", 0, "", false, 0, "")
	pdf.CellFormat(valueWidth, imageRowHeight, "", "1", 1, "", false, 0, "")
	pdf.ImageOptions(name, x+labelWidth+2, y+1, 0, imageRowHeight-2, false, opts, 0, "")
	pdf.SetXY(x, y+imageRowHeight)
	return true
}
