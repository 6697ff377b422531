package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter lays a paper out as a printable A4 question paper.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates the paper with a header line, numbered questions and an optional
// answer key on a separate page.
func (e *PDFExporter) Render(paper Paper) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if paper.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(paper.Title), "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Arial", "", 10)
	if paper.Subtitle != "" {
		pdf.CellFormat(0, 6, tr(paper.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Total marks: %d", paper.TotalMarks()), "", 1, "R", false, 0, "")
	pdf.Ln(4)

	for _, item := range paper.Items {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(12, 6, fmt.Sprintf("%d.", item.Number), "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(140, 6, tr(item.Text), "", "", false)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("[%d marks | %s]", item.Marks, item.Level), "", 1, "R", false, 0, "")
		pdf.Ln(2)
	}

	if paper.IncludeAnswers && len(paper.Items) > 0 {
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 10, "Answer key", "", 1, "", false, 0, "")
		for _, item := range paper.Items {
			pdf.SetFont("Arial", "B", 10)
			pdf.CellFormat(12, 6, fmt.Sprintf("%d.", item.Number), "", 0, "", false, 0, "")
			pdf.SetFont("Arial", "", 10)
			pdf.MultiCell(0, 6, tr(item.Answer), "", "", false)
			pdf.Ln(2)
		}
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("layout pdf: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
