// Package export renders generated questions as downloadable question papers.
package export

import "fmt"

// Format selects the rendered file type.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat accepts csv or pdf, defaulting to pdf when raw is empty.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/pdf"
}

// Item is one numbered question on a paper.
type Item struct {
	Number int
	Text   string
	Answer string
	Marks  int
	Level  string
	Style  string
}

// Paper is a titled list of questions. Answers are printed only when IncludeAnswers is set.
type Paper struct {
	Title          string
	Subtitle       string
	Items          []Item
	IncludeAnswers bool
}

// TotalMarks sums the marks across all items.
func (p Paper) TotalMarks() int {
	total := 0
	for _, item := range p.Items {
		total += item.Marks
	}
	return total
}
