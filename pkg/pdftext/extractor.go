// Package pdftext turns PDF bytes into plain text with per-page line metadata.
//
// It uses ledongthuc/pdf (pure Go) and performs no network calls. Layout
// reconstruction is best effort: lines are rebuilt from positioned glyphs,
// but every glyph found in the content streams ends up in the output.
package pdftext

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	appErrors "github.com/noah-isme/qbank-api/pkg/errors"
)

// Line is one reconstructed text line. Blank lines mark paragraph gaps.
type Line struct {
	Text     string  `json:"text"`
	FontSize float64 `json:"fontSize,omitempty"`
}

// Page holds the text of a single page.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
	Lines  []Line `json:"lines,omitempty"`
}

// Document is the extraction result for a whole PDF.
type Document struct {
	Text      string `json:"text"`
	PageCount int    `json:"pageCount"`
	Pages     []Page `json:"pages"`
}

// PageTexts returns the plain text of every page in order.
func (d *Document) PageTexts() []string {
	out := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		out = append(out, p.Text)
	}
	return out
}

const (
	// glyphs whose baselines differ by less than this share a line
	baselineTolerance = 2.0
	// a vertical gap this many times the usual line pitch starts a new paragraph
	paragraphGapFactor = 1.6
)

// Extractor converts PDF byte streams into Documents.
type Extractor struct{}

// NewExtractor constructs an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses data as a PDF. The input slice is never modified.
// Invalid or unreadable documents fail with ErrMalformedDocument and no partial text.
func (e *Extractor) Extract(data []byte) (doc *Document, err error) {
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrMalformedDocument, "document is empty")
	}
	defer func() {
		// ledongthuc/pdf panics on some corrupt object graphs
		if r := recover(); r != nil {
			doc = nil
			err = appErrors.Wrap(fmt.Errorf("%v", r), appErrors.ErrMalformedDocument.Code, appErrors.ErrMalformedDocument.Status, appErrors.ErrMalformedDocument.Message)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMalformedDocument.Code, appErrors.ErrMalformedDocument.Status, appErrors.ErrMalformedDocument.Message)
	}

	total := reader.NumPage()
	if total <= 0 {
		return nil, appErrors.Clone(appErrors.ErrMalformedDocument, "document has no pages")
	}

	doc = &Document{PageCount: total, Pages: make([]Page, 0, total)}
	texts := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			doc.Pages = append(doc.Pages, Page{Number: i})
			continue
		}
		lines, err := pageLines(page)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrMalformedDocument.Code, appErrors.ErrMalformedDocument.Status, fmt.Sprintf("unreadable content on page %d", i))
		}
		pageText := joinLines(lines)
		doc.Pages = append(doc.Pages, Page{Number: i, Text: pageText, Lines: lines})
		if pageText != "" {
			texts = append(texts, pageText)
		}
	}
	doc.Text = strings.Join(texts, "\n\n")
	return doc, nil
}

func pageLines(page pdf.Page) ([]Line, error) {
	lines := glyphLines(page.Content().Text)
	if len(lines) > 0 {
		return lines, nil
	}
	plain, err := page.GetPlainText(nil)
	if err != nil {
		return nil, err
	}
	out := make([]Line, 0)
	for _, raw := range strings.Split(plain, "\n") {
		out = append(out, Line{Text: strings.TrimRight(raw, " \t\r")})
	}
	return trimBlankEdges(out), nil
}

type glyphRow struct {
	y      float64
	glyphs []pdf.Text
}

// glyphLines groups positioned glyphs into top-to-bottom lines.
func glyphLines(glyphs []pdf.Text) []Line {
	if len(glyphs) == 0 {
		return nil
	}
	rows := make([]*glyphRow, 0)
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		var target *glyphRow
		for _, row := range rows {
			if math.Abs(row.y-g.Y) < baselineTolerance {
				target = row
				break
			}
		}
		if target == nil {
			target = &glyphRow{y: g.Y}
			rows = append(rows, target)
		}
		target.glyphs = append(target.glyphs, g)
	}
	// PDF user space grows upwards, so higher Y comes first
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].y > rows[j].y })

	pitch := linePitch(rows)
	lines := make([]Line, 0, len(rows))
	for i, row := range rows {
		if i > 0 && pitch > 0 && rows[i-1].y-row.y > pitch*paragraphGapFactor {
			lines = append(lines, Line{})
		}
		sort.SliceStable(row.glyphs, func(a, b int) bool { return row.glyphs[a].X < row.glyphs[b].X })
		var sb strings.Builder
		size := 0.0
		for k, g := range row.glyphs {
			if k > 0 && needsSpace(row.glyphs[k-1], g) {
				sb.WriteByte(' ')
			}
			sb.WriteString(g.S)
			if g.FontSize > size {
				size = g.FontSize
			}
		}
		text := strings.TrimRight(sb.String(), " \t")
		if strings.TrimSpace(text) == "" {
			continue
		}
		lines = append(lines, Line{Text: text, FontSize: math.Round(size*10) / 10})
	}
	return trimBlankEdges(lines)
}

// linePitch is the median distance between consecutive baselines.
func linePitch(rows []*glyphRow) float64 {
	if len(rows) < 2 {
		return 0
	}
	gaps := make([]float64, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		gaps = append(gaps, rows[i-1].y-rows[i].y)
	}
	sort.Float64s(gaps)
	return gaps[len(gaps)/2]
}

func needsSpace(prev, next pdf.Text) bool {
	if strings.HasSuffix(prev.S, " ") || strings.HasPrefix(next.S, " ") {
		return false
	}
	if prev.W <= 0 || prev.FontSize <= 0 {
		return false
	}
	gap := next.X - (prev.X + prev.W)
	return gap > prev.FontSize*0.25
}

func joinLines(lines []Line) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, l.Text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func trimBlankEdges(lines []Line) []Line {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start].Text) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1].Text) == "" {
		end--
	}
	return lines[start:end]
}
