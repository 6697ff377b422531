// Package segment partitions extracted document text into ordered, titled sections.
package segment

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/noah-isme/qbank-api/internal/models"
	"github.com/noah-isme/qbank-api/pkg/pdftext"
)

// UntitledDocument titles a document whose text yields no usable first line.
const UntitledDocument = "Untitled Document"

const maxDerivedTitleChars = 80

// Segmenter splits text into sections using heading heuristics.
type Segmenter struct {
	opts Options
}

// New constructs a Segmenter. Zero-valued options fall back to DefaultOptions.
func New(opts Options) *Segmenter {
	return &Segmenter{opts: opts.withDefaults()}
}

type sourceLine struct {
	text     string
	page     int
	fontSize float64
}

// Segment scans the document in order and returns its sections. When pages are
// supplied they drive the scan (carrying page numbers and font sizes); otherwise text
// is treated as a single page. Concatenating the Content of every returned section
// reproduces the input text up to whitespace normalization.
func (s *Segmenter) Segment(text string, pages []pdftext.Page) []models.Section {
	lines := sourceLines(text, pages)
	body := bodyFontSize(lines)

	b := &builder{}
	for i, line := range lines {
		trimmed := strings.TrimSpace(line.text)
		if trimmed == "" {
			b.flushParagraph()
			continue
		}
		lc := LineContext{
			BlankBefore:  i == 0 || strings.TrimSpace(lines[i-1].text) == "" || lines[i-1].page != line.page,
			BlankAfter:   i == len(lines)-1 || strings.TrimSpace(lines[i+1].text) == "" || lines[i+1].page != line.page,
			FontSize:     line.fontSize,
			BodyFontSize: body,
		}
		if c := Classify(trimmed, lc, s.opts); c.Heading {
			b.startSection(trimmed, c, line.page)
			continue
		}
		b.appendLine(trimmed, line.page)
	}
	return b.finish()
}

func sourceLines(text string, pages []pdftext.Page) []sourceLine {
	out := make([]sourceLine, 0)
	usable := false
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			usable = true
			break
		}
	}
	if !usable {
		for _, raw := range strings.Split(text, "\n") {
			out = append(out, sourceLine{text: raw, page: 1})
		}
		return out
	}
	for _, p := range pages {
		if len(p.Lines) > 0 {
			for _, l := range p.Lines {
				out = append(out, sourceLine{text: l.Text, page: p.Number, fontSize: l.FontSize})
			}
			continue
		}
		for _, raw := range strings.Split(p.Text, "\n") {
			out = append(out, sourceLine{text: raw, page: p.Number})
		}
	}
	return out
}

// bodyFontSize is the most common font size among non-blank lines, 0 when unknown.
func bodyFontSize(lines []sourceLine) float64 {
	counts := map[float64]int{}
	for _, l := range lines {
		if l.fontSize > 0 && strings.TrimSpace(l.text) != "" {
			counts[l.fontSize]++
		}
	}
	if len(counts) == 0 {
		return 0
	}
	sizes := make([]float64, 0, len(counts))
	for size := range counts {
		sizes = append(sizes, size)
	}
	sort.Float64s(sizes)
	best := sizes[0]
	for _, size := range sizes {
		if counts[size] > counts[best] {
			best = size
		}
	}
	return best
}

type draft struct {
	section   models.Section
	heading   string
	paragraph []string
}

type builder struct {
	sections    []*draft
	current     *draft
	currentUnit *int
}

func (b *builder) startSection(heading string, c Classification, page int) {
	b.flushParagraph()
	if c.Unit != nil {
		unit := *c.Unit
		b.currentUnit = &unit
	}
	d := &draft{
		heading: heading,
		section: models.Section{
			Title:  cleanTitle(heading),
			Level:  c.Level,
			Page:   page,
			Unit:   copyInt(b.currentUnit),
			Blocks: []string{},
		},
	}
	b.sections = append(b.sections, d)
	b.current = d
}

func (b *builder) appendLine(line string, page int) {
	if b.current == nil {
		// text before the first heading becomes a leading section titled by its first line
		d := &draft{section: models.Section{
			Title:  deriveTitle(line),
			Level:  1,
			Page:   page,
			Unit:   copyInt(b.currentUnit),
			Blocks: []string{},
		}}
		b.sections = append(b.sections, d)
		b.current = d
	}
	b.current.paragraph = append(b.current.paragraph, line)
}

func (b *builder) flushParagraph() {
	if b.current == nil || len(b.current.paragraph) == 0 {
		return
	}
	b.current.section.Blocks = append(b.current.section.Blocks, strings.Join(b.current.paragraph, "\n"))
	b.current.paragraph = nil
}

func (b *builder) finish() []models.Section {
	b.flushParagraph()
	out := make([]models.Section, 0, len(b.sections))
	for i, d := range b.sections {
		sec := d.section
		sec.ID = fmt.Sprintf("sec-%03d", i+1)
		parts := make([]string, 0, len(sec.Blocks)+1)
		if d.heading != "" {
			parts = append(parts, d.heading)
		}
		parts = append(parts, sec.Blocks...)
		sec.Content = strings.Join(parts, "\n\n")
		out = append(out, sec)
	}
	return out
}

func cleanTitle(heading string) string {
	if m := markdownHeading.FindStringSubmatch(heading); m != nil {
		return strings.TrimSpace(m[2])
	}
	return strings.TrimSpace(heading)
}

func deriveTitle(line string) string {
	title := strings.TrimLeftFunc(strings.TrimSpace(line), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if title == "" {
		return UntitledDocument
	}
	runes := []rune(title)
	if len(runes) <= maxDerivedTitleChars {
		return title
	}
	cut := string(runes[:maxDerivedTitleChars])
	if idx := strings.LastIndex(cut, " "); idx > maxDerivedTitleChars/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "..."
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// NormalizeWhitespace collapses every whitespace run into a single space.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Concatenate joins section contents in order.
func Concatenate(sections []models.Section) string {
	parts := make([]string, 0, len(sections))
	for _, sec := range sections {
		parts = append(parts, sec.Content)
	}
	return strings.Join(parts, "\n\n")
}

// FilterByUnit returns the sections tagged with unit. When none match, the full
// list is returned and the second result is false.
func FilterByUnit(sections []models.Section, unit int) ([]models.Section, bool) {
	matched := make([]models.Section, 0)
	for _, sec := range sections {
		if sec.Unit != nil && *sec.Unit == unit {
			matched = append(matched, sec)
		}
	}
	if len(matched) == 0 {
		return sections, false
	}
	return matched, true
}
