package segment

import (
	"strings"

	"github.com/noah-isme/qbank-api/internal/models"
)

// RenderMarkdown renders sections as a markdown document, one heading per section.
func RenderMarkdown(sections []models.Section) string {
	var sb strings.Builder
	for i, sec := range sections {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		level := sec.Level
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		sb.WriteString(strings.Repeat("#", level))
		sb.WriteByte(' ')
		sb.WriteString(sec.Title)
		for _, block := range sec.Blocks {
			sb.WriteString("\n\n")
			sb.WriteString(block)
		}
	}
	if sb.Len() > 0 {
		sb.WriteByte('\n')
	}
	return sb.String()
}
