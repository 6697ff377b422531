package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qbank-api/pkg/pdftext"
)

func samplePaper(includeAnswers bool) Paper {
	return Paper{
		Title:    "CS101 Unit 1",
		Subtitle: "Arrays",
		Items: []Item{
			{Number: 1, Text: "What is an array?", Answer: "A contiguous block of elements.", Marks: 2, Level: "REMEMBER", Style: "SHORT_ANSWER"},
			{Number: 2, Text: "Compare arrays and lists, with examples", Answer: "Arrays index in O(1), lists insert in O(1).", Marks: 8, Level: "ANALYZE", Style: "DESCRIPTIVE"},
		},
		IncludeAnswers: includeAnswers,
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	f, err = ParseFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	assert.Equal(t, "text/csv", f.ContentType())

	_, err = ParseFormat("docx")
	assert.Error(t, err)
}

func TestCSVExporterRender(t *testing.T) {
	data, err := NewCSVExporter().Render(samplePaper(false))
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"number", "question", "marks", "cognitive_level", "style"}, records[0])
	assert.Equal(t, []string{"2", "Compare arrays and lists, with examples", "8", "ANALYZE", "DESCRIPTIVE"}, records[2])

	data, err = NewCSVExporter().Render(samplePaper(true))
	require.NoError(t, err)
	records, err = csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "answer", records[0][5])
	assert.Equal(t, "A contiguous block of elements.", records[1][5])
}

func TestPDFExporterRender(t *testing.T) {
	paper := samplePaper(false)
	assert.Equal(t, 10, paper.TotalMarks())

	data, err := NewPDFExporter().Render(paper)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	doc, err := pdftext.NewExtractor().Extract(data)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.PageCount)
	assert.Contains(t, doc.Text, "What is an array?")
	assert.NotContains(t, doc.Text, "Answer key")

	data, err = NewPDFExporter().Render(samplePaper(true))
	require.NoError(t, err)
	doc, err = pdftext.NewExtractor().Extract(data)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.PageCount)
	assert.Contains(t, doc.Pages[1].Text, "Answer key")
}
