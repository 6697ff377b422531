package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// CSVExporter renders a paper as one CSV row per question.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the paper.
func (e *CSVExporter) Render(paper Paper) ([]byte, error) {
	headers := []string{"number", "question", "marks", "cognitive_level", "style"}
	if paper.IncludeAnswers {
		headers = append(headers, "answer")
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, item := range paper.Items {
		record := []string{strconv.Itoa(item.Number), item.Text, strconv.Itoa(item.Marks), item.Level, item.Style}
		if paper.IncludeAnswers {
			record = append(record, item.Answer)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", item.Number, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
