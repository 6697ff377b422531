package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MaterialKind distinguishes syllabus uploads from per-unit documents.
type MaterialKind string

const (
	MaterialKindSyllabus MaterialKind = "SYLLABUS"
	MaterialKindUnit     MaterialKind = "UNIT"
)

// CourseMaterial is one uploaded document belonging to a course.
// Sections is non-nil if and only if IsProcessed is true.
type CourseMaterial struct {
	ID              string       `db:"id" json:"id"`
	CourseID        string       `db:"course_id" json:"courseId"`
	Kind            MaterialKind `db:"kind" json:"kind"`
	Unit            *int         `db:"unit" json:"unit,omitempty"`
	Title           string       `db:"title" json:"title"`
	StoragePath     string       `db:"storage_path" json:"storagePath"`
	IsProcessed     bool         `db:"is_processed" json:"isProcessed"`
	MarkdownContent *string      `db:"markdown_content" json:"markdownContent,omitempty"`
	Sections        SectionList  `db:"sections" json:"sections,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updatedAt"`
}

// Section is one structural unit of a processed material.
type Section struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Level   int      `json:"level"`
	Page    int      `json:"page"`
	Unit    *int     `json:"unit,omitempty"`
	Blocks  []string `json:"blocks"`
	Content string   `json:"content"`
}

// SectionList is persisted as a JSONB array. A nil list maps to SQL NULL.
type SectionList []Section

// Value marshals the sections for persistence.
func (s SectionList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal([]Section(s))
	if err != nil {
		return nil, fmt.Errorf("marshal sections: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the section list.
func (s *SectionList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for SectionList", value)
	}
	if len(data) == 0 {
		*s = nil
		return nil
	}
	var sections []Section
	if err := json.Unmarshal(data, &sections); err != nil {
		return fmt.Errorf("unmarshal sections: %w", err)
	}
	if sections == nil {
		sections = []Section{}
	}
	*s = sections
	return nil
}
