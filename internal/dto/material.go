package dto

import (
	"time"

	"github.com/noah-isme/qbank-api/internal/models"
)

// UploadMaterialRequest captures the multipart form fields of POST /materials.
type UploadMaterialRequest struct {
	CourseID string              `form:"courseId" json:"courseId" validate:"required,max=64"`
	Kind     models.MaterialKind `form:"kind" json:"kind" validate:"omitempty,oneof=SYLLABUS UNIT"`
	Unit     *int                `form:"unit" json:"unit,omitempty" validate:"omitempty,min=1,max=99"`
	Title    string              `form:"title" json:"title" validate:"max=255"`
	Filename string              `json:"-"`
}

// MaterialResponse is the public view of a material; the markdown body is only
// returned on demand.
type MaterialResponse struct {
	ID           string              `json:"id"`
	CourseID     string              `json:"courseId"`
	Kind         models.MaterialKind `json:"kind"`
	Unit         *int                `json:"unit,omitempty"`
	Title        string              `json:"title"`
	IsProcessed  bool                `json:"isProcessed"`
	SectionCount int                 `json:"sectionCount"`
	Sections     []SectionSummary    `json:"sections,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// SectionSummary omits the section body.
type SectionSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Level int    `json:"level"`
	Page  int    `json:"page"`
	Unit  *int   `json:"unit,omitempty"`
}

// ProcessMaterialResponse reports whether this call performed the processing.
type ProcessMaterialResponse struct {
	Material  MaterialResponse `json:"material"`
	Processed bool             `json:"processed"`
}

// NewMaterialResponse maps a material row to its public view.
func NewMaterialResponse(m *models.CourseMaterial) MaterialResponse {
	resp := MaterialResponse{
		ID:           m.ID,
		CourseID:     m.CourseID,
		Kind:         m.Kind,
		Unit:         m.Unit,
		Title:        m.Title,
		IsProcessed:  m.IsProcessed,
		SectionCount: len(m.Sections),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	for _, s := range m.Sections {
		resp.Sections = append(resp.Sections, SectionSummary{ID: s.ID, Title: s.Title, Level: s.Level, Page: s.Page, Unit: s.Unit})
	}
	return resp
}
