package dto

import (
	"time"

	"github.com/noah-isme/qbank-api/internal/models"
)

// GenerationRequest captures POST /generation-jobs payload.
type GenerationRequest struct {
	CourseID   string        `json:"courseId" validate:"required,max=64"`
	MaterialID string        `json:"materialId" validate:"required,uuid"`
	Unit       int           `json:"unit" validate:"required,min=1,max=99"`
	Quotas     models.Quotas `json:"quotas"`
}

// GenerationJobResponse is returned after a job is accepted.
type GenerationJobResponse struct {
	ID              string                 `json:"id"`
	Status          models.JobStatus       `json:"status"`
	ProcessingStage models.ProcessingStage `json:"processingStage"`
	Progress        int                    `json:"progress"`
	DispatchMode    models.DispatchMode    `json:"dispatchMode"`
}

// GenerationStatusResponse exposes job progress metadata.
type GenerationStatusResponse struct {
	ID              string                 `json:"id"`
	CourseID        string                 `json:"courseId"`
	MaterialID      string                 `json:"materialId"`
	Unit            int                    `json:"unit"`
	Status          models.JobStatus       `json:"status"`
	ProcessingStage models.ProcessingStage `json:"processingStage"`
	Progress        int                    `json:"progress"`
	GeneratedCount  int                    `json:"generatedCount"`
	TotalRequested  int                    `json:"totalRequested"`
	DispatchMode    models.DispatchMode    `json:"dispatchMode"`
	Error           *string                `json:"error,omitempty"`
	Warning         *string                `json:"warning,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
	FinishedAt      *time.Time             `json:"finishedAt,omitempty"`
}

// NewGenerationStatusResponse maps a job row to its public view.
func NewGenerationStatusResponse(job *models.GenerationJob) *GenerationStatusResponse {
	resp := &GenerationStatusResponse{
		ID:              job.ID,
		CourseID:        job.CourseID,
		MaterialID:      job.MaterialID,
		Unit:            job.Unit,
		Status:          job.Status,
		ProcessingStage: job.ProcessingStage,
		Progress:        job.Progress,
		GeneratedCount:  job.GeneratedCount,
		TotalRequested:  job.TotalRequested,
		DispatchMode:    job.DispatchMode,
		Warning:         job.Warning,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		FinishedAt:      job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp
}

// QuestionListResponse wraps the generated questions of a job.
type QuestionListResponse struct {
	JobID     string            `json:"jobId"`
	Status    models.JobStatus  `json:"status"`
	Total     int               `json:"total"`
	Questions []models.Question `json:"questions"`
}
