package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/qbank-api/internal/models"
	appErrors "github.com/noah-isme/qbank-api/pkg/errors"
	"github.com/noah-isme/qbank-api/pkg/export"
)

type jobReader interface {
	GetByID(ctx context.Context, id string) (*models.GenerationJob, error)
}

type questionReader interface {
	ListByJob(ctx context.Context, jobID string) ([]models.Question, error)
}

type csvRenderer interface {
	Render(paper export.Paper) ([]byte, error)
}

type pdfRenderer interface {
	Render(paper export.Paper) ([]byte, error)
}

// QuestionExport is a rendered question paper ready to stream.
type QuestionExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders the questions of a completed job as a CSV sheet or PDF paper.
type ExportService struct {
	jobs      jobReader
	questions questionReader
	materials materialReader
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(jobs jobReader, questions questionReader, materials materialReader, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		jobs:      jobs,
		questions: questions,
		materials: materials,
		csv:       csv,
		pdf:       pdf,
		logger:    logger,
	}
}

// Export renders the job's questions. Only COMPLETED jobs can be exported.
func (s *ExportService) Export(ctx context.Context, jobID string, format export.Format, includeAnswers bool) (*QuestionExport, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation job")
	}
	if job.Status != models.JobStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "questions can be exported once the job has completed")
	}

	questions, err := s.questions.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questions")
	}

	paper := s.buildPaper(ctx, job, questions, includeAnswers)

	var payload []byte
	switch format {
	case export.FormatCSV:
		payload, err = s.csv.Render(paper)
	case export.FormatPDF:
		payload, err = s.pdf.Render(paper)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render question paper")
	}

	s.logger.Sugar().Infow("question paper exported", "job_id", job.ID, "format", format, "questions", len(paper.Items))
	return &QuestionExport{
		Filename:    buildFilename(job, format),
		ContentType: format.ContentType(),
		Data:        payload,
	}, nil
}

func (s *ExportService) buildPaper(ctx context.Context, job *models.GenerationJob, questions []models.Question, includeAnswers bool) export.Paper {
	paper := export.Paper{
		Title:          fmt.Sprintf("%s Unit %d", strings.ToUpper(job.CourseID), job.Unit),
		IncludeAnswers: includeAnswers,
	}
	if s.materials != nil {
		material, err := s.materials.Get(ctx, job.MaterialID)
		if err != nil {
			s.logger.Sugar().Warnw("material lookup failed, exporting without subtitle", "job_id", job.ID, "material_id", job.MaterialID, "error", err)
		} else {
			paper.Subtitle = material.Title
		}
	}

	ordered := append([]models.Question(nil), questions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Marks < ordered[j].Marks
	})
	for i, q := range ordered {
		paper.Items = append(paper.Items, export.Item{
			Number: i + 1,
			Text:   q.Text,
			Answer: q.Answer,
			Marks:  q.Marks,
			Level:  string(q.CognitiveLevel),
			Style:  string(q.Style),
		})
	}
	return paper
}

func buildFilename(job *models.GenerationJob, format export.Format) string {
	return fmt.Sprintf("%s_unit%d_%s.%s", sanitizeFilename(job.CourseID), job.Unit, shortID(job.ID), format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 64 {
		return result[:64]
	}
	return result
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
