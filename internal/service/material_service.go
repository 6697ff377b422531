package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/qbank-api/internal/dto"
	"github.com/noah-isme/qbank-api/internal/models"
	"github.com/noah-isme/qbank-api/internal/segment"
	appErrors "github.com/noah-isme/qbank-api/pkg/errors"
	"github.com/noah-isme/qbank-api/pkg/pdftext"
)

type materialStore interface {
	Create(ctx context.Context, material *models.CourseMaterial) error
	GetByID(ctx context.Context, id string) (*models.CourseMaterial, error)
	MarkProcessed(ctx context.Context, id string, markdown string, sections models.SectionList) (bool, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseMaterial, error)
}

type objectStore interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) (string, error)
	Delete(ctx context.Context, path string) error
}

type documentExtractor interface {
	Extract(data []byte) (*pdftext.Document, error)
}

type sectionSegmenter interface {
	Segment(text string, pages []pdftext.Page) []models.Section
}

// StageFunc is notified before each processing stage starts. Returning an error
// aborts processing with that error.
type StageFunc func(ctx context.Context, stage models.ProcessingStage) error

var pdfMagic = []byte("%PDF-")

// MaterialService registers uploaded materials and turns them into sections.
type MaterialService struct {
	repo      materialStore
	store     objectStore
	extractor documentExtractor
	segmenter sectionSegmenter
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewMaterialService constructs the material service.
func NewMaterialService(repo materialStore, store objectStore, extractor documentExtractor, segmenter sectionSegmenter, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *MaterialService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = pdftext.NewExtractor()
	}
	if segmenter == nil {
		segmenter = segment.New(segment.DefaultOptions())
	}
	return &MaterialService{
		repo:      repo,
		store:     store,
		extractor: extractor,
		segmenter: segmenter,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
	}
}

// Upload stores the PDF binary and registers an unprocessed material row.
func (s *MaterialService) Upload(ctx context.Context, req dto.UploadMaterialRequest, data []byte) (*models.CourseMaterial, error) {
	req.CourseID = strings.TrimSpace(req.CourseID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if req.Kind == "" {
		req.Kind = models.MaterialKindUnit
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file must be a PDF document")
	}

	material := &models.CourseMaterial{
		ID:       uuid.NewString(),
		CourseID: req.CourseID,
		Kind:     req.Kind,
		Unit:     req.Unit,
		Title:    materialTitle(req),
	}
	objectPath := path.Join(material.CourseID, material.ID+".pdf")
	stored, err := s.store.Put(ctx, objectPath, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to store material")
	}
	material.StoragePath = stored

	if err := s.repo.Create(ctx, material); err != nil {
		if delErr := s.store.Delete(ctx, stored); delErr != nil {
			s.logger.Sugar().Warnw("failed to remove orphaned material object", "path", stored, "error", delErr)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register material")
	}
	s.logger.Sugar().Infow("material uploaded", "material_id", material.ID, "course_id", material.CourseID, "bytes", len(data))
	return material, nil
}

// Get loads a material by id.
func (s *MaterialService) Get(ctx context.Context, id string) (*models.CourseMaterial, error) {
	material, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	return material, nil
}

// List returns the materials registered for a course.
func (s *MaterialService) List(ctx context.Context, courseID string) ([]models.CourseMaterial, error) {
	if strings.TrimSpace(courseID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "courseId is required")
	}
	materials, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list materials")
	}
	return materials, nil
}

// ProcessMaterial extracts and segments a material exactly once. It returns false
// without doing any work when the material is already processed, and false when a
// concurrent caller committed first.
func (s *MaterialService) ProcessMaterial(ctx context.Context, id string, onStage StageFunc) (bool, error) {
	material, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if material.IsProcessed {
		return false, nil
	}
	if onStage == nil {
		onStage = func(context.Context, models.ProcessingStage) error { return nil }
	}
	log := s.logger.Sugar().With("material_id", id)

	if err := onStage(ctx, models.StageExtracting); err != nil {
		return false, err
	}
	data, err := s.store.Get(ctx, material.StoragePath)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, appErrors.ErrStorageUnavailable.Message)
	}
	doc, err := s.extractor.Extract(data)
	if err != nil {
		return false, err
	}

	if err := onStage(ctx, models.StageSegmenting); err != nil {
		return false, err
	}
	sections := s.segmenter.Segment(doc.Text, doc.Pages)
	if len(sections) == 0 {
		return false, appErrors.Clone(appErrors.ErrProcessingFailed, "no text could be segmented from the document")
	}
	markdown := segment.RenderMarkdown(sections)

	won, err := s.repo.MarkProcessed(ctx, id, markdown, sections)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrProcessingFailed.Code, appErrors.ErrProcessingFailed.Status, appErrors.ErrProcessingFailed.Message)
	}
	if !won {
		log.Infow("material already processed by a concurrent caller")
		return false, nil
	}
	s.metrics.RecordMaterialProcessed()
	log.Infow("material processed", "pages", doc.PageCount, "sections", len(sections))
	return true, nil
}

func materialTitle(req dto.UploadMaterialRequest) string {
	if title := strings.TrimSpace(req.Title); title != "" {
		return title
	}
	if name := strings.TrimSpace(req.Filename); name != "" {
		return strings.TrimSuffix(path.Base(strings.ReplaceAll(name, "\\", "/")), path.Ext(name))
	}
	if req.Unit != nil {
		return fmt.Sprintf("Unit %d", *req.Unit)
	}
	return "Untitled material"
}
