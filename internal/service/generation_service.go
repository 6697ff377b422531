package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/qbank-api/internal/dto"
	"github.com/noah-isme/qbank-api/internal/models"
	appErrors "github.com/noah-isme/qbank-api/pkg/errors"
	"github.com/noah-isme/qbank-api/pkg/jobs"
)

// JobTypeGeneration tags generation jobs on the queue.
const JobTypeGeneration = "generation"

// Dispatcher hands jobs to an asynchronous executor.
type Dispatcher interface {
	Available(ctx context.Context) bool
	Enqueue(job jobs.Job) error
}

type pipelineRunner interface {
	Run(ctx context.Context, jobID string) (*JobResult, error)
}

type materialReader interface {
	Get(ctx context.Context, id string) (*models.CourseMaterial, error)
}

// GenerationService accepts generation requests and exposes their progress.
type GenerationService struct {
	jobs       generationJobStore
	questions  questionStore
	materials  materialReader
	pipeline   pipelineRunner
	dispatcher Dispatcher
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewGenerationService constructs the service. A nil dispatcher runs every job synchronously.
func NewGenerationService(jobStore generationJobStore, questions questionStore, materials materialReader, pipeline pipelineRunner, dispatcher Dispatcher, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *GenerationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{
		jobs:       jobStore,
		questions:  questions,
		materials:  materials,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		validator:  validate,
		metrics:    metrics,
		logger:     logger,
	}
}

// Submit validates the request, persists a PENDING job and dispatches it. When no
// asynchronous executor can take the job it runs inside the caller's context.
func (s *GenerationService) Submit(ctx context.Context, req dto.GenerationRequest, actorID string) (*dto.GenerationJobResponse, error) {
	req.CourseID = strings.TrimSpace(req.CourseID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if err := req.Quotas.Validate(); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	material, err := s.materials.Get(ctx, req.MaterialID)
	if err != nil {
		return nil, err
	}
	if material.CourseID != req.CourseID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "material does not belong to course")
	}

	job := &models.GenerationJob{
		CourseID:   req.CourseID,
		MaterialID: req.MaterialID,
		Unit:       req.Unit,
		Quotas:     req.Quotas,
		CreatedBy:  actorID,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create generation job")
	}
	log := s.logger.Sugar().With("job_id", job.ID, "material_id", job.MaterialID)

	if s.dispatch(ctx, job) {
		s.metrics.RecordJobSubmitted(models.DispatchAsync)
		log.Infow("generation job queued", "unit", job.Unit, "requested", job.TotalRequested)
		return &dto.GenerationJobResponse{
			ID:              job.ID,
			Status:          job.Status,
			ProcessingStage: job.ProcessingStage,
			Progress:        job.Progress,
			DispatchMode:    models.DispatchAsync,
		}, nil
	}

	if err := s.jobs.SetDispatchMode(ctx, job.ID, models.DispatchSync); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update generation job")
	}
	s.metrics.RecordJobSubmitted(models.DispatchSync)
	log.Infow("generation job running synchronously", "unit", job.Unit, "requested", job.TotalRequested)

	if _, err := s.pipeline.Run(ctx, job.ID); err != nil && !errors.Is(err, appErrors.ErrJobNotActive) {
		return nil, err
	}
	final, err := s.jobs.GetByID(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation job")
	}
	return &dto.GenerationJobResponse{
		ID:              final.ID,
		Status:          final.Status,
		ProcessingStage: final.ProcessingStage,
		Progress:        final.Progress,
		DispatchMode:    final.DispatchMode,
	}, nil
}

// dispatch reports whether the job was handed to the asynchronous executor.
func (s *GenerationService) dispatch(ctx context.Context, job *models.GenerationJob) bool {
	if s.dispatcher == nil || !s.dispatcher.Available(ctx) {
		return false
	}
	if err := s.dispatcher.Enqueue(jobs.Job{ID: job.ID, Type: JobTypeGeneration}); err != nil {
		s.logger.Sugar().Warnw("enqueue failed, falling back to synchronous run", "job_id", job.ID, "error", err)
		return false
	}
	return true
}

// GetStatus exposes job progress.
func (s *GenerationService) GetStatus(ctx context.Context, id string) (*dto.GenerationStatusResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewGenerationStatusResponse(job), nil
}

// ListQuestions returns the questions a job produced. Jobs that have not completed
// return an empty list.
func (s *GenerationService) ListQuestions(ctx context.Context, id string) (*dto.QuestionListResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &dto.QuestionListResponse{JobID: job.ID, Status: job.Status, Questions: []models.Question{}}
	if job.Status != models.JobStatusCompleted {
		return resp, nil
	}
	questions, err := s.questions.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questions")
	}
	if questions != nil {
		resp.Questions = questions
	}
	resp.Total = len(resp.Questions)
	return resp, nil
}

// RecoverPendingJobs re-dispatches PENDING jobs (e.g. after process restart) and
// returns how many were queued.
func (s *GenerationService) RecoverPendingJobs(ctx context.Context) int {
	if s.dispatcher == nil || !s.dispatcher.Available(ctx) {
		s.logger.Sugar().Infow("skipping pending job recovery, no dispatcher available")
		return 0
	}
	pending, err := s.jobs.ListPending(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover pending generation jobs", "error", err)
		return 0
	}
	queued := 0
	for _, job := range pending {
		if err := s.dispatcher.Enqueue(jobs.Job{ID: job.ID, Type: JobTypeGeneration}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
			continue
		}
		queued++
	}
	if queued > 0 {
		s.logger.Sugar().Infow("recovered pending generation jobs", "count", queued)
	}
	return queued
}

func (s *GenerationService) load(ctx context.Context, id string) (*models.GenerationJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation job")
	}
	return job, nil
}

// GenerationWorker bridges queue jobs to the pipeline.
type GenerationWorker struct {
	pipeline pipelineRunner
	logger   *zap.Logger
}

// NewGenerationWorker constructs a worker.
func NewGenerationWorker(pipeline pipelineRunner, logger *zap.Logger) *GenerationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationWorker{pipeline: pipeline, logger: logger}
}

// Handle processes a queue job. Jobs that are gone or already finished are
// acknowledged without retry.
func (w *GenerationWorker) Handle(ctx context.Context, job jobs.Job) error {
	result, err := w.pipeline.Run(ctx, job.ID)
	if err != nil {
		if errors.Is(err, appErrors.ErrJobNotActive) || errors.Is(err, appErrors.ErrNotFound) {
			w.logger.Sugar().Infow("dropping inactive generation job", "job_id", job.ID, "reason", err.Error())
			return nil
		}
		return err
	}
	w.logger.Sugar().Infow("generation job handled", "job_id", job.ID, "status", result.Status, "generated", result.Generated)
	return nil
}
