package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/qbank-api/internal/models"
	"github.com/noah-isme/qbank-api/internal/repository"
	appErrors "github.com/noah-isme/qbank-api/pkg/errors"
)

type generationJobStore interface {
	Create(ctx context.Context, job *models.GenerationJob) error
	GetByID(ctx context.Context, id string) (*models.GenerationJob, error)
	Claim(ctx context.Context, id string) error
	Transition(ctx context.Context, id string, stage models.ProcessingStage) error
	SetDispatchMode(ctx context.Context, id string, mode models.DispatchMode) error
	Fail(ctx context.Context, id string, message string) error
	ListPending(ctx context.Context, limit int) ([]models.GenerationJob, error)
}

type questionStore interface {
	CreateBatchAndComplete(ctx context.Context, params repository.CompleteJobParams, questions []models.Question) error
	ListByJob(ctx context.Context, jobID string) ([]models.Question, error)
}

type materialProcessor interface {
	Get(ctx context.Context, id string) (*models.CourseMaterial, error)
	ProcessMaterial(ctx context.Context, id string, onStage StageFunc) (bool, error)
}

type questionSynthesizer interface {
	Synthesize(ctx context.Context, sections []models.Section, req SynthesisRequest) (*SynthesisResult, error)
}

// JobResult summarises one pipeline run.
type JobResult struct {
	JobID        string
	Status       models.JobStatus
	Generated    int
	Requested    int
	Discarded    int
	Warning      *string
	ErrorMessage string
}

// Pipeline drives a single generation job from QUEUED to a terminal status.
type Pipeline struct {
	jobs        generationJobStore
	questions   questionStore
	materials   materialProcessor
	synthesizer questionSynthesizer
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewPipeline constructs the pipeline.
func NewPipeline(jobs generationJobStore, questions questionStore, materials materialProcessor, synthesizer questionSynthesizer, metrics *MetricsService, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		jobs:        jobs,
		questions:   questions,
		materials:   materials,
		synthesizer: synthesizer,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes the job. Stage failures are recorded on the job row and reported
// through JobResult with a nil error. An error is returned only when the job row
// cannot be read or written, or when the job stopped being active mid-run
// (ErrJobNotActive). A job is run at most once: a delivery of a job another
// runner already claimed returns ErrJobNotActive without touching the row.
func (p *Pipeline) Run(ctx context.Context, jobID string) (*JobResult, error) {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation job")
	}
	if job.Status != models.JobStatusPending {
		return nil, appErrors.ErrJobNotActive
	}
	if err := p.jobs.Claim(ctx, job.ID); err != nil {
		if errors.Is(err, appErrors.ErrJobNotActive) {
			p.logger.Sugar().Infow("generation job already claimed, skipping", "job_id", job.ID)
			return nil, appErrors.ErrJobNotActive
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim generation job")
	}
	job.Status = models.JobStatusProcessing

	run := &jobRun{pipeline: p, job: job, log: p.logger.Sugar().With("job_id", job.ID, "material_id", job.MaterialID), stageStart: p.now()}
	run.log.Infow("generation job started", "unit", job.Unit, "requested", job.Quotas.Total(), "dispatch_mode", job.DispatchMode)

	result, err := run.execute(ctx)
	if err != nil {
		return run.fail(ctx, err)
	}
	return result, nil
}

type jobRun struct {
	pipeline   *Pipeline
	job        *models.GenerationJob
	log        *zap.SugaredLogger
	stage      models.ProcessingStage
	stageStart time.Time
	discarded  int
}

func (r *jobRun) execute(ctx context.Context) (*JobResult, error) {
	p := r.pipeline

	material, err := p.materials.Get(ctx, r.job.MaterialID)
	if err != nil {
		return nil, err
	}
	if !material.IsProcessed {
		if _, err := p.materials.ProcessMaterial(ctx, material.ID, r.transition); err != nil {
			return nil, err
		}
		if material, err = p.materials.Get(ctx, material.ID); err != nil {
			return nil, err
		}
		if !material.IsProcessed {
			return nil, appErrors.Clone(appErrors.ErrProcessingFailed, "material could not be processed")
		}
	}

	if err := r.transition(ctx, models.StageSynthesizing); err != nil {
		return nil, err
	}
	synth, err := p.synthesizer.Synthesize(ctx, material.Sections, SynthesisRequest{
		CourseID:   r.job.CourseID,
		MaterialID: r.job.MaterialID,
		Unit:       r.job.Unit,
		Quotas:     r.job.Quotas,
	})
	if synth != nil {
		r.discarded = synth.Discarded
	}
	if err != nil {
		return nil, err
	}

	if err := r.transition(ctx, models.StagePersisting); err != nil {
		return nil, err
	}
	warning := synth.Warning()
	if err := p.questions.CreateBatchAndComplete(ctx, repository.CompleteJobParams{JobID: r.job.ID, Warning: warning}, synth.Questions); err != nil {
		return nil, err
	}
	r.observeStage()

	p.metrics.RecordJobFinished(models.JobStatusCompleted, len(synth.Questions), synth.Discarded)
	r.log.Infow("generation job completed", "generated", len(synth.Questions), "requested", synth.Requested, "discarded", synth.Discarded, "shortfall", synth.Shortfall)
	return &JobResult{
		JobID:     r.job.ID,
		Status:    models.JobStatusCompleted,
		Generated: len(synth.Questions),
		Requested: synth.Requested,
		Discarded: synth.Discarded,
		Warning:   warning,
	}, nil
}

// transition advances the job row and closes the timing of the previous stage.
func (r *jobRun) transition(ctx context.Context, stage models.ProcessingStage) error {
	if err := r.pipeline.jobs.Transition(ctx, r.job.ID, stage); err != nil {
		return err
	}
	r.observeStage()
	r.stage = stage
	r.log.Infow("generation job stage", "stage", stage, "progress", stage.Progress())
	return nil
}

func (r *jobRun) observeStage() {
	now := r.pipeline.now()
	if r.stage != "" {
		r.pipeline.metrics.ObserveStage(r.stage, now.Sub(r.stageStart))
	}
	r.stageStart = now
}

// fail records cause on the job row. The write ignores cancellation of ctx so a
// cancelled request still leaves the job in a terminal state.
func (r *jobRun) fail(ctx context.Context, cause error) (*JobResult, error) {
	if errors.Is(cause, appErrors.ErrJobNotActive) {
		r.log.Warnw("generation job no longer active, stopping", "stage", r.stage)
		return nil, appErrors.ErrJobNotActive
	}

	message := appErrors.UserMessage(cause)
	writeCtx := context.WithoutCancel(ctx)
	if err := r.pipeline.jobs.Fail(writeCtx, r.job.ID, message); err != nil {
		if errors.Is(err, appErrors.ErrJobNotActive) {
			r.log.Warnw("generation job finished elsewhere before failure was recorded", "stage", r.stage, "error", cause)
			return nil, appErrors.ErrJobNotActive
		}
		r.log.Errorw("failed to record generation job failure", "stage", r.stage, "cause", cause, "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update generation job")
	}

	r.pipeline.metrics.RecordJobFinished(models.JobStatusFailed, 0, r.discarded)
	r.log.Warnw("generation job failed", "stage", r.stage, "message", message, "error", cause)
	return &JobResult{
		JobID:        r.job.ID,
		Status:       models.JobStatusFailed,
		Requested:    r.job.Quotas.Total(),
		Discarded:    r.discarded,
		ErrorMessage: message,
	}, nil
}
