package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/qbank-api/internal/models"
	appErrors "github.com/noah-isme/qbank-api/pkg/errors"
)

const generationJobColumns = `id, course_id, material_id, unit, quotas, status, processing_stage, progress, generated_count, total_requested, error_message, warning, dispatch_mode, created_by, created_at, updated_at, finished_at`

// activeStatuses guards every write: terminal jobs are never touched again.
const activeStatuses = `status IN ('PENDING', 'PROCESSING')`

// GenerationJobRepository persists generation job rows.
type GenerationJobRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewGenerationJobRepository constructs the repository.
func NewGenerationJobRepository(db *sqlx.DB) *GenerationJobRepository {
	return &GenerationJobRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a PENDING job in the QUEUED stage.
func (r *GenerationJobRepository) Create(ctx context.Context, job *models.GenerationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = models.JobStatusPending
	job.ProcessingStage = models.StageQueued
	job.Progress = models.StageQueued.Progress()
	job.TotalRequested = job.Quotas.Total()
	if job.DispatchMode == "" {
		job.DispatchMode = models.DispatchAsync
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.now()
	}
	job.UpdatedAt = job.CreatedAt

	const query = `INSERT INTO generation_jobs (id, course_id, material_id, unit, quotas, status, processing_stage, progress, generated_count, total_requested, error_message, warning, dispatch_mode, created_by, created_at, updated_at, finished_at)
VALUES (:id, :course_id, :material_id, :unit, :quotas, :status, :processing_stage, :progress, :generated_count, :total_requested, :error_message, :warning, :dispatch_mode, :created_by, :created_at, :updated_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create generation job: %w", err)
	}
	return nil
}

// GetByID returns a job by id. sql.ErrNoRows is returned unwrapped when absent.
func (r *GenerationJobRepository) GetByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	query := `SELECT ` + generationJobColumns + ` FROM generation_jobs WHERE id = $1`
	var job models.GenerationJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get generation job: %w", err)
	}
	return &job, nil
}

// Claim moves a PENDING job to PROCESSING. Only one runner can claim a job; a job
// that is already running or terminal yields ErrJobNotActive.
func (r *GenerationJobRepository) Claim(ctx context.Context, id string) error {
	query := `UPDATE generation_jobs SET status = $1, updated_at = $2 WHERE id = $3 AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, query, models.JobStatusProcessing, r.now(), id)
	if err != nil {
		return fmt.Errorf("claim generation job: %w", err)
	}
	return requireOneRow(res, "claim generation job")
}

// Transition moves an active job forward to stage, setting status PROCESSING and the
// stage checkpoint as progress. Progress strictly increases; a job that is terminal or
// already at or past the checkpoint yields ErrJobNotActive.
func (r *GenerationJobRepository) Transition(ctx context.Context, id string, stage models.ProcessingStage) error {
	progress := stage.Progress()
	if progress < 0 || stage == models.StageCompleted {
		return fmt.Errorf("transition generation job: stage %s is not an in-flight stage", stage)
	}
	query := `UPDATE generation_jobs SET status = $1, processing_stage = $2, progress = $3, updated_at = $4
WHERE id = $5 AND ` + activeStatuses + ` AND progress < $3`
	res, err := r.db.ExecContext(ctx, query, models.JobStatusProcessing, stage, progress, r.now(), id)
	if err != nil {
		return fmt.Errorf("transition generation job: %w", err)
	}
	return requireOneRow(res, "transition generation job")
}

// SetDispatchMode records how an active job is being executed.
func (r *GenerationJobRepository) SetDispatchMode(ctx context.Context, id string, mode models.DispatchMode) error {
	query := `UPDATE generation_jobs SET dispatch_mode = $1, updated_at = $2 WHERE id = $3 AND ` + activeStatuses
	res, err := r.db.ExecContext(ctx, query, mode, r.now(), id)
	if err != nil {
		return fmt.Errorf("set generation job dispatch mode: %w", err)
	}
	return requireOneRow(res, "set generation job dispatch mode")
}

// Fail marks an active job FAILED with a user-facing message.
func (r *GenerationJobRepository) Fail(ctx context.Context, id string, message string) error {
	now := r.now()
	query := `UPDATE generation_jobs SET status = $1, processing_stage = $2, error_message = $3, updated_at = $4, finished_at = $4
WHERE id = $5 AND ` + activeStatuses
	res, err := r.db.ExecContext(ctx, query, models.JobStatusFailed, models.StageFailed, message, now, id)
	if err != nil {
		return fmt.Errorf("fail generation job: %w", err)
	}
	return requireOneRow(res, "fail generation job")
}

// ListPending fetches PENDING jobs oldest first (used for cold start recovery).
func (r *GenerationJobRepository) ListPending(ctx context.Context, limit int) ([]models.GenerationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + generationJobColumns + ` FROM generation_jobs WHERE status = 'PENDING' ORDER BY created_at ASC LIMIT $1`
	var jobs []models.GenerationJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list pending generation jobs: %w", err)
	}
	return jobs, nil
}

// FailStale fails every active job whose last update is older than cutoff in one
// statement and returns the ids it touched.
func (r *GenerationJobRepository) FailStale(ctx context.Context, cutoff time.Time, message string) ([]string, error) {
	now := r.now()
	query := `UPDATE generation_jobs SET status = $1, processing_stage = $2, error_message = $3, updated_at = $4, finished_at = $4
WHERE ` + activeStatuses + ` AND updated_at < $5
RETURNING id`
	ids := make([]string, 0)
	if err := r.db.SelectContext(ctx, &ids, query, models.JobStatusFailed, models.StageFailed, message, now, cutoff); err != nil {
		return nil, fmt.Errorf("fail stale generation jobs: %w", err)
	}
	return ids, nil
}

func requireOneRow(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return appErrors.ErrJobNotActive
	}
	return nil
}
