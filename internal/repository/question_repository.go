package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/qbank-api/internal/models"
)

// QuestionRepository persists generated questions.
type QuestionRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewQuestionRepository constructs the repository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// CompleteJobParams carries the terminal values of a successful run.
type CompleteJobParams struct {
	JobID   string
	Warning *string
}

// CreateBatchAndComplete inserts the questions and moves the job to COMPLETED in one
// transaction. If the job is no longer active nothing is written and
// ErrJobNotActive is returned.
func (r *QuestionRepository) CreateBatchAndComplete(ctx context.Context, params CompleteJobParams, questions []models.Question) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin question batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := r.now()
	completeQuery := `UPDATE generation_jobs SET status = $1, processing_stage = $2, progress = $3, generated_count = $4, warning = $5, updated_at = $6, finished_at = $6
WHERE id = $7 AND ` + activeStatuses
	res, err := tx.ExecContext(ctx, completeQuery, models.JobStatusCompleted, models.StageCompleted, models.StageCompleted.Progress(), len(questions), params.Warning, now, params.JobID)
	if err != nil {
		return fmt.Errorf("complete generation job: %w", err)
	}
	if err = requireOneRow(res, "complete generation job"); err != nil {
		return err
	}

	const insertQuery = `INSERT INTO questions (id, job_id, course_id, unit, material_id, text, answer, cognitive_level, marks, style, created_at)
VALUES (:id, :job_id, :course_id, :unit, :material_id, :text, :answer, :cognitive_level, :marks, :style, :created_at)`
	for i := range questions {
		q := &questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		q.JobID = params.JobID
		if q.CreatedAt.IsZero() {
			q.CreatedAt = now
		}
		if _, err = tx.NamedExecContext(ctx, insertQuery, q); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit question batch: %w", err)
	}
	return nil
}

// ListByJob returns the questions generated by a job ordered by marks.
func (r *QuestionRepository) ListByJob(ctx context.Context, jobID string) ([]models.Question, error) {
	const query = `SELECT id, job_id, course_id, unit, material_id, text, answer, cognitive_level, marks, style, created_at
FROM questions WHERE job_id = $1 ORDER BY marks ASC, created_at ASC, id ASC`
	questions := make([]models.Question, 0)
	if err := r.db.SelectContext(ctx, &questions, query, jobID); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}
