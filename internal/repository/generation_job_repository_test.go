package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qbank-api/internal/models"
	appErrors "github.com/noah-isme/qbank-api/pkg/errors"
)

var jobRowColumns = []string{"id", "course_id", "material_id", "unit", "quotas", "status", "processing_stage", "progress", "generated_count", "total_requested", "error_message", "warning", "dispatch_mode", "created_by", "created_at", "updated_at", "finished_at"}

func TestGenerationJobRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO generation_jobs")).
		WithArgs(sqlmock.AnyArg(), "course-1", "mat-1", 1, sqlmock.AnyArg(), "PENDING", "QUEUED", 0, 0, 10, nil, nil, "ASYNC", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.GenerationJob{
		CourseID:   "course-1",
		MaterialID: "mat-1",
		Unit:       1,
		Quotas:     models.Quotas{Marks: map[int]int{2: 6, 8: 4}},
		CreatedBy:  "user-1",
	}
	require.NoError(t, repo.Create(context.Background(), job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 10, job.TotalRequested)

	rows := sqlmock.NewRows(jobRowColumns).
		AddRow(job.ID, "course-1", "mat-1", 1, `{"marks":{"2":6,"8":4}}`, "PENDING", "QUEUED", 0, 0, 10, nil, nil, "ASYNC", "user-1", time.Now(), time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM generation_jobs WHERE id = $1")).
		WithArgs(job.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, fetched.Quotas.Marks[2])
	assert.Equal(t, 10, fetched.Quotas.Total())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryTransition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	query := regexp.QuoteMeta("UPDATE generation_jobs SET status = $1, processing_stage = $2, progress = $3, updated_at = $4 WHERE id = $5 AND status IN ('PENDING', 'PROCESSING') AND progress < $3")
	mock.ExpectExec(query).
		WithArgs("PROCESSING", "EXTRACTING", 10, sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs("PROCESSING", "SYNTHESIZING", 55, sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Transition(context.Background(), "job-1", models.StageExtracting))
	err := repo.Transition(context.Background(), "job-1", models.StageSynthesizing)
	assert.ErrorIs(t, err, appErrors.ErrJobNotActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryClaim(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	query := regexp.QuoteMeta("UPDATE generation_jobs SET status = $1, updated_at = $2 WHERE id = $3 AND status = 'PENDING'")
	mock.ExpectExec(query).
		WithArgs("PROCESSING", sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs("PROCESSING", sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Claim(context.Background(), "job-1"))
	err := repo.Claim(context.Background(), "job-1")
	assert.ErrorIs(t, err, appErrors.ErrJobNotActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryTransitionRejectsTerminalStages(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	assert.Error(t, repo.Transition(context.Background(), "job-1", models.StageFailed))
	assert.Error(t, repo.Transition(context.Background(), "job-1", models.StageCompleted))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryFail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE generation_jobs SET status = $1, processing_stage = $2, error_message = $3, updated_at = $4, finished_at = $4 WHERE id = $5 AND status IN ('PENDING', 'PROCESSING')")).
		WithArgs("FAILED", "FAILED", "document could not be parsed", sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Fail(context.Background(), "job-1", "document could not be parsed"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositorySetDispatchMode(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE generation_jobs SET dispatch_mode = $1, updated_at = $2 WHERE id = $3 AND status IN ('PENDING', 'PROCESSING')")).
		WithArgs("SYNC", sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetDispatchMode(context.Background(), "job-1", models.DispatchSync))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryListPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	rows := sqlmock.NewRows(jobRowColumns).
		AddRow("job-1", "course-1", "mat-1", 2, `{"marks":{"16":1}}`, "PENDING", "QUEUED", 0, 0, 1, nil, nil, "ASYNC", "user-1", time.Now(), time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM generation_jobs WHERE status = 'PENDING' ORDER BY created_at ASC LIMIT $1")).
		WithArgs(50).
		WillReturnRows(rows)

	jobs, err := repo.ListPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].Quotas.Marks[16])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryFailStale(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	cutoff := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE generation_jobs SET status = $1, processing_stage = $2, error_message = $3, updated_at = $4, finished_at = $4 WHERE status IN ('PENDING', 'PROCESSING') AND updated_at < $5 RETURNING id")).
		WithArgs("FAILED", "FAILED", "stalled", sqlmock.AnyArg(), cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-1").AddRow("job-2"))

	ids, err := repo.FailStale(context.Background(), cutoff, "stalled")
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1", "job-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
