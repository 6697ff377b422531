package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qbank-api/internal/models"
	appErrors "github.com/noah-isme/qbank-api/pkg/errors"
)

type pipelineFixture struct {
	jobs      *jobStoreStub
	questions *questionStoreStub
	materials *materialRepoStub
	store     *objectStoreStub
	generator *generatorStub
	metrics   *MetricsService
	pipeline  *Pipeline
	material  *models.CourseMaterial
}

func newPipelineFixture(t *testing.T, text string) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		jobs:      newJobStoreStub(),
		materials: newMaterialRepoStub(),
		store:     newObjectStoreStub(),
		generator: &generatorStub{},
		metrics:   NewMetricsService(),
	}
	f.questions = newQuestionStoreStub(f.jobs)
	f.material = seedMaterial(t, f.materials, f.store, "cs101")
	materialSvc := NewMaterialService(f.materials, f.store, extractorStub{text: text}, nil, nil, f.metrics, nil)
	synth := NewSynthesizer(f.generator, SynthesizerConfig{}, nil)
	f.pipeline = NewPipeline(f.jobs, f.questions, materialSvc, synth, f.metrics, nil)
	return f
}

func (f *pipelineFixture) submit(t *testing.T, marks map[int]int) string {
	t.Helper()
	job := &models.GenerationJob{CourseID: "cs101", MaterialID: f.material.ID, Unit: 1, Quotas: models.Quotas{Marks: marks}}
	require.NoError(t, f.jobs.Create(context.Background(), job))
	return job.ID
}

func TestPipelineRunsUnprocessedMaterialThroughEveryStage(t *testing.T) {
	f := newPipelineFixture(t, arraysMaterial)
	f.generator.items = candidates("arrays", 3, 2)
	jobID := f.submit(t, map[int]int{2: 3})

	result, err := f.pipeline.Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Equal(t, 3, result.Generated)
	assert.Nil(t, result.Warning)

	assert.Equal(t, []models.ProcessingStage{
		models.StageExtracting,
		models.StageSegmenting,
		models.StageSynthesizing,
		models.StagePersisting,
		models.StageCompleted,
	}, f.jobs.stages[jobID])
	assert.Equal(t, []int{0, 10, 35, 55, 85, 100}, f.jobs.progress[jobID])
	assert.True(t, sort.IntsAreSorted(f.jobs.progress[jobID]))

	job := f.jobs.get(jobID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 3, job.GeneratedCount)
	assert.NotNil(t, job.FinishedAt)
	assert.Len(t, f.questions.questions[jobID], 3)
	assert.True(t, f.materials.materials[f.material.ID].IsProcessed)
	assert.NotContains(t, f.generator.prompts[0].User, "Linked Lists", "unit 1 only")
}

func TestPipelineSkipsProcessingForProcessedMaterial(t *testing.T) {
	f := newPipelineFixture(t, arraysMaterial)
	f.generator.items = candidates("arrays", 1, 2)

	first := f.submit(t, map[int]int{2: 1})
	_, err := f.pipeline.Run(context.Background(), first)
	require.NoError(t, err)
	gets := f.store.gets

	second := f.submit(t, map[int]int{2: 1})
	result, err := f.pipeline.Run(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Equal(t, []int{0, 55, 85, 100}, f.jobs.progress[second])
	assert.Equal(t, gets, f.store.gets, "processed material is not re-read")
	assert.Equal(t, 1, f.materials.markCalls)
}

func TestPipelineShortfallCompletesWithWarning(t *testing.T) {
	f := newPipelineFixture(t, arraysMaterial)
	f.generator.items = append(candidates("easy", 4, 2), candidates("medium", 3, 8)...)
	jobID := f.submit(t, map[int]int{2: 5, 8: 5})

	result, err := f.pipeline.Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Equal(t, 7, result.Generated)
	assert.Equal(t, 10, result.Requested)

	job := f.jobs.get(jobID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 7, job.GeneratedCount)
	assert.Equal(t, 10, job.TotalRequested)
	assert.Nil(t, job.ErrorMessage)
	require.NotNil(t, job.Warning)
	assert.Contains(t, *job.Warning, "generated 7 of 10")
}

func TestPipelineTotalFailureMarksJobFailed(t *testing.T) {
	f := newPipelineFixture(t, arraysMaterial)
	f.generator.items = nil
	jobID := f.submit(t, map[int]int{2: 3})

	result, err := f.pipeline.Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, result.Status)
	assert.Equal(t, "the model returned no usable questions", result.ErrorMessage)

	job := f.jobs.get(jobID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, models.StageFailed, job.ProcessingStage)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "the model returned no usable questions", *job.ErrorMessage)
	assert.Zero(t, job.GeneratedCount)
	assert.Empty(t, f.questions.questions[jobID])
	assert.Equal(t, 55, job.Progress, "progress stays at the last checkpoint")
}

func TestPipelineMalformedDocumentFailsAtExtraction(t *testing.T) {
	f := newPipelineFixture(t, arraysMaterial)
	materialSvc := NewMaterialService(f.materials, f.store, extractorStub{err: appErrors.ErrMalformedDocument}, nil, nil, nil, nil)
	f.pipeline = NewPipeline(f.jobs, f.questions, materialSvc, NewSynthesizer(f.generator, SynthesizerConfig{}, nil), nil, nil)
	jobID := f.submit(t, map[int]int{2: 1})

	result, err := f.pipeline.Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, result.Status)

	job := f.jobs.get(jobID)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, appErrors.ErrMalformedDocument.Message, *job.ErrorMessage)
	assert.Equal(t, 10, job.Progress)
	assert.Zero(t, f.generator.calls())
	assert.False(t, f.materials.materials[f.material.ID].IsProcessed)
}

func TestPipelineStopsWhenJobReapedMidRun(t *testing.T) {
	f := newPipelineFixture(t, arraysMaterial)
	f.generator.items = candidates("arrays", 2, 2)
	jobID := f.submit(t, map[int]int{2: 2})
	f.generator.before = func() {
		f.jobs.mu.Lock()
		f.jobs.failLocked(f.jobs.jobs[jobID], appErrors.ErrStaleJob.Message)
		f.jobs.mu.Unlock()
	}

	result, err := f.pipeline.Run(context.Background(), jobID)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, appErrors.ErrJobNotActive)

	job := f.jobs.get(jobID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, appErrors.ErrStaleJob.Message, *job.ErrorMessage, "reaped job is not overwritten")
	assert.Empty(t, f.questions.questions[jobID])
}

func TestPipelineRunsDuplicateDeliveryOnce(t *testing.T) {
	f := newPipelineFixture(t, arraysMaterial)
	f.generator.items = candidates("arrays", 2, 2)
	jobID := f.submit(t, map[int]int{2: 2})

	var redeliveryErr error
	f.generator.before = func() {
		_, redeliveryErr = f.pipeline.Run(context.Background(), jobID)
	}

	result, err := f.pipeline.Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, result.Status)
	assert.ErrorIs(t, redeliveryErr, appErrors.ErrJobNotActive)

	assert.Equal(t, 1, f.generator.calls())
	assert.Equal(t, 1, f.jobs.claims[jobID])
	assert.Equal(t, []models.ProcessingStage{
		models.StageExtracting,
		models.StageSegmenting,
		models.StageSynthesizing,
		models.StagePersisting,
		models.StageCompleted,
	}, f.jobs.stages[jobID])
	assert.Equal(t, []int{0, 10, 35, 55, 85, 100}, f.jobs.progress[jobID])
}

func TestPipelineRejectsTerminalAndUnknownJobs(t *testing.T) {
	f := newPipelineFixture(t, arraysMaterial)
	done := models.GenerationJob{ID: uuid.NewString(), Status: models.JobStatusCompleted, ProcessingStage: models.StageCompleted, Progress: 100, UpdatedAt: time.Now()}
	f.jobs.put(done)

	_, err := f.pipeline.Run(context.Background(), done.ID)
	assert.ErrorIs(t, err, appErrors.ErrJobNotActive)

	_, err = f.pipeline.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Zero(t, f.generator.calls())
}

func TestPipelineRecordsFailureAfterCancellation(t *testing.T) {
	f := newPipelineFixture(t, arraysMaterial)
	ctx, cancel := context.WithCancel(context.Background())
	f.generator.before = cancel
	f.generator.err = context.Canceled
	jobID := f.submit(t, map[int]int{2: 1})

	result, err := f.pipeline.Run(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, result.Status)
	assert.Equal(t, models.JobStatusFailed, f.jobs.get(jobID).Status)
}
