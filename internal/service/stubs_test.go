package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/qbank-api/internal/models"
	"github.com/noah-isme/qbank-api/internal/repository"
	appErrors "github.com/noah-isme/qbank-api/pkg/errors"
	"github.com/noah-isme/qbank-api/pkg/jobs"
	"github.com/noah-isme/qbank-api/pkg/llm"
	"github.com/noah-isme/qbank-api/pkg/pdftext"
)

// jobStoreStub mimics the guarded writes of GenerationJobRepository.
type jobStoreStub struct {
	mu       sync.Mutex
	jobs     map[string]*models.GenerationJob
	progress map[string][]int
	stages   map[string][]models.ProcessingStage
	claims   map[string]int
	now      func() time.Time
}

func newJobStoreStub() *jobStoreStub {
	return &jobStoreStub{
		jobs:     map[string]*models.GenerationJob{},
		progress: map[string][]int{},
		stages:   map[string][]models.ProcessingStage{},
		claims:   map[string]int{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *jobStoreStub) Create(ctx context.Context, job *models.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = models.JobStatusPending
	job.ProcessingStage = models.StageQueued
	job.Progress = 0
	job.TotalRequested = job.Quotas.Total()
	if job.DispatchMode == "" {
		job.DispatchMode = models.DispatchAsync
	}
	job.CreatedAt = s.now()
	job.UpdatedAt = job.CreatedAt
	clone := *job
	s.jobs[job.ID] = &clone
	s.progress[job.ID] = []int{0}
	return nil
}

func (s *jobStoreStub) GetByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *job
	return &clone, nil
}

func (s *jobStoreStub) Claim(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != models.JobStatusPending {
		return appErrors.ErrJobNotActive
	}
	job.Status = models.JobStatusProcessing
	job.UpdatedAt = s.now()
	s.claims[id]++
	return nil
}

func (s *jobStoreStub) Transition(ctx context.Context, id string, stage models.ProcessingStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.IsTerminal() || job.Progress >= stage.Progress() {
		return appErrors.ErrJobNotActive
	}
	job.Status = models.JobStatusProcessing
	job.ProcessingStage = stage
	job.Progress = stage.Progress()
	job.UpdatedAt = s.now()
	s.progress[id] = append(s.progress[id], job.Progress)
	s.stages[id] = append(s.stages[id], stage)
	return nil
}

func (s *jobStoreStub) SetDispatchMode(ctx context.Context, id string, mode models.DispatchMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return appErrors.ErrJobNotActive
	}
	job.DispatchMode = mode
	return nil
}

func (s *jobStoreStub) Fail(ctx context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return appErrors.ErrJobNotActive
	}
	s.failLocked(job, message)
	return nil
}

func (s *jobStoreStub) failLocked(job *models.GenerationJob, message string) {
	now := s.now()
	job.Status = models.JobStatusFailed
	job.ProcessingStage = models.StageFailed
	job.ErrorMessage = &message
	job.UpdatedAt = now
	job.FinishedAt = &now
	s.stages[job.ID] = append(s.stages[job.ID], models.StageFailed)
}

func (s *jobStoreStub) ListPending(ctx context.Context, limit int) ([]models.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []models.GenerationJob
	for _, job := range s.jobs {
		if job.Status == models.JobStatusPending {
			pending = append(pending, *job)
		}
	}
	return pending, nil
}

func (s *jobStoreStub) FailStale(ctx context.Context, cutoff time.Time, message string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0)
	for id, job := range s.jobs {
		if !job.Status.IsTerminal() && job.UpdatedAt.Before(cutoff) {
			s.failLocked(job, message)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *jobStoreStub) put(job models.GenerationJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = &job
}

func (s *jobStoreStub) get(id string) models.GenerationJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

// questionStoreStub commits questions and the COMPLETED transition together.
type questionStoreStub struct {
	jobs      *jobStoreStub
	questions map[string][]models.Question
}

func newQuestionStoreStub(jobs *jobStoreStub) *questionStoreStub {
	return &questionStoreStub{jobs: jobs, questions: map[string][]models.Question{}}
}

func (q *questionStoreStub) CreateBatchAndComplete(ctx context.Context, params repository.CompleteJobParams, questions []models.Question) error {
	q.jobs.mu.Lock()
	defer q.jobs.mu.Unlock()
	job, ok := q.jobs.jobs[params.JobID]
	if !ok || job.Status.IsTerminal() {
		return appErrors.ErrJobNotActive
	}
	now := q.jobs.now()
	job.Status = models.JobStatusCompleted
	job.ProcessingStage = models.StageCompleted
	job.Progress = 100
	job.GeneratedCount = len(questions)
	job.Warning = params.Warning
	job.UpdatedAt = now
	job.FinishedAt = &now
	q.jobs.progress[job.ID] = append(q.jobs.progress[job.ID], 100)
	q.jobs.stages[job.ID] = append(q.jobs.stages[job.ID], models.StageCompleted)
	for i := range questions {
		questions[i].ID = uuid.NewString()
		questions[i].JobID = job.ID
		questions[i].CreatedAt = now
	}
	q.questions[job.ID] = append(q.questions[job.ID], questions...)
	return nil
}

func (q *questionStoreStub) ListByJob(ctx context.Context, jobID string) ([]models.Question, error) {
	return q.questions[jobID], nil
}

// materialRepoStub stores materials in memory with first-writer-wins processing.
type materialRepoStub struct {
	mu        sync.Mutex
	materials map[string]*models.CourseMaterial
	markCalls int
	markErr   error
	loseRace  bool
	createErr error
}

func newMaterialRepoStub() *materialRepoStub {
	return &materialRepoStub{materials: map[string]*models.CourseMaterial{}}
}

func (r *materialRepoStub) Create(ctx context.Context, material *models.CourseMaterial) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if material.ID == "" {
		material.ID = uuid.NewString()
	}
	clone := *material
	r.materials[material.ID] = &clone
	return nil
}

func (r *materialRepoStub) GetByID(ctx context.Context, id string) (*models.CourseMaterial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.materials[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *m
	return &clone, nil
}

func (r *materialRepoStub) MarkProcessed(ctx context.Context, id string, markdown string, sections models.SectionList) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markCalls++
	if r.markErr != nil {
		return false, r.markErr
	}
	m, ok := r.materials[id]
	if !ok || m.IsProcessed || r.loseRace {
		return false, nil
	}
	m.IsProcessed = true
	m.MarkdownContent = &markdown
	m.Sections = sections
	return true, nil
}

func (r *materialRepoStub) ListByCourse(ctx context.Context, courseID string) ([]models.CourseMaterial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CourseMaterial
	for _, m := range r.materials {
		if m.CourseID == courseID {
			out = append(out, *m)
		}
	}
	return out, nil
}

type objectStoreStub struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
	getErr  error
	putErr  error
}

func newObjectStoreStub() *objectStoreStub {
	return &objectStoreStub{objects: map[string][]byte{}}
}

func (s *objectStoreStub) Get(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	data, ok := s.objects[path]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (s *objectStoreStub) Put(ctx context.Context, path string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	s.objects[path] = data
	return path, nil
}

func (s *objectStoreStub) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
	return nil
}

// extractorStub returns a fixed document regardless of input.
type extractorStub struct {
	text string
	err  error
}

func (e extractorStub) Extract(data []byte) (*pdftext.Document, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &pdftext.Document{Text: e.text, PageCount: 1}, nil
}

type generatorStub struct {
	mu      sync.Mutex
	items   []llm.CandidateItem
	err     error
	prompts []llm.Prompt
	before  func()
}

func (g *generatorStub) Generate(ctx context.Context, prompt llm.Prompt) ([]llm.CandidateItem, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	before := g.before
	g.mu.Unlock()
	if before != nil {
		before()
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.items, nil
}

func (g *generatorStub) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type dispatcherStub struct {
	available bool
	err       error
	enqueued  []jobs.Job
}

func (d *dispatcherStub) Available(ctx context.Context) bool { return d.available }

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.enqueued = append(d.enqueued, job)
	return nil
}

// candidates builds n valid items worth marks each.
func candidates(prefix string, n, marks int) []llm.CandidateItem {
	items := make([]llm.CandidateItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, llm.CandidateItem{
			Question:       fmt.Sprintf("%s question %d?", prefix, i+1),
			Answer:         fmt.Sprintf("%s answer %d.", prefix, i+1),
			CognitiveLevel: "apply",
			Marks:          marks,
			Style:          "DESCRIPTIVE",
		})
	}
	return items
}

const arraysMaterial = "Unit 1: Arrays\n\nAn array stores elements in contiguous memory.\n\nIndexing is constant time.\n\nUnit 2: Linked Lists\n\nA linked list chains nodes through pointers."
