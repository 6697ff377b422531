package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus captures the coarse generation job lifecycle.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ProcessingStage is the fine-grained sub-state used for progress display.
type ProcessingStage string

const (
	StageQueued       ProcessingStage = "QUEUED"
	StageExtracting   ProcessingStage = "EXTRACTING"
	StageSegmenting   ProcessingStage = "SEGMENTING"
	StageSynthesizing ProcessingStage = "SYNTHESIZING"
	StagePersisting   ProcessingStage = "PERSISTING"
	StageCompleted    ProcessingStage = "COMPLETED"
	StageFailed       ProcessingStage = "FAILED"
)

// stageProgress holds the coarse progress checkpoint for each stage.
var stageProgress = map[ProcessingStage]int{
	StageQueued:       0,
	StageExtracting:   10,
	StageSegmenting:   35,
	StageSynthesizing: 55,
	StagePersisting:   85,
	StageCompleted:    100,
}

// Progress returns the checkpoint for a stage. FAILED has no checkpoint and reports -1.
func (s ProcessingStage) Progress() int {
	p, ok := stageProgress[s]
	if !ok {
		return -1
	}
	return p
}

// DispatchMode records which scheduler executed a job.
type DispatchMode string

const (
	DispatchAsync DispatchMode = "ASYNC"
	DispatchSync  DispatchMode = "SYNC"
)

// GenerationJob is one request to synthesize questions for a (course, material, unit) triple.
type GenerationJob struct {
	ID              string          `db:"id" json:"id"`
	CourseID        string          `db:"course_id" json:"courseId"`
	MaterialID      string          `db:"material_id" json:"materialId"`
	Unit            int             `db:"unit" json:"unit"`
	Quotas          Quotas          `db:"quotas" json:"quotas"`
	Status          JobStatus       `db:"status" json:"status"`
	ProcessingStage ProcessingStage `db:"processing_stage" json:"processingStage"`
	Progress        int             `db:"progress" json:"progress"`
	GeneratedCount  int             `db:"generated_count" json:"generatedCount"`
	TotalRequested  int             `db:"total_requested" json:"totalRequested"`
	ErrorMessage    *string         `db:"error_message" json:"errorMessage,omitempty"`
	Warning         *string         `db:"warning" json:"warning,omitempty"`
	DispatchMode    DispatchMode    `db:"dispatch_mode" json:"dispatchMode"`
	CreatedBy       string          `db:"created_by" json:"createdBy"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
	FinishedAt      *time.Time      `db:"finished_at" json:"finishedAt,omitempty"`
}

// Quotas is the requested question breakdown, persisted as JSONB.
// Marks drives the total; Levels and Styles, when set, distribute the same total.
type Quotas struct {
	Levels map[CognitiveLevel]int `json:"levels,omitempty"`
	Marks  map[int]int            `json:"marks"`
	Styles map[QuestionStyle]int  `json:"styles,omitempty"`
}

// Total returns the number of questions requested.
func (q Quotas) Total() int {
	total := 0
	for _, n := range q.Marks {
		total += n
	}
	return total
}

// Validate checks enumerations and that every distribution adds up to Total.
func (q Quotas) Validate() error {
	total := 0
	for marks, n := range q.Marks {
		if !IsValidMarks(marks) {
			return fmt.Errorf("unsupported mark value %d", marks)
		}
		if n < 0 {
			return fmt.Errorf("negative count for %d marks", marks)
		}
		total += n
	}
	if total == 0 {
		return fmt.Errorf("at least one question must be requested")
	}
	if len(q.Levels) > 0 {
		sum := 0
		for level, n := range q.Levels {
			if _, ok := ParseCognitiveLevel(string(level)); !ok {
				return fmt.Errorf("unsupported cognitive level %q", level)
			}
			if n < 0 {
				return fmt.Errorf("negative count for level %s", level)
			}
			sum += n
		}
		if sum != total {
			return fmt.Errorf("cognitive level counts sum to %d, expected %d", sum, total)
		}
	}
	if len(q.Styles) > 0 {
		sum := 0
		for style, n := range q.Styles {
			if _, ok := ParseQuestionStyle(string(style)); !ok {
				return fmt.Errorf("unsupported question style %q", style)
			}
			if n < 0 {
				return fmt.Errorf("negative count for style %s", style)
			}
			sum += n
		}
		if sum != total {
			return fmt.Errorf("question style counts sum to %d, expected %d", sum, total)
		}
	}
	return nil
}

// Value marshals quotas to JSON for persistence.
func (q Quotas) Value() (driver.Value, error) {
	if q.Marks == nil {
		q.Marks = map[int]int{}
	}
	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal quotas: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the quotas struct.
func (q *Quotas) Scan(value interface{}) error {
	if value == nil {
		*q = Quotas{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for Quotas", value)
	}
	if len(data) == 0 {
		*q = Quotas{}
		return nil
	}
	if err := json.Unmarshal(data, q); err != nil {
		return fmt.Errorf("unmarshal quotas: %w", err)
	}
	return nil
}
