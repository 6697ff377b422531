package models

import (
	"strings"
	"time"
)

// CognitiveLevel is a Bloom's taxonomy category.
type CognitiveLevel string

const (
	LevelRemember   CognitiveLevel = "REMEMBER"
	LevelUnderstand CognitiveLevel = "UNDERSTAND"
	LevelApply      CognitiveLevel = "APPLY"
	LevelAnalyze    CognitiveLevel = "ANALYZE"
	LevelEvaluate   CognitiveLevel = "EVALUATE"
	LevelCreate     CognitiveLevel = "CREATE"
)

// CognitiveLevels lists the levels in taxonomy order.
var CognitiveLevels = []CognitiveLevel{LevelRemember, LevelUnderstand, LevelApply, LevelAnalyze, LevelEvaluate, LevelCreate}

// ParseCognitiveLevel normalises a raw level name. The second result is false for unknown values.
func ParseCognitiveLevel(raw string) (CognitiveLevel, bool) {
	level := CognitiveLevel(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range CognitiveLevels {
		if level == known {
			return level, true
		}
	}
	return "", false
}

// MarkValues lists the supported mark values, lowest first.
var MarkValues = []int{2, 8, 16}

// IsValidMarks reports whether marks is one of the supported mark values.
func IsValidMarks(marks int) bool {
	for _, m := range MarkValues {
		if m == marks {
			return true
		}
	}
	return false
}

// Difficulty labels a mark value.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// DifficultyForMarks maps a mark value to its difficulty band.
func DifficultyForMarks(marks int) Difficulty {
	switch {
	case marks >= 16:
		return DifficultyHard
	case marks >= 8:
		return DifficultyMedium
	default:
		return DifficultyEasy
	}
}

// QuestionStyle describes the expected answer form.
type QuestionStyle string

const (
	StyleShortAnswer    QuestionStyle = "SHORT_ANSWER"
	StyleDescriptive    QuestionStyle = "DESCRIPTIVE"
	StyleProblemSolving QuestionStyle = "PROBLEM_SOLVING"
	StyleCaseStudy      QuestionStyle = "CASE_STUDY"
)

// QuestionStyles lists the supported styles.
var QuestionStyles = []QuestionStyle{StyleShortAnswer, StyleDescriptive, StyleProblemSolving, StyleCaseStudy}

// ParseQuestionStyle normalises a raw style name ("short answer", "short-answer" and
// "SHORT_ANSWER" are equivalent).
func ParseQuestionStyle(raw string) (QuestionStyle, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	style := QuestionStyle(normalized)
	for _, known := range QuestionStyles {
		if style == known {
			return style, true
		}
	}
	return "", false
}

// Question is one generated question/answer pair.
type Question struct {
	ID             string         `db:"id" json:"id"`
	JobID          string         `db:"job_id" json:"jobId"`
	CourseID       string         `db:"course_id" json:"courseId"`
	Unit           int            `db:"unit" json:"unit"`
	MaterialID     *string        `db:"material_id" json:"materialId,omitempty"`
	Text           string         `db:"text" json:"text"`
	Answer         string         `db:"answer" json:"answer"`
	CognitiveLevel CognitiveLevel `db:"cognitive_level" json:"cognitiveLevel"`
	Marks          int            `db:"marks" json:"marks"`
	Style          QuestionStyle  `db:"style" json:"style"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
}
