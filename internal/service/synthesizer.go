package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/noah-isme/qbank-api/internal/models"
	"github.com/noah-isme/qbank-api/internal/segment"
	appErrors "github.com/noah-isme/qbank-api/pkg/errors"
	"github.com/noah-isme/qbank-api/pkg/llm"
)

const defaultMaxContextChars = 24000

const truncationMarker = "\n\n[... material truncated ...]"

// TextGenerator produces candidate questions from a prompt. It is called once per job.
type TextGenerator interface {
	Generate(ctx context.Context, prompt llm.Prompt) ([]llm.CandidateItem, error)
}

// SynthesisRequest identifies what to generate questions for.
type SynthesisRequest struct {
	CourseID   string
	MaterialID string
	Unit       int
	Quotas     models.Quotas
}

// SynthesisResult holds the validated questions and bookkeeping about what was dropped.
type SynthesisResult struct {
	Questions    []models.Question
	Requested    int
	Shortfall    int
	Discarded    int
	UnitMatched  bool
	ContextChars int
	Truncated    bool
}

// Warning describes a partial result, or returns nil when nothing needs reporting.
func (r *SynthesisResult) Warning() *string {
	var notes []string
	if !r.UnitMatched {
		notes = append(notes, "requested unit not found in material; questions drawn from the whole document")
	}
	if r.Shortfall > 0 {
		notes = append(notes, fmt.Sprintf("generated %d of %d requested questions", len(r.Questions), r.Requested))
	}
	if len(notes) == 0 {
		return nil
	}
	msg := strings.Join(notes, "; ")
	return &msg
}

// SynthesizerConfig bounds the prompt size.
type SynthesizerConfig struct {
	MaxContextChars int
}

// Synthesizer turns material sections into validated exam questions.
type Synthesizer struct {
	generator TextGenerator
	cfg       SynthesizerConfig
	logger    *zap.Logger
}

// NewSynthesizer constructs a synthesizer.
func NewSynthesizer(generator TextGenerator, cfg SynthesizerConfig, logger *zap.Logger) *Synthesizer {
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = defaultMaxContextChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{generator: generator, cfg: cfg, logger: logger}
}

// SelectSections returns the sections tagged with unit, or every section when none match.
func SelectSections(sections []models.Section, unit int) ([]models.Section, bool) {
	return segment.FilterByUnit(sections, unit)
}

// Synthesize asks the generator for questions once and keeps the valid ones.
// Fewer questions than requested is not an error; none at all is ErrGenerationFailed.
func (s *Synthesizer) Synthesize(ctx context.Context, sections []models.Section, req SynthesisRequest) (*SynthesisResult, error) {
	requested := req.Quotas.Total()
	if requested <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one question must be requested")
	}
	selected, matched := SelectSections(sections, req.Unit)
	materialText, truncated := buildContext(selected, s.cfg.MaxContextChars)
	if strings.TrimSpace(materialText) == "" {
		return nil, appErrors.Clone(appErrors.ErrGenerationFailed, "material has no text to generate questions from")
	}

	prompt := BuildPrompt(materialText, req)
	candidates, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, appErrors.ErrGenerationFailed.Message)
	}

	questions, discarded := normalizeCandidates(candidates, req)
	result := &SynthesisResult{
		Questions:    questions,
		Requested:    requested,
		Shortfall:    requested - len(questions),
		Discarded:    discarded,
		UnitMatched:  matched,
		ContextChars: utf8.RuneCountInString(materialText),
		Truncated:    truncated,
	}
	s.logger.Sugar().Infow("questions synthesized",
		"material_id", req.MaterialID,
		"unit", req.Unit,
		"candidates", len(candidates),
		"accepted", len(questions),
		"discarded", discarded,
		"requested", requested,
		"unit_matched", matched,
		"truncated", truncated,
	)
	if len(questions) == 0 {
		return result, appErrors.Clone(appErrors.ErrGenerationFailed, "the model returned no usable questions")
	}
	return result, nil
}

// normalizeCandidates validates every candidate and enforces the mark quotas. The
// second result counts candidates that were dropped.
func normalizeCandidates(candidates []llm.CandidateItem, req SynthesisRequest) ([]models.Question, int) {
	requested := req.Quotas.Total()
	perMarks := make(map[int]int, len(req.Quotas.Marks))
	seen := make(map[string]struct{}, len(candidates))
	questions := make([]models.Question, 0, requested)
	discarded := 0

	var materialID *string
	if req.MaterialID != "" {
		id := req.MaterialID
		materialID = &id
	}

	for _, item := range candidates {
		text := strings.TrimSpace(item.Question)
		answer := strings.TrimSpace(item.Answer)
		level, okLevel := models.ParseCognitiveLevel(item.CognitiveLevel)
		if text == "" || answer == "" || !okLevel || !models.IsValidMarks(item.Marks) {
			discarded++
			continue
		}
		key := questionKey(text)
		if _, dup := seen[key]; dup {
			discarded++
			continue
		}
		if len(questions) >= requested || perMarks[item.Marks] >= req.Quotas.Marks[item.Marks] {
			discarded++
			continue
		}
		style, ok := models.ParseQuestionStyle(item.Style)
		if !ok {
			style = models.StyleDescriptive
		}
		seen[key] = struct{}{}
		perMarks[item.Marks]++
		questions = append(questions, models.Question{
			CourseID:       req.CourseID,
			Unit:           req.Unit,
			MaterialID:     materialID,
			Text:           text,
			Answer:         answer,
			CognitiveLevel: level,
			Marks:          item.Marks,
			Style:          style,
		})
	}
	return questions, discarded
}

// buildContext joins section contents in order and cuts the result at maxChars runes.
// questionKey folds case, whitespace and compatibility forms (full-width digits,
// ligatures) so near-identical questions collide.
func questionKey(text string) string {
	return strings.ToLower(norm.NFKC.String(segment.NormalizeWhitespace(text)))
}

func buildContext(sections []models.Section, maxChars int) (string, bool) {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if content := strings.TrimSpace(s.Content); content != "" {
			parts = append(parts, content)
		}
	}
	joined := strings.Join(parts, "\n\n")
	if maxChars <= 0 || utf8.RuneCountInString(joined) <= maxChars {
		return joined, false
	}
	runes := []rune(joined)
	return string(runes[:maxChars]) + truncationMarker, true
}

// BuildPrompt renders the instructions, quota breakdown and material context.
func BuildPrompt(materialContext string, req SynthesisRequest) llm.Prompt {
	var sys strings.Builder
	sys.WriteString("You are an experienced university examiner who writes exam questions strictly from the supplied course material.\n")
	sys.WriteString("Every question must be answerable from the material alone and must come with a complete model answer.\n")
	sys.WriteString("Respond ONLY with a JSON object of the form:\n")
	sys.WriteString(`{"questions": [{"question": "<text>", "answer": "<model answer>", "cognitive_level": "<REMEMBER|UNDERSTAND|APPLY|ANALYZE|EVALUATE|CREATE>", "marks": <2|8|16>, "style": "<SHORT_ANSWER|DESCRIPTIVE|PROBLEM_SOLVING|CASE_STUDY>"}]}`)
	sys.WriteString("\n")

	var user strings.Builder
	user.WriteString(fmt.Sprintf("Write exactly %d questions for unit %d.\n\n", req.Quotas.Total(), req.Unit))

	user.WriteString("MARKS DISTRIBUTION:\n")
	marks := make([]int, 0, len(req.Quotas.Marks))
	for m := range req.Quotas.Marks {
		marks = append(marks, m)
	}
	sort.Ints(marks)
	for _, m := range marks {
		if n := req.Quotas.Marks[m]; n > 0 {
			user.WriteString(fmt.Sprintf("- %d question(s) worth %d marks (%s)\n", n, m, models.DifficultyForMarks(m)))
		}
	}

	if len(req.Quotas.Levels) > 0 {
		user.WriteString("\nCOGNITIVE LEVELS (Bloom's taxonomy):\n")
		for _, level := range models.CognitiveLevels {
			if n := req.Quotas.Levels[level]; n > 0 {
				user.WriteString(fmt.Sprintf("- %d question(s) at %s\n", n, level))
			}
		}
	}

	if len(req.Quotas.Styles) > 0 {
		user.WriteString("\nQUESTION STYLES:\n")
		for _, style := range models.QuestionStyles {
			if n := req.Quotas.Styles[style]; n > 0 {
				user.WriteString(fmt.Sprintf("- %d question(s) in %s style\n", n, style))
			}
		}
	}

	user.WriteString("\nGuidance: 2-mark questions take a sentence or two to answer, 8-mark questions need a structured explanation, ")
	user.WriteString("16-mark questions demand an extended answer that applies, analyses or evaluates several ideas.\n")
	user.WriteString("\nCOURSE MATERIAL:\n")
	user.WriteString(materialContext)
	user.WriteString("\n")

	return llm.Prompt{System: sys.String(), User: user.String()}
}
