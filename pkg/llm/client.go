// Package llm talks to an OpenAI-compatible chat completion endpoint and turns
// its JSON replies into candidate exam questions.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Prompt is the pair of messages sent to the model.
type Prompt struct {
	System string
	User   string
}

// CandidateItem is one unvalidated question as returned by the model.
type CandidateItem struct {
	Question       string
	Answer         string
	CognitiveLevel string
	Marks          int
	Style          string
}

// Config points the client at a provider.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	logger      *zap.Logger
}

// New creates a new LLM client.
func New(cfg Config, logger *zap.Logger) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api:         openai.NewClientWithConfig(config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

// Generate sends the prompt once and parses the candidate questions from the reply.
func (c *Client) Generate(ctx context.Context, prompt Prompt) ([]CandidateItem, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if prompt.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt.User})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	c.logger.Sugar().Debugw("LLM response", "model", c.model, "chars", len(raw), "finish_reason", resp.Choices[0].FinishReason)

	items, err := ParseCandidates(raw)
	if err != nil {
		return nil, err
	}
	return items, nil
}

type rawItem struct {
	Question       string          `json:"question"`
	Text           string          `json:"text"`
	Answer         string          `json:"answer"`
	CognitiveLevel string          `json:"cognitive_level"`
	Level          string          `json:"level"`
	Marks          json.RawMessage `json:"marks"`
	Style          string          `json:"style"`
}

// ParseCandidates reads either {"questions": [...]} or a bare array. A surrounding
// markdown code fence is ignored. Items are returned as-is; validation is the
// caller's job.
func ParseCandidates(raw string) ([]CandidateItem, error) {
	body := stripFence(raw)
	if body == "" {
		return nil, errors.New("parse LLM response: empty body")
	}

	var items []rawItem
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &items); err != nil {
			return nil, fmt.Errorf("parse LLM response: %w", err)
		}
	} else {
		var envelope struct {
			Questions []rawItem `json:"questions"`
		}
		if err := json.Unmarshal([]byte(body), &envelope); err != nil {
			return nil, fmt.Errorf("parse LLM response: %w", err)
		}
		items = envelope.Questions
	}

	out := make([]CandidateItem, 0, len(items))
	for _, item := range items {
		question := item.Question
		if question == "" {
			question = item.Text
		}
		level := item.CognitiveLevel
		if level == "" {
			level = item.Level
		}
		out = append(out, CandidateItem{
			Question:       strings.TrimSpace(question),
			Answer:         strings.TrimSpace(item.Answer),
			CognitiveLevel: strings.TrimSpace(level),
			Marks:          parseMarks(item.Marks),
			Style:          strings.TrimSpace(item.Style),
		})
	}
	return out, nil
}

// parseMarks accepts 8, 8.0 and "8". Anything else yields 0, which fails validation.
func parseMarks(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || f != float64(int(f)) {
		return 0
	}
	return int(f)
}

func stripFence(raw string) string {
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
