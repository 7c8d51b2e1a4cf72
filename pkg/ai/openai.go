package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	examinerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "examiner_duration_seconds",
		Help:      "Duration of AI examiner requests",
	}, []string{"model"})

	examinerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "examiner_failures_total",
		Help:      "Number of AI examiner failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI examiner.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIExaminer implements Examiner against the chat completion API.
type OpenAIExaminer struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIExaminer builds a new examiner using the provided configuration.
func NewOpenAIExaminer(cfg OpenAIConfig) (*OpenAIExaminer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 256
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIExaminer{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-assess-api/pkg/ai/openai"),
		logger: logger.With().Str("component", "ai_examiner").Logger(),
	}, nil
}

// Examine asks the model for an IELTS-style judgement of the answer.
func (e *OpenAIExaminer) Examine(parent context.Context, input ExaminerInput) (ExaminerResult, error) {
	ctx, span := e.tracer.Start(parent, "openai.examine", trace.WithAttributes(
		attribute.String("model", e.cfg.Model),
		attribute.String("module", input.Module),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: examinerSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := e.client.CreateChatCompletion(ctx, request)
	examinerDuration.WithLabelValues(e.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return ExaminerResult{}, e.failed(span, fmt.Errorf("openai examine: %w", err))
	}

	if len(resp.Choices) == 0 {
		return ExaminerResult{}, e.failed(span, fmt.Errorf("no choices returned from openai"))
	}

	result, err := parseExaminerResponse(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		return ExaminerResult{}, e.failed(span, err)
	}

	return result, nil
}

func (e *OpenAIExaminer) failed(span trace.Span, err error) error {
	examinerFailures.WithLabelValues(e.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func examinerSystemPrompt() string {
	return "You are an English language examiner. Compare the candidate answer with the accepted answers and respond with a " +
		"JSON object containing score (integer 0-100) and feedback (one or two sentences addressed to the candidate)."
}

func buildUserPrompt(input ExaminerInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Module\n")
	builder.WriteString(input.Module)
	builder.WriteString("\n\n## Question Type\n")
	builder.WriteString(input.QuestionType)
	if input.Prompt != "" {
		builder.WriteString("\n\n## Question\n")
		builder.WriteString(input.Prompt)
	}
	builder.WriteString("\n\n## Accepted Answers\n")
	for _, reference := range input.References {
		builder.WriteString("- ")
		builder.WriteString(reference)
		builder.WriteString("\n")
	}
	builder.WriteString("\n## Candidate Answer\n")
	builder.WriteString(input.Answer)
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseExaminerResponse(content string) (ExaminerResult, error) {
	var data struct {
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return ExaminerResult{}, fmt.Errorf("parse examiner json: %w", err)
	}

	// some models answer on a 0-1 scale
	if data.Score > 0 && data.Score <= 1 {
		data.Score *= 100
	}
	score := int(math.Round(data.Score))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return ExaminerResult{
		Score:    score,
		Feedback: strings.TrimSpace(data.Feedback),
	}, nil
}
