package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the hosted Whisper backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIBackend sends canonical audio to the OpenAI transcription endpoint.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend builds the hosted backend.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIBackend{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
	}, nil
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string {
	return "openai"
}

// Recognize implements Backend.
func (b *OpenAIBackend) Recognize(ctx context.Context, req Request) (Response, error) {
	resp, err := b.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    b.model,
		FilePath: req.AudioPath,
		Language: req.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Response{}, fmt.Errorf("openai transcription: %w", err)
	}

	out := Response{Segments: make([]Segment, 0, len(resp.Segments))}
	for _, segment := range resp.Segments {
		out.Segments = append(out.Segments, Segment{Alternatives: []string{segment.Text}})
	}
	if len(out.Segments) == 0 && strings.TrimSpace(resp.Text) != "" {
		out.Segments = append(out.Segments, Segment{Alternatives: []string{resp.Text}})
	}

	return out, nil
}
