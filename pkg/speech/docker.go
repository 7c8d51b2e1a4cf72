package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/noah-isme/gema-assess-api/pkg/docker"
)

// DockerConfig configures the self-hosted Whisper backend.
type DockerConfig struct {
	Image     string
	Model     string
	MountPath string
}

// DockerBackend runs the whisper CLI in a throwaway container against the
// directory holding the canonical WAV.
type DockerBackend struct {
	runner docker.Runner
	cfg    DockerConfig
}

// NewDockerBackend builds the container backend.
func NewDockerBackend(runner docker.Runner, cfg DockerConfig) (*DockerBackend, error) {
	if runner == nil {
		return nil, errors.New("container runner is required")
	}
	if strings.TrimSpace(cfg.Image) == "" {
		return nil, errors.New("whisper image is required")
	}
	if cfg.Model == "" {
		cfg.Model = "base"
	}
	if cfg.MountPath == "" {
		cfg.MountPath = "/workspace"
	}
	return &DockerBackend{runner: runner, cfg: cfg}, nil
}

// Name implements Backend.
func (b *DockerBackend) Name() string {
	return "docker"
}

// Recognize implements Backend.
func (b *DockerBackend) Recognize(ctx context.Context, req Request) (Response, error) {
	workspace := filepath.Dir(req.AudioPath)
	fileName := filepath.Base(req.AudioPath)

	cmd := []string{
		"whisper", path.Join(b.cfg.MountPath, fileName),
		"--model", b.cfg.Model,
		"--output_format", "json",
		"--output_dir", b.cfg.MountPath,
	}
	if req.Language != "" {
		cmd = append(cmd, "--language", req.Language)
	}

	outcome, err := b.runner.Run(ctx, docker.Job{
		Image:     b.cfg.Image,
		Cmd:       cmd,
		Workspace: workspace,
		Timeout:   req.Timeout,
	})
	if err != nil {
		return Response{}, fmt.Errorf("whisper container: %w", err)
	}
	if outcome.ExitCode != 0 {
		return Response{}, fmt.Errorf("whisper exited with code %d: %s", outcome.ExitCode, tail(outcome.Stderr, 512))
	}

	resultPath := filepath.Join(workspace, strings.TrimSuffix(fileName, filepath.Ext(fileName))+".json")
	raw, err := os.ReadFile(resultPath)
	if err != nil {
		return Response{}, fmt.Errorf("read whisper output: %w", err)
	}

	return parseWhisperJSON(raw)
}

func parseWhisperJSON(raw []byte) (Response, error) {
	var payload struct {
		Text     string `json:"text"`
		Segments []struct {
			Text string `json:"text"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Response{}, fmt.Errorf("parse whisper output: %w", err)
	}

	out := Response{Segments: make([]Segment, 0, len(payload.Segments))}
	for _, segment := range payload.Segments {
		out.Segments = append(out.Segments, Segment{Alternatives: []string{segment.Text}})
	}
	if len(out.Segments) == 0 && strings.TrimSpace(payload.Text) != "" {
		out.Segments = append(out.Segments, Segment{Alternatives: []string{payload.Text}})
	}
	return out, nil
}
