package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stage marks how far a recording has progressed through the pipeline.
type Stage string

const (
	StageReceived    Stage = "received"
	StageTranscoded  Stage = "transcoded"
	StageSubmitted   Stage = "submitted"
	StageTranscribed Stage = "transcribed"
	StageFailed      Stage = "failed"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultLanguage = "en"
	canonicalName   = "canonical.wav"
)

// Config tunes a Pipeline.
type Config struct {
	Timeout  time.Duration
	WorkDir  string
	Language string
	MaxBytes int64
	Logger   zerolog.Logger
}

// Result is a successful transcription.
type Result struct {
	Transcript string
	MimeType   string
	Backend    string
	Duration   time.Duration
}

// Pipeline turns a raw recording into a transcript: sniff, transcode to
// canonical PCM, recognise, join. Every run owns a private temp directory
// that is removed before Transcribe returns.
type Pipeline struct {
	transcoder Transcoder
	backend    Backend
	cfg        Config
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// NewPipeline wires a transcoder and backend.
func NewPipeline(transcoder Transcoder, backend Backend, cfg Config) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = defaultLanguage
	}

	return &Pipeline{
		transcoder: transcoder,
		backend:    backend,
		cfg:        cfg,
		tracer:     otel.Tracer("github.com/noah-isme/gema-assess-api/pkg/speech"),
		logger:     cfg.Logger.With().Str("component", "speech_pipeline").Logger(),
	}
}

// Transcribe converts audio into text. fileName and declaredType are hints
// from the upload and may be empty. Failures are *Failure values carrying
// one of ErrTranscodeFailed, ErrBackendUnavailable or ErrEmptyTranscript.
func (p *Pipeline) Transcribe(ctx context.Context, audio []byte, fileName, declaredType string) (result Result, err error) {
	ctx, span := p.tracer.Start(ctx, "speech.pipeline.transcribe", trace.WithAttributes(
		attribute.Int("speech.input_bytes", len(audio)),
		attribute.String("speech.backend", p.backend.Name()),
	))
	defer span.End()

	started := time.Now()
	stage := StageReceived
	defer func() {
		if err != nil {
			var failure *Failure
			if errors.As(err, &failure) {
				failuresTotal.WithLabelValues(KindName(failure.Kind), string(failure.Stage)).Inc()
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, KindName(err))
			p.logger.Warn().Err(err).Str("stage", string(stage)).Msg("transcription failed")
			return
		}
		span.SetAttributes(attribute.Int("speech.transcript_chars", len(result.Transcript)))
	}()

	if len(audio) == 0 {
		return Result{}, fail(ErrTranscodeFailed, stage, errors.New("empty audio payload"))
	}
	if p.cfg.MaxBytes > 0 && int64(len(audio)) > p.cfg.MaxBytes {
		return Result{}, fail(ErrTranscodeFailed, stage, fmt.Errorf("audio exceeds %d bytes", p.cfg.MaxBytes))
	}

	detected, ok := sniffAudio(audio, declaredType)
	if !ok {
		return Result{}, fail(ErrTranscodeFailed, stage, fmt.Errorf("unsupported media type %s", detected.String()))
	}
	result.MimeType = detected.String()

	workspace, err := os.MkdirTemp(p.cfg.WorkDir, "speech-*")
	if err != nil {
		return Result{}, fail(ErrTranscodeFailed, stage, fmt.Errorf("create workspace: %w", err))
	}
	defer func() {
		if removeErr := os.RemoveAll(workspace); removeErr != nil {
			p.logger.Error().Err(removeErr).Str("workspace", workspace).Msg("failed to remove speech workspace")
		}
	}()

	sourcePath := filepath.Join(workspace, "source"+sourceExtension(fileName, detected.Extension()))
	if err := os.WriteFile(sourcePath, audio, 0o600); err != nil {
		return Result{}, fail(ErrTranscodeFailed, stage, fmt.Errorf("write source: %w", err))
	}

	canonicalPath := filepath.Join(workspace, canonicalName)
	transcodeStarted := time.Now()
	if err := p.transcoder.Transcode(ctx, sourcePath, canonicalPath); err != nil {
		return Result{}, fail(ErrTranscodeFailed, stage, err)
	}
	if info, statErr := os.Stat(canonicalPath); statErr != nil || info.Size() == 0 {
		return Result{}, fail(ErrTranscodeFailed, stage, errors.New("transcoder produced no output"))
	}
	stageDuration.WithLabelValues(string(StageTranscoded)).Observe(time.Since(transcodeStarted).Seconds())
	stage = StageTranscoded

	backendCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	stage = StageSubmitted
	recognizeStarted := time.Now()
	response, err := p.backend.Recognize(backendCtx, Request{
		AudioPath: canonicalPath,
		Language:  p.cfg.Language,
		Timeout:   p.cfg.Timeout,
	})
	if err == nil && backendCtx.Err() != nil {
		err = backendCtx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%s timed out after %s: %w", p.backend.Name(), p.cfg.Timeout, err)
		}
		return Result{}, fail(ErrBackendUnavailable, stage, err)
	}
	stageDuration.WithLabelValues(string(StageTranscribed)).Observe(time.Since(recognizeStarted).Seconds())
	stage = StageTranscribed

	transcript := response.Transcript()
	if transcript == "" {
		return Result{}, fail(ErrEmptyTranscript, stage, nil)
	}

	result.Transcript = transcript
	result.Backend = p.backend.Name()
	result.Duration = time.Since(started)

	p.logger.Debug().
		Str("backend", result.Backend).
		Str("mime", result.MimeType).
		Dur("duration", result.Duration).
		Msg("audio transcribed")

	return result, nil
}

func sourceExtension(fileName, sniffed string) string {
	if ext := strings.ToLower(filepath.Ext(strings.TrimSpace(fileName))); ext != "" && len(ext) <= 6 {
		return ext
	}
	if sniffed != "" {
		return sniffed
	}
	return ".bin"
}
