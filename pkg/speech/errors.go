package speech

import (
	"errors"
	"fmt"
)

var (
	// ErrTranscodeFailed indicates the audio could not be converted to canonical PCM.
	ErrTranscodeFailed = errors.New("audio transcode failed")
	// ErrBackendUnavailable indicates the transcription backend failed or timed out.
	ErrBackendUnavailable = errors.New("transcription backend unavailable")
	// ErrEmptyTranscript indicates transcription succeeded but produced no text.
	ErrEmptyTranscript = errors.New("transcription produced no text")
)

// Failure is the terminal error of a pipeline run. errors.Is matches both the
// kind sentinel and the underlying cause.
type Failure struct {
	Kind  error
	Stage Stage
	Err   error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s (stage %s)", f.Kind, f.Stage)
	}
	return fmt.Sprintf("%s (stage %s): %v", f.Kind, f.Stage, f.Err)
}

// Unwrap exposes the kind and cause to errors.Is / errors.As.
func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// KindName returns a stable label for metrics and API payloads.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrTranscodeFailed):
		return "transcode_failed"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, ErrEmptyTranscript):
		return "empty_transcript"
	default:
		return "unknown"
	}
}

func fail(kind error, stage Stage, err error) *Failure {
	return &Failure{Kind: kind, Stage: stage, Err: err}
}
