package service

import (
	"errors"

	"github.com/noah-isme/gema-assess-api/internal/grading"
	"github.com/noah-isme/gema-assess-api/pkg/speech"
)

var (
	// ErrQuestionNotFound indicates the question does not exist or belongs to another section.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrSectionNotFound indicates the section does not exist.
	ErrSectionNotFound = errors.New("section not found")
	// ErrResultNotFound indicates the user has not submitted anything for the section.
	ErrResultNotFound = errors.New("submission result not found")
)

// FailureKind returns the stable machine-readable name for err.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, grading.ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, grading.ErrInvalidIdentifier):
		return "invalid_identifier"
	case errors.Is(err, grading.ErrUnsupportedAnswer):
		return "unsupported_answer"
	case errors.Is(err, grading.ErrNoQuestions):
		return "no_questions"
	case errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrSectionNotFound), errors.Is(err, ErrResultNotFound):
		return "not_found"
	case errors.Is(err, speech.ErrTranscodeFailed), errors.Is(err, speech.ErrBackendUnavailable), errors.Is(err, speech.ErrEmptyTranscript):
		return speech.KindName(err)
	default:
		return "internal"
	}
}
