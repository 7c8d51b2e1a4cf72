package grading

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrInvalidReference indicates the question has no usable reference answer after normalization.
	ErrInvalidReference = errors.New("question has no usable reference answer")
	// ErrInvalidIdentifier indicates a malformed question, user or section identifier.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrUnsupportedAnswer indicates the submitted answer shape does not fit the question type.
	ErrUnsupportedAnswer = errors.New("answer shape not supported for question type")
	// ErrNoQuestions indicates an aggregate was requested over zero questions.
	ErrNoQuestions = errors.New("total questions must be greater than zero")
)

// ParseID parses a positive numeric identifier. Anything else is ErrInvalidIdentifier.
func ParseID(raw string) (uint, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, ErrInvalidIdentifier
	}

	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, ErrInvalidIdentifier
	}

	return uint(parsed), nil
}
