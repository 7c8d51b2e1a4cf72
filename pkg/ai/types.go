package ai

import "context"

// ExaminerInput is one scored answer handed to the examiner for a second opinion.
type ExaminerInput struct {
	Module       string
	QuestionType string
	Prompt       string
	References   []string
	Answer       string
}

// ExaminerResult is advisory feedback. It never changes the recorded verdict.
type ExaminerResult struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Examiner grades a free-text or transcribed answer the way a human examiner would.
type Examiner interface {
	Examine(ctx context.Context, input ExaminerInput) (ExaminerResult, error)
}
