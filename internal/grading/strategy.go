package grading

import "strings"

// QuestionType enumerates the question types the engine can grade.
type QuestionType string

const (
	QuestionMCQ       QuestionType = "mcq"
	QuestionTrueFalse QuestionType = "true-false"
	QuestionFillBlank QuestionType = "fill-blank"
	QuestionFreeText  QuestionType = "free-text"
	QuestionSpoken    QuestionType = "spoken"
)

// MatchMode names the matching strategy used for a record.
type MatchMode string

const (
	MatchExact      MatchMode = "exact"
	MatchSimilarity MatchMode = "similarity"
)

// ParseQuestionType accepts the stored spelling with either '-' or '_' separators.
func ParseQuestionType(raw string) (QuestionType, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-")
	switch QuestionType(normalized) {
	case QuestionMCQ, QuestionTrueFalse, QuestionFillBlank, QuestionFreeText, QuestionSpoken:
		return QuestionType(normalized), true
	case "writing":
		return QuestionFreeText, true
	case "speaking":
		return QuestionSpoken, true
	}
	return "", false
}

// Mode returns the matching strategy for the question type.
func (t QuestionType) Mode() MatchMode {
	switch t {
	case QuestionFreeText, QuestionSpoken:
		return MatchSimilarity
	default:
		return MatchExact
	}
}

// Thresholds holds the similarity pass marks per free-form question type.
type Thresholds struct {
	Writing  int
	Speaking int
}

// DefaultThresholds mirrors the pass marks the product currently uses.
var DefaultThresholds = Thresholds{Writing: 60, Speaking: 70}

// ScorerFor returns the similarity scorer for the question type.
func (t Thresholds) ScorerFor(questionType QuestionType) SimilarityScorer {
	if questionType == QuestionSpoken {
		return NewSimilarityScorer(t.Speaking)
	}
	return NewSimilarityScorer(t.Writing)
}

// Verdict is the engine output for one (answer, reference) pair.
type Verdict struct {
	Mode          MatchMode
	SubmittedText string
	Candidates    []string
	IsCorrect     bool
	Percentage    *int
}

// Evaluate grades already-textual input against a raw reference answer.
// Audio must be transcribed by the caller first.
func (t Thresholds) Evaluate(questionType QuestionType, answer SubmittedAnswer, reference interface{}) (Verdict, error) {
	if answer.IsAudio() {
		return Verdict{}, ErrUnsupportedAnswer
	}

	candidates := Normalize(reference)
	if len(candidates) == 0 {
		return Verdict{}, ErrInvalidReference
	}

	submitted := answer.ComparisonText()
	verdict := Verdict{
		Mode:          questionType.Mode(),
		SubmittedText: submitted,
		Candidates:    candidates,
	}

	if verdict.Mode == MatchExact {
		verdict.IsCorrect = ExactMatch(submitted, candidates)
		return verdict, nil
	}

	result := t.ScorerFor(questionType).Score(submitted, candidates)
	percentage := result.Percentage
	verdict.Percentage = &percentage
	verdict.IsCorrect = result.IsCorrect
	return verdict, nil
}
