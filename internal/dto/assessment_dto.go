package dto

import (
	"time"

	"github.com/noah-isme/gema-assess-api/internal/grading"
	"github.com/noah-isme/gema-assess-api/internal/models"
)

// AnswerRequest carries one textual answer. QuestionID stays a string so a
// malformed id is reported against its own item.
type AnswerRequest struct {
	QuestionID string                  `json:"question_id" validate:"required"`
	Answer     grading.SubmittedAnswer `json:"answer"`
}

// BatchAnswerRequest submits several answers for one section in order.
type BatchAnswerRequest struct {
	Answers []AnswerRequest `json:"answers" validate:"required,min=1,max=200"`
}

// SpokenAnswerRequest is the multipart form for a recorded answer.
type SpokenAnswerRequest struct {
	QuestionID string `form:"question_id" validate:"required"`
}

// HistoryFilter narrows result history.
type HistoryFilter struct {
	Module string `query:"module" validate:"omitempty,oneof=reading listening writing speaking"`
}

// CheckResponse is the verdict of a non-persisted evaluation.
type CheckResponse struct {
	QuestionID           uint     `json:"question_id"`
	MatchMode            string   `json:"match_mode"`
	SubmittedText        string   `json:"submitted_text"`
	ReferenceCandidates  []string `json:"reference_candidates"`
	SimilarityPercentage *int     `json:"similarity_percentage"`
	IsCorrect            bool     `json:"is_correct"`
}

// AnswerRecordResponse serializes one stored verdict.
type AnswerRecordResponse struct {
	QuestionID           uint      `json:"question_id"`
	SubmittedText        string    `json:"submitted_text"`
	ReferenceCandidates  []string  `json:"reference_candidates"`
	MatchMode            string    `json:"match_mode"`
	SimilarityPercentage *int      `json:"similarity_percentage"`
	IsCorrect            bool      `json:"is_correct"`
	AudioRef             string    `json:"audio_ref,omitempty"`
	Status               string    `json:"status"`
	FailureKind          string    `json:"failure_kind,omitempty"`
	ExaminerScore        *int      `json:"examiner_score"`
	ExaminerFeedback     string    `json:"examiner_feedback,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ItemError is a per-item batch failure.
type ItemError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// BatchItemResult is one entry of a batch response, in request order.
type BatchItemResult struct {
	Index      int                   `json:"index"`
	QuestionID string                `json:"question_id"`
	Record     *AnswerRecordResponse `json:"record,omitempty"`
	Error      *ItemError            `json:"error,omitempty"`
}

// BatchAnswerResponse reports a batch with partial failures.
type BatchAnswerResponse struct {
	SectionID uint              `json:"section_id"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Items     []BatchItemResult `json:"items"`
}

// SubmissionResultResponse is the caller's attempt at a section.
type SubmissionResultResponse struct {
	ID        uint                   `json:"id"`
	UserID    uint                   `json:"user_id"`
	SectionID uint                   `json:"section_id"`
	Module    string                 `json:"module"`
	Records   []AnswerRecordResponse `json:"records"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// SummaryResponse is the aggregate report for a section.
type SummaryResponse struct {
	SectionID      uint    `json:"section_id"`
	Module         string  `json:"module"`
	TotalQuestions int     `json:"total_questions"`
	CorrectAnswers int     `json:"correct_answers"`
	WrongAnswers   int     `json:"wrong_answers"`
	Percentage     int     `json:"percentage"`
	Status         string  `json:"status"`
	BandScore      float64 `json:"band_score"`
}

// HistoryEntry is one practice test in a user's history, newest first.
type HistoryEntry struct {
	ResultID     uint      `json:"result_id"`
	TestNumber   string    `json:"test_number"`
	SectionID    uint      `json:"section_id"`
	SectionTitle string    `json:"section_title"`
	Module       string    `json:"module"`
	TestDate     time.Time `json:"test_date"`
	SummaryResponse
}

// AnswerEvaluatedEvent is published after every persisted verdict.
type AnswerEvaluatedEvent struct {
	UserID      uint      `json:"user_id"`
	SectionID   uint      `json:"section_id"`
	QuestionID  uint      `json:"question_id"`
	Module      string    `json:"module"`
	Status      string    `json:"status"`
	IsCorrect   bool      `json:"is_correct"`
	FailureKind string    `json:"failure_kind,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// NewAnswerRecordResponse maps a stored record.
func NewAnswerRecordResponse(record models.AnswerRecord) AnswerRecordResponse {
	candidates := []string(record.Candidates)
	if candidates == nil {
		candidates = []string{}
	}

	return AnswerRecordResponse{
		QuestionID:           record.QuestionID,
		SubmittedText:        record.SubmittedText,
		ReferenceCandidates:  candidates,
		MatchMode:            record.MatchMode,
		SimilarityPercentage: record.SimilarityPercentage,
		IsCorrect:            record.IsCorrect,
		AudioRef:             record.AudioRef,
		Status:               record.Status,
		FailureKind:          record.FailureKind,
		ExaminerScore:        record.ExaminerScore,
		ExaminerFeedback:     record.ExaminerFeedback,
		UpdatedAt:            record.UpdatedAt,
	}
}

// NewSubmissionResultResponse maps a result and its ordered records.
func NewSubmissionResultResponse(result models.SubmissionResult) SubmissionResultResponse {
	records := make([]AnswerRecordResponse, 0, len(result.Records))
	for _, record := range result.Records {
		records = append(records, NewAnswerRecordResponse(record))
	}

	return SubmissionResultResponse{
		ID:        result.ID,
		UserID:    result.UserID,
		SectionID: result.SectionID,
		Module:    result.Module,
		Records:   records,
		CreatedAt: result.CreatedAt,
		UpdatedAt: result.UpdatedAt,
	}
}

// NewSummaryResponse maps an aggregate.
func NewSummaryResponse(sectionID uint, module string, summary grading.Summary) SummaryResponse {
	return SummaryResponse{
		SectionID:      sectionID,
		Module:         module,
		TotalQuestions: summary.TotalQuestions,
		CorrectAnswers: summary.CorrectAnswers,
		WrongAnswers:   summary.WrongAnswers,
		Percentage:     summary.Percentage,
		Status:         string(summary.Status),
		BandScore:      summary.BandScore,
	}
}
