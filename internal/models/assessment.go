package models

import (
	"time"

	"gorm.io/datatypes"
)

// Assessment modules.
const (
	ModuleReading   = "reading"
	ModuleListening = "listening"
	ModuleWriting   = "writing"
	ModuleSpeaking  = "speaking"
)

// Section groups the questions of one practice test part.
type Section struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Module    string     `gorm:"size:32;not null;index" json:"module"`
	Title     string     `gorm:"size:255;not null" json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Questions []Question `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions,omitempty"`
}

// Question owns the reference answer. Answer keeps whatever JSON shape the
// author stored: a string, a list, or a string holding an encoded list.
type Question struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	SectionID uint           `gorm:"not null;index" json:"section_id"`
	Type      string         `gorm:"size:32;not null" json:"type"`
	Prompt    string         `gorm:"type:text" json:"prompt"`
	Answer    datatypes.JSON `json:"answer"`
	Position  int            `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SubmissionResult is one user's attempt at one section.
type SubmissionResult struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;uniqueIndex:idx_result_user_section" json:"user_id"`
	SectionID uint           `gorm:"not null;uniqueIndex:idx_result_user_section" json:"section_id"`
	Module    string         `gorm:"size:32;not null;index" json:"module"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Section   Section        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Records   []AnswerRecord `gorm:"foreignKey:ResultID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"records,omitempty"`
}

// Answer record statuses.
const (
	RecordStatusProcessing = "processing"
	RecordStatusScored     = "scored"
	RecordStatusFailed     = "failed"
)

// AnswerRecord is the verdict for one question inside a SubmissionResult.
// Records are ordered by ID; a resubmission updates the row in place.
type AnswerRecord struct {
	ID                   uint                        `gorm:"primaryKey" json:"id"`
	ResultID             uint                        `gorm:"not null;uniqueIndex:idx_record_result_question" json:"result_id"`
	QuestionID           uint                        `gorm:"not null;uniqueIndex:idx_record_result_question" json:"question_id"`
	SubmittedText        string                      `gorm:"type:text" json:"submitted_text"`
	Candidates           datatypes.JSONSlice[string] `json:"candidates"`
	MatchMode            string                      `gorm:"size:16" json:"match_mode"`
	SimilarityPercentage *int                        `json:"similarity_percentage"`
	IsCorrect            bool                        `gorm:"not null" json:"is_correct"`
	AudioRef             string                      `gorm:"size:512" json:"audio_ref,omitempty"`
	Status               string                      `gorm:"size:16;not null" json:"status"`
	FailureKind          string                      `gorm:"size:32" json:"failure_kind,omitempty"`
	ExaminerScore        *int                        `json:"examiner_score"`
	ExaminerFeedback     string                      `gorm:"type:text" json:"examiner_feedback,omitempty"`
	CreatedAt            time.Time                   `json:"created_at"`
	UpdatedAt            time.Time                   `json:"updated_at"`
}

// IsScored reports whether the record carries a verdict.
func (r AnswerRecord) IsScored() bool {
	return r.Status == RecordStatusScored
}

// AssessmentModels lists the tables to migrate.
func AssessmentModels() []interface{} {
	return []interface{}{&Section{}, &Question{}, &SubmissionResult{}, &AnswerRecord{}}
}
