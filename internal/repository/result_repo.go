package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-assess-api/internal/models"
)

// recordUpdateColumns are overwritten when a question is answered again.
var recordUpdateColumns = []string{
	"submitted_text",
	"candidates",
	"match_mode",
	"similarity_percentage",
	"is_correct",
	"audio_ref",
	"status",
	"failure_kind",
	"examiner_score",
	"examiner_feedback",
	"updated_at",
}

// ResultFilter narrows history queries.
type ResultFilter struct {
	UserID uint
	Module string
}

// ResultRepository persists SubmissionResults and their AnswerRecords. All
// record writes are single-statement upserts keyed on (result_id, question_id).
type ResultRepository interface {
	Ensure(ctx context.Context, userID, sectionID uint, module string) (models.SubmissionResult, bool, error)
	GetByUserAndSection(ctx context.Context, userID, sectionID uint) (models.SubmissionResult, error)
	List(ctx context.Context, filter ResultFilter) ([]models.SubmissionResult, error)
	UpsertRecord(ctx context.Context, record *models.AnswerRecord) error
	UpsertRecords(ctx context.Context, records []models.AnswerRecord) ([]models.AnswerRecord, error)
	MarkFailed(ctx context.Context, resultID, questionID uint, failureKind string) (bool, error)
}

type resultRepository struct {
	db *gorm.DB
}

// NewResultRepository instantiates the repository.
func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{db: db}
}

// Ensure fetches the result for (userID, sectionID), inserting it first when
// absent. The insert ignores conflicts, so concurrent callers converge on one row.
func (r *resultRepository) Ensure(ctx context.Context, userID, sectionID uint, module string) (models.SubmissionResult, bool, error) {
	candidate := models.SubmissionResult{UserID: userID, SectionID: sectionID, Module: module}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "section_id"}},
		DoNothing: true,
	}).Create(&candidate)
	if tx.Error != nil {
		return models.SubmissionResult{}, false, tx.Error
	}

	var result models.SubmissionResult
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND section_id = ?", userID, sectionID).
		First(&result).Error; err != nil {
		return models.SubmissionResult{}, false, err
	}

	return result, tx.RowsAffected == 1, nil
}

func (r *resultRepository) GetByUserAndSection(ctx context.Context, userID, sectionID uint) (models.SubmissionResult, error) {
	var result models.SubmissionResult
	if err := r.db.WithContext(ctx).
		Preload("Records", func(db *gorm.DB) *gorm.DB { return db.Order("answer_records.id ASC") }).
		Where("user_id = ? AND section_id = ?", userID, sectionID).
		First(&result).Error; err != nil {
		return models.SubmissionResult{}, err
	}

	return result, nil
}

func (r *resultRepository) List(ctx context.Context, filter ResultFilter) ([]models.SubmissionResult, error) {
	query := r.db.WithContext(ctx).
		Preload("Section").
		Preload("Records", func(db *gorm.DB) *gorm.DB { return db.Order("answer_records.id ASC") }).
		Where("user_id = ?", filter.UserID)

	if filter.Module != "" {
		query = query.Where("module = ?", filter.Module)
	}

	var results []models.SubmissionResult
	if err := query.Order("created_at DESC").Order("id DESC").Find(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}

// UpsertRecord replaces the record for (ResultID, QuestionID) in place or
// appends it. record is reloaded with the stored row.
func (r *resultRepository) UpsertRecord(ctx context.Context, record *models.AnswerRecord) error {
	if record.ResultID == 0 || record.QuestionID == 0 {
		return errors.New("record requires result and question ids")
	}

	record.ID = 0
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "result_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns(recordUpdateColumns),
	}).Create(record).Error; err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Where("result_id = ? AND question_id = ?", record.ResultID, record.QuestionID).
		First(record).Error
}

// UpsertRecords writes many records in one statement. Callers must not pass
// two records for the same question.
func (r *resultRepository) UpsertRecords(ctx context.Context, records []models.AnswerRecord) ([]models.AnswerRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	resultID := records[0].ResultID
	questionIDs := make([]uint, 0, len(records))
	for i := range records {
		if records[i].ResultID != resultID {
			return nil, errors.New("records must belong to one result")
		}
		records[i].ID = 0
		questionIDs = append(questionIDs, records[i].QuestionID)
	}

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "result_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns(recordUpdateColumns),
	}).Create(&records).Error; err != nil {
		return nil, err
	}

	var stored []models.AnswerRecord
	if err := r.db.WithContext(ctx).
		Where("result_id = ? AND question_id IN ?", resultID, questionIDs).
		Order("id ASC").
		Find(&stored).Error; err != nil {
		return nil, err
	}

	return stored, nil
}

// MarkFailed moves a processing record to failed. It reports false when the
// record is gone or no longer processing, i.e. a later write superseded it.
func (r *resultRepository) MarkFailed(ctx context.Context, resultID, questionID uint, failureKind string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.AnswerRecord{}).
		Where("result_id = ? AND question_id = ? AND status = ?", resultID, questionID, models.RecordStatusProcessing).
		Updates(map[string]interface{}{"status": models.RecordStatusFailed, "failure_kind": failureKind})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}
