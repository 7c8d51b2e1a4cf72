package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-assess-api/internal/models"
)

// QuestionRepository reads questions and their reference answers.
type QuestionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Question, error)
	ListByIDs(ctx context.Context, ids []uint) (map[uint]models.Question, error)
	CountBySection(ctx context.Context, sectionID uint) (int64, error)
	Create(ctx context.Context, question *models.Question) error
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository instantiates the repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) GetByID(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).First(&question, id).Error; err != nil {
		return models.Question{}, err
	}

	return question, nil
}

func (r *questionRepository) ListByIDs(ctx context.Context, ids []uint) (map[uint]models.Question, error) {
	found := make(map[uint]models.Question, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	var questions []models.Question
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, err
	}

	for _, question := range questions {
		found[question.ID] = question
	}

	return found, nil
}

func (r *questionRepository) CountBySection(ctx context.Context, sectionID uint) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Question{}).Where("section_id = ?", sectionID).Count(&total).Error; err != nil {
		return 0, err
	}

	return total, nil
}

func (r *questionRepository) Create(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Create(question).Error
}
