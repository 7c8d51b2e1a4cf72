package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-assess-api/internal/models"
)

// SectionRepository reads assessment sections.
type SectionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Section, error)
	Create(ctx context.Context, section *models.Section) error
}

type sectionRepository struct {
	db *gorm.DB
}

// NewSectionRepository instantiates the repository.
func NewSectionRepository(db *gorm.DB) SectionRepository {
	return &sectionRepository{db: db}
}

func (r *sectionRepository) GetByID(ctx context.Context, id uint) (models.Section, error) {
	var section models.Section
	if err := r.db.WithContext(ctx).First(&section, id).Error; err != nil {
		return models.Section{}, err
	}

	return section, nil
}

func (r *sectionRepository) Create(ctx context.Context, section *models.Section) error {
	return r.db.WithContext(ctx).Create(section).Error
}
