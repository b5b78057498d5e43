package repository

import (
	"context"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/domain"
	"gorm.io/gorm"
)

type SubmissionRepository interface {
	FindUnextracted(ctx context.Context, limit int) ([]domain.Submission, error)
	MarkExtracted(ctx context.Context, id string, at time.Time) (bool, error)
}

type GormSubmissionRepo struct {
	db *gorm.DB
}

func NewGormSubmissionRepo(db *gorm.DB) *GormSubmissionRepo {
	return &GormSubmissionRepo{db: db}
}

func (r *GormSubmissionRepo) FindUnextracted(ctx context.Context, limit int) ([]domain.Submission, error) {
	if limit <= 0 {
		limit = 20
	}

	var models []SubmissionModel
	err := r.db.WithContext(ctx).
		Where("extracted_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	submissions := make([]domain.Submission, 0, len(models))
	for i := range models {
		submissions = append(submissions, *submissionModelToDomain(&models[i]))
	}
	return submissions, nil
}

// MarkExtracted stamps the extract timestamp on pickup. The conditional
// update makes pickup race-safe: only one caller sees true for a given row.
func (r *GormSubmissionRepo) MarkExtracted(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&SubmissionModel{}).
		Where("id = ? AND extracted_at IS NULL", id).
		Update("extracted_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
