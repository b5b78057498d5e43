package repository

import (
	"context"
	"errors"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/domain"
	"gorm.io/gorm"
)

type BatchRepository interface {
	CreateWithStudents(ctx context.Context, b *domain.Batch, students []*domain.BatchStudent) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	UpdateStatus(ctx context.Context, id string, status domain.BatchStatus) error
	UpdateStatusWithReason(ctx context.Context, id string, status domain.BatchStatus, reasonCode string, reason string) error
	HasChecksumMatch(ctx context.Context, mincode string, checksum string, since time.Time, excludeSubmissionNumber string) (bool, error)
	FindArchivable(ctx context.Context, limit int) ([]domain.Batch, error)
	PurgeSoftDeleted(ctx context.Context, before time.Time) (int64, error)
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

// CreateWithStudents persists the batch and all of its student rows in one
// transaction so an accepted file is never half-loaded.
func (r *GormBatchRepo) CreateWithStudents(ctx context.Context, b *domain.Batch, students []*domain.BatchStudent) error {
	batchModel := batchModelFromDomain(b)

	studentModels := make([]BatchStudentModel, 0, len(students))
	for _, s := range students {
		if model := studentModelFromDomain(s); model != nil {
			studentModels = append(studentModels, *model)
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batchModel).Error; err != nil {
			return err
		}
		if len(studentModels) == 0 {
			return nil
		}
		return tx.CreateInBatches(&studentModels, 100).Error
	})
	if err != nil {
		return err
	}

	if b != nil {
		*b = *batchModelToDomain(batchModel)
	}
	for i := range studentModels {
		if i < len(students) && students[i] != nil {
			*students[i] = *studentModelToDomain(&studentModels[i])
		}
	}

	return nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model), nil
}

func (r *GormBatchRepo) UpdateStatus(ctx context.Context, id string, status domain.BatchStatus) error {
	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormBatchRepo) UpdateStatusWithReason(ctx context.Context, id string, status domain.BatchStatus, reasonCode string, reason string) error {
	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":           status,
			"fail_reason_code": reasonCode,
			"fail_reason":      reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// HasChecksumMatch reports whether another batch from the same submitter
// carries identical file content inside the window. The window is inclusive
// of now and exclusive of its start; the same submission number never
// matches itself.
func (r *GormBatchRepo) HasChecksumMatch(ctx context.Context, mincode string, checksum string, since time.Time, excludeSubmissionNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("mincode = ? AND file_checksum = ? AND created_at > ? AND submission_number <> ? AND soft_deleted = false",
			mincode, checksum, since, excludeSubmissionNumber).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindArchivable returns loaded batches with no student row left in a
// non-terminal status.
func (r *GormBatchRepo) FindArchivable(ctx context.Context, limit int) ([]domain.Batch, error) {
	if limit <= 0 {
		limit = 100
	}

	var models []BatchModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND soft_deleted = false", domain.BatchStatusLoaded).
		Where("NOT EXISTS (SELECT 1 FROM batch_students bs WHERE bs.batch_id = batches.id AND bs.status IN ?)",
			[]domain.StudentStatus{domain.StudentStatusLoaded, domain.StudentStatusError, domain.StudentStatusFixable}).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	batches := make([]domain.Batch, 0, len(models))
	for i := range models {
		batches = append(batches, *batchModelToDomain(&models[i]))
	}
	return batches, nil
}

// PurgeSoftDeleted hard-deletes soft-deleted batches (and their students and
// issues) older than the retention cutoff.
func (r *GormBatchRepo) PurgeSoftDeleted(ctx context.Context, before time.Time) (int64, error) {
	var purged int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&BatchModel{}).
			Where("soft_deleted = true AND updated_at < ?", before).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.
			Where("batch_student_id IN (SELECT id FROM batch_students WHERE batch_id IN ?)", ids).
			Delete(&ValidationIssueModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("batch_id IN ?", ids).Delete(&BatchStudentModel{}).Error; err != nil {
			return err
		}

		result := tx.Where("id IN ?", ids).Delete(&BatchModel{})
		if result.Error != nil {
			return result.Error
		}
		purged = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	return purged, nil
}
