package repository

import (
	"context"
	"errors"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/domain"
	"gorm.io/gorm"
)

type StudentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.BatchStudent, error)
	UpdateStatus(ctx context.Context, id string, status domain.StudentStatus) error
	SetAssignedPEN(ctx context.Context, id string, pen string, status domain.StudentStatus) error
	FindLoaded(ctx context.Context, limit int) ([]domain.BatchStudent, error)
	FindRepeatCandidates(ctx context.Context, mincode string, since time.Time, excludeBatchID string) ([]domain.BatchStudent, error)
	MarkRepeats(ctx context.Context, ids []string) error
	CreateValidationIssues(ctx context.Context, issues []*domain.ValidationIssue) error
}

type GormStudentRepo struct {
	db *gorm.DB
}

func NewGormStudentRepo(db *gorm.DB) *GormStudentRepo {
	return &GormStudentRepo{db: db}
}

func (r *GormStudentRepo) GetByID(ctx context.Context, id string) (*domain.BatchStudent, error) {
	var model BatchStudentModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return studentModelToDomain(&model), nil
}

func (r *GormStudentRepo) UpdateStatus(ctx context.Context, id string, status domain.StudentStatus) error {
	result := r.db.WithContext(ctx).
		Model(&BatchStudentModel{}).
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

func (r *GormStudentRepo) SetAssignedPEN(ctx context.Context, id string, pen string, status domain.StudentStatus) error {
	result := r.db.WithContext(ctx).
		Model(&BatchStudentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"assigned_pen": pen,
			"status":       status,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindLoaded returns students still awaiting saga processing, restricted to
// batches in LOADED status so held or failed files never feed the
// orchestrator. Students with a saga already created are excluded so
// repeated scans never start a second workflow for the same row.
func (r *GormStudentRepo) FindLoaded(ctx context.Context, limit int) ([]domain.BatchStudent, error) {
	if limit <= 0 {
		limit = 100
	}

	var models []BatchStudentModel
	err := r.db.WithContext(ctx).
		Joins("JOIN batches ON batches.id = batch_students.batch_id").
		Where("batch_students.status = ? AND batches.status = ? AND batches.soft_deleted = false",
			domain.StudentStatusLoaded, domain.BatchStatusLoaded).
		Where("NOT EXISTS (SELECT 1 FROM sagas s WHERE s.batch_student_id = batch_students.id)").
		Order("batch_students.created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	students := make([]domain.BatchStudent, 0, len(models))
	for i := range models {
		students = append(students, *studentModelToDomain(&models[i]))
	}
	return students, nil
}

// FindRepeatCandidates returns students from the same submitter's earlier
// batches inside the repeat window, skipping rows already marked REPEAT or
// ERROR. The window is inclusive of now, exclusive of its start.
func (r *GormStudentRepo) FindRepeatCandidates(ctx context.Context, mincode string, since time.Time, excludeBatchID string) ([]domain.BatchStudent, error) {
	var models []BatchStudentModel
	err := r.db.WithContext(ctx).
		Joins("JOIN batches ON batches.id = batch_students.batch_id").
		Where("batches.mincode = ? AND batches.id <> ? AND batches.created_at > ? AND batches.soft_deleted = false",
			mincode, excludeBatchID, since).
		Where("batch_students.status NOT IN ?",
			[]domain.StudentStatus{domain.StudentStatusRepeat, domain.StudentStatusError}).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	students := make([]domain.BatchStudent, 0, len(models))
	for i := range models {
		students = append(students, *studentModelToDomain(&models[i]))
	}
	return students, nil
}

func (r *GormStudentRepo) MarkRepeats(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Model(&BatchStudentModel{}).
		Where("id IN ?", ids).
		Update("status", domain.StudentStatusRepeat).Error
}

func (r *GormStudentRepo) CreateValidationIssues(ctx context.Context, issues []*domain.ValidationIssue) error {
	if len(issues) == 0 {
		return nil
	}

	models := make([]ValidationIssueModel, 0, len(issues))
	for _, issue := range issues {
		if model := issueModelFromDomain(issue); model != nil {
			models = append(models, *model)
		}
	}

	return r.db.WithContext(ctx).CreateInBatches(&models, 100).Error
}
