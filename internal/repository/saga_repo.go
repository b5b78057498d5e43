package repository

import (
	"context"
	"errors"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/domain"
	"gorm.io/gorm"
)

type SagaRepository interface {
	Create(ctx context.Context, s *domain.Saga, initial *domain.SagaEvent) error
	GetByID(ctx context.Context, id string) (*domain.Saga, error)
	Advance(ctx context.Context, s *domain.Saga, events ...*domain.SagaEvent) error
	IncrementRetry(ctx context.Context, id string) error
	FindStale(ctx context.Context, before time.Time, limit int) ([]domain.Saga, error)
	ListEvents(ctx context.Context, sagaID string) ([]domain.SagaEvent, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type GormSagaRepo struct {
	db *gorm.DB
}

func NewGormSagaRepo(db *gorm.DB) *GormSagaRepo {
	return &GormSagaRepo{db: db}
}

// Create persists a new saga together with its first audit event in one
// transaction.
func (r *GormSagaRepo) Create(ctx context.Context, s *domain.Saga, initial *domain.SagaEvent) error {
	sagaModel := sagaModelFromDomain(s)
	eventModel := sagaEventModelFromDomain(initial)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sagaModel).Error; err != nil {
			return err
		}
		if eventModel == nil {
			return nil
		}
		return tx.Create(eventModel).Error
	})
	if err != nil {
		return err
	}

	if s != nil {
		*s = *sagaModelToDomain(sagaModel)
	}
	return nil
}

func (r *GormSagaRepo) GetByID(ctx context.Context, id string) (*domain.Saga, error) {
	var model SagaModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sagaModelToDomain(&model), nil
}

// Advance persists the saga's new state, payload, retry counter, and status
// together with any audit events in one per-row transaction. The persisted
// row is the single source of truth for the saga's progress.
func (r *GormSagaRepo) Advance(ctx context.Context, s *domain.Saga, events ...*domain.SagaEvent) error {
	if s == nil {
		return domain.ErrValidation
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&SagaModel{}).
			Where("id = ?", s.ID).
			Updates(map[string]any{
				"state":       s.State,
				"payload":     []byte(s.Payload),
				"retry_count": s.RetryCount,
				"status":      s.Status,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}

		for _, event := range events {
			if event == nil {
				continue
			}
			if err := tx.Create(sagaEventModelFromDomain(event)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *GormSagaRepo) IncrementRetry(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&SagaModel{}).
		Where("id = ?", id).
		Update("retry_count", gorm.Expr("retry_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindStale returns in-progress sagas whose last persisted change is older
// than the staleness cutoff.
func (r *GormSagaRepo) FindStale(ctx context.Context, before time.Time, limit int) ([]domain.Saga, error) {
	if limit <= 0 {
		limit = 100
	}

	var models []SagaModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.SagaStatusInProgress, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	sagas := make([]domain.Saga, 0, len(models))
	for i := range models {
		sagas = append(sagas, *sagaModelToDomain(&models[i]))
	}
	return sagas, nil
}

func (r *GormSagaRepo) ListEvents(ctx context.Context, sagaID string) ([]domain.SagaEvent, error) {
	var models []SagaEventModel
	err := r.db.WithContext(ctx).
		Where("saga_id = ?", sagaID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	events := make([]domain.SagaEvent, 0, len(models))
	for i := range models {
		events = append(events, *sagaEventModelToDomain(&models[i]))
	}
	return events, nil
}

// Purge deletes terminal sagas and their events past the retention cutoff.
func (r *GormSagaRepo) Purge(ctx context.Context, before time.Time) (int64, error) {
	var purged int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&SagaModel{}).
			Where("status IN ? AND updated_at < ?",
				[]domain.SagaStatus{domain.SagaStatusCompleted, domain.SagaStatusFailed}, before).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("saga_id IN ?", ids).Delete(&SagaEventModel{}).Error; err != nil {
			return err
		}

		result := tx.Where("id IN ?", ids).Delete(&SagaModel{})
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
