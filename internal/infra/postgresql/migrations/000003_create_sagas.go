package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/studentpen/pen-batch-engine/internal/repository"
	"gorm.io/gorm"
)

func createSagaTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_sagas",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.SagaModel{}); err != nil {
				return err
			}
			if err := tx.AutoMigrate(&repository.SagaEventModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_sagas_status_updated ON sagas (status, updated_at)`,
				`CREATE INDEX IF NOT EXISTS idx_saga_events_saga_id ON saga_events (saga_id, created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			if err := tx.Migrator().DropTable(&repository.SagaEventModel{}); err != nil {
				return err
			}
			return tx.Migrator().DropTable(&repository.SagaModel{})
		},
	}
}
