package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/studentpen/pen-batch-engine/internal/repository"
	"gorm.io/gorm"
)

func createBatchesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_batches",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.BatchModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_batches_mincode_created ON batches (mincode, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_batches_status ON batches (status)`,
				`CREATE INDEX IF NOT EXISTS idx_batches_checksum ON batches (mincode, file_checksum)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.BatchModel{})
		},
	}
}
