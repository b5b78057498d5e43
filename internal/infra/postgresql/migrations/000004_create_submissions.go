package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/studentpen/pen-batch-engine/internal/repository"
	"gorm.io/gorm"
)

func createSubmissionsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_submissions",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.SubmissionModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_submissions_unextracted ON submissions (created_at) WHERE extracted_at IS NULL`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.SubmissionModel{})
		},
	}
}
