package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/studentpen/pen-batch-engine/internal/repository"
	"gorm.io/gorm"
)

func createBatchStudentsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_batch_students",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.BatchStudentModel{}); err != nil {
				return err
			}
			if err := tx.AutoMigrate(&repository.ValidationIssueModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_batch_students_batch_id ON batch_students (batch_id)`,
				`CREATE INDEX IF NOT EXISTS idx_batch_students_status ON batch_students (status)`,
				`CREATE INDEX IF NOT EXISTS idx_batch_students_identity ON batch_students (legal_surname, legal_given_name, dob, local_id)`,
				`CREATE INDEX IF NOT EXISTS idx_validation_issues_student ON validation_issues (batch_student_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			if err := tx.Migrator().DropTable(&repository.ValidationIssueModel{}); err != nil {
				return err
			}
			return tx.Migrator().DropTable(&repository.BatchStudentModel{})
		},
	}
}
