package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationRecomputeNoteCounters = "2025-02-01_recompute_note_counters"
	migrationRepairAcceptedAnswers = "2025-02-01_repair_accepted_answers"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRecomputeNoteCounters, apply: recomputeNoteCounters},
		{name: migrationRepairAcceptedAnswers, apply: repairAcceptedAnswers},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// view_count sums both view tables; a deployment only ever writes one of them.
func recomputeNoteCounters(db *gorm.DB) error {
	statements := []string{
		"UPDATE notes SET like_count = (SELECT COUNT(*) FROM note_likes WHERE note_likes.note_id = notes.id)",
		"UPDATE notes SET view_count = (SELECT COUNT(*) FROM note_views WHERE note_views.note_id = notes.id) + (SELECT COUNT(*) FROM note_unique_views WHERE note_unique_views.note_id = notes.id)",
		"UPDATE notes SET answers_num = (SELECT COUNT(*) FROM notes AS answers WHERE answers.parent_id = notes.id AND answers.type = 'ANSWER' AND answers.deleted_at IS NULL) WHERE type = 'QUESTION'",
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}

func repairAcceptedAnswers(db *gorm.DB) error {
	return db.Exec(`UPDATE notes SET accepted_answer_id = ''
WHERE type = 'QUESTION' AND accepted_answer_id <> ''
AND (deleted_at IS NOT NULL OR NOT EXISTS (
  SELECT 1 FROM notes AS answers
  WHERE answers.id = notes.accepted_answer_id
  AND answers.parent_id = notes.id
  AND answers.type = 'ANSWER'
  AND answers.deleted_at IS NULL))`).Error
}
