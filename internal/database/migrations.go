package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/juris/backend/internal/movements"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillLastSyncedAt = "2024-06-01_backfill_case_last_synced_at"

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
		{name: migrationBackfillLastSyncedAt, apply: backfillLastSyncedAt},
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
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillLastSyncedAt stamps cases that were synchronized before the
// projection columns existed with the time of their newest successful sync.
func backfillLastSyncedAt(db *gorm.DB) error {
	const newestSuccess = "SELECT MAX(created_at_ms) FROM process_sync_logs WHERE process_sync_logs.case_id = cases.id AND process_sync_logs.status = ?"
	return db.Exec(
		"UPDATE cases SET last_synced_at_ms = ("+newestSuccess+") WHERE last_synced_at_ms IS NULL AND ("+newestSuccess+") IS NOT NULL",
		string(movements.StatusSuccess), string(movements.StatusSuccess),
	).Error
}
