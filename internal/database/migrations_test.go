package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/juris/backend/internal/cases"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/movements"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func pointerToMilli(value int64) *int64 {
	return &value
}

func TestApplyMigrationsBackfillsLastSyncedAt(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&cases.Case{}, &movements.SyncLogEntry{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	records := []cases.Case{
		{ID: "case-synced", CreatedAtMilli: 1},
		{ID: "case-failed-only", CreatedAtMilli: 1},
		{ID: "case-already-stamped", CreatedAtMilli: 1, LastSyncedAtMilli: pointerToMilli(9000)},
	}
	if err := database.Create(&records).Error; err != nil {
		testContext.Fatalf("failed to insert cases: %v", err)
	}

	logs := []movements.SyncLogEntry{
		{ID: "log-1", CaseID: stringPointer("case-synced"), Status: movements.StatusSuccess, CreatedAtMilli: 1000},
		{ID: "log-2", CaseID: stringPointer("case-synced"), Status: movements.StatusSuccess, CreatedAtMilli: 3000},
		{ID: "log-3", CaseID: stringPointer("case-synced"), Status: movements.StatusError, CreatedAtMilli: 5000},
		{ID: "log-4", CaseID: stringPointer("case-failed-only"), Status: movements.StatusError, CreatedAtMilli: 2000},
		{ID: "log-5", CaseID: stringPointer("case-already-stamped"), Status: movements.StatusSuccess, CreatedAtMilli: 4000},
	}
	if err := database.Create(&logs).Error; err != nil {
		testContext.Fatalf("failed to insert sync logs: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	expectations := map[string]*int64{
		"case-synced":          pointerToMilli(3000),
		"case-failed-only":     nil,
		"case-already-stamped": pointerToMilli(9000),
	}
	for id, want := range expectations {
		var stored cases.Case
		if err := database.Where("id = ?", id).Take(&stored).Error; err != nil {
			testContext.Fatalf("failed to reload %s: %v", id, err)
		}
		switch {
		case want == nil && stored.LastSyncedAtMilli != nil:
			testContext.Fatalf("%s: expected no sync time, got %d", id, *stored.LastSyncedAtMilli)
		case want != nil && (stored.LastSyncedAtMilli == nil || *stored.LastSyncedAtMilli != *want):
			testContext.Fatalf("%s: expected sync time %d, got %v", id, *want, stored.LastSyncedAtMilli)
		}
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillLastSyncedAt).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("re-applying migrations must be a no-op: %v", err)
	}
}

func TestOpenSQLiteCreatesSchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "juris.db")
	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	for _, table := range []string{"cases", "process_snapshots", "process_sync_logs", "db_migrations"} {
		if !database.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s", table)
		}
	}
	if _, err := OpenSQLite("", nil); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}

func stringPointer(value string) *string {
	return &value
}
