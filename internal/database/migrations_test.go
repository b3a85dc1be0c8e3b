package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/notes"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsRepairsNoteState(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	models := append([]any{}, notes.Models()...)
	models = append(models, &ledger.ActionProofRecord{}, &migrationRecord{})
	if err := database.AutoMigrate(models...); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	deletedAt := now.Add(time.Minute)
	rows := []notes.Note{
		{ID: "q-1", Type: notes.NoteTypeQuestion, Text: "why?", UserID: "0xabcdef", CategoryID: "cat", AcceptedAnswerID: "a-2", AnswersNum: 9, LikeCount: 4, ViewCount: 7, CreatedAt: now, UpdatedAt: now},
		{ID: "a-1", Type: notes.NoteTypeAnswer, Text: "because", UserID: "0xabc", CategoryID: "cat", ParentID: "q-1", CreatedAt: now, UpdatedAt: now},
		{ID: "a-2", Type: notes.NoteTypeAnswer, Text: "gone", UserID: "0xabc", CategoryID: "cat", ParentID: "q-1", CreatedAt: now, UpdatedAt: now, DeletedAt: &deletedAt},
	}
	for index := range rows {
		if err := database.Create(&rows[index]).Error; err != nil {
			testContext.Fatalf("failed to insert note %s: %v", rows[index].ID, err)
		}
	}
	if err := database.Create(&notes.NoteLike{NoteID: "q-1", UserID: "0xabc", CreatedAt: now}).Error; err != nil {
		testContext.Fatalf("failed to insert like: %v", err)
	}
	views := []any{
		&notes.NoteView{NoteID: "q-1", UserID: "0xabc", DayBucket: "2025-01-01", CreatedAt: now},
		&notes.NoteView{NoteID: "q-1", UserID: "0xabc", DayBucket: "2025-01-02", CreatedAt: now},
		&notes.NoteUniqueView{NoteID: "a-1", UserID: "0xdef", CreatedAt: now},
	}
	for _, view := range views {
		if err := database.Create(view).Error; err != nil {
			testContext.Fatalf("failed to insert view: %v", err)
		}
	}
	proof := ledger.ActionProofRecord{ID: "proof-1", Action: "like-note", Nullifier: "0xNullifier", Signal: "q-1:g0", UserID: "0xABCDEF", CreatedAt: now}
	if err := database.Create(&proof).Error; err != nil {
		testContext.Fatalf("failed to insert proof: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var question notes.Note
	if err := database.Where("id = ?", "q-1").Take(&question).Error; err != nil {
		testContext.Fatalf("failed to reload question: %v", err)
	}
	if question.AnswersNum != 1 || question.LikeCount != 1 || question.ViewCount != 2 {
		testContext.Fatalf("expected recomputed counters, got answers=%d likes=%d views=%d", question.AnswersNum, question.LikeCount, question.ViewCount)
	}
	var answer notes.Note
	if err := database.Where("id = ?", "a-1").Take(&answer).Error; err != nil {
		testContext.Fatalf("failed to reload answer: %v", err)
	}
	if answer.ViewCount != 1 {
		testContext.Fatalf("expected unique view count 1, got %d", answer.ViewCount)
	}
	if question.AcceptedAnswerID != "" {
		testContext.Fatalf("expected accepted pointer to a deleted answer to be cleared, got %q", question.AcceptedAnswerID)
	}

	var storedProof ledger.ActionProofRecord
	if err := database.Where("id = ?", "proof-1").Take(&storedProof).Error; err != nil {
		testContext.Fatalf("failed to reload proof: %v", err)
	}
	if storedProof.UserID != "0xABCDEF" || storedProof.Nullifier != "0xNullifier" {
		testContext.Fatalf("expected proof ledger rows to stay untouched, got %+v", storedProof)
	}

	var records []migrationRecord
	if err := database.Find(&records).Error; err != nil {
		testContext.Fatalf("failed to list migration records: %v", err)
	}
	if len(records) != 2 {
		testContext.Fatalf("expected two migration records, got %d", len(records))
	}
	for _, record := range records {
		if record.AppliedAtSeconds == 0 {
			testContext.Fatalf("expected migration timestamp to be set for %s", record.Name)
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("expected reapplying migrations to be a no-op: %v", err)
	}
}

func TestOpenSQLiteIsRepeatable(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "humanqa.db")
	config := Config{Driver: "SQLite", DSN: databasePath, Logger: zap.NewNop()}

	first, err := Open(config)
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	firstSQL, err := first.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	if stats := firstSQL.Stats(); stats.MaxOpenConnections != 1 {
		testContext.Fatalf("expected a single sqlite connection, got %d", stats.MaxOpenConnections)
	}
	if err := firstSQL.Close(); err != nil {
		testContext.Fatalf("failed to close database: %v", err)
	}

	second, err := Open(config)
	if err != nil {
		testContext.Fatalf("failed to reopen database: %v", err)
	}
	for _, table := range []string{"notes", "note_likes", "action_proofs", "wallet_users", "db_migrations"} {
		if !second.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s to exist", table)
		}
	}
}

func TestConnectRejectsInvalidConfig(testContext *testing.T) {
	testCases := []struct {
		name   string
		config Config
	}{
		{name: "missing-dsn", config: Config{Driver: DriverSQLite, DSN: " "}},
		{name: "unknown-driver", config: Config{Driver: "mysql", DSN: "root@/humanqa"}},
	}
	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(t *testing.T) {
			if _, err := Connect(testCase.config); err == nil {
				t.Fatalf("expected connect to fail")
			}
		})
	}
}
