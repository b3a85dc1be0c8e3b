package notes

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:notes_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func mustQuestion(t *testing.T, db *gorm.DB, id, owner string) Note {
	t.Helper()
	question := Note{ID: id, Text: "why?", UserID: owner, CategoryID: "cat-self", CreatedAt: testNow, UpdatedAt: testNow}
	if err := InsertQuestion(db, &question); err != nil {
		t.Fatalf("failed to insert question: %v", err)
	}
	return question
}

func mustAnswer(t *testing.T, db *gorm.DB, id, questionID, owner string) Note {
	t.Helper()
	answer := Note{ID: id, Text: "because", UserID: owner, CategoryID: "cat-self", ParentID: questionID, CreatedAt: testNow, UpdatedAt: testNow}
	if err := InsertAnswer(db, &answer); err != nil {
		t.Fatalf("failed to insert answer: %v", err)
	}
	return answer
}

func mustLoad(t *testing.T, db *gorm.DB, id string) Note {
	t.Helper()
	note, err := Load(db, id)
	if err != nil {
		t.Fatalf("failed to load %s: %v", id, err)
	}
	return note
}
