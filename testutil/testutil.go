package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"polls-backend/database"
	"polls-backend/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates a fresh file-backed SQLite database with the schema migrated.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "polls.db")
	db, err := gorm.Open(sqlite.Open(database.SQLiteDSN(path)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// CreateQuestion creates a question published the given number of days
// offset from now (negative for the past, positive for the future).
func CreateQuestion(t *testing.T, db *gorm.DB, text string, days int, choices ...string) models.Question {
	t.Helper()
	return CreateQuestionAt(t, db, text, time.Now().AddDate(0, 0, days), choices...)
}

// CreateQuestionAt creates a question with an explicit publication date.
func CreateQuestionAt(t *testing.T, db *gorm.DB, text string, pubDate time.Time, choices ...string) models.Question {
	t.Helper()

	q := models.Question{QuestionText: text, PubDate: pubDate}
	for _, c := range choices {
		q.Choices = append(q.Choices, models.Choice{ChoiceText: c})
	}
	if err := db.Create(&q).Error; err != nil {
		t.Fatalf("Failed to create question: %v", err)
	}
	return q
}

// Votes reads the current vote count of a choice.
func Votes(t *testing.T, db *gorm.DB, choiceID uint) int64 {
	t.Helper()

	var c models.Choice
	if err := db.First(&c, choiceID).Error; err != nil {
		t.Fatalf("Failed to load choice %d: %v", choiceID, err)
	}
	return c.Votes
}

// FixedClock returns a clock function that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
