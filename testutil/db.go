package testutil

import (
	"testing"

	"lub-reward-system/config"
	"lub-reward-system/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB opens an in-memory SQLite database and migrates every table.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	if err := db.AutoMigrate(
		&models.ActorRecord{},
		&models.ActivityEvent{},
		&models.CommunityReport{},
		&models.Challenge{},
		&models.ChallengeResult{},
		&models.ViralDetection{},
		&models.ProfileMirror{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	return db
}

// DefaultSettings loads the built-in engine defaults.
func DefaultSettings(t *testing.T) *config.EngineSettings {
	t.Helper()
	s, err := config.LoadEngineSettings("")
	if err != nil {
		t.Fatalf("load engine settings: %v", err)
	}
	return s
}
