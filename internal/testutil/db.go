// Package testutil provides a throwaway SQLite-backed GORM database for tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jimdaga/cost-model-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a file-backed SQLite database in a temp dir with the service
// schema migrated. The file is removed when the test ends.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "cms.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get underlying sql.DB: %v", err)
	}
	// A single writer connection keeps SQLite free of lock contention; the
	// pipeline never holds a transaction open while issuing other queries.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.PriceIndex{}, &models.Article{}, &models.CostModelEntry{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// SeedIndices inserts one price index row per name dated today and returns
// them in insertion order.
func SeedIndices(t *testing.T, db *gorm.DB, names ...string) []models.PriceIndex {
	t.Helper()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	rows := make([]models.PriceIndex, len(names))
	for i, name := range names {
		rows[i] = models.PriceIndex{Name: name, Date: today, Value: float64(100 * (i + 1)), Unit: "kg", PriceFactor: 1000}
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("failed to seed index %q: %v", name, err)
		}
	}
	return rows
}
