package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// testDirs maps each open test connection to its temp dir.
var testDirs sync.Map

// SetupTestDB creates a throwaway file-backed SQLite database for testing.
// WAL mode lets catalog reads proceed while a cart transaction is open, and
// immediate transactions make concurrent writers queue on the busy timeout.
func SetupTestDB() (*gorm.DB, error) {
	dir, err := os.MkdirTemp("", "kartshart-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create test database dir: %w", err)
	}
	dsn := filepath.Join(dir, "test.db") + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		testDirs.Store(sqlDB, dir)
	}
	return db, nil
}

// CleanupTestDB closes the test database and removes its files.
func CleanupTestDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get DB instance: %v", err)
		return
	}
	sqlDB.Close()
	removeTestDir(sqlDB)
}

func removeTestDir(sqlDB *sql.DB) {
	if dir, ok := testDirs.LoadAndDelete(sqlDB); ok {
		os.RemoveAll(dir.(string))
	}
}

// TruncateAllTables removes all data from tables
func TruncateAllTables(db *gorm.DB) error {
	tables := []string{"cart_item_variations", "cart_items", "carts", "variations", "products"}
	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
			return err
		}
	}
	return nil
}
