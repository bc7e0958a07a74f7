// Package repo implements the Counter Store: durable per-user and account
// limiter rows, the flood event log, conversation contexts and send
// receipts, backed by GORM over SQLite (pure Go driver). This file contains
// bootstrapping helpers and schema migrations.
package repo

import (
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/tbourn/go-sales-guard/internal/domain"
)

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string, opts ...gorm.Option) (*gorm.DB, error) {
	// Fail early if the parent directory is missing instead of surfacing
	// sqlite's "out of memory (14)".
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	if len(opts) == 0 {
		opts = []gorm.Option{&gorm.Config{}}
	}
	db, err := gorm.Open(sqlite.Open(path), opts...)
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or updates every Counter Store table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.UserLimit{},
		&domain.GlobalLimit{},
		&domain.FloodEvent{},
		&domain.ConversationContext{},
		&domain.SendReceipt{},
	)
}
