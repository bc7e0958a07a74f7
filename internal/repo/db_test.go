package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-sales-guard/internal/domain"
)

// newTestDB opens a private in-memory database and migrates the given
// models. With no models nothing is migrated.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func newMigratedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "guard.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func openFile(t *testing.T, path string) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(path, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestOpenSQLite_Pragmas(t *testing.T) {
	db := openFile(t, filepath.Join(t.TempDir(), "guard.db"))

	want := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"busy_timeout": "5000",
		"foreign_keys": "1",
	}
	for name, v := range want {
		var got string
		if err := db.Raw("PRAGMA " + name + ";").Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", name, err)
		}
		if strings.ToLower(got) != v {
			t.Fatalf("PRAGMA %s = %q, want %q", name, got, v)
		}
	}
	sqlDB, _ := db.DB()
	if n := sqlDB.Stats().MaxOpenConnections; n != 10 {
		t.Fatalf("MaxOpenConnections = %d, want 10", n)
	}
}

func TestAutoMigrate_CreatesTablesAndSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.db")
	db := openFile(t, path)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&domain.UserLimit{}, &domain.GlobalLimit{}, &domain.FloodEvent{}, &domain.ConversationContext{}, &domain.SendReceipt{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasColumn(&domain.UserLimit{}, "version") || !m.HasColumn(&domain.GlobalLimit{}, "version") {
		t.Fatalf("limiter rows must carry a version column")
	}

	ctx := context.Background()
	if _, err := EnsureUserLimit(ctx, db, "u1", time.Now()); err != nil {
		t.Fatalf("EnsureUserLimit: %v", err)
	}
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	again := openFile(t, path)
	if err := AutoMigrate(again); err != nil {
		t.Fatalf("AutoMigrate on existing schema: %v", err)
	}
	if _, err := GetUserLimit(ctx, again, "u1"); err != nil {
		t.Fatalf("row lost across reopen: %v", err)
	}
}
