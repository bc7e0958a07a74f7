package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(UserLimit{}).TableName():           "user_limits",
		(GlobalLimit{}).TableName():         "global_limits",
		(FloodEvent{}).TableName():          "flood_events",
		(ConversationContext{}).TableName(): "conversation_contexts",
		(SendReceipt{}).TableName():         "send_receipts",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&UserLimit{}, &GlobalLimit{}, &FloodEvent{}, &ConversationContext{}, &SendReceipt{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&UserLimit{}, &GlobalLimit{}, &FloodEvent{}, &ConversationContext{}, &SendReceipt{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&SendReceipt{}, "ux_receipt_user_key") {
		t.Fatalf("expected unique index ux_receipt_user_key on send_receipts")
	}
	if !m.HasColumn(&UserLimit{}, "version") || !m.HasColumn(&GlobalLimit{}, "version") {
		t.Fatalf("expected version columns for optimistic locking")
	}
}

func TestSendReceipt_UniquePerUserKey(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&SendReceipt{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	exp := time.Now().Add(time.Hour)
	if err := db.Create(&SendReceipt{ID: "r1", UserID: "u1", Key: "k", ExpiresAt: exp}).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := db.Create(&SendReceipt{ID: "r2", UserID: "u1", Key: "k", ExpiresAt: exp}).Error; err == nil {
		t.Fatalf("expected unique violation for same (user, key)")
	}
	if err := db.Create(&SendReceipt{ID: "r3", UserID: "u2", Key: "k", ExpiresAt: exp}).Error; err != nil {
		t.Fatalf("other user same key should insert: %v", err)
	}
}

func TestIsBlocked(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	u := &UserLimit{}
	if u.IsBlocked(now) {
		t.Fatalf("nil BlockedUntil must not be blocked")
	}
	u.BlockedUntil = &future
	if !u.IsBlocked(now) {
		t.Fatalf("future BlockedUntil must be blocked")
	}
	u.BlockedUntil = &past
	if u.IsBlocked(now) {
		t.Fatalf("past BlockedUntil must not be blocked")
	}

	g := &GlobalLimit{BlockedUntil: &now}
	if g.IsBlocked(now) {
		t.Fatalf("BlockedUntil equal to now has expired")
	}
}

func TestConversationContext_JSONRoundTrip(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&ConversationContext{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	in := ConversationContext{
		UserID:     "u1",
		Stage:      "presentation",
		Slots:      datatypes.JSON(`{"client_name":{"value":"Ann"}}`),
		Extensions: datatypes.JSON(`{"introduced":true}`),
	}
	if err := db.Create(&in).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var out ConversationContext
	if err := db.First(&out, "user_id = ?", "u1").Error; err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Stage != "presentation" || string(out.Extensions) != `{"introduced":true}` {
		t.Fatalf("unexpected row: %+v", out)
	}
}
