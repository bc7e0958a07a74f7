package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-sales-guard/internal/events"
)

func TestUserLimiter_FivePerMinuteScenario(t *testing.T) {
	db := newSvcDB(t)
	clk := newClock()
	s := newUsers(t, db, clk, userCfg())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := s.CheckAndRecord(ctx, "u1", fmt.Sprintf("m%d", i), 0)
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("message %d rejected: %+v", i, d)
		}
		clk.Add(time.Second)
	}

	d, err := s.CheckAndRecord(ctx, "u1", "m5", 0)
	if err != nil {
		t.Fatalf("sixth: %v", err)
	}
	if d.Allowed || d.Code != CodeMinuteLimit || d.Scope != ScopeUser {
		t.Fatalf("sixth decision = %+v", d)
	}
	if !strings.Contains(d.Reason, "per minute") {
		t.Fatalf("reason = %q", d.Reason)
	}

	u, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.BlockedUntil == nil || !u.BlockedUntil.After(clk.Now()) {
		t.Fatalf("blocked_until should be in the future, got %v", u.BlockedUntil)
	}
	if u.CountMinute != 0 || u.CountHour != 0 || u.RepeatedCount != 0 {
		t.Fatalf("block should zero counters: %+v", u)
	}

	blocked, reason, err := s.IsBlocked(ctx, "u1")
	if err != nil || !blocked || !strings.Contains(reason, "10 minutes") {
		t.Fatalf("IsBlocked = %v %q %v", blocked, reason, err)
	}
}

func TestUserLimiter_LengthBoundsDoNotCount(t *testing.T) {
	db := newSvcDB(t)
	clk := newClock()
	s := newUsers(t, db, clk, userCfg())
	ctx := context.Background()

	cases := map[string]string{
		CodeTooShort: "a",
		CodeTooLong:  strings.Repeat("x", 21),
	}
	for code, content := range cases {
		d, err := s.CheckAndRecord(ctx, "u1", content, 0)
		if err != nil {
			t.Fatalf("%s: %v", code, err)
		}
		if d.Allowed || d.Code != code {
			t.Fatalf("%s: decision = %+v", code, d)
		}
	}
	u, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.CountMinute != 0 || u.CountHour != 0 || u.LastMessageTime != nil {
		t.Fatalf("counters moved: %+v", u)
	}

	// Boundaries themselves are accepted; length is counted in runes.
	if d, _ := s.CheckAndRecord(ctx, "u1", "ок", 0); !d.Allowed {
		t.Fatalf("two-rune message rejected: %+v", d)
	}
}

func TestUserLimiter_MinInterval(t *testing.T) {
	db := newSvcDB(t)
	clk := newClock()
	cfg := userCfg()
	cfg.MinInterval = 2 * time.Second
	s := newUsers(t, db, clk, cfg)
	ctx := context.Background()

	if d, _ := s.CheckAndRecord(ctx, "u1", "first", 0); !d.Allowed {
		t.Fatalf("first rejected")
	}
	clk.Add(500 * time.Millisecond)
	d, err := s.CheckAndRecord(ctx, "u1", "second", 0)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if d.Allowed || d.Code != CodeTooSoon || !strings.Contains(d.Reason, "2 seconds") {
		t.Fatalf("second decision = %+v", d)
	}
	u, _ := s.Get(ctx, "u1")
	if u.CountMinute != 1 {
		t.Fatalf("too-soon must not count, count_minute=%d", u.CountMinute)
	}

	clk.Add(1500 * time.Millisecond)
	if d, _ := s.CheckAndRecord(ctx, "u1", "third", 0); !d.Allowed {
		t.Fatalf("message at exactly min interval rejected: %+v", d)
	}
}

func TestUserLimiter_RepeatedContentBlocks(t *testing.T) {
	db := newSvcDB(t)
	clk := newClock()
	pub := &capturePublisher{}
	s := newUsers(t, db, clk, userCfg())
	s.Events = pub
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := s.CheckAndRecord(ctx, "u1", "same text", 0)
		if err != nil || !d.Allowed {
			t.Fatalf("repeat %d: %+v %v", i+1, d, err)
		}
		clk.Add(time.Second)
	}
	d, err := s.CheckAndRecord(ctx, "u1", "same text", 0)
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if d.Allowed || d.Code != CodeRepeated {
		t.Fatalf("third identical message should block, got %+v", d)
	}
	if blocked, _, _ := s.IsBlocked(ctx, "u1"); !blocked {
		t.Fatalf("user should be blocked")
	}
	if names := pub.names(); len(names) != 1 || names[0] != events.UserBlocked {
		t.Fatalf("events = %v", names)
	}
}

func TestUserLimiter_DifferentContentResetsRepeat(t *testing.T) {
	db := newSvcDB(t)
	clk := newClock()
	s := newUsers(t, db, clk, userCfg())
	ctx := context.Background()

	for _, msg := range []string{"aa", "aa", "bb", "bb", "aa"} {
		d, err := s.CheckAndRecord(ctx, "u1", msg, 0)
		if err != nil || !d.Allowed {
			t.Fatalf("%q: %+v %v", msg, d, err)
		}
		clk.Add(time.Second)
	}
	u, _ := s.Get(ctx, "u1")
	if u.RepeatedCount != 0 {
		t.Fatalf("repeated_count = %d", u.RepeatedCount)
	}
}

func TestUserLimiter_LazyUnblock(t *testing.T) {
	db := newSvcDB(t)
	clk := newClock()
	s := newUsers(t, db, clk, userCfg())
	ctx := context.Background()

	if _, err := s.CheckAndRecord(ctx, "u1", "hello", 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.Block(ctx, "u1", "manual"); err != nil {
		t.Fatalf("Block: %v", err)
	}
	clk.Add(10*time.Minute + time.Second)

	blocked, reason, err := s.IsBlocked(ctx, "u1")
	if err != nil || blocked || reason != "" {
		t.Fatalf("IsBlocked after expiry = %v %q %v", blocked, reason, err)
	}
	u, _ := s.Get(ctx, "u1")
	if u.BlockedUntil != nil || u.CountMinute != 0 || u.CountHour != 0 || u.RepeatedCount != 0 {
		t.Fatalf("expired block not cleared: %+v", u)
	}
}

func TestUserLimiter_ExpiredBlockClearedByCheck(t *testing.T) {
	db := newSvcDB(t)
	clk := newClock()
	s := newUsers(t, db, clk, userCfg())
	ctx := context.Background()

	if err := s.Block(ctx, "u1", "manual"); err != nil {
		t.Fatalf("Block: %v", err)
	}
	clk.Add(11 * time.Minute)

	// A too-short message is rejected but still persists the unblock.
	d, err := s.CheckAndRecord(ctx, "u1", "x", 0)
	if err != nil || d.Code != CodeTooShort {
		t.Fatalf("decision = %+v %v", d, err)
	}
	u, _ := s.Get(ctx, "u1")
	if u.BlockedUntil != nil {
		t.Fatalf("block should be cleared")
	}
}

func TestUserLimiter_HourLimitAndOverride(t *testing.T) {
	db := newSvcDB(t)
	clk := newClock()
	cfg := userCfg()
	cfg.PerMinute = 100
	cfg.PerHour = 3
	cfg.MinInterval = 0
	s := newUsers(t, db, clk, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if d, _ := s.CheckAndRecord(ctx, "hour", fmt.Sprintf("h%d", i), 0); !d.Allowed {
			t.Fatalf("hour message %d rejected: %+v", i, d)
		}
	}
	if d, _ := s.CheckAndRecord(ctx, "hour", "h3", 0); d.Code != CodeHourLimit {
		t.Fatalf("expected hour limit, got %+v", d)
	}

	for i := 0; i < 2; i++ {
		if d, _ := s.CheckAndRecord(ctx, "group", fmt.Sprintf("g%d", i), 2); !d.Allowed {
			t.Fatalf("override message %d rejected: %+v", i, d)
		}
	}
	d, _ := s.CheckAndRecord(ctx, "group", "g2", 2)
	if d.Code != CodeMinuteLimit || !strings.Contains(d.Reason, "limit 2") {
		t.Fatalf("override decision = %+v", d)
	}
}

func TestUserLimiter_MinuteWindowRolls(t *testing.T) {
	db := newSvcDB(t)
	clk := newClock()
	cfg := userCfg()
	cfg.PerMinute = 2
	s := newUsers(t, db, clk, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, _ := s.CheckAndRecord(ctx, "u1", fmt.Sprintf("w%d", i), 0); !d.Allowed {
			t.Fatalf("message %d rejected", i)
		}
		clk.Add(time.Second)
	}
	clk.Add(time.Minute)
	if d, _ := s.CheckAndRecord(ctx, "u1", "w2", 0); !d.Allowed {
		t.Fatalf("new minute window should accept: %+v", d)
	}
	u, _ := s.Get(ctx, "u1")
	if u.CountMinute != 1 || u.CountHour != 3 {
		t.Fatalf("counts = %d/%d", u.CountMinute, u.CountHour)
	}
}

func TestUserLimiter_RecordSentResetAndList(t *testing.T) {
	db := newSvcDB(t)
	clk := newClock()
	s := newUsers(t, db, clk, userCfg())
	ctx := context.Background()

	if err := s.RecordSent(ctx, "u1"); err != nil {
		t.Fatalf("RecordSent: %v", err)
	}
	u, _ := s.Get(ctx, "u1")
	if u.LastSentAt == nil || !u.LastSentAt.Equal(clk.Now()) || u.LastMessageTime != nil || u.CountMinute != 0 {
		t.Fatalf("RecordSent row = %+v", u)
	}

	for _, id := range []string{"b1", "b2", "b3"} {
		if err := s.Block(ctx, id, "test"); err != nil {
			t.Fatalf("Block %s: %v", id, err)
		}
		clk.Add(time.Second)
	}
	items, total, err := s.ListBlocked(ctx, 1, 2)
	if err != nil || total != 3 || len(items) != 2 || items[0].UserID != "b1" {
		t.Fatalf("ListBlocked = %v %d %v", items, total, err)
	}

	if ok, err := s.Reset(ctx, "b1"); err != nil || !ok {
		t.Fatalf("Reset = %v %v", ok, err)
	}
	if ok, _ := s.Reset(ctx, "missing"); ok {
		t.Fatalf("Reset of unknown user should report false")
	}
	n, err := s.ResetAll(ctx)
	if err != nil || n != 4 {
		t.Fatalf("ResetAll = %d %v", n, err)
	}
	if _, total, _ := s.ListBlocked(ctx, 0, 0); total != 0 {
		t.Fatalf("blocked after reset = %d", total)
	}
}

func TestUserLimiter_DisabledAndInvalid(t *testing.T) {
	db := newSvcDB(t)
	cfg := userCfg()
	cfg.Enabled = false
	s := newUsers(t, db, newClock(), cfg)
	ctx := context.Background()

	if d, err := s.CheckAndRecord(ctx, "u1", "x", 0); err != nil || !d.Allowed {
		t.Fatalf("disabled limiter = %+v %v", d, err)
	}
	if _, err := s.CheckAndRecord(ctx, "  ", "hello", 0); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if _, err := s.Get(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserLimiter_StorageFault(t *testing.T) {
	db := newSvcDB(t)
	s := newUsers(t, db, newClock(), userCfg())
	closeDB(t, db)

	if _, err := s.CheckAndRecord(context.Background(), "u1", "hello", 0); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if _, _, err := s.IsBlocked(context.Background(), "u1"); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage from IsBlocked, got %v", err)
	}
}
