package services

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-sales-guard/internal/config"
	"github.com/tbourn/go-sales-guard/internal/events"
)

func TestNewStack_SharesLimitersAndCollaborators(t *testing.T) {
	db := newSvcDB(t)
	clk := newClock()
	rec := newRecorder()
	pub := &capturePublisher{}

	cfg := config.Config{
		Limits:         userCfg(),
		Global:         globalCfg(),
		ChatLimits:     config.ChatLimitsConfig{Group: 1},
		SalesFlow:      config.SalesFlowConfig{Enabled: true, FitScoreThreshold: 60, ObjectionHistoryLimit: 10},
		IdempotencyTTL: time.Hour,
	}
	st := NewStack(db, cfg, StackOptions{Events: pub, Metrics: rec, Now: clk.Now})

	if st.Guard.Users != st.Users || st.Guard.Global != st.Global || st.Admin.Users != st.Users {
		t.Fatalf("limiters are not shared")
	}
	ctx := context.Background()
	if d, err := st.Guard.CheckMessage(ctx, "u1", "hello", "group"); err != nil || !d.Allowed {
		t.Fatalf("first = %+v %v", d, err)
	}
	clk.Add(2 * time.Second)
	if d, _ := st.Guard.CheckMessage(ctx, "u1", "again", "group"); d.Code != CodeMinuteLimit {
		t.Fatalf("group override not applied: %+v", d)
	}
	if rec.decisions["user/minute_limit"] != 1 {
		t.Fatalf("metrics not wired: %v", rec.decisions)
	}

	if _, err := st.Guard.RecordFloodWait(ctx, 90, ""); err != nil {
		t.Fatalf("flood: %v", err)
	}
	if _, err := st.Conversations.Advance(ctx, "u1", "I need automation for invoices"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	seen := map[string]bool{}
	for _, n := range pub.names() {
		seen[n] = true
	}
	for _, want := range []string{events.UserBlocked, events.FloodRecorded, events.StageChanged} {
		if !seen[want] {
			t.Fatalf("event %s not published: %v", want, pub.names())
		}
	}
}
