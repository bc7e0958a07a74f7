package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-sales-guard/internal/domain"
)

func TestCreateFloodEvent_ChatKindOptional(t *testing.T) {
	db := newTestDB(t, &domain.FloodEvent{})
	ctx := context.Background()
	now := time.Now().UTC()

	ev, err := CreateFloodEvent(ctx, db, 30, "", now)
	if err != nil {
		t.Fatalf("CreateFloodEvent: %v", err)
	}
	if ev.ID == "" || ev.ChatKind != nil || ev.WaitSeconds != 30 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	ev2, err := CreateFloodEvent(ctx, db, 5, domain.ChatKindGroup, now)
	if err != nil || ev2.ChatKind == nil || *ev2.ChatKind != "group" {
		t.Fatalf("chat kind not stored: %+v, %v", ev2, err)
	}
}

func TestFloodEvents_CountListPrune(t *testing.T) {
	db := newTestDB(t, &domain.FloodEvent{})
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	seedFloods(t, db, base, 1, 2, 3, 4, 5) // 12:00 .. 12:04

	n, err := CountFloodEventsBetween(ctx, db, base.Add(time.Minute), base.Add(3*time.Minute))
	if err != nil || n != 3 {
		t.Fatalf("CountFloodEventsBetween = %d, %v (bounds are inclusive)", n, err)
	}

	list, err := ListFloodEvents(ctx, db, base.Add(2*time.Minute), 2)
	if err != nil || len(list) != 2 || list[0].WaitSeconds != 5 || list[1].WaitSeconds != 4 {
		t.Fatalf("ListFloodEvents = %+v, %v", list, err)
	}
	all, _ := ListFloodEvents(ctx, db, base, 0)
	if len(all) != 5 {
		t.Fatalf("unlimited list = %d", len(all))
	}

	pruned, err := PruneFloodEvents(ctx, db, base.Add(2*time.Minute))
	if err != nil || pruned != 2 {
		t.Fatalf("PruneFloodEvents = %d, %v", pruned, err)
	}
	left, _ := CountFloodEventsBetween(ctx, db, base.Add(-time.Hour), base.Add(time.Hour))
	if left != 3 {
		t.Fatalf("remaining = %d", left)
	}
}
