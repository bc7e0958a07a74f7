package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-sales-guard/internal/config"
	"github.com/tbourn/go-sales-guard/internal/events"
	"github.com/tbourn/go-sales-guard/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func closeDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	_ = sqlDB.Close()
}

type testClock struct{ t time.Time }

func newClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time      { return c.t }
func (c *testClock) Add(d time.Duration) { c.t = c.t.Add(d) }

func userCfg() config.LimitsConfig {
	return config.LimitsConfig{
		Enabled:          true,
		PerMinute:        5,
		PerHour:          50,
		MinInterval:      time.Second,
		BlockDuration:    10 * time.Minute,
		MaxRepeated:      3,
		MinMessageLength: 2,
		MaxMessageLength: 20,
	}
}

func globalCfg() config.GlobalConfig {
	return config.GlobalConfig{
		Enabled:                  true,
		PerMinute:                25,
		PerHour:                  500,
		BlockDuration:            time.Minute,
		AdaptiveEnabled:          true,
		ReductionPercent:         20,
		RecoveryPeriod:           10 * time.Minute,
		RecoveryIncrementPercent: 5,
		CriticalWait:             60 * time.Second,
	}
}

func newUsers(t *testing.T, db *gorm.DB, clk *testClock, cfg config.LimitsConfig) *UserLimiter {
	t.Helper()
	s := NewUserLimiter(db, cfg)
	s.Now = clk.Now
	return s
}

func newGlobal(t *testing.T, db *gorm.DB, clk *testClock, cfg config.GlobalConfig) *GlobalLimiter {
	t.Helper()
	s := NewGlobalLimiter(db, cfg)
	s.Now = clk.Now
	return s
}

type fakeRecorder struct {
	mu          sync.Mutex
	decisions   map[string]int
	floods      map[string]int
	ceilings    [][2]int
	transitions []string
}

func newRecorder() *fakeRecorder {
	return &fakeRecorder{decisions: map[string]int{}, floods: map[string]int{}}
}

func (f *fakeRecorder) Decision(scope, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions[scope+"/"+outcome]++
}

func (f *fakeRecorder) Flood(severity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.floods[severity]++
}

func (f *fakeRecorder) Ceilings(minute, hour int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ceilings = append(f.ceilings, [2]int{minute, hour})
}

func (f *fakeRecorder) StageTransition(from, to string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, from+">"+to)
}

type capturePublisher struct {
	mu  sync.Mutex
	got []events.Event
}

func (c *capturePublisher) Publish(_ context.Context, ev events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, ev)
	return nil
}

func (c *capturePublisher) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.got))
	for _, ev := range c.got {
		out = append(out, ev.Name)
	}
	return out
}
