// Package services – Stack
//
// NewStack builds every service from one Config so the server, the CLI and
// tests share the same wiring.
package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-sales-guard/internal/config"
	"github.com/tbourn/go-sales-guard/internal/events"
	"github.com/tbourn/go-sales-guard/internal/salesflow"
)

// Stack is the set of services over one database.
type Stack struct {
	Users         *UserLimiter
	Global        *GlobalLimiter
	Guard         *Guard
	Conversations *ConversationService
	Admin         *Admin
}

// StackOptions carries optional collaborators. Nil fields are left unset.
type StackOptions struct {
	Events    events.Publisher
	Metrics   Recorder
	Extractor SlotExtractor
	Now       func() time.Time
}

// NewStack wires every service from cfg. Disabled limiters are still built
// so admin operations keep working; their checks short-circuit.
func NewStack(db *gorm.DB, cfg config.Config, opts StackOptions) *Stack {
	users := NewUserLimiter(db, cfg.Limits)
	users.Events = opts.Events
	users.Now = opts.Now

	global := NewGlobalLimiter(db, cfg.Global)
	global.Events = opts.Events
	global.Metrics = opts.Metrics
	global.Now = opts.Now

	machineOpts := []salesflow.Option{
		salesflow.WithEnabled(cfg.SalesFlow.Enabled),
		salesflow.WithFitThreshold(cfg.SalesFlow.FitScoreThreshold),
		salesflow.WithObjectionLimit(cfg.SalesFlow.ObjectionHistoryLimit),
	}
	if opts.Now != nil {
		machineOpts = append(machineOpts, salesflow.WithClock(opts.Now))
	}
	conv := NewConversationService(db, salesflow.New(machineOpts...))
	conv.Extractor = opts.Extractor
	conv.Events = opts.Events
	conv.Metrics = opts.Metrics
	conv.Now = opts.Now

	return &Stack{
		Users:  users,
		Global: global,
		Guard: &Guard{
			DB:         db,
			Users:      users,
			Global:     global,
			ChatLimits: cfg.ChatLimits,
			Metrics:    opts.Metrics,
			ReceiptTTL: cfg.IdempotencyTTL,
			Now:        opts.Now,
		},
		Conversations: conv,
		Admin:         &Admin{DB: db, Users: users, Global: global, Now: opts.Now},
	}
}
