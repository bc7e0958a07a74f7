package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tbourn/go-sales-guard/internal/domain"
	"github.com/tbourn/go-sales-guard/internal/repo"
	"github.com/tbourn/go-sales-guard/internal/salesflow"
	"github.com/tbourn/go-sales-guard/internal/services"
)

// GuardService is the limiter surface used by the message endpoints.
type GuardService interface {
	CheckMessage(ctx context.Context, userID, text, chatKind string) (services.Decision, error)
	RecordSent(ctx context.Context, userID, key string) (duplicate bool, err error)
	RecordFloodWait(ctx context.Context, waitSeconds int, chatKind string) (*domain.FloodEvent, error)
}

// ConversationService is the stage machine surface.
type ConversationService interface {
	Advance(ctx context.Context, userID, message string) (services.Outcome, error)
	Get(ctx context.Context, userID string) (salesflow.Context, error)
	MergeSlots(ctx context.Context, userID string, found salesflow.Slots) (salesflow.Context, []string, error)
	MergeExtensions(ctx context.Context, userID string, patch map[string]json.RawMessage) (salesflow.Context, []string, error)
}

// AdminService is the maintenance surface.
type AdminService interface {
	Status(ctx context.Context) (services.Status, error)
	ListBlocked(ctx context.Context, page, pageSize int) ([]domain.UserLimit, int64, error)
	ResetUser(ctx context.Context, userID string) (bool, error)
	ResetGlobal(ctx context.Context) error
	ResetAllUsers(ctx context.Context) (int64, error)
	EraseUser(ctx context.Context, userID string) (services.Erasure, error)
	FloodStats(ctx context.Context, window time.Duration) (repo.FloodStats, error)
	PruneFloods(ctx context.Context, before time.Time) (int64, error)
}

// Handlers groups the endpoints. A nil service leaves its routes answering
// 503 so partial wiring fails loudly rather than panicking.
type Handlers struct {
	guard GuardService
	conv  ConversationService
	admin AdminService
	now   func() time.Time
}

// New binds the handlers to their services.
func New(guard GuardService, conv ConversationService, admin AdminService) *Handlers {
	return &Handlers{guard: guard, conv: conv, admin: admin, now: time.Now}
}

//
// DTOs
//

// CheckRequest asks whether an inbound message may be processed.
type CheckRequest struct {
	UserID string `json:"user_id" binding:"required,max=64" example:"tg-1001"`
	Text   string `json:"text" example:"hello, I need a chatbot for my agency"`
	// private, group or channel; selects the per-minute override
	ChatKind string `json:"chat_kind" example:"private"`
}

// SentResponse acknowledges an outbound send.
type SentResponse struct {
	UserID    string `json:"user_id"`
	Duplicate bool   `json:"duplicate"`
}

// FloodRequest reports a back-pressure signal from the channel.
type FloodRequest struct {
	WaitSeconds *int   `json:"wait_seconds" binding:"required" example:"70"`
	ChatKind    string `json:"chat_kind" example:"group"`
}

// AdvanceRequest carries one inbound message into the stage machine.
type AdvanceRequest struct {
	Message string `json:"message" binding:"required" example:"how much does it cost?"`
}

// PatchSlotsRequest pushes extracted values. Bare values are accepted and
// wrapped; objects carry value, source and confidence.
type PatchSlotsRequest struct {
	Slots salesflow.Slots `json:"slots" binding:"required"`
}

// PatchExtensionsRequest writes caller-defined context keys. A null value
// removes its key.
type PatchExtensionsRequest struct {
	Extensions map[string]json.RawMessage `json:"extensions" binding:"required" swaggertype:"object"`
}

// ExtensionsResponse is the result of an extensions merge.
type ExtensionsResponse struct {
	Keys    []string    `json:"keys"`
	Context ContextView `json:"context"`
}

// ContextView is the wire form of a stored conversation.
type ContextView struct {
	Stage             salesflow.Stage             `json:"stage"`
	Intent            salesflow.Intent            `json:"intent,omitempty"`
	Slots             salesflow.Slots             `json:"slots"`
	Objections        []salesflow.ObjectionRecord `json:"objections"`
	PresentationTurns int                         `json:"presentation_turns"`
	Extensions        map[string]json.RawMessage  `json:"extensions,omitempty"`
}

func viewContext(c salesflow.Context) ContextView {
	v := ContextView{
		Stage:             c.Stage,
		Intent:            c.Intent,
		Slots:             c.Slots,
		Objections:        c.Objections,
		PresentationTurns: c.PresentationTurns,
		Extensions:        c.Extensions,
	}
	if v.Slots == nil {
		v.Slots = salesflow.Slots{}
	}
	if v.Objections == nil {
		v.Objections = []salesflow.ObjectionRecord{}
	}
	return v
}

// AdvanceResponse is one conversation step.
type AdvanceResponse struct {
	UserID            string                  `json:"user_id"`
	PreviousStage     salesflow.Stage         `json:"previous_stage"`
	Stage             salesflow.Stage         `json:"stage"`
	Intent            salesflow.Intent        `json:"intent"`
	Changed           bool                    `json:"changed"`
	GreetingReset     bool                    `json:"greeting_reset"`
	MissingSlot       string                  `json:"missing_slot,omitempty"`
	MissingSlotPrompt string                  `json:"missing_slot_prompt,omitempty"`
	Objection         salesflow.ObjectionType `json:"objection,omitempty"`
	FitScore          int                     `json:"fit_score"`
	OfferedCall       bool                    `json:"offered_call"`
	Merged            []string                `json:"merged,omitempty"`
	Policy            salesflow.Policy        `json:"policy"`
	Context           ContextView             `json:"context"`
}

func viewOutcome(o services.Outcome) AdvanceResponse {
	r := AdvanceResponse{
		UserID:        o.UserID,
		PreviousStage: o.PreviousStage,
		Stage:         o.Stage,
		Intent:        o.Intent,
		Changed:       o.Changed,
		GreetingReset: o.GreetingReset,
		MissingSlot:   o.MissingSlot,
		Objection:     o.Objection,
		FitScore:      o.FitScore,
		OfferedCall:   o.OfferedCall,
		Merged:        o.Merged,
		Policy:        o.Policy,
		Context:       viewContext(o.Context),
	}
	if o.MissingSlot != "" {
		r.MissingSlotPrompt, _ = salesflow.SlotPrompt(o.MissingSlot)
	}
	return r
}

// SlotsResponse is the result of a slot merge.
type SlotsResponse struct {
	Merged  []string    `json:"merged"`
	Context ContextView `json:"context"`
}

// BlockedUsersResponse pages through blocked users.
type BlockedUsersResponse struct {
	Users      []domain.UserLimit `json:"users"`
	Pagination Pagination         `json:"pagination"`
}

// ResetResponse reports a reset.
type ResetResponse struct {
	UserID string `json:"user_id,omitempty"`
	Reset  int64  `json:"reset"`
}

// FloodStatsResponse wraps flood statistics with their window.
type FloodStatsResponse struct {
	Hours int             `json:"hours"`
	Since time.Time       `json:"since"`
	Stats repo.FloodStats `json:"stats"`
}

// PruneResponse reports pruned rows.
type PruneResponse struct {
	Before  time.Time `json:"before"`
	Deleted int64     `json:"deleted"`
}
