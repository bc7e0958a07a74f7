// Package services – ConversationService
//
// This file implements ConversationService, which loads a user's stored
// conversation context, runs one message through the sales stage machine,
// optionally merges slots from an injected extractor, and writes the result
// back.
//
// Writes are merge-on-write: stage, intent, slots and objection history go
// to the reserved columns, caller-defined keys go to the extensions column,
// and neither path rewrites the other. Every write is version checked and
// retried on conflict; a writer that keeps losing gets ErrContextConflict.
//
// A stored column that does not decode is treated as absent and logged; the
// remaining columns are used as stored.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-sales-guard/internal/domain"
	"github.com/tbourn/go-sales-guard/internal/events"
	"github.com/tbourn/go-sales-guard/internal/repo"
	"github.com/tbourn/go-sales-guard/internal/salesflow"
)

// SlotExtractor pulls structured values out of a message. Implementations
// call out to a model or a parser; the service only merges what they find.
type SlotExtractor interface {
	Extract(ctx context.Context, message string, c salesflow.Context) (salesflow.Slots, error)
}

// Outcome is the result of one conversation step for a user.
type Outcome struct {
	UserID string `json:"user_id"`
	salesflow.Result
	// Merged lists the slot names written by this step.
	Merged []string `json:"merged,omitempty"`
}

// ConversationService loads, advances and stores conversation contexts.
// Writes touch only the reserved columns and are version checked.
type ConversationService struct {
	DB        *gorm.DB
	Machine   *salesflow.Machine
	Extractor SlotExtractor
	Events    events.Publisher
	Metrics   Recorder
	Now       func() time.Time
}

// NewConversationService returns a service over the keyword machine.
func NewConversationService(db *gorm.DB, m *salesflow.Machine) *ConversationService {
	if m == nil {
		m = salesflow.New()
	}
	return &ConversationService{DB: db, Machine: m}
}

func (s *ConversationService) now() time.Time { return clockOr(s.Now) }

func (s *ConversationService) machine() *salesflow.Machine {
	if s.Machine == nil {
		s.Machine = salesflow.New()
	}
	return s.Machine
}

// Advance runs one message through the stage machine and the optional slot
// extractor and persists the result. The first message of a user is the one
// that finds no stored context.
func (s *ConversationService) Advance(ctx context.Context, userID, message string) (Outcome, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Advance", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return Outcome{}, ErrInvalidUserID
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		row, c, err := s.load(ctx, userID)
		if err != nil {
			return Outcome{}, err
		}
		isFirst := row == nil

		res := s.machine().Advance(c, message, isFirst)
		out := Outcome{UserID: userID, Result: res}

		if s.Extractor != nil {
			found, xerr := s.Extractor.Extract(ctx, message, res.Context)
			if xerr != nil {
				log.Warn().Err(xerr).Str("user_id", userID).Msg("slot extraction failed")
			} else if len(found) > 0 {
				out.Context.Slots, out.Merged = salesflow.MergeSlots(out.Context.Slots, found, s.now())
				out.refresh()
			}
		}

		err = s.store(ctx, userID, row, out.Context)
		if errors.Is(err, repo.ErrConflict) {
			continue
		}
		if err != nil {
			return Outcome{}, storageErr("store context", err)
		}

		span.SetAttributes(
			attribute.String("stage.from", string(out.PreviousStage)),
			attribute.String("stage.to", string(out.Stage)),
			attribute.String("intent", string(out.Intent)),
		)
		s.announce(ctx, out)
		return out, nil
	}
	return Outcome{}, ErrContextConflict
}

// MergeSlots merges externally extracted values into the stored context key
// by key. It returns the updated context and the names written.
func (s *ConversationService) MergeSlots(ctx context.Context, userID string, found salesflow.Slots) (salesflow.Context, []string, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "MergeSlots",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("slots.count", len(found)),
		),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return salesflow.Context{}, nil, ErrInvalidUserID
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		row, c, err := s.load(ctx, userID)
		if err != nil {
			return salesflow.Context{}, nil, err
		}
		var merged []string
		c.Slots, merged = salesflow.MergeSlots(c.Slots, found, s.now())

		err = s.store(ctx, userID, row, c)
		if errors.Is(err, repo.ErrConflict) {
			continue
		}
		if err != nil {
			return salesflow.Context{}, nil, storageErr("merge slots", err)
		}
		if len(merged) > 0 {
			publish(ctx, s.Events, events.SlotsMerged, map[string]any{"user_id": userID, "slots": merged})
		}
		return c, merged, nil
	}
	return salesflow.Context{}, nil, ErrContextConflict
}

// reservedKeys are the context fields extensions may not shadow.
var reservedKeys = map[string]bool{
	"stage":              true,
	"intent":             true,
	"slots":              true,
	"objection_history":  true,
	"presentation_turns": true,
}

// MergeExtensions writes caller-defined keys into the stored context key by
// key. A JSON null removes its key. Reserved fields are never touched, and a
// missing context is created with defaults first. It returns the updated
// context and the sorted names written or removed.
func (s *ConversationService) MergeExtensions(ctx context.Context, userID string, patch map[string]json.RawMessage) (salesflow.Context, []string, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "MergeExtensions",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("extensions.count", len(patch)),
		),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return salesflow.Context{}, nil, ErrInvalidUserID
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		if reservedKeys[k] || strings.TrimSpace(k) == "" {
			return salesflow.Context{}, nil, fmt.Errorf("%w: %q", ErrReservedExtension, k)
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		row, c, err := s.load(ctx, userID)
		if err != nil {
			return salesflow.Context{}, nil, err
		}
		if row == nil {
			// Create the defaults first, then merge on the next pass.
			err = s.store(ctx, userID, nil, c)
			if err != nil && !errors.Is(err, repo.ErrConflict) {
				return salesflow.Context{}, nil, storageErr("create context", err)
			}
			continue
		}

		err = repo.MergeContextExtensions(ctx, s.DB, row, patch, s.now())
		if errors.Is(err, repo.ErrConflict) {
			continue
		}
		if err != nil {
			return salesflow.Context{}, nil, storageErr("merge extensions", err)
		}
		c.Extensions = nil
		if err := json.Unmarshal(row.Extensions, &c.Extensions); err != nil {
			return salesflow.Context{}, nil, storageErr("decode extensions", err)
		}
		return c, keys, nil
	}
	return salesflow.Context{}, nil, ErrContextConflict
}

// Get returns the stored context of userID.
func (s *ConversationService) Get(ctx context.Context, userID string) (salesflow.Context, error) {
	row, c, err := s.load(ctx, userID)
	if err != nil {
		return salesflow.Context{}, err
	}
	if row == nil {
		return salesflow.Context{}, ErrNotFound
	}
	return c, nil
}

// Delete removes the stored context of userID.
func (s *ConversationService) Delete(ctx context.Context, userID string) (bool, error) {
	n, err := repo.DeleteContext(ctx, s.DB, userID)
	if err != nil {
		return false, storageErr("delete context", err)
	}
	return n > 0, nil
}

// load returns the stored row, nil when missing, and its decoded context.
// A malformed column decodes as absent; the next store rewrites it.
func (s *ConversationService) load(ctx context.Context, userID string) (*domain.ConversationContext, salesflow.Context, error) {
	row, err := repo.GetContext(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, salesflow.NewContext(), nil
	}
	if err != nil {
		return nil, salesflow.Context{}, storageErr("load context", err)
	}
	c, ok := salesflow.DecodeContext(salesflow.Record{
		Stage:             row.Stage,
		Intent:            row.Intent,
		Slots:             row.Slots,
		Objections:        row.ObjectionHistory,
		Extensions:        row.Extensions,
		PresentationTurns: row.PresentationTurns,
	})
	if !ok {
		log.Warn().Str("user_id", userID).Msg("malformed conversation context column, treating as absent")
	}
	return row, c, nil
}

// store creates the row when row is nil and otherwise updates the reserved
// columns against row.Version. repo.ErrConflict means a rerun is needed.
func (s *ConversationService) store(ctx context.Context, userID string, row *domain.ConversationContext, c salesflow.Context) error {
	rec, err := c.Encode()
	if err != nil {
		return err
	}
	now := s.now()
	if row == nil {
		created, err := repo.CreateContext(ctx, s.DB, &domain.ConversationContext{
			UserID:            userID,
			Stage:             rec.Stage,
			Intent:            rec.Intent,
			Slots:             datatypes.JSON(rec.Slots),
			ObjectionHistory:  datatypes.JSON(rec.Objections),
			Extensions:        datatypes.JSON(rec.Extensions),
			PresentationTurns: rec.PresentationTurns,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
		if err != nil {
			return err
		}
		if !created {
			return repo.ErrConflict
		}
		return nil
	}
	upd := *row
	upd.Stage = rec.Stage
	upd.Intent = rec.Intent
	upd.Slots = datatypes.JSON(rec.Slots)
	upd.ObjectionHistory = datatypes.JSON(rec.Objections)
	upd.PresentationTurns = rec.PresentationTurns
	return repo.UpdateContextReserved(ctx, s.DB, &upd, now)
}

func (s *ConversationService) announce(ctx context.Context, out Outcome) {
	if out.Changed {
		recorderOr(s.Metrics).StageTransition(string(out.PreviousStage), string(out.Stage))
		publish(ctx, s.Events, events.StageChanged, map[string]any{
			"user_id": out.UserID,
			"from":    out.PreviousStage,
			"to":      out.Stage,
			"intent":  out.Intent,
		})
	}
	if len(out.Merged) > 0 {
		publish(ctx, s.Events, events.SlotsMerged, map[string]any{"user_id": out.UserID, "slots": out.Merged})
	}
}

// refresh recomputes the slot dependent fields after a merge.
func (o *Outcome) refresh() {
	o.MissingSlot = ""
	if o.Intent.SlotBearing() {
		o.MissingSlot, _ = salesflow.NextMissingSlot(o.Context.Slots, o.Intent)
	}
	o.FitScore = salesflow.FitScore(o.Context.Slots)
}
