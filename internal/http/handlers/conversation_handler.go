// Conversation HTTP handlers.
//
// This file exposes the sales flow endpoints:
//   - POST  /conversations/{id}/advance     (one step of the stage machine)
//   - GET   /conversations/{id}             (read the stored context)
//   - PATCH /conversations/{id}/slots       (merge extracted slots)
//   - PATCH /conversations/{id}/extensions  (merge caller-defined keys)
//
// Handlers are transport-thin: they bind input, delegate to the
// conversation service and map service errors onto the error envelope.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdvanceConversation godoc
// @ID          advanceConversation
// @Summary     Advance a conversation
// @Description Runs one message through the sales stage machine and returns the new stage, intent, generation policy and next missing slot.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Param       id    path      string                   true  "User ID"
// @Param       body  body      handlers.AdvanceRequest  true  "Inbound message"
// @Success     200   {object}  handlers.AdvanceResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     409   {object}  handlers.ErrorResponse
// @Failure     500   {object}  handlers.ErrorResponse
// @Router      /conversations/{id}/advance [post]
func (h *Handlers) AdvanceConversation(c *gin.Context) {
	if h.conv == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "sales flow disabled")
		return
	}
	var req AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message is required")
		return
	}
	out, err := h.conv.Advance(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Message)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, viewOutcome(out))
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Read a conversation context
// @Tags        Conversations
// @Produce     json
// @Param       id   path      string  true  "User ID"
// @Success     200  {object}  handlers.ContextView
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	if h.conv == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "sales flow disabled")
		return
	}
	ctx, err := h.conv.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, viewContext(ctx))
}

// PatchSlots godoc
// @ID          patchSlots
// @Summary     Merge extracted slots
// @Description Merges values key by key into the stored slots. Stage and intent are untouched.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Param       id    path      string                      true  "User ID"
// @Param       body  body      handlers.PatchSlotsRequest  true  "Slots to merge"
// @Success     200   {object}  handlers.SlotsResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     409   {object}  handlers.ErrorResponse
// @Failure     500   {object}  handlers.ErrorResponse
// @Router      /conversations/{id}/slots [patch]
func (h *Handlers) PatchSlots(c *gin.Context) {
	if h.conv == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "sales flow disabled")
		return
	}
	var req PatchSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Slots) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "slots must be a non-empty object")
		return
	}
	ctx, merged, err := h.conv.MergeSlots(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Slots)
	if err != nil {
		failService(c, err)
		return
	}
	if merged == nil {
		merged = []string{}
	}
	ok(c, http.StatusOK, SlotsResponse{Merged: merged, Context: viewContext(ctx)})
}

// PatchExtensions godoc
// @ID          patchExtensions
// @Summary     Merge caller-defined context keys
// @Description Merges keys into the stored extensions one by one; null removes a key. Stage, intent and slots are untouched. A missing context is created with defaults.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Param       id    path      string                           true  "User ID"
// @Param       body  body      handlers.PatchExtensionsRequest  true  "Keys to merge"
// @Success     200   {object}  handlers.ExtensionsResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     409   {object}  handlers.ErrorResponse
// @Failure     500   {object}  handlers.ErrorResponse
// @Router      /conversations/{id}/extensions [patch]
func (h *Handlers) PatchExtensions(c *gin.Context) {
	if h.conv == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "sales flow disabled")
		return
	}
	var req PatchExtensionsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Extensions) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "extensions must be a non-empty object")
		return
	}
	ctx, keys, err := h.conv.MergeExtensions(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Extensions)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ExtensionsResponse{Keys: keys, Context: viewContext(ctx)})
}
