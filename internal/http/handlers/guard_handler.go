// Guard HTTP handlers.
//
// This file exposes the limiter endpoints used by the messaging channel:
//   - POST /messages/check    (inbound check)
//   - POST /users/{id}/sent   (outbound record, Idempotency-Key aware)
//   - POST /flood             (back-pressure report)
//
// A limiter rejection is a 200 with the Decision, never an error envelope.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-sales-guard/internal/http/middleware"
)

// CheckMessage godoc
// @ID          checkMessage
// @Summary     Check an inbound message
// @Description Runs the account-wide limit, then the user limits and spam filter. Rejections are 200 with allowed=false.
// @Tags        Guard
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CheckRequest  true  "Message to check"
// @Success     200   {object}  services.Decision
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     500   {object}  handlers.ErrorResponse
// @Router      /messages/check [post]
func (h *Handlers) CheckMessage(c *gin.Context) {
	if h.guard == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "guard disabled")
		return
	}
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	d, err := h.guard.CheckMessage(c.Request.Context(), strings.TrimSpace(req.UserID), req.Text, req.ChatKind)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// RecordSent godoc
// @ID          recordSent
// @Summary     Record an outbound send
// @Description Stamps the user's last send and counts it against the account window. A repeated Idempotency-Key is acknowledged as a duplicate without recounting.
// @Tags        Guard
// @Produce     json
// @Param       id               path    string  true   "User ID"
// @Param       Idempotency-Key  header  string  false  "Client key for retries"
// @Success     200  {object}  handlers.SentResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /users/{id}/sent [post]
func (h *Handlers) RecordSent(c *gin.Context) {
	if h.guard == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "guard disabled")
		return
	}
	uid := strings.TrimSpace(c.Param("id"))
	key, _ := middleware.GetIdempotencyKey(c)

	dup, err := h.guard.RecordSent(c.Request.Context(), uid, key)
	if err != nil {
		failService(c, err)
		return
	}
	if dup {
		c.Header("Idempotent-Replay", "true")
	}
	ok(c, http.StatusOK, SentResponse{UserID: uid, Duplicate: dup})
}

// RecordFlood godoc
// @ID          recordFlood
// @Summary     Record a flood wait
// @Description Logs a back-pressure signal and lowers the adaptive account ceilings.
// @Tags        Guard
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.FloodRequest  true  "Flood signal"
// @Success     201   {object}  domain.FloodEvent
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     500   {object}  handlers.ErrorResponse
// @Router      /flood [post]
func (h *Handlers) RecordFlood(c *gin.Context) {
	if h.guard == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "guard disabled")
		return
	}
	var req FloodRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.WaitSeconds == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "wait_seconds is required")
		return
	}
	ev, err := h.guard.RecordFloodWait(c.Request.Context(), *req.WaitSeconds, req.ChatKind)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, ev)
}
