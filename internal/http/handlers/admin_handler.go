// Admin HTTP handlers.
//
// This file exposes the maintenance endpoints under /admin: status, blocked
// users, resets, user erasure and flood statistics and pruning. The routes
// are gated by middleware.AdminAuth in the router.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-sales-guard/internal/utils"
)

const defaultFloodWindow = 24 * time.Hour

func (h *Handlers) adminReady(c *gin.Context) bool {
	if h.admin == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "admin disabled")
		return false
	}
	return true
}

// Status godoc
// @ID          adminStatus
// @Summary     Limiter status
// @Description Account row, adaptive ceilings, flood statistics of the last 24 hours and the number of blocked users.
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
// @Success     200  {object}  services.Status
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/status [get]
func (h *Handlers) Status(c *gin.Context) {
	if !h.adminReady(c) {
		return
	}
	st, err := h.admin.Status(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// ListBlocked godoc
// @ID          adminListBlocked
// @Summary     List blocked users
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.BlockedUsersResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/blocks [get]
func (h *Handlers) ListBlocked(c *gin.Context) {
	if !h.adminReady(c) {
		return
	}
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))
	items, total, err := h.admin.ListBlocked(c.Request.Context(), page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}
	pages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, BlockedUsersResponse{
		Users: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: pages,
			HasNext:    page < pages,
		},
	})
}

// ResetUser godoc
// @ID          adminResetUser
// @Summary     Reset one user
// @Description Clears the block, counters and repeat state of a user.
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
// @Param       id   path      string  true  "User ID"
// @Success     200  {object}  handlers.ResetResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /admin/users/{id}/reset [post]
func (h *Handlers) ResetUser(c *gin.Context) {
	if !h.adminReady(c) {
		return
	}
	uid := strings.TrimSpace(c.Param("id"))
	found, err := h.admin.ResetUser(c.Request.Context(), uid)
	if err != nil {
		failService(c, err)
		return
	}
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user has no limiter state")
		return
	}
	ok(c, http.StatusOK, ResetResponse{UserID: uid, Reset: 1})
}

// ResetAllUsers godoc
// @ID          adminResetAllUsers
// @Summary     Reset every user
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
// @Success     200  {object}  handlers.ResetResponse
// @Router      /admin/users/reset [post]
func (h *Handlers) ResetAllUsers(c *gin.Context) {
	if !h.adminReady(c) {
		return
	}
	n, err := h.admin.ResetAllUsers(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ResetResponse{Reset: n})
}

// ResetGlobal godoc
// @ID          adminResetGlobal
// @Summary     Reset the account limiter
// @Description Clears the account block and counters and restores the base ceilings.
// @Tags        Admin
// @Security    AdminToken
// @Success     204  "No Content"
// @Router      /admin/global/reset [post]
func (h *Handlers) ResetGlobal(c *gin.Context) {
	if !h.adminReady(c) {
		return
	}
	if err := h.admin.ResetGlobal(c.Request.Context()); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// EraseUser godoc
// @ID          adminEraseUser
// @Summary     Erase a user's data
// @Description Deletes limiter state, conversation context and send receipts of a user.
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
// @Param       id   path      string  true  "User ID"
// @Success     200  {object}  services.Erasure
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /admin/users/{id} [delete]
func (h *Handlers) EraseUser(c *gin.Context) {
	if !h.adminReady(c) {
		return
	}
	out, err := h.admin.EraseUser(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// FloodStats godoc
// @ID          adminFloodStats
// @Summary     Flood statistics
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
// @Param       hours  query  int  false  "Look-back window in hours"  minimum(1) default(24)
// @Success     200  {object}  handlers.FloodStatsResponse
// @Router      /admin/flood/stats [get]
func (h *Handlers) FloodStats(c *gin.Context) {
	if !h.adminReady(c) {
		return
	}
	window := utils.ParseHours(c.Query("hours"), defaultFloodWindow)
	fs, err := h.admin.FloodStats(c.Request.Context(), window)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, FloodStatsResponse{
		Hours: int(window / time.Hour),
		Since: h.now().UTC().Add(-window),
		Stats: fs,
	})
}

// PruneFloods godoc
// @ID          adminPruneFloods
// @Summary     Prune the flood log
// @Description Deletes flood events older than before, given as RFC 3339 or as a duration back from now (e.g. 720h).
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
// @Param       before  query  string  true  "Cutoff"
// @Success     200  {object}  handlers.PruneResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /admin/flood [delete]
func (h *Handlers) PruneFloods(c *gin.Context) {
	if !h.adminReady(c) {
		return
	}
	before, valid := utils.ParseCutoff(c.Query("before"), h.now())
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "before must be RFC 3339 or a positive duration")
		return
	}
	n, err := h.admin.PruneFloods(c.Request.Context(), before)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, PruneResponse{Before: before, Deleted: n})
}
