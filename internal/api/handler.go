package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/dannyviti/gh-pr-analyzer/internal/errors"
	"github.com/dannyviti/gh-pr-analyzer/internal/storage"
)

// Handler handles API requests
type Handler struct {
	store storage.Storage
}

// NewHandler creates a new API handler
func NewHandler(store storage.Storage) *Handler {
	return &Handler{
		store: store,
	}
}

// HealthCheck returns server health status
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// ListRepoRuns returns analysis runs for a repository, newest first
// GET /api/v1/repos/:owner/:repo/runs
func (h *Handler) ListRepoRuns(c *gin.Context) {
	owner := c.Param("owner")
	repo := c.Param("repo")
	limit := parseLimit(c)

	runs, err := h.store.ListRuns(c.Request.Context(), owner, repo, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": runs,
	})
}

// ListRuns returns analysis runs across all repositories, newest first
// GET /api/v1/runs
func (h *Handler) ListRuns(c *gin.Context) {
	limit := parseLimit(c)

	runs, err := h.store.ListRuns(c.Request.Context(), "", "", limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": runs,
	})
}

// GetRun returns a single analysis run
// GET /api/v1/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	id := c.Param("id")

	run, err := h.store.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": run,
	})
}

// GetRunPRs returns the per-PR results of an analysis run
// GET /api/v1/runs/:id/prs
func (h *Handler) GetRunPRs(c *gin.Context) {
	id := c.Param("id")

	// 404 for unknown runs rather than an empty result set
	if _, err := h.store.GetRun(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	details, err := h.store.GetPRResults(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": details,
	})
}

// parseLimit reads the limit query parameter, defaulting to 50
func parseLimit(c *gin.Context) int {
	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return 50
	}
	return limit
}

// respondError maps application errors to HTTP status codes
func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeUnauthorized:
			status = http.StatusUnauthorized
		case apperrors.ErrCodeBadRequest:
			status = http.StatusBadRequest
		case apperrors.ErrCodeQuotaExceeded:
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	})
}
