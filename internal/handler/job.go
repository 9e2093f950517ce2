package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aman-churiwal/edge-gateway/internal/middleware"
	"github.com/aman-churiwal/edge-gateway/internal/models"
	"github.com/aman-churiwal/edge-gateway/internal/repository"
	"github.com/aman-churiwal/edge-gateway/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const staleWarning = `199 - "cache invalidation failed; cached reads may be stale"`

type JobHandler struct {
	service *service.JobService
	logger  *zap.Logger
}

func NewJobHandler(service *service.JobService, logger *zap.Logger) *JobHandler {
	return &JobHandler{service: service, logger: logger}
}

// Handles POST /api/v1/jobs
func (h *JobHandler) Create(c *gin.Context) {
	var req struct {
		Title    string `json:"title" binding:"required"`
		Company  string `json:"company"`
		Location string `json:"location"`
		Status   string `json:"status"`
		TenantID string `json:"tenant_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The token's tenant wins over the body.
	tenantID := c.GetString(middleware.ContextTenantID)
	if tenantID == "" {
		tenantID = req.TenantID
	}

	job, err := h.service.Create(c.Request.Context(), &models.Job{
		TenantID:  tenantID,
		Title:     req.Title,
		Company:   req.Company,
		Location:  req.Location,
		Status:    req.Status,
		CreatedBy: c.GetString(middleware.ContextUserID),
	})
	if err != nil && !h.staleAfterWrite(c, err) {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// Handles GET /api/v1/jobs
func (h *JobHandler) List(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
		return
	}
	offset, err := intQuery(c, "offset")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a number"})
		return
	}

	jobs, err := h.service.List(c.Request.Context(), repository.JobFilter{
		TenantID: c.Query("tenant_id"),
		Status:   c.Query("status"),
		Location: c.Query("location"),
		Company:  c.Query("company"),
		Sort:     c.Query("sort"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// Handles GET /api/v1/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Handles PUT /api/v1/jobs/:id
func (h *JobHandler) Update(c *gin.Context) {
	var req struct {
		Title    *string `json:"title"`
		Company  *string `json:"company"`
		Location *string `json:"location"`
		Status   *string `json:"status"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.service.Update(c.Request.Context(), c.Param("id"), service.JobUpdate{
		Title:    req.Title,
		Company:  req.Company,
		Location: req.Location,
		Status:   req.Status,
	})
	if err != nil && !h.staleAfterWrite(c, err) {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Handles DELETE /api/v1/jobs/:id
func (h *JobHandler) Delete(c *gin.Context) {
	err := h.service.Delete(c.Request.Context(), c.Param("id"))
	if err != nil && !h.staleAfterWrite(c, err) {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Job deleted successfully"})
}

// staleAfterWrite reports whether err only says the cache could not be
// invalidated. The write stands, so the caller still gets a success status
// with a Warning header.
func (h *JobHandler) staleAfterWrite(c *gin.Context, err error) bool {
	var invErr *service.InvalidationError
	if !errors.As(err, &invErr) {
		return false
	}

	h.logger.Warn("serving write response with stale cache",
		zap.String("request_id", c.GetString("request_id")),
		zap.String("job_id", invErr.JobID),
		zap.Error(invErr.Err),
	)
	c.Header("Warning", staleWarning)
	return true
}

func (h *JobHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, service.ErrInvalidJob):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("job request failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
