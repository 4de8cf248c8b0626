package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-events-api/internal/repository"
	"github.com/noah-isme/campus-events-api/internal/service"
	"github.com/noah-isme/campus-events-api/pkg/response"
)

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	db      *sqlx.DB
	cache   *repository.CacheRepository
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, db *sqlx.DB, cache *repository.CacheRepository) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, db: db, cache: cache}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Ready responds once the process is accepting traffic.
func (h *MetricsHandler) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Health godoc
// @Summary Service health
// @Description Report dependency status and aggregate counters
// @Tags System
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /health [get]
func (h *MetricsHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	dbStatus := "ok"
	if h.db == nil {
		dbStatus = "disabled"
	} else if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "unreachable"
	}

	cacheStatus := "ok"
	var pendingWrites int64
	if h.cache == nil {
		cacheStatus = "disabled"
	} else if depth, err := h.cache.PendingWriteCount(ctx); err != nil {
		cacheStatus = "unreachable"
	} else {
		pendingWrites = depth
	}

	payload := gin.H{
		"status":        "ok",
		"database":      dbStatus,
		"cache":         cacheStatus,
		"pendingWrites": pendingWrites,
	}
	if h.metrics != nil {
		snapshot := h.metrics.Snapshot()
		snapshot.PendingWrites = pendingWrites
		payload["metrics"] = snapshot
	}

	status := http.StatusOK
	if dbStatus == "unreachable" {
		payload["status"] = "degraded"
	}

	response.JSON(c, status, payload, nil)
}
