package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/feellog-api/internal/service"
	appErrors "github.com/noah-isme/feellog-api/pkg/errors"
	"github.com/noah-isme/feellog-api/pkg/response"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	db      Pinger
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, db Pinger) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, db: db}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Summary returns aggregated counters as JSON.
func (h *MetricsHandler) Summary(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot())
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready checks the database before reporting ready.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, response.ErrorBody{Detail: "database unavailable", Code: appErrors.ErrInternal.Code})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
