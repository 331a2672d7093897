package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/feellog-api/internal/service"
	appErrors "github.com/noah-isme/feellog-api/pkg/errors"
	"github.com/noah-isme/feellog-api/pkg/logger"
	"github.com/noah-isme/feellog-api/pkg/ratelimit"
	"github.com/noah-isme/feellog-api/pkg/response"
)

// RateLimit rejects clients that exceed the limiter budget for scope.
// Limiter failures are logged and the request is let through.
func RateLimit(scope string, limiter ratelimit.Limiter, metrics *service.MetricsService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		key := scope + ":" + c.ClientIP()
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), key, time.Now())
		if err != nil {
			logger.ForRequest(log, c).Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			metrics.RecordRateLimited(scope)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			response.Abort(c, appErrors.Clone(appErrors.ErrRateLimited, "Rate limit exceeded"))
			return
		}
		c.Next()
	}
}
