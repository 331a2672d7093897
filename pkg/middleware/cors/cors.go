package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowHeaders  = "Authorization, Content-Type, X-Requested-With, X-Request-ID, X-Session-ID"
	exposeHeaders = "X-Request-ID, WWW-Authenticate, Retry-After"
)

// New returns a CORS middleware that honors a list of allowed origins.
// Credentials are always allowed because the refresh token travels in a cookie,
// so the request origin is echoed back instead of a wildcard.
func New(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || hasOrigin(originSet, origin)) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Expose-Headers", exposeHeaders)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Max-Age", "600")
		}
		c.Writer.Header().Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func hasOrigin(originSet map[string]struct{}, origin string) bool {
	origin = strings.TrimRight(origin, "/")
	_, ok := originSet[origin]
	return ok
}
