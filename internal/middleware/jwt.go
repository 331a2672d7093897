package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/feellog-api/internal/models"
	appErrors "github.com/noah-isme/feellog-api/pkg/errors"
	"github.com/noah-isme/feellog-api/pkg/response"
)

// ContextUserKey is the gin context key storing verified access token claims.
const ContextUserKey = "currentUser"

// AccessTokenValidator verifies bearer access tokens.
type AccessTokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*models.TokenClaims, error)
}

// JWT protects routes by requiring a valid access token.
func JWT(validator AccessTokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "Not authenticated"))
			return
		}

		claims, err := validator.ValidateAccessToken(c.Request.Context(), token)
		if err != nil {
			response.Abort(c, err)
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// ClaimsFromContext returns the claims set by JWT, if any.
func ClaimsFromContext(c *gin.Context) (*models.TokenClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.TokenClaims)
	return claims, ok && claims != nil
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
