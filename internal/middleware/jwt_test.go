package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/feellog-api/internal/models"
	appErrors "github.com/noah-isme/feellog-api/pkg/errors"
)

type stubValidator struct {
	claims *models.TokenClaims
	err    error
	token  string
}

func (s *stubValidator) ValidateAccessToken(ctx context.Context, token string) (*models.TokenClaims, error) {
	s.token = token
	return s.claims, s.err
}

func serveJWT(v AccessTokenValidator, header string) (*httptest.ResponseRecorder, *models.TokenClaims) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var seen *models.TokenClaims
	r.GET("/me", JWT(v), func(c *gin.Context) {
		seen, _ = ClaimsFromContext(c)
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, seen
}

func TestJWTAcceptsBearerToken(t *testing.T) {
	v := &stubValidator{claims: &models.TokenClaims{Subject: "user-1", Type: models.TokenTypeAccess}}
	w, claims := serveJWT(v, "bearer abc.def.ghi")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc.def.ghi", v.token)
	require.NotNil(t, claims)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	for _, header := range []string{"", "Basic dXNlcjpwYXNz", "Bearer ", "token"} {
		w, _ := serveJWT(&stubValidator{}, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
	}
}

func TestJWTPropagatesValidatorError(t *testing.T) {
	v := &stubValidator{err: appErrors.Clone(appErrors.ErrUnauthorized, "Could not validate credentials")}
	w, claims := serveJWT(v, "Bearer refresh-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Could not validate credentials")
	assert.Nil(t, claims)
}
