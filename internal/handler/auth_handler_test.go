package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/feellog-api/internal/models"
	"github.com/noah-isme/feellog-api/internal/service"
	appErrors "github.com/noah-isme/feellog-api/pkg/errors"
	"github.com/noah-isme/feellog-api/pkg/ratelimit"
)

type authServiceMock struct {
	issued      *models.IssuedSession
	token       *models.Token
	profile     *models.UserPublic
	err         error
	lastRefresh models.RefreshRequest
	lastLogout  models.LogoutRequest
	lastLogin   models.LoginRequest
}

func (m *authServiceMock) Register(ctx context.Context, req models.RegisterRequest) (*models.IssuedSession, error) {
	return m.issued, m.err
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.IssuedSession, error) {
	m.lastLogin = req
	return m.issued, m.err
}

func (m *authServiceMock) Refresh(ctx context.Context, req models.RefreshRequest) (*models.Token, error) {
	m.lastRefresh = req
	return m.token, m.err
}

func (m *authServiceMock) Logout(ctx context.Context, req models.LogoutRequest) error {
	m.lastLogout = req
	return m.err
}

func (m *authServiceMock) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	return m.err
}

func (m *authServiceMock) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	return m.err
}

func (m *authServiceMock) Profile(ctx context.Context, userID string) (*models.UserPublic, error) {
	return m.profile, m.err
}

type validatorStub struct {
	claims *models.TokenClaims
}

func (v validatorStub) ValidateAccessToken(ctx context.Context, token string) (*models.TokenClaims, error) {
	if token != "good-access" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Could not validate credentials")
	}
	return v.claims, nil
}

func newTestRouter(svc *authServiceMock, limiters Limiters) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{
		APIPrefix: "/api",
		Auth:      NewAuthHandler(svc, CookieConfig{Secure: true, Path: "/api/auth", MaxAge: time.Hour}),
		Metrics:   NewMetricsHandler(service.NewMetricsService(), nil),
		Validator: validatorStub{claims: &models.TokenClaims{Subject: "user-1", Type: models.TokenTypeAccess}},
		Limiters:  limiters,
	})
}

func issuedSession() *models.IssuedSession {
	return &models.IssuedSession{
		Token:            models.Token{AccessToken: "access", SessionID: "sess-1", TokenType: models.BearerTokenType},
		RefreshToken:     "refresh-secret",
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthHandlerLoginSetsRefreshCookie(t *testing.T) {
	svc := &authServiceMock{issued: issuedSession()}
	r := newTestRouter(svc, Limiters{})

	body, _ := json.Marshal(models.LoginRequest{Email: "a@x.com", Password: "secret123"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "refresh-secret")

	var token models.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))
	assert.Equal(t, "access", token.AccessToken)
	assert.Equal(t, "sess-1", token.SessionID)
	assert.Equal(t, "bearer", token.TokenType)

	cookie := findCookie(w, "refresh_token_sess-1")
	require.NotNil(t, cookie)
	assert.Equal(t, "refresh-secret", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, "/api/auth", cookie.Path)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.Equal(t, "a@x.com", svc.lastLogin.Email)
}

func TestAuthHandlerRegisterRejectsBadJSON(t *testing.T) {
	r := newTestRouter(&authServiceMock{}, Limiters{})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"detail"`)
}

func TestAuthHandlerRefreshReadsSessionCookie(t *testing.T) {
	svc := &authServiceMock{token: &models.Token{AccessToken: "new-access", SessionID: "sess-1", TokenType: "bearer"}}
	r := newTestRouter(svc, Limiters{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.Header.Set(SessionHeader, "sess-1")
	req.AddCookie(&http.Cookie{Name: "refresh_token_sess-1", Value: "refresh-secret"})
	req.AddCookie(&http.Cookie{Name: "refresh_token_sess-2", Value: "other"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RefreshRequest{SessionID: "sess-1", RefreshToken: "refresh-secret"}, svc.lastRefresh)
	assert.Contains(t, w.Body.String(), "new-access")
	assert.Nil(t, findCookie(w, "refresh_token_sess-1"))
}

func TestAuthHandlerRefreshUnauthorizedHasChallenge(t *testing.T) {
	svc := &authServiceMock{err: appErrors.Clone(appErrors.ErrUnauthorized, "Refresh token not found")}
	r := newTestRouter(svc, Limiters{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.Header.Set(SessionHeader, "sess-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
	assert.JSONEq(t, `{"detail":"Refresh token not found","code":"UNAUTHORIZED"}`, w.Body.String())
	assert.Equal(t, "", svc.lastRefresh.RefreshToken)
}

func TestAuthHandlerLogoutClearsCookie(t *testing.T) {
	svc := &authServiceMock{}
	r := newTestRouter(svc, Limiters{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer good-access")
	req.Header.Set(SessionHeader, "sess-1")
	req.AddCookie(&http.Cookie{Name: "refresh_token_sess-1", Value: "refresh-secret"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.LogoutRequest{SessionID: "sess-1", UserID: "user-1", RefreshToken: "refresh-secret"}, svc.lastLogout)
	cookie := findCookie(w, "refresh_token_sess-1")
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.True(t, cookie.MaxAge < 0)
}

func TestAuthHandlerLogoutRequiresAccessToken(t *testing.T) {
	svc := &authServiceMock{}
	r := newTestRouter(svc, Limiters{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer refresh-secret")
	req.Header.Set(SessionHeader, "sess-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.lastLogout.SessionID)
}

func TestAuthHandlerLogoutNotFound(t *testing.T) {
	svc := &authServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "Session not found")}
	r := newTestRouter(svc, Limiters{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer good-access")
	req.Header.Set(SessionHeader, "sess-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Nil(t, findCookie(w, "refresh_token_sess-1"))
}

func TestAuthHandlerMe(t *testing.T) {
	svc := &authServiceMock{profile: &models.UserPublic{ID: "user-1", Email: "a@x.com", FullName: "Alice Example"}}
	r := newTestRouter(svc, Limiters{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good-access")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"a@x.com"`)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestAuthHandlerLoginRateLimited(t *testing.T) {
	svc := &authServiceMock{issued: issuedSession()}
	r := newTestRouter(svc, Limiters{Auth: ratelimit.NewMemory(1, time.Minute)})

	send := func() int {
		body, _ := json.Marshal(models.LoginRequest{Email: "a@x.com", Password: "secret123"})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestAuthHandlerRateLimitIsPerRoute(t *testing.T) {
	svc := &authServiceMock{issued: issuedSession()}
	r := newTestRouter(svc, Limiters{Auth: ratelimit.NewMemory(2, time.Minute)})

	post := func(path string, payload interface{}) int {
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	forgot := models.ForgotPasswordRequest{Email: "a@x.com"}
	assert.Equal(t, http.StatusOK, post("/api/auth/forgot-password", forgot))
	assert.Equal(t, http.StatusOK, post("/api/auth/forgot-password", forgot))
	assert.Equal(t, http.StatusTooManyRequests, post("/api/auth/forgot-password", forgot))

	login := models.LoginRequest{Email: "a@x.com", Password: "secret123"}
	assert.Equal(t, http.StatusOK, post("/api/auth/login", login))
	assert.Equal(t, http.StatusOK, post("/api/auth/login", login))
	assert.Equal(t, http.StatusTooManyRequests, post("/api/auth/login", login))

	assert.Equal(t, http.StatusOK, post("/api/auth/register", registerPayload()))
}

func registerPayload() models.RegisterRequest {
	return models.RegisterRequest{Email: "a@x.com", FullName: "Alice Example", Password: "secret123", ConfirmPassword: "secret123"}
}

func TestAuthHandlerForgotAndResetPassword(t *testing.T) {
	svc := &authServiceMock{}
	r := newTestRouter(svc, Limiters{})

	body, _ := json.Marshal(models.ForgotPasswordRequest{Email: "a@x.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/forgot-password", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	body, _ = json.Marshal(models.ResetPasswordRequest{Email: "a@x.com", OTP: "123456", NewPassword: "brandnew1"})
	req = httptest.NewRequest(http.MethodPost, "/api/auth/reset-password", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Password reset successful")
}
