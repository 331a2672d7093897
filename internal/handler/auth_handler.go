package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/feellog-api/internal/middleware"
	"github.com/noah-isme/feellog-api/internal/models"
	appErrors "github.com/noah-isme/feellog-api/pkg/errors"
	"github.com/noah-isme/feellog-api/pkg/response"
)

// SessionHeader carries the client's session id on refresh and logout.
const SessionHeader = "X-Session-ID"

const refreshCookiePrefix = "refresh_token_"

type authService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.IssuedSession, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.IssuedSession, error)
	Refresh(ctx context.Context, req models.RefreshRequest) (*models.Token, error)
	Logout(ctx context.Context, req models.LogoutRequest) error
	ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error
	Profile(ctx context.Context, userID string) (*models.UserPublic, error)
}

// CookieConfig controls the refresh token cookie.
type CookieConfig struct {
	Secure bool
	Domain string
	Path   string
	MaxAge time.Duration
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
	cookie  CookieConfig
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService, cookie CookieConfig) *AuthHandler {
	if cookie.Path == "" {
		cookie.Path = "/api/auth"
	}
	return &AuthHandler{service: svc, cookie: cookie}
}

// RefreshCookieName returns the cookie name used for sessionID.
func RefreshCookieName(sessionID string) string {
	return refreshCookiePrefix + sessionID
}

// Register godoc
// @Summary Register account
// @Description Create an account and open its first session. The refresh token is set as an HttpOnly cookie named refresh_token_<session_id>.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 200 {object} models.Token
// @Failure 400 {object} response.ErrorBody
// @Failure 429 {object} response.ErrorBody
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	issued, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, issued)
	response.JSON(c, http.StatusOK, issued.Token)
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate by email and password and open a new session. The refresh token is set as an HttpOnly cookie.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} models.Token
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Failure 429 {object} response.ErrorBody
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	issued, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, issued)
	response.JSON(c, http.StatusOK, issued.Token)
}

// Refresh godoc
// @Summary Refresh access token
// @Description Mint a new access token from the session cookie. The session and its refresh token are unchanged.
// @Tags Authentication
// @Produce json
// @Param X-Session-ID header string true "Session id"
// @Success 200 {object} models.Token
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Failure 429 {object} response.ErrorBody
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	sessionID := strings.TrimSpace(c.GetHeader(SessionHeader))
	req := models.RefreshRequest{SessionID: sessionID, RefreshToken: h.refreshCookie(c, sessionID)}

	token, err := h.service.Refresh(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, token)
}

// Logout godoc
// @Summary Logout current session
// @Description Delete the session named by X-Session-ID and clear its cookie. Other sessions stay valid.
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Param X-Session-ID header string true "Session id"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessionID := strings.TrimSpace(c.GetHeader(SessionHeader))
	req := models.LogoutRequest{
		SessionID:    sessionID,
		UserID:       claims.Subject,
		RefreshToken: h.refreshCookie(c, sessionID),
	}
	if err := h.service.Logout(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	h.clearRefreshCookie(c, sessionID)
	response.JSON(c, http.StatusOK, models.MessageResponse{Message: "Successfully logged out"})
}

// ForgotPassword godoc
// @Summary Request password reset code
// @Description Send a six digit one-time code to the account email. The code is valid for 15 minutes.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ForgotPasswordRequest true "Account email"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid forgot password payload"))
		return
	}

	if err := h.service.ForgotPassword(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, models.MessageResponse{Message: "OTP sent to your email"})
}

// ResetPassword godoc
// @Summary Reset password
// @Description Replace the password using the one-time code from forgot-password.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ResetPasswordRequest true "Reset payload"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reset password payload"))
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, models.MessageResponse{Message: "Password reset successful"})
}

// Me godoc
// @Summary Current user profile
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.UserPublic
// @Failure 401 {object} response.ErrorBody
// @Failure 429 {object} response.ErrorBody
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	profile, err := h.service.Profile(c.Request.Context(), claims.Subject)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, profile)
}

func (h *AuthHandler) refreshCookie(c *gin.Context, sessionID string) string {
	if sessionID == "" {
		return ""
	}
	value, err := c.Cookie(RefreshCookieName(sessionID))
	if err != nil {
		return ""
	}
	return value
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, issued *models.IssuedSession) {
	maxAge := int(h.cookie.MaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int(time.Until(issued.RefreshExpiresAt).Seconds())
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName(issued.Token.SessionID), issued.RefreshToken, maxAge, h.cookie.Path, h.cookie.Domain, h.cookie.Secure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context, sessionID string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName(sessionID), "", -1, h.cookie.Path, h.cookie.Domain, h.cookie.Secure, true)
}
