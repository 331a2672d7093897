package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType tags a JWT as an access or refresh credential.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// BearerTokenType is reported to clients alongside the access token.
const BearerTokenType = "bearer"

// RegisterRequest holds the payload for creating an account.
type RegisterRequest struct {
	Email           string `json:"email" validate:"required,email"`
	FullName        string `json:"full_name" validate:"required,min=3,max=100"`
	Password        string `json:"password" validate:"required,max=100"`
	ConfirmPassword string `json:"confirm_password" validate:"required,max=100"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries the session id header and the refresh token read from the cookie.
type RefreshRequest struct {
	SessionID    string
	RefreshToken string
}

// LogoutRequest identifies the session to destroy.
type LogoutRequest struct {
	SessionID    string
	UserID       string
	RefreshToken string
}

// ForgotPasswordRequest starts the OTP reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes the OTP reset flow.
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	OTP         string `json:"otp" validate:"required,numeric,len=6"`
	NewPassword string `json:"new_password" validate:"required,max=100"`
}

// Token is the response body for issued credentials.
type Token struct {
	AccessToken string `json:"access_token"`
	SessionID   string `json:"session_id"`
	TokenType   string `json:"token_type"`
}

// IssuedSession is what the auth service hands to the transport layer.
// RefreshToken must only leave the service through the session cookie.
type IssuedSession struct {
	Token            Token
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Claims is the JWT payload shared by access and refresh tokens.
type Claims struct {
	Type TokenType `json:"type"`
	jwt.RegisteredClaims
}

// TokenClaims is the decoded view of a verified token.
type TokenClaims struct {
	Subject   string
	Type      TokenType
	ExpiresAt time.Time
	ID        string
}

// MessageResponse is a plain acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}
