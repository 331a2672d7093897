package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/feellog-api/internal/models"
	"github.com/noah-isme/feellog-api/internal/repository"
	appErrors "github.com/noah-isme/feellog-api/pkg/errors"
)

const otpDigits = 6

const credentialsMessage = "Could not validate credentials"

type authUserRepository interface {
	FindActiveByEmail(ctx context.Context, email string) (*models.User, error)
	FindActiveByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	SetOTP(ctx context.Context, id, code string, expiresAt time.Time) error
}

type passwordResetMailer interface {
	SendPasswordReset(ctx context.Context, email, fullName, code string, expiresAt time.Time) error
}

// AuthConfig defines policy for authentication flows.
type AuthConfig struct {
	PasswordMinLength int
	OTPTTL            time.Duration
	ProfilePhotos     []string
}

// AuthService provides authentication use cases.
type AuthService struct {
	users     authUserRepository
	sessions  *SessionStore
	tokens    *TokenService
	hasher    *PasswordHasher
	mailer    passwordResetMailer
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	config    AuthConfig
	now       func() time.Time
}

// NewValidator returns a validator reporting fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, sessions *SessionStore, tokens *TokenService, hasher *PasswordHasher, mailer passwordResetMailer, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if hasher == nil {
		hasher = NewPasswordHasher(0)
	}
	if config.PasswordMinLength <= 0 {
		config.PasswordMinLength = 6
	}
	if config.OTPTTL <= 0 {
		config.OTPTTL = 15 * time.Minute
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		hasher:    hasher,
		mailer:    mailer,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		config:    config,
		now:       time.Now,
	}
}

// Register creates an account and opens its first session.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (issued *models.IssuedSession, err error) {
	defer func() { s.metrics.RecordAuthEvent("register", err) }()

	req.Email = normalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validateRegistration(req); err != nil {
		return nil, err
	}

	if _, err := s.users.FindActiveByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "Email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, s.internal(err, "failed to fetch user")
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, s.internal(err, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: digest,
		ProfilePhoto: s.pickProfilePhoto(),
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "Email already registered")
		}
		return nil, s.internal(err, "failed to create user")
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return s.openSession(ctx, user)
}

// Login verifies credentials and opens a new session.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (issued *models.IssuedSession, err error) {
	defer func() { s.metrics.RecordAuthEvent("login", err) }()

	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid login payload")
	}

	user, err := s.users.FindActiveByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return nil, s.internal(err, "failed to fetch user")
	}

	ok, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return nil, s.internal(err, "failed to verify password")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Invalid credentials")
	}

	return s.openSession(ctx, user)
}

// Refresh mints a new access token for a stored, unexpired session.
// The session row and its refresh token are left unchanged.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (token *models.Token, err error) {
	defer func() { s.metrics.RecordAuthEvent("refresh", err) }()

	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.RefreshToken) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Session ID and refresh token are required")
	}

	claims, err := s.tokens.ParseAs(req.RefreshToken, models.TokenTypeRefresh)
	tokenExpired := errors.Is(err, ErrTokenExpired)
	if claims == nil || (err != nil && !tokenExpired) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Invalid refresh token")
	}

	session, err := s.sessions.FindSession(ctx, req.SessionID, claims.Subject, req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Refresh token not found")
		}
		return nil, s.internal(err, "failed to load session")
	}

	if tokenExpired || s.sessions.IsExpired(session) {
		if err := s.sessions.DeleteExpired(ctx, session); err != nil {
			return nil, s.internal(err, "failed to delete expired session")
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Refresh token expired")
	}

	access, _, err := s.tokens.IssueAccess(session.UserID)
	if err != nil {
		return nil, s.internal(err, "failed to create access token")
	}

	return &models.Token{AccessToken: access, SessionID: session.SessionID, TokenType: models.BearerTokenType}, nil
}

// Logout destroys one session belonging to the caller. Other sessions are untouched.
func (s *AuthService) Logout(ctx context.Context, req models.LogoutRequest) (err error) {
	defer func() { s.metrics.RecordAuthEvent("logout", err) }()

	if strings.TrimSpace(req.SessionID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "Session ID is required")
	}

	if req.RefreshToken != "" {
		_, err = s.sessions.FindSession(ctx, req.SessionID, req.UserID, req.RefreshToken)
	} else {
		_, err = s.sessions.FindUserSession(ctx, req.SessionID, req.UserID)
	}
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "Session not found")
		}
		return s.internal(err, "failed to load session")
	}

	if err := s.sessions.DeleteSession(ctx, req.SessionID, req.UserID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "Session not found")
		}
		return s.internal(err, "failed to delete session")
	}

	s.logger.Info("session closed", zap.String("user_id", req.UserID), zap.String("session_id", req.SessionID))
	return nil
}

// ForgotPassword stores a one-time reset code on the user and queues it for delivery.
func (s *AuthService) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) (err error) {
	defer func() { s.metrics.RecordAuthEvent("forgot_password", err) }()

	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid forgot password payload")
	}

	user, err := s.users.FindActiveByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return s.internal(err, "failed to fetch user")
	}

	code, err := generateOTP()
	if err != nil {
		return s.internal(err, "failed to generate reset code")
	}
	expiresAt := s.now().UTC().Add(s.config.OTPTTL)

	if err := s.users.SetOTP(ctx, user.ID, code, expiresAt); err != nil {
		return s.internal(err, "failed to store reset code")
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, user.FullName, code, expiresAt); err != nil {
		return s.internal(err, "failed to send reset code")
	}
	return nil
}

// ResetPassword replaces the password when the one-time code matches and is unexpired.
func (s *AuthService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) (err error) {
	defer func() { s.metrics.RecordAuthEvent("reset_password", err) }()

	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid reset password payload")
	}
	if err := s.validatePasswordLength(req.NewPassword); err != nil {
		return err
	}

	invalid := appErrors.Clone(appErrors.ErrUnauthorized, "Invalid or expired reset code")
	user, err := s.users.FindActiveByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invalid
		}
		return s.internal(err, "failed to fetch user")
	}
	if user.OTPCode == nil || subtle.ConstantTimeCompare([]byte(*user.OTPCode), []byte(req.OTP)) != 1 {
		return invalid
	}
	if user.OTPExpiresAt == nil || !s.now().UTC().Before(user.OTPExpiresAt.UTC()) {
		return invalid
	}

	digest, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return s.internal(err, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, user.ID, digest, s.now().UTC()); err != nil {
		return s.internal(err, "failed to update password")
	}

	s.logger.Info("password reset", zap.String("user_id", user.ID))
	return nil
}

// Profile returns the public view of an active user.
func (s *AuthService) Profile(ctx context.Context, userID string) (*models.UserPublic, error) {
	user, err := s.users.FindActiveByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, credentialsMessage)
		}
		return nil, s.internal(err, "failed to fetch user")
	}
	profile := user.Public()
	return &profile, nil
}

// ValidateAccessToken accepts only unexpired access tokens whose subject is an active user.
func (s *AuthService) ValidateAccessToken(ctx context.Context, tokenString string) (*models.TokenClaims, error) {
	claims, err := s.tokens.ParseAs(tokenString, models.TokenTypeAccess)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, credentialsMessage)
	}
	if _, err := s.users.FindActiveByID(ctx, claims.Subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, credentialsMessage)
		}
		return nil, s.internal(err, "failed to fetch user")
	}
	return claims, nil
}

func (s *AuthService) openSession(ctx context.Context, user *models.User) (*models.IssuedSession, error) {
	refresh, refreshExpiresAt, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, s.internal(err, "failed to create refresh token")
	}

	sessionID, err := s.sessions.CreateSession(ctx, user.ID, refresh, refreshExpiresAt)
	if err != nil {
		return nil, s.internal(err, "failed to persist session")
	}

	access, _, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return nil, s.internal(err, "failed to create access token")
	}

	return &models.IssuedSession{
		Token: models.Token{
			AccessToken: access,
			SessionID:   sessionID,
			TokenType:   models.BearerTokenType,
		},
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

func (s *AuthService) validateRegistration(req models.RegisterRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid registration payload")
	}
	if req.Password != req.ConfirmPassword {
		return appErrors.Clone(appErrors.ErrValidation, "Passwords do not match")
	}
	return s.validatePasswordLength(req.Password)
}

func (s *AuthService) validatePasswordLength(password string) error {
	if len([]rune(password)) < s.config.PasswordMinLength {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("Password must be at least %d characters long", s.config.PasswordMinLength))
	}
	return nil
}

func (s *AuthService) pickProfilePhoto() string {
	if len(s.config.ProfilePhotos) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(s.config.ProfilePhotos))))
	if err != nil {
		return s.config.ProfilePhotos[0]
	}
	return s.config.ProfilePhotos[n.Int64()]
}

func (s *AuthService) internal(err error, message string) *appErrors.Error {
	s.logger.Error(message, zap.Error(err))
	return appErrors.Internal(err, appErrors.ErrInternal.Message)
}

func validationError(err error, fallback string) *appErrors.Error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fallback)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}
