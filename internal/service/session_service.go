package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/feellog-api/internal/models"
)

// ErrSessionNotFound is returned for any lookup miss. Callers cannot tell which identifier failed.
var ErrSessionNotFound = errors.New("session not found")

type sessionRepository interface {
	CreateWithLimit(ctx context.Context, session *models.Session, limit int) (int64, error)
	FindByTriple(ctx context.Context, sessionID, userID, refreshToken string) (*models.Session, error)
	FindByUserSession(ctx context.Context, sessionID, userID string) (*models.Session, error)
	Delete(ctx context.Context, sessionID, userID string) (bool, error)
}

// SessionStore tracks refresh sessions and enforces the per-user cap.
type SessionStore struct {
	repo        sessionRepository
	maxSessions int
	logger      *zap.Logger
	metrics     *MetricsService
	now         func() time.Time
}

// NewSessionStore constructs a SessionStore. maxSessions below one falls back to five.
func NewSessionStore(repo sessionRepository, maxSessions int, logger *zap.Logger, metrics *MetricsService) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSessions <= 0 {
		maxSessions = 5
	}
	return &SessionStore{repo: repo, maxSessions: maxSessions, logger: logger, metrics: metrics, now: time.Now}
}

// CreateSession persists a new session under a fresh id, evicting the sessions nearest
// to expiry when the user is at the cap.
func (s *SessionStore) CreateSession(ctx context.Context, userID, refreshToken string, expiresAt time.Time) (string, error) {
	session := &models.Session{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt.UTC(),
		CreatedAt:    s.now().UTC(),
	}
	evicted, err := s.repo.CreateWithLimit(ctx, session, s.maxSessions)
	if err != nil {
		return "", err
	}
	if evicted > 0 {
		s.logger.Info("evicted sessions over cap", zap.String("user_id", userID), zap.Int64("evicted", evicted), zap.Int("limit", s.maxSessions))
	}
	s.metrics.RecordSessionCreated(evicted)
	return session.SessionID, nil
}

// FindSession requires an exact match on session id, user id and refresh token.
func (s *SessionStore) FindSession(ctx context.Context, sessionID, userID, refreshToken string) (*models.Session, error) {
	if !validSessionID(sessionID) {
		return nil, ErrSessionNotFound
	}
	session, err := s.repo.FindByTriple(ctx, sessionID, userID, refreshToken)
	return session, notFound(err)
}

// FindUserSession looks a session up by its id and owner.
func (s *SessionStore) FindUserSession(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	if !validSessionID(sessionID) {
		return nil, ErrSessionNotFound
	}
	session, err := s.repo.FindByUserSession(ctx, sessionID, userID)
	return session, notFound(err)
}

// IsExpired compares the stored expiry with the current UTC time.
func (s *SessionStore) IsExpired(session *models.Session) bool {
	return session.StateAt(s.now()) == models.SessionExpired
}

// DeleteSession removes one session. A concurrent delete surfaces as ErrSessionNotFound.
func (s *SessionStore) DeleteSession(ctx context.Context, sessionID, userID string) error {
	if !validSessionID(sessionID) {
		return ErrSessionNotFound
	}
	deleted, err := s.repo.Delete(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteExpired removes a session found to be past its expiry.
func (s *SessionStore) DeleteExpired(ctx context.Context, session *models.Session) error {
	err := s.DeleteSession(ctx, session.SessionID, session.UserID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return err
}

// validSessionID rejects client supplied ids that could never match a stored uuid.
func validSessionID(sessionID string) bool {
	_, err := uuid.Parse(sessionID)
	return err == nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	return err
}
