package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/feellog-api/internal/models"
)

const sessionColumns = `id, session_id, user_id, refresh_token, expires_at, created_at`

// SessionRepository persists refresh sessions in the refresh_tokens table.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateWithLimit inserts session while keeping at most limit sessions for its user.
// The user row is locked for the duration of the transaction so concurrent logins for
// the same user serialise. Sessions nearest to expiry are evicted first.
func (r *SessionRepository) CreateWithLimit(ctx context.Context, session *models.Session, limit int) (evicted int64, err error) {
	if limit <= 0 {
		return 0, fmt.Errorf("session limit must be positive")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin session transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var lockedID string
	const lockQuery = `SELECT id FROM users WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &lockedID, lockQuery, session.UserID); err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("lock session owner: %w", err)
	}

	var count int
	const countQuery = `SELECT COUNT(*) FROM refresh_tokens WHERE user_id = $1`
	if err = tx.GetContext(ctx, &count, countQuery, session.UserID); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}

	if count >= limit {
		const evictQuery = `DELETE FROM refresh_tokens WHERE id IN (SELECT id FROM refresh_tokens WHERE user_id = $1 ORDER BY expires_at ASC, created_at ASC, id ASC LIMIT $2)`
		var res sql.Result
		if res, err = tx.ExecContext(ctx, evictQuery, session.UserID, count-limit+1); err != nil {
			return 0, fmt.Errorf("evict sessions: %w", err)
		}
		if evicted, err = res.RowsAffected(); err != nil {
			return 0, fmt.Errorf("evict sessions: %w", err)
		}
	}

	const insertQuery = `INSERT INTO refresh_tokens (id, session_id, user_id, refresh_token, expires_at, created_at) VALUES (:id, :session_id, :user_id, :refresh_token, :expires_at, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, session); err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit session: %w", err)
	}
	return evicted, nil
}

// FindByTriple returns the session matching all three identifiers.
func (r *SessionRepository) FindByTriple(ctx context.Context, sessionID, userID, refreshToken string) (*models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM refresh_tokens WHERE session_id = $1 AND user_id = $2 AND refresh_token = $3 LIMIT 1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, sessionID, userID, refreshToken); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// FindByUserSession returns the session owned by userID with the given session id.
func (r *SessionRepository) FindByUserSession(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM refresh_tokens WHERE session_id = $1 AND user_id = $2 LIMIT 1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, sessionID, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user session: %w", err)
	}
	return &session, nil
}

// Delete removes one session and reports whether a row was deleted.
func (r *SessionRepository) Delete(ctx context.Context, sessionID, userID string) (bool, error) {
	const query = `DELETE FROM refresh_tokens WHERE session_id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return affected > 0, nil
}
