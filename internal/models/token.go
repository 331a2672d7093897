package models

import "time"

// Session is a persisted refresh token bound to a client session id.
// Rows live in the refresh_tokens table.
type Session struct {
	ID           string    `db:"id" json:"-"`
	SessionID    string    `db:"session_id" json:"session_id"`
	UserID       string    `db:"user_id" json:"user_id"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SessionState is the lifecycle position of a session at a point in time.
type SessionState string

const (
	SessionActive  SessionState = "ACTIVE"
	SessionExpired SessionState = "EXPIRED"
)

// StateAt reports whether the session is still usable at now.
func (s *Session) StateAt(now time.Time) SessionState {
	if !now.UTC().Before(s.ExpiresAt.UTC()) {
		return SessionExpired
	}
	return SessionActive
}
