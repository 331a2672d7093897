package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/feellog-api/internal/models"
)

// ErrDuplicateEmail is returned when an active user already holds the email.
var ErrDuplicateEmail = errors.New("email already registered")

const uniqueViolation = "23505"

const userColumns = `id, email, password_hash, full_name, profile_photo, is_active, otp_code, otp_expires_at, created_at, updated_at`

// UserRepository provides database access for user accounts.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindActiveByEmail returns the active user holding email.
func (r *UserRepository) FindActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND is_active = TRUE LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindActiveByID returns an active user by identifier.
func (r *UserRepository) FindActiveByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND is_active = TRUE LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, email, password_hash, full_name, profile_photo, is_active, created_at, updated_at) VALUES (:id, :email, :password_hash, :full_name, :profile_photo, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdatePassword replaces the password hash and clears any pending OTP.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, otp_code = NULL, otp_expires_at = NULL, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetOTP stores a password reset code with its expiry.
func (r *UserRepository) SetOTP(ctx context.Context, id, code string, expiresAt time.Time) error {
	const query = `UPDATE users SET otp_code = $2, otp_expires_at = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, code, expiresAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("set otp: %w", err)
	}
	return nil
}
