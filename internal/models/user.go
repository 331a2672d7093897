package models

import "time"

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	ProfilePhoto string     `db:"profile_photo" json:"profile_photo"`
	Active       bool       `db:"is_active" json:"is_active"`
	OTPCode      *string    `db:"otp_code" json:"-"`
	OTPExpiresAt *time.Time `db:"otp_expires_at" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserPublic is the profile view returned to the account owner.
type UserPublic struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	ProfilePhoto string    `json:"profile_photo"`
	CreatedAt    time.Time `json:"created_at"`
}

// Public strips credentials from the user record.
func (u *User) Public() UserPublic {
	return UserPublic{
		ID:           u.ID,
		Email:        u.Email,
		FullName:     u.FullName,
		ProfilePhoto: u.ProfilePhoto,
		CreatedAt:    u.CreatedAt,
	}
}
