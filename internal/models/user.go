package models

import "time"

// User is an account on the platform
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Bio          string    `json:"bio,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	GoogleSub    string    `json:"-"` // OIDC subject for Google sign-in accounts
	IsAdmin      bool      `json:"is_admin"`
	IsActive     bool      `json:"is_active"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EmailTokenPurpose separates verification tokens from password reset tokens
type EmailTokenPurpose string

const (
	TokenPurposeVerify EmailTokenPurpose = "verify"
	TokenPurposeReset  EmailTokenPurpose = "reset"
)

// EmailToken is a single-use token mailed to a user
type EmailToken struct {
	Token     string            `json:"token"`
	UserID    string            `json:"user_id"`
	Purpose   EmailTokenPurpose `json:"purpose"`
	ExpiresAt time.Time         `json:"expires_at"`
	Consumed  bool              `json:"consumed"`
	CreatedAt time.Time         `json:"created_at"`
}
