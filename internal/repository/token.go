package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capigrid/capigrid/internal/models"
)

type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create issues a new single-use token for a user
func (r *TokenRepository) Create(userID string, purpose models.EmailTokenPurpose, ttl time.Duration) (*models.EmailToken, error) {
	t := &models.EmailToken{
		Token:     uuid.New().String(),
		UserID:    userID,
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}

	_, err := r.db.Exec(`
		INSERT INTO email_tokens (token, user_id, purpose, expires_at, consumed, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		t.Token, t.UserID, t.Purpose, t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}
	return t, nil
}

// Consume marks the token used and returns it. Expired, already consumed, or
// unknown tokens return nil.
func (r *TokenRepository) Consume(token string, purpose models.EmailTokenPurpose) (*models.EmailToken, error) {
	res, err := r.db.Exec(`
		UPDATE email_tokens SET consumed = 1
		WHERE token = ? AND purpose = ? AND consumed = 0 AND expires_at > ?`,
		token, purpose, time.Now(),
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	t := &models.EmailToken{Consumed: true}
	err = r.db.QueryRow(`
		SELECT token, user_id, purpose, expires_at, created_at
		FROM email_tokens WHERE token = ?`, token,
	).Scan(&t.Token, &t.UserID, &t.Purpose, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteExpired removes stale tokens
func (r *TokenRepository) DeleteExpired() (int64, error) {
	res, err := r.db.Exec("DELETE FROM email_tokens WHERE expires_at < ?", time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
