package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capigrid/capigrid/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(u *models.User) error {
	u.ID = uuid.New().String()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	u.IsActive = true

	_, err := r.db.Exec(`
		INSERT INTO users (id, email, password_hash, name, bio, avatar_url, google_sub, is_admin, is_active, is_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Bio, u.AvatarURL, u.GoogleSub, u.IsAdmin, u.IsActive, u.IsVerified, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

const userColumns = "id, email, password_hash, name, bio, avatar_url, google_sub, is_admin, is_active, is_verified, created_at, updated_at"

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Bio, &u.AvatarURL, &u.GoogleSub,
		&u.IsAdmin, &u.IsActive, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID returns a user by ID
func (r *UserRepository) GetByID(id string) (*models.User, error) {
	return scanUser(r.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// GetByEmail returns a user by email
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	return scanUser(r.db.QueryRow("SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

// GetByGoogleSub returns a user by Google OIDC subject
func (r *UserRepository) GetByGoogleSub(sub string) (*models.User, error) {
	return scanUser(r.db.QueryRow("SELECT "+userColumns+" FROM users WHERE google_sub = ?", sub))
}

// Update updates profile fields
func (r *UserRepository) Update(u *models.User) error {
	u.UpdatedAt = time.Now()
	_, err := r.db.Exec(`
		UPDATE users SET name = ?, bio = ?, avatar_url = ?, updated_at = ?
		WHERE id = ?`,
		u.Name, u.Bio, u.AvatarURL, u.UpdatedAt, u.ID,
	)
	return err
}

// LinkGoogle attaches a Google OIDC subject to an existing account.
// The email is considered verified once Google has vouched for it.
func (r *UserRepository) LinkGoogle(id, sub string) error {
	_, err := r.db.Exec("UPDATE users SET google_sub = ?, is_verified = 1, updated_at = ? WHERE id = ?",
		sub, time.Now(), id)
	return err
}

// SetPassword replaces the stored password hash
func (r *UserRepository) SetPassword(id, passwordHash string) error {
	_, err := r.db.Exec("UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
		passwordHash, time.Now(), id)
	return err
}

// SetVerified marks the user's email address as verified
func (r *UserRepository) SetVerified(id string) error {
	_, err := r.db.Exec("UPDATE users SET is_verified = 1, updated_at = ? WHERE id = ?",
		time.Now(), id)
	return err
}

// SetActive enables or disables the account
func (r *UserRepository) SetActive(id string, active bool) error {
	_, err := r.db.Exec("UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?",
		active, time.Now(), id)
	return err
}

// ListPaged returns users for the admin view
func (r *UserRepository) ListPaged(page, limit int) ([]models.User, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query("SELECT "+userColumns+" FROM users ORDER BY created_at DESC LIMIT ? OFFSET ?",
		limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Bio, &u.AvatarURL, &u.GoogleSub,
			&u.IsAdmin, &u.IsActive, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}

	return users, total, rows.Err()
}
