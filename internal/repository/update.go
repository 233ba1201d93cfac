package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capigrid/capigrid/internal/models"
)

type UpdateRepository struct {
	db *sql.DB
}

func NewUpdateRepository(db *sql.DB) *UpdateRepository {
	return &UpdateRepository{db: db}
}

// Create creates a campaign update post
func (r *UpdateRepository) Create(u *models.CampaignUpdate) error {
	u.ID = uuid.New().String()
	u.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO campaign_updates (id, campaign_id, title, body, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.CampaignID, u.Title, u.Body, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign update: %w", err)
	}
	return nil
}

// ListByCampaign returns updates for a campaign, newest first
func (r *UpdateRepository) ListByCampaign(campaignID string) ([]models.CampaignUpdate, error) {
	rows, err := r.db.Query(`
		SELECT id, campaign_id, title, body, created_at
		FROM campaign_updates WHERE campaign_id = ?
		ORDER BY created_at DESC`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	updates := []models.CampaignUpdate{}
	for rows.Next() {
		var u models.CampaignUpdate
		if err := rows.Scan(&u.ID, &u.CampaignID, &u.Title, &u.Body, &u.CreatedAt); err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}

	return updates, rows.Err()
}
