package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/capigrid/capigrid/internal/models"
)

type RewardRepository struct {
	db *sql.DB
}

func NewRewardRepository(db *sql.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

// Create creates a new reward tier
func (r *RewardRepository) Create(rw *models.Reward) error {
	rw.ID = uuid.New().String()
	rw.CreatedAt = time.Now()
	rw.Claimed = 0

	var limited any
	if rw.LimitedQuantity != nil {
		limited = *rw.LimitedQuantity
	}

	_, err := r.db.Exec(`
		INSERT INTO rewards (id, campaign_id, title, description, amount, limited_quantity, claimed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		rw.ID, rw.CampaignID, rw.Title, rw.Description, rw.Amount.String(), limited, rw.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reward: %w", err)
	}
	return nil
}

func scanReward(scan func(dest ...any) error) (*models.Reward, error) {
	rw := &models.Reward{}
	var amount string
	var limited sql.NullInt64

	err := scan(&rw.ID, &rw.CampaignID, &rw.Title, &rw.Description, &amount, &limited, &rw.Claimed, &rw.CreatedAt)
	if err != nil {
		return nil, err
	}

	if limited.Valid {
		rw.LimitedQuantity = &limited.Int64
	}
	if rw.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount for reward %s: %w", rw.ID, err)
	}
	return rw, nil
}

// GetByID returns a reward by ID
func (r *RewardRepository) GetByID(id string) (*models.Reward, error) {
	row := r.db.QueryRow(`
		SELECT id, campaign_id, title, description, amount, limited_quantity, claimed, created_at
		FROM rewards WHERE id = ?`, id)
	rw, err := scanReward(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rw, nil
}

// ListByCampaign returns all reward tiers of a campaign, cheapest first
func (r *RewardRepository) ListByCampaign(campaignID string) ([]models.Reward, error) {
	rows, err := r.db.Query(`
		SELECT id, campaign_id, title, description, amount, limited_quantity, claimed, created_at
		FROM rewards WHERE campaign_id = ?
		ORDER BY CAST(amount AS REAL)`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rewards := []models.Reward{}
	for rows.Next() {
		rw, err := scanReward(rows.Scan)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, *rw)
	}

	return rewards, rows.Err()
}
