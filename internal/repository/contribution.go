package repository

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/capigrid/capigrid/internal/models"
)

// ContributionRepository reads the contribution ledger. Writes go through the
// ledger engine only.
type ContributionRepository struct {
	db *sql.DB
}

func NewContributionRepository(db *sql.DB) *ContributionRepository {
	return &ContributionRepository{db: db}
}

func scanContribution(scan func(dest ...any) error) (*models.Contribution, error) {
	c := &models.Contribution{}
	var rewardID sql.NullString
	var amount string

	err := scan(&c.ID, &c.CampaignID, &c.UserID, &rewardID, &amount, &c.Message, &c.Anonymous, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	if rewardID.Valid {
		c.RewardID = rewardID.String
	}
	if c.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount for contribution %s: %w", c.ID, err)
	}
	return c, nil
}

const contributionColumns = "id, campaign_id, user_id, reward_id, amount, message, anonymous, created_at"

// GetByID returns a contribution by ID
func (r *ContributionRepository) GetByID(id string) (*models.Contribution, error) {
	row := r.db.QueryRow("SELECT "+contributionColumns+" FROM contributions WHERE id = ?", id)
	c, err := scanContribution(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListByCampaign returns all contributions to a campaign, newest first
func (r *ContributionRepository) ListByCampaign(campaignID string) ([]models.Contribution, error) {
	return r.list("campaign_id", campaignID)
}

// ListByUser returns all contributions made by a user, newest first
func (r *ContributionRepository) ListByUser(userID string) ([]models.Contribution, error) {
	return r.list("user_id", userID)
}

func (r *ContributionRepository) list(column, value string) ([]models.Contribution, error) {
	rows, err := r.db.Query(
		"SELECT "+contributionColumns+" FROM contributions WHERE "+column+" = ? ORDER BY created_at DESC, id",
		value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contributions := []models.Contribution{}
	for rows.Next() {
		c, err := scanContribution(rows.Scan)
		if err != nil {
			return nil, err
		}
		contributions = append(contributions, *c)
	}

	return contributions, rows.Err()
}

// SumByCampaign recomputes the ledger total and entry count for a campaign
// from the source of truth. Used to cross-check the denormalized counters.
func (r *ContributionRepository) SumByCampaign(campaignID string) (decimal.Decimal, int, error) {
	rows, err := r.db.Query("SELECT amount FROM contributions WHERE campaign_id = ?", campaignID)
	if err != nil {
		return decimal.Zero, 0, err
	}
	defer rows.Close()

	sum := decimal.Zero
	count := 0
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return decimal.Zero, 0, err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, 0, fmt.Errorf("invalid ledger amount: %w", err)
		}
		sum = sum.Add(d)
		count++
	}

	return sum, count, rows.Err()
}
