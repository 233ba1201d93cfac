package stats

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/capigrid/capigrid/internal/models"
)

// PercentFunded returns the funding progress of a campaign as a whole
// percentage clamped to [0, 100]. A zero goal reports 0 rather than dividing
// by zero.
func PercentFunded(c *models.Campaign) int {
	if c.GoalAmount.IsZero() {
		return 0
	}
	pct := c.CurrentAmount.Div(c.GoalAmount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// DaysLeft returns the number of whole days until the campaign deadline,
// rounded up, never negative.
func DaysLeft(c *models.Campaign, now time.Time) int {
	remaining := c.EndDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

// Platform is the platform-wide rollup. Every field is recomputed from the
// campaigns table on request; nothing here is stored.
type Platform struct {
	TotalFunded     decimal.Decimal `json:"total_funded"`
	ActiveCampaigns int             `json:"active_campaigns"`
	FundedCampaigns int             `json:"funded_campaigns"`
	TotalBackers    int             `json:"total_backers"`
}

// Service computes read-only derivations from stored state
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// PlatformStats aggregates over all campaigns
func (s *Service) PlatformStats(ctx context.Context) (*Platform, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT current_amount, backer_count, status FROM campaigns")
	if err != nil {
		return nil, fmt.Errorf("failed to load campaigns for stats: %w", err)
	}
	defer rows.Close()

	p := &Platform{TotalFunded: decimal.Zero}
	for rows.Next() {
		var amount string
		var backers int
		var status models.CampaignStatus
		if err := rows.Scan(&amount, &backers, &status); err != nil {
			return nil, err
		}

		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid current_amount in stats rollup: %w", err)
		}
		p.TotalFunded = p.TotalFunded.Add(d)
		p.TotalBackers += backers

		switch status {
		case models.StatusActive:
			p.ActiveCampaigns++
		case models.StatusFunded:
			p.FundedCampaigns++
		}
	}

	return p, rows.Err()
}
