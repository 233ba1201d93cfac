package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contribution is an append-only ledger entry: once written it is never
// mutated or deleted.
type Contribution struct {
	ID         string          `json:"id"`
	CampaignID string          `json:"campaign_id"`
	UserID     string          `json:"user_id,omitempty"`
	RewardID   string          `json:"reward_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Message    string          `json:"message,omitempty"`
	Anonymous  bool            `json:"anonymous"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ForDisplay returns a copy safe for public listings: anonymous contributions
// have the backer identity removed.
func (c Contribution) ForDisplay() Contribution {
	if c.Anonymous {
		c.UserID = ""
	}
	return c
}
