package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reward is an optional tier attached to a campaign.
//
// Claimed never exceeds LimitedQuantity when the latter is set; the ledger
// engine enforces this with a conditional increment.
type Reward struct {
	ID              string          `json:"id"`
	CampaignID      string          `json:"campaign_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	LimitedQuantity *int64          `json:"limited_quantity,omitempty"` // nil = unlimited
	Claimed         int64           `json:"claimed"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Exhausted reports whether a limited reward has no units left
func (r *Reward) Exhausted() bool {
	return r.LimitedQuantity != nil && r.Claimed >= *r.LimitedQuantity
}
