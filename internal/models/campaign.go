package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CampaignStatus is the lifecycle state of a campaign
type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "draft"
	StatusActive    CampaignStatus = "active"
	StatusFunded    CampaignStatus = "funded"
	StatusCancelled CampaignStatus = "cancelled"
	StatusEnded     CampaignStatus = "ended"
)

// ValidStatus reports whether s is a known campaign status
func ValidStatus(s CampaignStatus) bool {
	switch s {
	case StatusDraft, StatusActive, StatusFunded, StatusCancelled, StatusEnded:
		return true
	}
	return false
}

// Campaign represents a fundraising campaign.
//
// CurrentAmount and BackerCount are denormalized aggregates over the
// contributions table. Only the ledger engine mutates them, together with the
// contribution insert, inside one transaction.
type Campaign struct {
	ID            string          `json:"id"`
	CreatorID     string          `json:"creator_id"`
	CategoryID    string          `json:"category_id,omitempty"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	ImageURL      string          `json:"image_url,omitempty"`
	GoalAmount    decimal.Decimal `json:"goal_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	BackerCount   int             `json:"backer_count"`
	Status        CampaignStatus  `json:"status"`
	Featured      bool            `json:"featured"`
	EndDate       time.Time       `json:"end_date"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CampaignListFilter for filtering campaign listings
type CampaignListFilter struct {
	Status    CampaignStatus
	Category  string
	Featured  *bool
	CreatorID string
	Search    string
	Limit     int
	Offset    int
}
