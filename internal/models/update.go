package models

import "time"

// CampaignUpdate is a news post by the campaign owner
type CampaignUpdate struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}
