package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/capigrid/capigrid/internal/models"
)

type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create creates a new campaign
func (r *CampaignRepository) Create(c *models.Campaign) error {
	c.ID = uuid.New().String()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	if c.Status == "" {
		c.Status = models.StatusDraft
	}
	c.CurrentAmount = decimal.Zero
	c.BackerCount = 0

	var categoryID any
	if c.CategoryID != "" {
		categoryID = c.CategoryID
	}

	_, err := r.db.Exec(`
		INSERT INTO campaigns (id, creator_id, category_id, title, description, image_url, goal_amount, current_amount, backer_count, status, featured, end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CreatorID, categoryID, c.Title, c.Description, c.ImageURL,
		c.GoalAmount.String(), c.CurrentAmount.String(), c.BackerCount,
		c.Status, c.Featured, c.EndDate, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

const campaignColumns = "id, creator_id, category_id, title, description, image_url, goal_amount, current_amount, backer_count, status, featured, end_date, created_at, updated_at"

func scanCampaign(scan func(dest ...any) error) (*models.Campaign, error) {
	c := &models.Campaign{}
	var categoryID sql.NullString
	var goal, current string

	err := scan(&c.ID, &c.CreatorID, &categoryID, &c.Title, &c.Description, &c.ImageURL,
		&goal, &current, &c.BackerCount, &c.Status, &c.Featured, &c.EndDate, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if categoryID.Valid {
		c.CategoryID = categoryID.String
	}
	if c.GoalAmount, err = decimal.NewFromString(goal); err != nil {
		return nil, fmt.Errorf("invalid goal_amount for campaign %s: %w", c.ID, err)
	}
	if c.CurrentAmount, err = decimal.NewFromString(current); err != nil {
		return nil, fmt.Errorf("invalid current_amount for campaign %s: %w", c.ID, err)
	}
	return c, nil
}

// GetByID returns a campaign by ID
func (r *CampaignRepository) GetByID(id string) (*models.Campaign, error) {
	row := r.db.QueryRow("SELECT "+campaignColumns+" FROM campaigns WHERE id = ?", id)
	c, err := scanCampaign(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns campaigns with optional filtering
func (r *CampaignRepository) List(filter models.CampaignListFilter) ([]models.Campaign, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		where += " AND category_id = ?"
		args = append(args, filter.Category)
	}
	if filter.Featured != nil {
		where += " AND featured = ?"
		args = append(args, *filter.Featured)
	}
	if filter.CreatorID != "" {
		where += " AND creator_id = ?"
		args = append(args, filter.CreatorID)
	}
	if filter.Search != "" {
		where += " AND (title LIKE ? OR description LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM campaigns"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + campaignColumns + " FROM campaigns" + where + " ORDER BY created_at DESC"
	if filter.Limit > 0 || filter.Offset > 0 {
		// SQLite accepts OFFSET only after LIMIT; -1 means unbounded.
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, *c)
	}

	return campaigns, total, rows.Err()
}

// Update updates descriptive fields edited by the owner. Counter fields are
// owned by the ledger engine and are not touched here.
func (r *CampaignRepository) Update(c *models.Campaign) error {
	c.UpdatedAt = time.Now()

	var categoryID any
	if c.CategoryID != "" {
		categoryID = c.CategoryID
	}

	_, err := r.db.Exec(`
		UPDATE campaigns SET title = ?, description = ?, image_url = ?, category_id = ?, goal_amount = ?, end_date = ?, updated_at = ?
		WHERE id = ?`,
		c.Title, c.Description, c.ImageURL, categoryID, c.GoalAmount.String(), c.EndDate, c.UpdatedAt, c.ID,
	)
	return err
}

// UpdateStatus transitions the campaign lifecycle state
func (r *CampaignRepository) UpdateStatus(id string, status models.CampaignStatus) error {
	_, err := r.db.Exec("UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now(), id)
	return err
}

// SetFeatured toggles the featured flag
func (r *CampaignRepository) SetFeatured(id string, featured bool) error {
	_, err := r.db.Exec("UPDATE campaigns SET featured = ?, updated_at = ? WHERE id = ?",
		featured, time.Now(), id)
	return err
}

// ErrHasContributions is returned when deleting a campaign that has ledger
// entries referencing it.
var ErrHasContributions = fmt.Errorf("campaign has contributions and cannot be deleted")

// Delete removes a campaign. Campaigns with recorded contributions are never
// deleted; the ledger stays intact.
func (r *CampaignRepository) Delete(id string) error {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM contributions WHERE campaign_id = ?", id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrHasContributions
	}

	_, err := r.db.Exec("DELETE FROM campaigns WHERE id = ?", id)
	return err
}

// ListPaged returns campaigns for the admin view
func (r *CampaignRepository) ListPaged(page, limit int) ([]models.Campaign, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return r.List(models.CampaignListFilter{Limit: limit, Offset: (page - 1) * limit})
}
