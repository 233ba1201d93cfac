package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/capigrid/capigrid/internal/metrics"
	"github.com/capigrid/capigrid/internal/models"
	"github.com/capigrid/capigrid/internal/repository"
	"github.com/capigrid/capigrid/internal/stats"
)

// CampaignRequest is the request body for creating or updating a campaign
type CampaignRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	CategoryID  string `json:"category_id"`
	GoalAmount  string `json:"goal_amount"`
	EndDate     string `json:"end_date"` // RFC 3339
}

// CampaignResponse is a campaign plus its derived progress figures
type CampaignResponse struct {
	models.Campaign
	PercentFunded int `json:"percent_funded"`
	DaysLeft      int `json:"days_left"`
}

// CampaignListResponse is the response for campaign listings
type CampaignListResponse struct {
	Campaigns []CampaignResponse `json:"campaigns"`
	Total     int                `json:"total"`
}

func campaignResponse(c *models.Campaign) CampaignResponse {
	return CampaignResponse{
		Campaign:      *c,
		PercentFunded: stats.PercentFunded(c),
		DaysLeft:      stats.DaysLeft(c, time.Now()),
	}
}

// handleListCategories handles GET /api/v1/categories
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.categories.List()
	if err != nil {
		s.logger.Error("failed to list categories", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

// handleListCampaigns handles GET /api/v1/campaigns
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.CampaignListFilter{
		Status:    models.CampaignStatus(q.Get("status")),
		Category:  q.Get("category"),
		CreatorID: q.Get("creator"),
		Search:    q.Get("q"),
	}
	if v := q.Get("featured"); v != "" {
		featured := v == "true" || v == "1"
		filter.Featured = &featured
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= 100 {
		filter.Limit = v
	} else {
		filter.Limit = 20
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		filter.Offset = v
	}
	if filter.Status != "" && !models.ValidStatus(filter.Status) {
		s.sendError(w, http.StatusBadRequest, "unknown status filter", "invalid_status")
		return
	}

	campaigns, total, err := s.campaigns.List(filter)
	if err != nil {
		s.logger.Error("failed to list campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}

	resp := CampaignListResponse{Campaigns: make([]CampaignResponse, 0, len(campaigns)), Total: total}
	for i := range campaigns {
		resp.Campaigns = append(resp.Campaigns, campaignResponse(&campaigns[i]))
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, ok := s.loadCampaign(w, r)
	if !ok {
		return
	}
	s.sendJSON(w, http.StatusOK, campaignResponse(campaign))
}

// handleCreateCampaign handles POST /api/v1/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	campaign, ok := s.campaignFromRequest(w, &req)
	if !ok {
		return
	}
	campaign.CreatorID = currentUser(r).ID

	if err := s.campaigns.Create(campaign); err != nil {
		s.logger.Error("failed to create campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}

	metrics.IncCampaignsCreated()
	s.logger.Info("campaign created", "campaign_id", campaign.ID, "creator_id", campaign.CreatorID)
	s.sendJSON(w, http.StatusCreated, campaignResponse(campaign))
}

// handleUpdateCampaign handles PUT /api/v1/campaigns/{id}
func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, ok := s.loadOwnedCampaign(w, r)
	if !ok {
		return
	}

	var req CampaignRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	updated, ok := s.campaignFromRequest(w, &req)
	if !ok {
		return
	}

	campaign.Title = updated.Title
	campaign.Description = updated.Description
	campaign.ImageURL = updated.ImageURL
	campaign.CategoryID = updated.CategoryID
	campaign.GoalAmount = updated.GoalAmount
	campaign.EndDate = updated.EndDate

	if err := s.campaigns.Update(campaign); err != nil {
		s.logger.Error("failed to update campaign", "campaign_id", campaign.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}

	s.sendJSON(w, http.StatusOK, campaignResponse(campaign))
}

// handleDeleteCampaign handles DELETE /api/v1/campaigns/{id}
func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, ok := s.loadOwnedCampaign(w, r)
	if !ok {
		return
	}

	if err := s.campaigns.Delete(campaign.ID); err != nil {
		if errors.Is(err, repository.ErrHasContributions) {
			s.sendError(w, http.StatusConflict, "campaign has contributions and cannot be deleted", "has_contributions")
			return
		}
		s.logger.Error("failed to delete campaign", "campaign_id", campaign.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListRewards handles GET /api/v1/campaigns/{id}/rewards
func (s *Server) handleListRewards(w http.ResponseWriter, r *http.Request) {
	campaign, ok := s.loadCampaign(w, r)
	if !ok {
		return
	}

	rewards, err := s.rewards.ListByCampaign(campaign.ID)
	if err != nil {
		s.logger.Error("failed to list rewards", "campaign_id", campaign.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"rewards": rewards})
}

// RewardRequest is the request body for POST /campaigns/{id}/rewards
type RewardRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Amount          string `json:"amount"`
	LimitedQuantity *int64 `json:"limited_quantity"`
}

// handleCreateReward handles POST /api/v1/campaigns/{id}/rewards
func (s *Server) handleCreateReward(w http.ResponseWriter, r *http.Request) {
	campaign, ok := s.loadOwnedCampaign(w, r)
	if !ok {
		return
	}

	var req RewardRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.Title == "" {
		s.sendError(w, http.StatusBadRequest, "title is required", "invalid_title")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		s.sendError(w, http.StatusBadRequest, "amount must be a positive decimal", "invalid_amount")
		return
	}
	if req.LimitedQuantity != nil && *req.LimitedQuantity < 1 {
		s.sendError(w, http.StatusBadRequest, "limited_quantity must be at least 1", "invalid_quantity")
		return
	}

	reward := &models.Reward{
		CampaignID:      campaign.ID,
		Title:           req.Title,
		Description:     req.Description,
		Amount:          amount,
		LimitedQuantity: req.LimitedQuantity,
	}
	if err := s.rewards.Create(reward); err != nil {
		s.logger.Error("failed to create reward", "campaign_id", campaign.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}

	s.sendJSON(w, http.StatusCreated, reward)
}

// handleListUpdates handles GET /api/v1/campaigns/{id}/updates
func (s *Server) handleListUpdates(w http.ResponseWriter, r *http.Request) {
	campaign, ok := s.loadCampaign(w, r)
	if !ok {
		return
	}

	updates, err := s.updates.ListByCampaign(campaign.ID)
	if err != nil {
		s.logger.Error("failed to list updates", "campaign_id", campaign.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"updates": updates})
}

// handleCreateUpdate handles POST /api/v1/campaigns/{id}/updates
func (s *Server) handleCreateUpdate(w http.ResponseWriter, r *http.Request) {
	campaign, ok := s.loadOwnedCampaign(w, r)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Title == "" || req.Body == "" {
		s.sendError(w, http.StatusBadRequest, "title and body are required", "invalid_update")
		return
	}

	update := &models.CampaignUpdate{
		CampaignID: campaign.ID,
		Title:      req.Title,
		Body:       req.Body,
	}
	if err := s.updates.Create(update); err != nil {
		s.logger.Error("failed to create update", "campaign_id", campaign.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}

	s.sendJSON(w, http.StatusCreated, update)
}

// handleStats handles GET /api/v1/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	platform, err := s.stats.PlatformStats(r.Context())
	if err != nil {
		s.logger.Error("failed to compute platform stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	s.sendJSON(w, http.StatusOK, platform)
}

// campaignFromRequest validates the request body into a campaign
func (s *Server) campaignFromRequest(w http.ResponseWriter, req *CampaignRequest) (*models.Campaign, bool) {
	if req.Title == "" {
		s.sendError(w, http.StatusBadRequest, "title is required", "invalid_title")
		return nil, false
	}

	goal, err := decimal.NewFromString(req.GoalAmount)
	if err != nil || !goal.IsPositive() {
		s.sendError(w, http.StatusBadRequest, "goal_amount must be a positive decimal", "invalid_goal")
		return nil, false
	}

	endDate, err := time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "end_date must be RFC 3339", "invalid_end_date")
		return nil, false
	}
	if !endDate.After(time.Now()) {
		s.sendError(w, http.StatusBadRequest, "end_date must be in the future", "invalid_end_date")
		return nil, false
	}

	if req.CategoryID != "" {
		category, err := s.categories.GetByID(req.CategoryID)
		if err != nil {
			s.logger.Error("failed to load category", "error", err)
			s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
			return nil, false
		}
		if category == nil {
			s.sendError(w, http.StatusBadRequest, "unknown category", "invalid_category")
			return nil, false
		}
	}

	return &models.Campaign{
		Title:       req.Title,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		CategoryID:  req.CategoryID,
		GoalAmount:  goal,
		EndDate:     endDate,
	}, true
}

// loadCampaign resolves the {id} URL parameter
func (s *Server) loadCampaign(w http.ResponseWriter, r *http.Request) (*models.Campaign, bool) {
	id := chi.URLParam(r, "id")
	campaign, err := s.campaigns.GetByID(id)
	if err != nil {
		s.logger.Error("failed to load campaign", "campaign_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return nil, false
	}
	if campaign == nil {
		s.sendError(w, http.StatusNotFound, "campaign not found", "campaign_not_found")
		return nil, false
	}
	return campaign, true
}

// loadOwnedCampaign resolves {id} and requires the caller to be the
// campaign owner or an admin
func (s *Server) loadOwnedCampaign(w http.ResponseWriter, r *http.Request) (*models.Campaign, bool) {
	campaign, ok := s.loadCampaign(w, r)
	if !ok {
		return nil, false
	}

	user := currentUser(r)
	if user == nil || (campaign.CreatorID != user.ID && !user.IsAdmin) {
		s.sendError(w, http.StatusForbidden, "you do not own this campaign", "forbidden")
		return nil, false
	}
	return campaign, true
}
