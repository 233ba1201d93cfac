package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capigrid/capigrid/internal/models"
)

// handleAdminListUsers handles GET /api/v1/admin/users
func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)

	users, total, err := s.users.ListPaged(page, limit)
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// handleAdminListCampaigns handles GET /api/v1/admin/campaigns
func (s *Server) handleAdminListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)

	campaigns, total, err := s.campaigns.ListPaged(page, limit)
	if err != nil {
		s.logger.Error("failed to list campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{
		"campaigns": campaigns,
		"total":     total,
		"page":      page,
		"limit":     limit,
	})
}

// handleAdminToggleUser handles PUT /api/v1/admin/users/{id}/toggle
func (s *Server) handleAdminToggleUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := s.users.GetByID(id)
	if err != nil {
		s.logger.Error("failed to load user", "user_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	if user == nil {
		s.sendError(w, http.StatusNotFound, "user not found", "user_not_found")
		return
	}
	if user.ID == currentUser(r).ID {
		s.sendError(w, http.StatusBadRequest, "you cannot disable your own account", "self_toggle")
		return
	}

	if err := s.users.SetActive(user.ID, !user.IsActive); err != nil {
		s.logger.Error("failed to toggle user", "user_id", user.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	user.IsActive = !user.IsActive

	s.logger.Info("user toggled", "user_id", user.ID, "is_active", user.IsActive)
	s.sendJSON(w, http.StatusOK, user)
}

// handleAdminFeatureCampaign handles PUT /api/v1/admin/campaigns/{id}/feature
func (s *Server) handleAdminFeatureCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, ok := s.loadCampaign(w, r)
	if !ok {
		return
	}

	var req struct {
		Featured bool `json:"featured"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if err := s.campaigns.SetFeatured(campaign.ID, req.Featured); err != nil {
		s.logger.Error("failed to set featured", "campaign_id", campaign.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	campaign.Featured = req.Featured

	s.sendJSON(w, http.StatusOK, campaignResponse(campaign))
}

// handleAdminCampaignStatus handles PUT /api/v1/admin/campaigns/{id}/status
func (s *Server) handleAdminCampaignStatus(w http.ResponseWriter, r *http.Request) {
	campaign, ok := s.loadCampaign(w, r)
	if !ok {
		return
	}

	var req struct {
		Status models.CampaignStatus `json:"status"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if !models.ValidStatus(req.Status) {
		s.sendError(w, http.StatusBadRequest, "unknown status", "invalid_status")
		return
	}

	if err := s.campaigns.UpdateStatus(campaign.ID, req.Status); err != nil {
		s.logger.Error("failed to update status", "campaign_id", campaign.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	campaign.Status = req.Status

	s.logger.Info("campaign status changed", "campaign_id", campaign.ID, "status", campaign.Status)
	s.sendJSON(w, http.StatusOK, campaignResponse(campaign))
}
