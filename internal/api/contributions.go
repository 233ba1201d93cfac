package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/capigrid/capigrid/internal/ledger"
	"github.com/capigrid/capigrid/internal/metrics"
	"github.com/capigrid/capigrid/internal/models"
)

// ContributionRequest is the request body for POST /campaigns/{id}/contributions
type ContributionRequest struct {
	Amount    string `json:"amount"`
	RewardID  string `json:"reward_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Anonymous bool   `json:"anonymous,omitempty"`
}

// handleCreateContribution handles POST /api/v1/campaigns/{id}/contributions.
// The ledger engine does all validation and the atomic commit; this handler
// only translates its error taxonomy onto HTTP.
func (s *Server) handleCreateContribution(w http.ResponseWriter, r *http.Request) {
	var req ContributionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		metrics.IncContributions(ledger.Code(ledger.ErrInvalidAmount))
		s.sendError(w, http.StatusBadRequest, "amount must be a decimal string", ledger.Code(ledger.ErrInvalidAmount))
		return
	}

	contribution, err := s.engine.Record(r.Context(), ledger.RecordRequest{
		CampaignID: chi.URLParam(r, "id"),
		UserID:     currentUser(r).ID,
		Amount:     amount,
		RewardID:   req.RewardID,
		Message:    req.Message,
		Anonymous:  req.Anonymous,
	})
	if err != nil {
		code := ledger.Code(err)
		metrics.IncContributions(code)
		s.sendError(w, contributionStatus(err), err.Error(), code)
		return
	}

	metrics.IncContributions("committed")
	amountFloat, _ := contribution.Amount.Float64()
	metrics.AddContributionAmount(amountFloat)

	s.sendJSON(w, http.StatusCreated, contribution)
}

// contributionStatus maps ledger errors onto HTTP status codes
func contributionStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrCampaignNotFound), errors.Is(err, ledger.ErrRewardNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrCampaignNotOpen), errors.Is(err, ledger.ErrRewardExhausted):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrRewardMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleListContributions handles GET /api/v1/campaigns/{id}/contributions.
// Anonymous contributions are listed without the backer identity.
func (s *Server) handleListContributions(w http.ResponseWriter, r *http.Request) {
	campaign, ok := s.loadCampaign(w, r)
	if !ok {
		return
	}

	contributions, err := s.contributions.ListByCampaign(campaign.ID)
	if err != nil {
		s.logger.Error("failed to list contributions", "campaign_id", campaign.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}

	display := make([]models.Contribution, 0, len(contributions))
	for _, c := range contributions {
		display = append(display, c.ForDisplay())
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"contributions": display})
}

// handleMyContributions handles GET /api/v1/me/contributions
func (s *Server) handleMyContributions(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	contributions, err := s.contributions.ListByUser(user.ID)
	if err != nil {
		s.logger.Error("failed to list contributions", "user_id", user.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal server error", "internal_error")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"contributions": contributions})
}
