package ledger

import "errors"

// Validation and commit failures. Every failure the engine can surface maps to
// exactly one of these, so the API layer can hand the frontend a stable code.
var (
	// ErrInvalidAmount means the contribution amount is zero or negative.
	ErrInvalidAmount = errors.New("contribution amount must be positive")

	// ErrCampaignNotFound means the campaign does not exist.
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrCampaignNotOpen means the campaign is not accepting contributions.
	ErrCampaignNotOpen = errors.New("campaign is not open for contributions")

	// ErrRewardNotFound means the selected reward does not exist.
	ErrRewardNotFound = errors.New("reward not found")

	// ErrRewardMismatch means the reward belongs to a different campaign.
	ErrRewardMismatch = errors.New("reward does not belong to this campaign")

	// ErrRewardExhausted means a limited reward is fully claimed.
	ErrRewardExhausted = errors.New("reward is no longer available")

	// errConflict is raised inside the commit when a concurrent writer got
	// there first. Never surfaced: the engine retries, then reports
	// ErrTransient.
	errConflict = errors.New("concurrent update conflict")

	// ErrTransient means the commit kept conflicting past the retry budget.
	// The caller may retry the whole request.
	ErrTransient = errors.New("transient storage contention, retry the request")
)

// Code returns the stable identifier for an engine error, for API responses.
// Unknown errors report as storage failures.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrCampaignNotFound):
		return "campaign_not_found"
	case errors.Is(err, ErrCampaignNotOpen):
		return "campaign_not_open"
	case errors.Is(err, ErrRewardNotFound):
		return "reward_not_found"
	case errors.Is(err, ErrRewardMismatch):
		return "reward_mismatch"
	case errors.Is(err, ErrRewardExhausted):
		return "reward_exhausted"
	case errors.Is(err, ErrTransient):
		return "transient_failure"
	default:
		return "storage_error"
	}
}

// IsValidation reports whether err is a validation failure that must never be
// retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrCampaignNotFound) ||
		errors.Is(err, ErrCampaignNotOpen) ||
		errors.Is(err, ErrRewardNotFound) ||
		errors.Is(err, ErrRewardMismatch) ||
		errors.Is(err, ErrRewardExhausted)
}
