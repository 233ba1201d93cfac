package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/capigrid/capigrid/internal/models"
)

// Engine is the sole writer of contribution records and the sole mutator of
// campaign and reward counters. Each Record call commits the ledger entry and
// both counter updates in a single transaction: all four effects land together
// or not at all.
type Engine struct {
	db         *sql.DB
	logger     *slog.Logger
	maxRetries int
}

// RecordRequest describes a contribution to be recorded
type RecordRequest struct {
	CampaignID string
	UserID     string
	Amount     decimal.Decimal
	RewardID   string // optional
	Message    string // optional
	Anonymous  bool
}

// New creates a ledger engine
func New(db *sql.DB, logger *slog.Logger) *Engine {
	return &Engine{
		db:         db,
		logger:     logger.With("component", "ledger"),
		maxRetries: 3,
	}
}

// Record validates and records a contribution.
//
// Validation runs in a fixed order, first failure wins: amount, campaign
// existence, campaign status, reward existence/ownership, reward inventory.
// Validation failures never mutate state. Commit conflicts are retried a
// bounded number of times, then surfaced as ErrTransient.
func (e *Engine) Record(ctx context.Context, req RecordRequest) (*models.Contribution, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
			}
		}

		c, err := e.commit(ctx, req)
		if err == nil {
			e.logger.Info("contribution recorded",
				"contribution_id", c.ID,
				"campaign_id", c.CampaignID,
				"amount", c.Amount.String(),
				"reward_id", c.RewardID,
			)
			return c, nil
		}
		if IsValidation(err) {
			return nil, err
		}
		if !isConflict(err) {
			return nil, fmt.Errorf("failed to record contribution: %w", err)
		}

		lastErr = err
		e.logger.Debug("commit conflict, retrying",
			"campaign_id", req.CampaignID,
			"attempt", attempt+1,
		)
	}

	e.logger.Warn("commit conflict persisted past retry budget",
		"campaign_id", req.CampaignID,
		"error", lastErr,
	)
	return nil, fmt.Errorf("%w: %v", ErrTransient, lastErr)
}

// commit performs one attempt at the four-part atomic update
func (e *Engine) commit(ctx context.Context, req RecordRequest) (*models.Contribution, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Campaign must exist and be open for funding.
	var status models.CampaignStatus
	var currentAmount string
	err = tx.QueryRowContext(ctx,
		"SELECT status, current_amount FROM campaigns WHERE id = ?",
		req.CampaignID,
	).Scan(&status, &currentAmount)
	if err == sql.ErrNoRows {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	if status != models.StatusActive {
		return nil, ErrCampaignNotOpen
	}

	current, err := decimal.NewFromString(currentAmount)
	if err != nil {
		return nil, fmt.Errorf("corrupt current_amount on campaign %s: %w", req.CampaignID, err)
	}

	// Reward inventory: the exhaustion check and the increment are one
	// conditional statement, so two concurrent claims on the last unit
	// cannot both pass.
	if req.RewardID != "" {
		var rewardCampaign string
		err = tx.QueryRowContext(ctx,
			"SELECT campaign_id FROM rewards WHERE id = ?", req.RewardID,
		).Scan(&rewardCampaign)
		if err == sql.ErrNoRows {
			return nil, ErrRewardNotFound
		}
		if err != nil {
			return nil, err
		}
		if rewardCampaign != req.CampaignID {
			return nil, ErrRewardMismatch
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE rewards SET claimed = claimed + 1
			WHERE id = ? AND (limited_quantity IS NULL OR claimed < limited_quantity)`,
			req.RewardID,
		)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrRewardExhausted
		}
	}

	// Append the ledger entry.
	c := &models.Contribution{
		ID:         uuid.New().String(),
		CampaignID: req.CampaignID,
		UserID:     req.UserID,
		RewardID:   req.RewardID,
		Amount:     req.Amount,
		Message:    req.Message,
		Anonymous:  req.Anonymous,
		CreatedAt:  time.Now().UTC(),
	}

	var rewardID any
	if c.RewardID != "" {
		rewardID = c.RewardID
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO contributions (id, campaign_id, user_id, reward_id, amount, message, anonymous, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CampaignID, c.UserID, rewardID, c.Amount.String(), c.Message, c.Anonymous, c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Counter update is guarded on the amount read above. A zero row count
	// means another commit slipped in between our read and write; roll back
	// and let the caller retry.
	newAmount := current.Add(req.Amount)
	res, err := tx.ExecContext(ctx, `
		UPDATE campaigns
		SET current_amount = ?, backer_count = backer_count + 1, updated_at = ?
		WHERE id = ? AND current_amount = ?`,
		newAmount.String(), time.Now().UTC(), req.CampaignID, currentAmount,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

// isConflict reports whether the error is transient write contention
func isConflict(err error) bool {
	if errors.Is(err, errConflict) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
