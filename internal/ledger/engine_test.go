package ledger

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/capigrid/capigrid/internal/db"
	"github.com/capigrid/capigrid/internal/models"
	"github.com/capigrid/capigrid/internal/repository"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// A single connection keeps the in-memory database shared across the
	// pool and serializes writers the way a file database would.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	for _, m := range db.Migrations {
		if _, err := conn.Exec(m); err != nil {
			t.Fatalf("migration failed: %v", err)
		}
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}

func newTestEngine(conn *sql.DB) *Engine {
	return New(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedUser(t *testing.T, conn *sql.DB) *models.User {
	t.Helper()
	u := &models.User{Email: "backer@example.com", Name: "Backer", IsActive: true}
	if err := repository.NewUserRepository(conn).Create(u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedCampaign(t *testing.T, conn *sql.DB, creatorID string, status models.CampaignStatus, goal string) *models.Campaign {
	t.Helper()
	c := &models.Campaign{
		CreatorID:  creatorID,
		Title:      "Test Campaign",
		GoalAmount: mustDecimal(t, goal),
		Status:     status,
		EndDate:    time.Now().Add(30 * 24 * time.Hour),
	}
	if err := repository.NewCampaignRepository(conn).Create(c); err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
	return c
}

func seedReward(t *testing.T, conn *sql.DB, campaignID, amount string, limit *int64) *models.Reward {
	t.Helper()
	rw := &models.Reward{
		CampaignID:      campaignID,
		Title:           "Tier",
		Amount:          mustDecimal(t, amount),
		LimitedQuantity: limit,
	}
	if err := repository.NewRewardRepository(conn).Create(rw); err != nil {
		t.Fatalf("seed reward: %v", err)
	}
	return rw
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func getCampaign(t *testing.T, conn *sql.DB, id string) *models.Campaign {
	t.Helper()
	c, err := repository.NewCampaignRepository(conn).GetByID(id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if c == nil {
		t.Fatalf("campaign %s disappeared", id)
	}
	return c
}

func getReward(t *testing.T, conn *sql.DB, id string) *models.Reward {
	t.Helper()
	rw, err := repository.NewRewardRepository(conn).GetByID(id)
	if err != nil {
		t.Fatalf("get reward: %v", err)
	}
	if rw == nil {
		t.Fatalf("reward %s disappeared", id)
	}
	return rw
}

func TestRecordHappyPath(t *testing.T) {
	conn := setupTestDB(t)
	engine := newTestEngine(conn)
	user := seedUser(t, conn)
	campaign := seedCampaign(t, conn, user.ID, models.StatusActive, "1000")

	c, err := engine.Record(context.Background(), RecordRequest{
		CampaignID: campaign.ID,
		UserID:     user.ID,
		Amount:     mustDecimal(t, "250"),
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if c.ID == "" {
		t.Error("Record() returned contribution without ID")
	}
	if c.CreatedAt.IsZero() {
		t.Error("Record() returned contribution without timestamp")
	}

	got := getCampaign(t, conn, campaign.ID)
	if !got.CurrentAmount.Equal(mustDecimal(t, "250")) {
		t.Errorf("CurrentAmount = %s, want 250", got.CurrentAmount)
	}
	if got.BackerCount != 1 {
		t.Errorf("BackerCount = %d, want 1", got.BackerCount)
	}
}

func TestRecordAggregateConsistency(t *testing.T) {
	conn := setupTestDB(t)
	engine := newTestEngine(conn)
	user := seedUser(t, conn)
	campaign := seedCampaign(t, conn, user.ID, models.StatusActive, "5000")

	amounts := []string{"100", "33.33", "250", "0.01", "999.99"}
	for _, a := range amounts {
		_, err := engine.Record(context.Background(), RecordRequest{
			CampaignID: campaign.ID,
			UserID:     user.ID,
			Amount:     mustDecimal(t, a),
		})
		if err != nil {
			t.Fatalf("Record(%s) error = %v", a, err)
		}

		// Counters must match the ledger at every observation point.
		sum, count, err := repository.NewContributionRepository(conn).SumByCampaign(campaign.ID)
		if err != nil {
			t.Fatalf("SumByCampaign() error = %v", err)
		}
		got := getCampaign(t, conn, campaign.ID)
		if !got.CurrentAmount.Equal(sum) {
			t.Errorf("CurrentAmount = %s, ledger sum = %s", got.CurrentAmount, sum)
		}
		if got.BackerCount != count {
			t.Errorf("BackerCount = %d, ledger count = %d", got.BackerCount, count)
		}
	}
}

func TestRecordValidationOrder(t *testing.T) {
	conn := setupTestDB(t)
	engine := newTestEngine(conn)

	// Invalid amount and nonexistent campaign together: amount is checked
	// first.
	_, err := engine.Record(context.Background(), RecordRequest{
		CampaignID: "no-such-campaign",
		UserID:     "no-such-user",
		Amount:     mustDecimal(t, "-5"),
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Record() error = %v, want ErrInvalidAmount", err)
	}

	_, err = engine.Record(context.Background(), RecordRequest{
		CampaignID: "no-such-campaign",
		UserID:     "no-such-user",
		Amount:     mustDecimal(t, "0"),
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Record() with zero amount error = %v, want ErrInvalidAmount", err)
	}

	_, err = engine.Record(context.Background(), RecordRequest{
		CampaignID: "no-such-campaign",
		UserID:     "no-such-user",
		Amount:     mustDecimal(t, "10"),
	})
	if !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("Record() error = %v, want ErrCampaignNotFound", err)
	}
}

func TestRecordClosedCampaign(t *testing.T) {
	conn := setupTestDB(t)
	engine := newTestEngine(conn)
	user := seedUser(t, conn)

	for _, status := range []models.CampaignStatus{
		models.StatusDraft, models.StatusFunded, models.StatusCancelled, models.StatusEnded,
	} {
		campaign := seedCampaign(t, conn, user.ID, status, "1000")

		_, err := engine.Record(context.Background(), RecordRequest{
			CampaignID: campaign.ID,
			UserID:     user.ID,
			Amount:     mustDecimal(t, "50"),
		})
		if !errors.Is(err, ErrCampaignNotOpen) {
			t.Errorf("Record() on %s campaign error = %v, want ErrCampaignNotOpen", status, err)
		}

		got := getCampaign(t, conn, campaign.ID)
		if !got.CurrentAmount.IsZero() || got.BackerCount != 0 {
			t.Errorf("%s campaign mutated by rejected contribution: amount=%s backers=%d",
				status, got.CurrentAmount, got.BackerCount)
		}
	}
}

func TestRecordRewardChecks(t *testing.T) {
	conn := setupTestDB(t)
	engine := newTestEngine(conn)
	user := seedUser(t, conn)
	campaign := seedCampaign(t, conn, user.ID, models.StatusActive, "1000")
	other := seedCampaign(t, conn, user.ID, models.StatusActive, "1000")
	otherReward := seedReward(t, conn, other.ID, "25", nil)

	_, err := engine.Record(context.Background(), RecordRequest{
		CampaignID: campaign.ID,
		UserID:     user.ID,
		Amount:     mustDecimal(t, "25"),
		RewardID:   "no-such-reward",
	})
	if !errors.Is(err, ErrRewardNotFound) {
		t.Errorf("Record() error = %v, want ErrRewardNotFound", err)
	}

	_, err = engine.Record(context.Background(), RecordRequest{
		CampaignID: campaign.ID,
		UserID:     user.ID,
		Amount:     mustDecimal(t, "25"),
		RewardID:   otherReward.ID,
	})
	if !errors.Is(err, ErrRewardMismatch) {
		t.Errorf("Record() error = %v, want ErrRewardMismatch", err)
	}

	got := getCampaign(t, conn, campaign.ID)
	if !got.CurrentAmount.IsZero() || got.BackerCount != 0 {
		t.Error("rejected reward contribution mutated campaign counters")
	}
}

func TestRecordRewardExhausted(t *testing.T) {
	conn := setupTestDB(t)
	engine := newTestEngine(conn)
	user := seedUser(t, conn)
	campaign := seedCampaign(t, conn, user.ID, models.StatusActive, "1000")
	limit := int64(2)
	reward := seedReward(t, conn, campaign.ID, "50", &limit)

	for i := 0; i < 2; i++ {
		_, err := engine.Record(context.Background(), RecordRequest{
			CampaignID: campaign.ID,
			UserID:     user.ID,
			Amount:     mustDecimal(t, "50"),
			RewardID:   reward.ID,
		})
		if err != nil {
			t.Fatalf("Record() claim %d error = %v", i+1, err)
		}
	}

	_, err := engine.Record(context.Background(), RecordRequest{
		CampaignID: campaign.ID,
		UserID:     user.ID,
		Amount:     mustDecimal(t, "50"),
		RewardID:   reward.ID,
	})
	if !errors.Is(err, ErrRewardExhausted) {
		t.Errorf("Record() error = %v, want ErrRewardExhausted", err)
	}

	got := getReward(t, conn, reward.ID)
	if got.Claimed != 2 {
		t.Errorf("Claimed = %d, want 2", got.Claimed)
	}
	campaignAfter := getCampaign(t, conn, campaign.ID)
	if campaignAfter.BackerCount != 2 {
		t.Errorf("BackerCount = %d, want 2 (exhausted claim must not count)", campaignAfter.BackerCount)
	}
}

func TestRecordUnlimitedReward(t *testing.T) {
	conn := setupTestDB(t)
	engine := newTestEngine(conn)
	user := seedUser(t, conn)
	campaign := seedCampaign(t, conn, user.ID, models.StatusActive, "1000")
	reward := seedReward(t, conn, campaign.ID, "10", nil)

	for i := 0; i < 10; i++ {
		_, err := engine.Record(context.Background(), RecordRequest{
			CampaignID: campaign.ID,
			UserID:     user.ID,
			Amount:     mustDecimal(t, "10"),
			RewardID:   reward.ID,
		})
		if err != nil {
			t.Fatalf("Record() claim %d error = %v", i+1, err)
		}
	}

	got := getReward(t, conn, reward.ID)
	if got.Claimed != 10 {
		t.Errorf("Claimed = %d, want 10", got.Claimed)
	}
}

func TestConcurrentRewardClaims(t *testing.T) {
	conn := setupTestDB(t)
	engine := newTestEngine(conn)
	user := seedUser(t, conn)
	campaign := seedCampaign(t, conn, user.ID, models.StatusActive, "1000")
	limit := int64(1)
	reward := seedReward(t, conn, campaign.ID, "100", &limit)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Record(context.Background(), RecordRequest{
				CampaignID: campaign.ID,
				UserID:     user.ID,
				Amount:     mustDecimal(t, "100"),
				RewardID:   reward.ID,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrRewardExhausted):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want exactly 1", succeeded)
	}

	got := getReward(t, conn, reward.ID)
	if got.Claimed != 1 {
		t.Errorf("Claimed = %d, want 1", got.Claimed)
	}
	campaignAfter := getCampaign(t, conn, campaign.ID)
	if campaignAfter.BackerCount != 1 {
		t.Errorf("BackerCount = %d, want 1", campaignAfter.BackerCount)
	}
}

func TestConcurrentContributions(t *testing.T) {
	conn := setupTestDB(t)
	engine := newTestEngine(conn)
	user := seedUser(t, conn)
	campaign := seedCampaign(t, conn, user.ID, models.StatusActive, "100000")

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Record(context.Background(), RecordRequest{
				CampaignID: campaign.ID,
				UserID:     user.ID,
				Amount:     mustDecimal(t, "10"),
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d: Record() error = %v", i, err)
		}
	}

	got := getCampaign(t, conn, campaign.ID)
	if !got.CurrentAmount.Equal(mustDecimal(t, "100")) {
		t.Errorf("CurrentAmount = %s, want 100", got.CurrentAmount)
	}
	if got.BackerCount != workers {
		t.Errorf("BackerCount = %d, want %d", got.BackerCount, workers)
	}
}

func TestRecordAtomicRollback(t *testing.T) {
	conn := setupTestDB(t)
	engine := newTestEngine(conn)
	user := seedUser(t, conn)
	campaign := seedCampaign(t, conn, user.ID, models.StatusActive, "1000")
	limit := int64(5)
	reward := seedReward(t, conn, campaign.ID, "50", &limit)

	// Break the commit after the reward increment by removing the ledger
	// table. The whole transaction must roll back, leaving the reward
	// counter untouched.
	if _, err := conn.Exec("DROP TABLE contributions"); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	_, err := engine.Record(context.Background(), RecordRequest{
		CampaignID: campaign.ID,
		UserID:     user.ID,
		Amount:     mustDecimal(t, "50"),
		RewardID:   reward.ID,
	})
	if err == nil {
		t.Fatal("Record() error = nil, want storage failure")
	}
	if IsValidation(err) {
		t.Fatalf("Record() error = %v, want non-validation storage failure", err)
	}

	got := getReward(t, conn, reward.ID)
	if got.Claimed != 0 {
		t.Errorf("Claimed = %d after rolled-back commit, want 0", got.Claimed)
	}
	campaignAfter := getCampaign(t, conn, campaign.ID)
	if !campaignAfter.CurrentAmount.IsZero() || campaignAfter.BackerCount != 0 {
		t.Errorf("campaign mutated by rolled-back commit: amount=%s backers=%d",
			campaignAfter.CurrentAmount, campaignAfter.BackerCount)
	}
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrInvalidAmount, "invalid_amount"},
		{ErrCampaignNotFound, "campaign_not_found"},
		{ErrCampaignNotOpen, "campaign_not_open"},
		{ErrRewardNotFound, "reward_not_found"},
		{ErrRewardMismatch, "reward_mismatch"},
		{ErrRewardExhausted, "reward_exhausted"},
		{ErrTransient, "transient_failure"},
		{errors.New("boom"), "storage_error"},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
