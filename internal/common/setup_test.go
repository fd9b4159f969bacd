package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"citizen-economy-go/internal/clock"
	"citizen-economy-go/internal/database"
	"citizen-economy-go/internal/ledger"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/quest"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func testConfig() *models.Config {
	return &models.Config{
		Economy: models.EconomyConfig{
			TreasuryDailyLimit: 200000,
			TreasuryUserId:     "1",
			BasePrice:          1.0,
			MinPrice:           0.3,
			MaxPrice:           3.0,
			TargetCoverage:     1.2,
			KCoverage:          0.4,
			KFlow:              0.2,
			SmoothingAlpha:     0.3,
			FlowAnchor:         100000,
			MaxStep:            0.15,
		},
		Lock:   models.LockConfig{Backend: "local"},
		Outbox: models.OutboxConfig{Topic: "quest.completed"},
	}
}

func TestBuildServices_EndToEnd(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenInMemory(ctx)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	clk := clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	services, err := BuildServices(ctx, db, clk, testConfig())
	if err != nil {
		t.Fatalf("BuildServices failed: %v", err)
	}

	err = services.Quests.Repository().CreateQuest(ctx, models.Quest{
		Uuid: "q1", Title: "Write", BaseNcr: decimal.NewFromInt(10), BaseXp: 20, Active: true, CreatedAt: clk.Now(),
	})
	if err != nil {
		t.Fatalf("CreateQuest failed: %v", err)
	}

	ai := 90.0
	outcome, err := services.Quests.SubmitProof(ctx, quest.SubmitRequest{
		UserId: "u", QuestUuid: "q1", ProofType: "text", ProofContent: "hello", ExternalAiScore: &ai,
	})
	if err != nil {
		t.Fatalf("SubmitProof failed: %v", err)
	}
	if outcome.Submission.Status != models.SubmissionApproved {
		t.Fatalf("Expected APPROVED, got %s", outcome.Submission.Status)
	}

	rec, err := services.Ledger.Reconcile(ctx, "u", models.TokenNCR)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !rec.Consistent() {
		t.Errorf("Expected consistent ledger, got %+v", rec)
	}
}

func TestBuildServices_EconomyFileOverrides(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenInMemory(ctx)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	path := filepath.Join(t.TempDir(), "economy.yaml")
	if err := os.WriteFile(path, []byte(sampleParams), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cfg := testConfig()
	cfg.Economy.EconomyFile = path

	services, err := BuildServices(ctx, db, clock.NewFake(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)), cfg)
	if err != nil {
		t.Fatalf("BuildServices failed: %v", err)
	}
	policy, err := services.Justice.ActivePolicy(ctx)
	if err != nil {
		t.Fatalf("ActivePolicy failed: %v", err)
	}
	if policy.Version != "v2.0" {
		t.Errorf("Expected file policy v2.0, got %s", policy.Version)
	}
}

func TestBuildServices_InvalidPricer(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenInMemory(ctx)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	cfg := testConfig()
	cfg.Economy.MinPrice = 5
	if _, err := BuildServices(ctx, db, clock.System{}, cfg); err == nil {
		t.Error("Expected invalid price band to fail")
	}
}

func TestNewScorer(t *testing.T) {
	if _, err := newScorer(models.ScorerConfig{Strict: true}); err == nil {
		t.Error("Expected strict scorer without URL to fail")
	}
	s, err := newScorer(models.ScorerConfig{URL: "http://scorer.local/score", Timeout: time.Second})
	if err != nil || s == nil {
		t.Errorf("Expected remote scorer, got %v", err)
	}
}

func TestInitializeLedgerOnly_ReadsExistingFile(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Database = models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "economy.db"),
		MaxOpenConns: 2,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	}

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		t.Fatalf("InitializeServices failed: %v", err)
	}
	if _, err := services.Ledger.CreateEntry(ctx, ledger.CreateEntryParams{
		UserId: "u1", Amount: decimal.NewFromInt(5), Type: models.EntryEarn, Source: "test",
	}); err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	services.Close()

	db, ledgerSvc, err := InitializeLedgerOnly(ctx, cfg)
	if err != nil {
		t.Fatalf("InitializeLedgerOnly failed: %v", err)
	}
	defer db.Close()

	accounts, err := ledgerSvc.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(accounts) != 1 || !accounts[0].Balance.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("Expected one account with 5 NCR, got %+v", accounts)
	}
	if _, err := ledgerSvc.Reconcile(ctx, "u1", models.TokenNCR); err != nil {
		t.Errorf("Reconcile failed: %v", err)
	}
}

func TestInitializeLogger_InstallsGlobal(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	logger, cleanup := InitializeLogger()
	defer cleanup()
	if zap.L() != logger {
		t.Error("Expected InitializeLogger to replace the global logger")
	}
}
