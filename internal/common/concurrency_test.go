package common

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"citizen-economy-go/internal/abuse"
	"citizen-economy-go/internal/clock"
	"citizen-economy-go/internal/database"
	"citizen-economy-go/internal/justice"
	"citizen-economy-go/internal/ledger"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/store"

	"github.com/shopspring/decimal"
)

// setupFileServices wires the full graph over a file database with a real
// connection pool, so concurrent units run on separate connections.
func setupFileServices(t *testing.T) *Services {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "economy.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open file database: %v", err)
	}
	t.Cleanup(db.Close)

	clk := clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	services, err := BuildServices(ctx, db, clk, testConfig())
	if err != nil {
		t.Fatalf("BuildServices failed: %v", err)
	}
	return services
}

func TestConcurrentOperationsOnOneUser(t *testing.T) {
	ctx := context.Background()
	services := setupFileServices(t)
	const user = "u1"
	const workers = 30

	fee := decimal.NewFromInt(2)
	funding := decimal.NewFromInt(29)
	if _, err := services.Ledger.CreateEntry(ctx, ledger.CreateEntryParams{
		UserId: user, Amount: funding, Type: models.EntryDeposit, Source: "test",
	}); err != nil {
		t.Fatalf("funding deposit failed: %v", err)
	}

	var (
		mu       sync.Mutex
		fees     int
		cpSum    int64
		failures []error
	)
	record := func(err error) {
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := services.Ledger.CreateEntry(ctx, ledger.CreateEntryParams{
				UserId: user, Amount: fee, Type: models.EntryFee, Source: "test",
			})
			switch {
			case err == nil:
				mu.Lock()
				fees++
				mu.Unlock()
			case !errors.Is(err, store.ErrInsufficientBalance):
				record(err)
			}
		}()
		go func() {
			defer wg.Done()
			_, _, err := services.Abuse.RegisterEvent(ctx, user, abuse.ManualFlag{ModeratorId: "mod"}, abuse.RegisterOptions{})
			if err != nil {
				record(err)
			}
		}()
		go func() {
			defer wg.Done()
			violation, _, err := services.Justice.AddViolation(ctx, justice.ViolationInput{
				UserId:   user,
				Category: models.CategoryCom,
				Code:     "COM_SPAM",
				Severity: 1,
				Source:   "test",
			})
			if err != nil {
				record(err)
				return
			}
			mu.Lock()
			cpSum += violation.CpDelta
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, err := range failures {
		t.Errorf("unexpected concurrent failure: %v", err)
	}

	// Ledger: exactly floor(29/2) fees fit, and the journal replays.
	if fees != 14 {
		t.Errorf("Expected 14 successful fees, got %d", fees)
	}
	balance, err := services.Ledger.GetBalance(ctx, user, models.TokenNCR)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	wantBalance := funding.Sub(fee.Mul(decimal.NewFromInt(int64(fees))))
	if !balance.Balance.Equal(wantBalance) || balance.Balance.IsNegative() {
		t.Errorf("Expected balance %s, got %s", wantBalance, balance.Balance)
	}
	for _, owner := range []string{user, services.Ledger.TreasuryUserId()} {
		if _, err := services.Ledger.Reconcile(ctx, owner, models.TokenNCR); err != nil {
			t.Errorf("Reconcile %s failed: %v", owner, err)
		}
	}

	// Risk: 30 manual flags of weight 3 saturate at the upper bound.
	profile, err := services.Abuse.GetOrCreateProfile(ctx, user)
	if err != nil {
		t.Fatalf("GetOrCreateProfile failed: %v", err)
	}
	if profile.RiskScore != 10 {
		t.Errorf("Expected risk clamped at 10, got %v", profile.RiskScore)
	}

	// CP: no increment is lost and the regime follows the final value.
	snapshot, err := services.Justice.GetCp(ctx, user)
	if err != nil {
		t.Fatalf("GetCp failed: %v", err)
	}
	if cpSum == 0 || snapshot.CpValue != cpSum {
		t.Errorf("Expected cp %d, got %d", cpSum, snapshot.CpValue)
	}
	policy, err := services.Justice.ActivePolicy(ctx)
	if err != nil {
		t.Fatalf("ActivePolicy failed: %v", err)
	}
	if want := justice.RegimeFor(snapshot.CpValue, policy); snapshot.Regime != want {
		t.Errorf("Expected regime %s, got %s", want, snapshot.Regime)
	}
}
