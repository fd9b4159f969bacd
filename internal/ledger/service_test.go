package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"citizen-economy-go/internal/clock"
	"citizen-economy-go/internal/database"
	"citizen-economy-go/internal/lock"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/store"

	"github.com/shopspring/decimal"
)

const treasuryId = "1"

func setupTestLedger(t *testing.T) (*Service, *database.Service, *clock.Fake) {
	t.Helper()
	db, err := database.OpenInMemory(context.Background())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	clk := clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewService(db, lock.NewLocal(), clk, treasuryId), db, clk
}

func deposit(t *testing.T, s *Service, userId string, amount string) *models.LedgerEntry {
	t.Helper()
	entry, err := s.CreateEntry(context.Background(), CreateEntryParams{
		UserId: userId,
		Amount: decimal.RequireFromString(amount),
		Type:   models.EntryDeposit,
		Source: "test",
	})
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	return entry
}

func balanceOf(t *testing.T, s *Service, userId string) decimal.Decimal {
	t.Helper()
	b, err := s.GetBalance(context.Background(), userId, models.TokenNCR)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	return b.Balance
}

func TestGetBalance_LazilyCreatesAccount(t *testing.T) {
	s, _, _ := setupTestLedger(t)

	b, err := s.GetBalance(context.Background(), "new-user", "")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !b.Balance.IsZero() {
		t.Errorf("Expected zero balance, got %s", b.Balance)
	}
	if b.Token != models.TokenNCR {
		t.Errorf("Expected token NCR, got %s", b.Token)
	}
}

func TestCreateEntry_DepositThenSpend(t *testing.T) {
	s, _, _ := setupTestLedger(t)
	ctx := context.Background()

	first := deposit(t, s, "a", "100")
	if !first.BalanceAfter.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balanceAfter 100, got %s", first.BalanceAfter)
	}

	spend, err := s.CreateEntry(ctx, CreateEntryParams{
		UserId: "a",
		Amount: decimal.RequireFromString("12.5"),
		Type:   models.EntrySpend,
		Source: "market",
	})
	if err != nil {
		t.Fatalf("spend failed: %v", err)
	}
	if !spend.BalanceAfter.Equal(decimal.RequireFromString("87.5")) {
		t.Errorf("Expected balanceAfter 87.5, got %s", spend.BalanceAfter)
	}
	if got := balanceOf(t, s, "a"); !got.Equal(decimal.RequireFromString("87.5")) {
		t.Errorf("Expected balance 87.5, got %s", got)
	}
}

func TestCreateEntry_InsufficientBalanceLeavesStateUnchanged(t *testing.T) {
	s, _, _ := setupTestLedger(t)
	ctx := context.Background()
	deposit(t, s, "a", "10")

	_, err := s.CreateEntry(ctx, CreateEntryParams{
		UserId: "a",
		Amount: decimal.NewFromInt(11),
		Type:   models.EntryWithdraw,
	})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}

	if got := balanceOf(t, s, "a"); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected balance 10, got %s", got)
	}
	entries, err := s.ListEntries(ctx, "a", EntryFilter{}, Page{})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 entry, got %d", len(entries))
	}
}

func TestCreateEntry_Validation(t *testing.T) {
	s, _, _ := setupTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params CreateEntryParams
	}{
		{"zero amount", CreateEntryParams{UserId: "a", Amount: decimal.Zero, Type: models.EntryEarn}},
		{"negative amount", CreateEntryParams{UserId: "a", Amount: decimal.NewFromInt(-5), Type: models.EntryEarn}},
		{"too many decimals", CreateEntryParams{UserId: "a", Amount: decimal.RequireFromString("0.000000001"), Type: models.EntryEarn}},
		{"unknown type", CreateEntryParams{UserId: "a", Amount: decimal.NewFromInt(1), Type: "MINT"}},
		{"transfer type", CreateEntryParams{UserId: "a", Amount: decimal.NewFromInt(1), Type: models.EntryTransfer}},
		{"missing user", CreateEntryParams{Amount: decimal.NewFromInt(1), Type: models.EntryEarn}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateEntry(ctx, tt.params)
			if !errors.Is(err, store.ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestCreateEntry_FeeMirrorsIntoTreasury(t *testing.T) {
	s, _, _ := setupTestLedger(t)
	ctx := context.Background()
	deposit(t, s, "a", "100")

	fee, err := s.CreateEntry(ctx, CreateEntryParams{
		UserId: "a",
		Amount: decimal.NewFromInt(5),
		Type:   models.EntryFee,
		Source: "market",
	})
	if err != nil {
		t.Fatalf("fee failed: %v", err)
	}

	if got := balanceOf(t, s, "a"); !got.Equal(decimal.NewFromInt(95)) {
		t.Errorf("Expected user balance 95, got %s", got)
	}
	if got := balanceOf(t, s, treasuryId); !got.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected treasury balance 5, got %s", got)
	}

	entries, err := s.ListEntries(ctx, treasuryId, EntryFilter{}, Page{})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 treasury entry, got %d", len(entries))
	}
	mirror := entries[0]
	if mirror.Type != models.EntryEarn {
		t.Errorf("Expected mirror type EARN, got %s", mirror.Type)
	}
	if mirror.Meta["original_type"] != "FEE" {
		t.Errorf("Expected original_type FEE, got %v", mirror.Meta["original_type"])
	}
	if mirror.ReferenceId != fee.Id {
		t.Errorf("Expected mirror to reference %s, got %s", fee.Id, mirror.ReferenceId)
	}
}

func TestCreateEntry_TreasuryBurnIsNotMirrored(t *testing.T) {
	s, _, _ := setupTestLedger(t)
	deposit(t, s, treasuryId, "50")

	_, err := s.CreateEntry(context.Background(), CreateEntryParams{
		UserId: treasuryId,
		Amount: decimal.NewFromInt(20),
		Type:   models.EntryBurn,
	})
	if err != nil {
		t.Fatalf("burn failed: %v", err)
	}
	if got := balanceOf(t, s, treasuryId); !got.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Expected treasury balance 30, got %s", got)
	}
}

func TestCreateEntry_DuplicateIdempotencyKey(t *testing.T) {
	s, _, _ := setupTestLedger(t)
	ctx := context.Background()

	params := CreateEntryParams{
		UserId:         "a",
		Amount:         decimal.NewFromInt(3),
		Type:           models.EntryReward,
		IdempotencyKey: "reward-1",
	}
	if _, err := s.CreateEntry(ctx, params); err != nil {
		t.Fatalf("first entry failed: %v", err)
	}
	_, err := s.CreateEntry(ctx, params)
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("Expected ErrDuplicateTransaction, got %v", err)
	}
	if got := balanceOf(t, s, "a"); !got.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Expected balance 3, got %s", got)
	}
}

func TestTransfer_MovesBothSides(t *testing.T) {
	s, _, _ := setupTestLedger(t)
	deposit(t, s, "a", "100")

	result, err := s.Transfer(context.Background(), "a", "b", decimal.NewFromInt(40), "rent")
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	if got := balanceOf(t, s, "a"); !got.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Expected sender balance 60, got %s", got)
	}
	if got := balanceOf(t, s, "b"); !got.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected receiver balance 40, got %s", got)
	}
	if result.Out.Type != models.EntryTransfer || result.In.Type != models.EntryEarn {
		t.Errorf("Unexpected leg types %s/%s", result.Out.Type, result.In.Type)
	}
	if result.Out.Meta["direction"] != "out" || result.In.Meta["direction"] != "in" {
		t.Errorf("Unexpected directions %v/%v", result.Out.Meta["direction"], result.In.Meta["direction"])
	}
	if result.In.Meta["is_transfer"] != true {
		t.Errorf("Expected is_transfer on incoming leg")
	}
}

func TestTransfer_Rejections(t *testing.T) {
	s, _, _ := setupTestLedger(t)
	ctx := context.Background()
	deposit(t, s, "a", "100")

	if _, err := s.Transfer(ctx, "a", "a", decimal.NewFromInt(1), ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for self-transfer, got %v", err)
	}
	if _, err := s.Transfer(ctx, "a", "b", decimal.NewFromInt(101), ""); !errors.Is(err, store.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}

	if got := balanceOf(t, s, "a"); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected sender balance 100, got %s", got)
	}
	if got := balanceOf(t, s, "b"); !got.IsZero() {
		t.Errorf("Expected receiver balance 0, got %s", got)
	}
}

func TestReconcile(t *testing.T) {
	s, db, _ := setupTestLedger(t)
	ctx := context.Background()
	deposit(t, s, "a", "100")
	if _, err := s.Transfer(ctx, "a", "b", decimal.RequireFromString("33.33"), ""); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if _, err := s.CreateEntry(ctx, CreateEntryParams{UserId: "a", Amount: decimal.NewFromInt(7), Type: models.EntryRake}); err != nil {
		t.Fatalf("rake failed: %v", err)
	}

	for _, user := range []string{"a", "b", treasuryId} {
		rec, err := s.Reconcile(ctx, user, models.TokenNCR)
		if err != nil {
			t.Fatalf("Reconcile(%s) failed: %v", user, err)
		}
		if !rec.Consistent() {
			t.Errorf("Expected %s to reconcile", user)
		}
	}

	if _, err := db.DB().ExecContext(ctx, "UPDATE accounts SET balance = '1' WHERE user_id = 'a'"); err != nil {
		t.Fatalf("tamper failed: %v", err)
	}
	rec, err := s.Reconcile(ctx, "a", models.TokenNCR)
	if !errors.Is(err, ErrMismatch) {
		t.Fatalf("Expected ErrMismatch, got %v", err)
	}
	if !rec.Computed.Equal(decimal.RequireFromString("59.67")) {
		t.Errorf("Expected computed 59.67, got %s", rec.Computed)
	}
}

func TestListEntries_OrderFilterAndPaging(t *testing.T) {
	s, _, clk := setupTestLedger(t)
	ctx := context.Background()

	deposit(t, s, "a", "1")
	clk.Advance(time.Minute)
	deposit(t, s, "a", "2")
	clk.Advance(time.Minute)
	if _, err := s.CreateEntry(ctx, CreateEntryParams{UserId: "a", Amount: decimal.NewFromInt(1), Type: models.EntrySpend}); err != nil {
		t.Fatalf("spend failed: %v", err)
	}

	all, err := s.ListEntries(ctx, "a", EntryFilter{}, Page{Limit: 500})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(all))
	}
	if all[0].Type != models.EntrySpend {
		t.Errorf("Expected most recent first, got %s", all[0].Type)
	}

	deposits, err := s.ListEntries(ctx, "a", EntryFilter{Types: []models.EntryType{models.EntryDeposit}}, Page{})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(deposits) != 2 {
		t.Errorf("Expected 2 deposits, got %d", len(deposits))
	}

	page, err := s.ListEntries(ctx, "a", EntryFilter{}, Page{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(page) != 1 || !page[0].Amount.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected the second deposit on page 2, got %+v", page)
	}

	recent, err := s.ListEntries(ctx, "a", EntryFilter{Since: clk.Now().Add(-90 * time.Second)}, Page{})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("Expected 2 recent entries, got %d", len(recent))
	}
}

func TestFlowStats(t *testing.T) {
	s, _, clk := setupTestLedger(t)
	ctx := context.Background()
	since := clk.Now().Add(-time.Hour)

	deposit(t, s, "a", "100")
	steps := []CreateEntryParams{
		{UserId: "a", Amount: decimal.NewFromInt(10), Type: models.EntryEarn},
		{UserId: "a", Amount: decimal.NewFromInt(5), Type: models.EntryBurn},
		{UserId: "a", Amount: decimal.NewFromInt(20), Type: models.EntryWithdraw},
		{UserId: "a", Amount: decimal.NewFromInt(1), Type: models.EntryFee},
	}
	for _, p := range steps {
		if _, err := s.CreateEntry(ctx, p); err != nil {
			t.Fatalf("%s failed: %v", p.Type, err)
		}
	}
	if _, err := s.Transfer(ctx, "a", "b", decimal.NewFromInt(10), ""); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	stats, err := s.FlowStats(ctx, since)
	if err != nil {
		t.Fatalf("FlowStats failed: %v", err)
	}
	if !stats.Outstanding.Equal(decimal.NewFromInt(84)) {
		t.Errorf("Expected outstanding 84, got %s", stats.Outstanding)
	}
	if !stats.NetMint.Equal(decimal.NewFromInt(110)) {
		t.Errorf("Expected net mint 110, got %s", stats.NetMint)
	}
	if !stats.NetBurn.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Expected net burn 6, got %s", stats.NetBurn)
	}
	if !stats.NetRedemption.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected net redemption 20, got %s", stats.NetRedemption)
	}

	later, err := s.FlowStats(ctx, clk.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("FlowStats failed: %v", err)
	}
	if !later.NetMint.IsZero() {
		t.Errorf("Expected no mint after window, got %s", later.NetMint)
	}
}
