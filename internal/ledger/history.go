/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EntryFilter narrows ListEntries. Zero fields do not filter.
type EntryFilter struct {
	Token  string
	Types  []models.EntryType
	Source string
	Since  time.Time
	Until  time.Time
}

// Page is a limit/offset window. Limits outside (0, 100] fall back to 20.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// ListEntries returns a user's entries most-recent-first.
func (s *Service) ListEntries(ctx context.Context, userId string, filter EntryFilter, page Page) ([]models.LedgerEntry, error) {
	if userId == "" {
		return nil, store.Invalid("user id is required")
	}
	if page.Limit <= 0 || page.Limit > maxPageLimit {
		page.Limit = defaultPageLimit
	}
	if page.Offset < 0 {
		page.Offset = 0
	}

	zap.L().Debug("Listing ledger entries",
		zap.String("user_id", userId),
		zap.Int("limit", page.Limit),
		zap.Int("offset", page.Offset))

	var where []string
	args := []any{userId}
	where = append(where, "user_id = ?")
	if filter.Token != "" {
		where = append(where, "token = ?")
		args = append(args, normalizeToken(filter.Token))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			if !t.Valid() {
				return nil, store.Invalid("invalid entry type %q", t)
			}
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, filter.Until.UTC())
	}
	args = append(args, page.Limit, page.Offset)

	query := "SELECT " + entryColumns + " FROM ledger_entries WHERE " +
		strings.Join(where, " AND ") + " ORDER BY rowid DESC LIMIT ? OFFSET ?"

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer closeRows(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during ledger entry row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating ledger entry rows: %w", err)
	}
	return entries, nil
}

// Reconciliation is the outcome of replaying an account's journal.
type Reconciliation struct {
	UserId     string
	Token      string
	Balance    decimal.Decimal
	Computed   decimal.Decimal
	EntryCount int
	MismatchId string
}

func (r *Reconciliation) Consistent() bool {
	return r.MismatchId == "" && r.Balance.Equal(r.Computed)
}

// Reconcile replays every entry of (user, token) and checks both the final
// balance and each entry's balanceAfter against the running sum.
func (s *Service) Reconcile(ctx context.Context, userId, token string) (*Reconciliation, error) {
	token = normalizeToken(token)

	account, err := s.loadAccount(ctx, s.db.DB(), userId, token)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.DB().QueryContext(ctx, queryGetAccountEntries, userId, token)
	if err != nil {
		return nil, fmt.Errorf("failed to get account entries: %w", err)
	}
	defer closeRows(rows)

	rec := &Reconciliation{UserId: userId, Token: token, Balance: account.Balance, Computed: decimal.Zero}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		rec.Computed = rec.Computed.Add(entry.SignedAmount())
		rec.EntryCount++
		if rec.MismatchId == "" && !entry.BalanceAfter.Equal(rec.Computed) {
			rec.MismatchId = entry.Id
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account entries: %w", err)
	}

	if !rec.Consistent() {
		zap.L().Error("Ledger reconciliation failed",
			zap.String("user_id", userId),
			zap.String("token", token),
			zap.String("balance", rec.Balance.String()),
			zap.String("computed", rec.Computed.String()),
			zap.String("first_mismatch_entry", rec.MismatchId))
		return rec, fmt.Errorf("%w: user %s balance %s, journal %s",
			ErrMismatch, userId, rec.Balance.String(), rec.Computed.String())
	}
	return rec, nil
}

// ListAccounts returns every account, ordered by user.
func (s *Service) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.DB().QueryContext(ctx, queryListAccounts)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer closeRows(rows)

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}
	return accounts, nil
}

// FlowStats aggregates NCR movements of non-treasury accounts since a point
// in time. Transfer legs cancel out and are excluded.
func (s *Service) FlowStats(ctx context.Context, since time.Time) (*models.FlowStats, error) {
	stats := &models.FlowStats{
		Outstanding:   decimal.Zero,
		NetMint:       decimal.Zero,
		NetBurn:       decimal.Zero,
		NetRedemption: decimal.Zero,
		Since:         since.UTC(),
	}

	rows, err := s.db.DB().QueryContext(ctx, queryGetAccountBalances, models.TokenNCR, s.treasuryUserId)
	if err != nil {
		return nil, fmt.Errorf("failed to get account balances: %w", err)
	}
	for rows.Next() {
		var userId, balanceStr string
		if err := rows.Scan(&userId, &balanceStr); err != nil {
			closeRows(rows)
			return nil, fmt.Errorf("failed to scan account balance: %w", err)
		}
		balance, err := decimal.NewFromString(balanceStr)
		if err != nil {
			closeRows(rows)
			return nil, fmt.Errorf("failed to parse balance '%s' for user %s: %w", balanceStr, userId, err)
		}
		stats.Outstanding = stats.Outstanding.Add(balance)
	}
	err = rows.Err()
	closeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("error iterating account balances: %w", err)
	}

	rows, err = s.db.DB().QueryContext(ctx, queryGetFlowEntries,
		models.TokenNCR, stats.Since, s.treasuryUserId, referenceTypeTransfer)
	if err != nil {
		return nil, fmt.Errorf("failed to get flow entries: %w", err)
	}
	defer closeRows(rows)

	for rows.Next() {
		var entryType, amountStr string
		if err := rows.Scan(&entryType, &amountStr); err != nil {
			return nil, fmt.Errorf("failed to scan flow entry: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		switch models.EntryType(entryType) {
		case models.EntryEarn, models.EntryReward, models.EntryDeposit:
			stats.NetMint = stats.NetMint.Add(amount)
		case models.EntryBurn, models.EntrySpend, models.EntryFee, models.EntryRake:
			stats.NetBurn = stats.NetBurn.Add(amount)
		case models.EntryWithdraw:
			stats.NetRedemption = stats.NetRedemption.Add(amount)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flow entries: %w", err)
	}

	zap.L().Debug("Computed ledger flow stats",
		zap.String("outstanding", stats.Outstanding.String()),
		zap.String("net_mint", stats.NetMint.String()),
		zap.String("net_burn", stats.NetBurn.String()),
		zap.String("net_redemption", stats.NetRedemption.String()))
	return stats, nil
}
