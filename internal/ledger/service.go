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
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"citizen-economy-go/internal/clock"
	"citizen-economy-go/internal/database"
	"citizen-economy-go/internal/lock"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const referenceTypeTransfer = "transfer"

// ErrMismatch is returned by Reconcile when the journal and the account
// balance disagree.
var ErrMismatch = errors.New("ledger mismatch")

// Service is the single writer of balance changes.
type Service struct {
	db             *database.Service
	locker         lock.KeyLocker
	clock          clock.Clock
	treasuryUserId string
}

func NewService(db *database.Service, locker lock.KeyLocker, clk clock.Clock, treasuryUserId string) *Service {
	return &Service{
		db:             db,
		locker:         locker,
		clock:          clk,
		treasuryUserId: treasuryUserId,
	}
}

func (s *Service) TreasuryUserId() string {
	return s.treasuryUserId
}

// CreateEntryParams describes one journal movement.
type CreateEntryParams struct {
	UserId         string
	Token          string
	Amount         decimal.Decimal
	Type           models.EntryType
	Source         string
	CounterpartyId string
	ReferenceId    string
	ReferenceType  string
	IdempotencyKey string
	Meta           models.Meta
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Out *models.LedgerEntry
	In  *models.LedgerEntry
}

// GetBalance returns the balance for (user, token), creating a zero account
// on first access.
func (s *Service) GetBalance(ctx context.Context, userId, token string) (*models.Balance, error) {
	if userId == "" {
		return nil, store.Invalid("user id is required")
	}
	token = normalizeToken(token)

	zap.L().Debug("Getting balance", zap.String("user_id", userId), zap.String("token", token))

	account, err := s.loadAccount(ctx, s.db.DB(), userId, token)
	if err != nil {
		return nil, err
	}
	return &models.Balance{
		UserId:    account.UserId,
		Token:     account.Token,
		Balance:   account.Balance,
		UpdatedAt: account.UpdatedAt,
	}, nil
}

// CreateEntry appends one entry in its own transaction.
func (s *Service) CreateEntry(ctx context.Context, params CreateEntryParams) (*models.LedgerEntry, error) {
	if err := validateEntry(&params); err != nil {
		return nil, err
	}

	keys := []string{lock.AccountKey(params.UserId, params.Token)}
	if params.Type.MirrorsToTreasury() {
		keys = append(keys, lock.AccountKey(s.treasuryUserId, params.Token))
	}
	release, err := lock.AcquireAll(ctx, s.locker, keys...)
	if err != nil {
		return nil, err
	}
	defer release()

	var entry *models.LedgerEntry
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		entry, err = s.applyEntry(ctx, tx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// CreateEntryTx appends one entry inside the caller's unit of work. The
// caller holds any account locks it needs.
func (s *Service) CreateEntryTx(ctx context.Context, q store.Querier, params CreateEntryParams) (*models.LedgerEntry, error) {
	if err := validateEntry(&params); err != nil {
		return nil, err
	}
	return s.applyEntry(ctx, q, params)
}

// Transfer moves amount from one user to another: a TRANSFER out of the sender
// and an EARN into the receiver, committed together.
func (s *Service) Transfer(ctx context.Context, fromUserId, toUserId string, amount decimal.Decimal, note string) (*TransferResult, error) {
	if fromUserId == "" || toUserId == "" {
		return nil, store.Invalid("both transfer parties are required")
	}
	if fromUserId == toUserId {
		return nil, store.Invalid("self-transfer is not allowed")
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	token := models.TokenNCR
	release, err := lock.AcquireAll(ctx, s.locker,
		lock.AccountKey(fromUserId, token), lock.AccountKey(toUserId, token))
	if err != nil {
		return nil, err
	}
	defer release()

	zap.L().Info("Processing transfer",
		zap.String("from_user_id", fromUserId),
		zap.String("to_user_id", toUserId),
		zap.String("amount", amount.String()))

	result := &TransferResult{}
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		out, err := s.applyEntry(ctx, tx, CreateEntryParams{
			UserId:         fromUserId,
			Token:          token,
			Amount:         amount,
			Type:           models.EntryTransfer,
			Source:         referenceTypeTransfer,
			CounterpartyId: toUserId,
			ReferenceType:  referenceTypeTransfer,
			Meta:           models.Meta{"direction": "out", "is_transfer": true, "note": note},
		})
		if err != nil {
			return err
		}
		in, err := s.applyEntry(ctx, tx, CreateEntryParams{
			UserId:         toUserId,
			Token:          token,
			Amount:         amount,
			Type:           models.EntryEarn,
			Source:         referenceTypeTransfer,
			CounterpartyId: fromUserId,
			ReferenceId:    out.Id,
			ReferenceType:  referenceTypeTransfer,
			Meta:           models.Meta{"direction": "in", "is_transfer": true, "note": note},
		})
		if err != nil {
			return err
		}
		result.Out, result.In = out, in
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Transfer processed successfully",
		zap.String("out_entry_id", result.Out.Id),
		zap.String("in_entry_id", result.In.Id))
	return result, nil
}

func (s *Service) applyEntry(ctx context.Context, q store.Querier, params CreateEntryParams) (*models.LedgerEntry, error) {
	zap.L().Info("Processing ledger entry",
		zap.String("user_id", params.UserId),
		zap.String("token", params.Token),
		zap.String("type", string(params.Type)),
		zap.String("amount", params.Amount.String()),
		zap.String("source", params.Source))

	if params.IdempotencyKey != "" {
		var existingId string
		err := q.QueryRowContext(ctx, queryCheckIdempotencyKey, params.IdempotencyKey).Scan(&existingId)
		if err == nil {
			zap.L().Warn("Duplicate idempotency key detected, skipping",
				zap.String("idempotency_key", params.IdempotencyKey),
				zap.String("existing_entry_id", existingId))
			return nil, fmt.Errorf("%w: idempotency key %s already used by entry %s",
				store.ErrDuplicateTransaction, params.IdempotencyKey, existingId)
		} else if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
	}

	account, err := s.loadAccount(ctx, q, params.UserId, params.Token)
	if err != nil {
		return nil, err
	}

	newBalance := account.Balance.Add(params.Type.Signed(params.Amount))
	if newBalance.IsNegative() {
		return nil, fmt.Errorf("%w: user %s has %s %s, needs %s",
			store.ErrInsufficientBalance, params.UserId, account.Balance.String(), params.Token, params.Amount.String())
	}

	meta, err := database.EncodeMeta(params.Meta)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	entry := &models.LedgerEntry{
		Id:             uuid.New().String(),
		UserId:         params.UserId,
		Amount:         params.Amount,
		Token:          params.Token,
		Type:           params.Type,
		Source:         params.Source,
		CounterpartyId: params.CounterpartyId,
		ReferenceId:    params.ReferenceId,
		ReferenceType:  params.ReferenceType,
		IdempotencyKey: params.IdempotencyKey,
		Meta:           params.Meta,
		BalanceAfter:   newBalance,
		CreatedAt:      now,
	}
	if entry.Meta == nil {
		entry.Meta = models.Meta{}
	}

	_, err = q.ExecContext(ctx, queryInsertEntry,
		entry.Id, entry.UserId, entry.Amount.String(), entry.Token, string(entry.Type), entry.Source,
		database.NullString(entry.CounterpartyId), database.NullString(entry.ReferenceId),
		database.NullString(entry.ReferenceType), database.NullString(entry.IdempotencyKey),
		meta, entry.BalanceAfter.String(), entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	result, err := q.ExecContext(ctx, queryUpdateAccountBalance, newBalance.String(), now, account.Id, account.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConflict)
	}

	if params.Type.MirrorsToTreasury() && params.UserId != s.treasuryUserId {
		_, err := s.applyEntry(ctx, q, CreateEntryParams{
			UserId:         s.treasuryUserId,
			Token:          params.Token,
			Amount:         params.Amount,
			Type:           models.EntryEarn,
			Source:         params.Source,
			CounterpartyId: params.UserId,
			ReferenceId:    entry.Id,
			ReferenceType:  "ledger_entry",
			Meta:           models.Meta{"original_type": string(params.Type)},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to mirror %s into treasury: %w", params.Type, err)
		}
	}

	zap.L().Info("Ledger entry processed successfully",
		zap.String("entry_id", entry.Id),
		zap.String("user_id", entry.UserId),
		zap.String("old_balance", account.Balance.String()),
		zap.String("new_balance", newBalance.String()))

	return entry, nil
}

func (s *Service) loadAccount(ctx context.Context, q store.Querier, userId, token string) (*models.Account, error) {
	now := s.clock.Now()
	if _, err := q.ExecContext(ctx, queryEnsureAccount, uuid.New().String(), userId, token, now, now); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	account, err := scanAccount(q.QueryRowContext(ctx, queryGetAccount, userId, token))
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var balanceStr string
	if err := row.Scan(&account.Id, &account.UserId, &account.Token, &balanceStr,
		&account.Version, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return nil, err
	}
	balance, err := database.ParseDecimal("balance", balanceStr)
	if err != nil {
		return nil, err
	}
	account.Balance = balance
	return &account, nil
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	var amountStr, balanceAfterStr, metaStr, entryType string
	err := row.Scan(&entry.Id, &entry.UserId, &amountStr, &entry.Token, &entryType, &entry.Source,
		&entry.CounterpartyId, &entry.ReferenceId, &entry.ReferenceType, &entry.IdempotencyKey,
		&metaStr, &balanceAfterStr, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
	}
	entry.Type = models.EntryType(entryType)

	if entry.Amount, err = database.ParseDecimal("amount", amountStr); err != nil {
		return nil, err
	}
	if entry.BalanceAfter, err = database.ParseDecimal("balance after", balanceAfterStr); err != nil {
		return nil, err
	}
	if entry.Meta, err = database.DecodeMeta(metaStr); err != nil {
		return nil, err
	}
	return &entry, nil
}

func normalizeToken(token string) string {
	if token == "" {
		return models.TokenNCR
	}
	return strings.ToUpper(token)
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return store.Invalid("amount must be positive, got %s", amount.String())
	}
	if !amount.Equal(amount.Truncate(models.AmountScale)) {
		return store.Invalid("amount %s exceeds %d decimal places", amount.String(), models.AmountScale)
	}
	return nil
}

func validateEntry(params *CreateEntryParams) error {
	if params.UserId == "" {
		return store.Invalid("user id is required")
	}
	if !params.Type.Valid() {
		return store.Invalid("invalid entry type %q", params.Type)
	}
	if params.Type == models.EntryTransfer {
		return store.Invalid("TRANSFER entries are only created by transfer")
	}
	if err := validateAmount(params.Amount); err != nil {
		return err
	}
	params.Token = normalizeToken(params.Token)
	return nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}

