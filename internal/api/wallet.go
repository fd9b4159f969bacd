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

package api

import (
	"context"
	"errors"

	"citizen-economy-go/internal/ledger"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const walletSource = "wallet"

// TopUp credits a fiat-backed top-up. The justice regime must allow
// TOPUP_WALLET. A repeated externalTxId is reported as a duplicate.
func (s *EconomyService) TopUp(ctx context.Context, userId string, amount decimal.Decimal, externalTxId string) (*models.OperationResult, error) {
	return s.walletEntry(ctx, userId, amount, externalTxId, models.EntryDeposit, models.ActionTopupWallet)
}

// Withdraw debits a redemption. The justice regime must allow WITHDRAW_FUNDS.
func (s *EconomyService) Withdraw(ctx context.Context, userId string, amount decimal.Decimal, externalTxId string) (*models.OperationResult, error) {
	return s.walletEntry(ctx, userId, amount, externalTxId, models.EntryWithdraw, models.ActionWithdrawFunds)
}

func (s *EconomyService) walletEntry(ctx context.Context, userId string, amount decimal.Decimal, externalTxId string, entryType models.EntryType, action models.Action) (*models.OperationResult, error) {
	if userId == "" || externalTxId == "" {
		return failure(userId, amount, store.Invalid("user_id and external transaction id are required"))
	}

	if err := s.svc.Justice.RequireAction(ctx, userId, action); err != nil {
		var denied *store.ActionDeniedError
		if errors.As(err, &denied) {
			zap.L().Info("Wallet operation denied by regime",
				zap.String("user_id", userId),
				zap.String("action", string(action)),
				zap.String("regime", denied.Regime),
				zap.Int64("cp", denied.Cp))
		}
		return failure(userId, amount, err)
	}

	zap.L().Info("Processing wallet operation",
		zap.String("user_id", userId),
		zap.String("type", string(entryType)),
		zap.String("amount", amount.String()),
		zap.String("external_tx_id", externalTxId))

	entry, err := s.svc.Ledger.CreateEntry(ctx, ledger.CreateEntryParams{
		UserId:         userId,
		Token:          models.TokenNCR,
		Amount:         amount,
		Type:           entryType,
		Source:         walletSource,
		ReferenceId:    externalTxId,
		ReferenceType:  "external_tx",
		IdempotencyKey: string(entryType) + ":" + externalTxId,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			zap.L().Info("Duplicate wallet operation detected",
				zap.String("user_id", userId),
				zap.String("external_tx_id", externalTxId))
		} else {
			zap.L().Error("Wallet operation failed",
				zap.String("user_id", userId),
				zap.String("type", string(entryType)),
				zap.String("amount", amount.String()),
				zap.Error(err))
		}
		return failure(userId, amount, err)
	}

	return &models.OperationResult{
		Success:    true,
		UserId:     userId,
		Token:      entry.Token,
		Amount:     entry.Amount,
		NewBalance: entry.BalanceAfter,
		EntryId:    entry.Id,
	}, nil
}

// Transfer moves NCR between two users.
func (s *EconomyService) Transfer(ctx context.Context, fromUserId, toUserId string, amount decimal.Decimal, note string) (*models.OperationResult, error) {
	result, err := s.svc.Ledger.Transfer(ctx, fromUserId, toUserId, amount, note)
	if err != nil {
		zap.L().Warn("Transfer failed",
			zap.String("from_user_id", fromUserId),
			zap.String("to_user_id", toUserId),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return failure(fromUserId, amount, err)
	}
	return &models.OperationResult{
		Success:    true,
		UserId:     fromUserId,
		Token:      result.Out.Token,
		Amount:     amount,
		NewBalance: result.Out.BalanceAfter,
		EntryId:    result.Out.Id,
	}, nil
}

// failure turns a business error into a result. Errors outside the
// taxonomy are infrastructure failures and are returned to the caller.
func failure(userId string, amount decimal.Decimal, err error) (*models.OperationResult, error) {
	kind := store.Kind(err)
	if kind == "internal" {
		return nil, err
	}
	return &models.OperationResult{
		Success:   false,
		UserId:    userId,
		Amount:    amount,
		Error:     err.Error(),
		ErrorKind: kind,
	}, nil
}
