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
	"fmt"

	"citizen-economy-go/internal/ledger"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetUserBalance returns the current balance for a user and token
func (s *EconomyService) GetUserBalance(ctx context.Context, userId, token string) (decimal.Decimal, error) {
	if userId == "" {
		return decimal.Zero, store.Invalid("user_id is required")
	}

	balance, err := s.svc.Ledger.GetBalance(ctx, userId, token)
	if err != nil {
		zap.L().Error("Failed to get user balance",
			zap.String("user_id", userId),
			zap.String("token", token),
			zap.Error(err))
		return decimal.Zero, fmt.Errorf("failed to retrieve balance: %w", err)
	}

	return balance.Balance, nil
}

// GetTransactionHistory returns paginated history for a user, most recent first
func (s *EconomyService) GetTransactionHistory(ctx context.Context, userId string, filter ledger.EntryFilter, limit, offset int) ([]models.TransactionRecord, error) {
	if userId == "" {
		return nil, store.Invalid("user_id is required")
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.svc.Ledger.ListEntries(ctx, userId, filter, ledger.Page{Limit: limit, Offset: offset})
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("user_id", userId),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve transaction history: %w", err)
	}

	result := make([]models.TransactionRecord, len(entries))
	for i, e := range entries {
		result[i] = models.TransactionRecord{
			Id:            e.Id,
			Type:          string(e.Type),
			Token:         e.Token,
			Amount:        e.Amount,
			SignedAmount:  e.SignedAmount(),
			BalanceAfter:  e.BalanceAfter,
			Source:        e.Source,
			Counterparty:  e.CounterpartyId,
			ReferenceId:   e.ReferenceId,
			ReferenceType: e.ReferenceType,
			CreatedAt:     e.CreatedAt,
		}
	}

	return result, nil
}
