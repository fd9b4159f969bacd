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

package main

import (
	"context"
	"flag"
	"fmt"

	"citizen-economy-go/internal/common"
	"citizen-economy-go/internal/config"
	"citizen-economy-go/internal/ledger"
	"citizen-economy-go/internal/models"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalUsers    int
	totalAccounts int
	mismatches    int
}

func printAccount(account models.Account, rec *ledger.Reconciliation, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	status := "ok"
	switch {
	case rec == nil:
		status = "unchecked"
	case !rec.Consistent():
		status = "MISMATCH at " + common.ShortId(rec.MismatchId)
	}

	fmt.Printf("%s %-6s: %20s (v%d, entries: %d, %s, updated: %s)\n",
		symbol,
		account.Token,
		common.FormatAmount(account.Balance, account.Token),
		account.Version,
		entryCount(rec),
		status,
		account.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func entryCount(rec *ledger.Reconciliation) int {
	if rec == nil {
		return 0
	}
	return rec.EntryCount
}

func printUserHeader(userId string, accountCount int) {
	fmt.Printf("\n┌─ User: %s\n", userId)
	fmt.Printf("│  Accounts: %d\n", accountCount)
	common.PrintBoxSeparator(78)
}

// groupByUser keeps the ledger's user ordering.
func groupByUser(accounts []models.Account, userFilter string) ([]string, map[string][]models.Account) {
	var order []string
	byUser := make(map[string][]models.Account)
	for _, a := range accounts {
		if userFilter != "" && a.UserId != userFilter {
			continue
		}
		if _, ok := byUser[a.UserId]; !ok {
			order = append(order, a.UserId)
		}
		byUser[a.UserId] = append(byUser[a.UserId], a)
	}
	return order, byUser
}

func generateReport(ctx context.Context, ledgerSvc *ledger.Service, userFilter string, logger *zap.Logger) (balanceStats, error) {
	stats := balanceStats{}

	accounts, err := ledgerSvc.ListAccounts(ctx)
	if err != nil {
		return stats, err
	}

	order, byUser := groupByUser(accounts, userFilter)
	for _, userId := range order {
		stats.totalUsers++
		userAccounts := byUser[userId]
		printUserHeader(userId, len(userAccounts))

		for i, account := range userAccounts {
			stats.totalAccounts++
			// Reconcile returns the partial result alongside ErrMismatch.
			rec, err := ledgerSvc.Reconcile(ctx, account.UserId, account.Token)
			if rec != nil && !rec.Consistent() {
				stats.mismatches++
			} else if err != nil {
				logger.Error("Failed to reconcile account",
					zap.String("user_id", account.UserId),
					zap.String("token", account.Token),
					zap.Error(err))
			}
			printAccount(account, rec, i == len(userAccounts)-1)
		}
	}
	return stats, nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Filter by specific user id (optional)")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	// Read-only report: no economy file, lock backend or scorer needed.
	dbService, ledgerSvc, err := common.InitializeLedgerOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	common.PrintHeader("ACCOUNT BALANCE REPORT", common.DefaultWidth)

	stats, err := generateReport(ctx, ledgerSvc, *userFlag, logger)
	if err != nil {
		logger.Fatal("Failed to generate report", zap.Error(err))
	}

	summary := fmt.Sprintf("SUMMARY: %d accounts across %d users (%d reconciliation mismatches)",
		stats.totalAccounts, stats.totalUsers, stats.mismatches)
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("users", stats.totalUsers),
		zap.Int("accounts", stats.totalAccounts),
		zap.Int("mismatches", stats.mismatches))
}
