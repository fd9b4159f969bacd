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

	"citizen-economy-go/internal/api"
	"citizen-economy-go/internal/common"
	"citizen-economy-go/internal/config"
	"citizen-economy-go/internal/ledger"
	"citizen-economy-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func printResult(op string, r *models.OperationResult) {
	if !r.Success {
		fmt.Printf("%s %s failed (%s): %s\n", common.BoxPrefix(true), op, r.ErrorKind, r.Error)
		return
	}
	fmt.Printf("%s %s %s ok, new balance %s (entry %s)\n",
		common.BoxPrefix(true), op,
		common.FormatAmount(r.Amount, r.Token),
		common.FormatAmount(r.NewBalance, r.Token),
		common.ShortId(r.EntryId))
}

func printHistory(records []models.TransactionRecord) {
	fmt.Printf("\n┌─ History: %d entries\n", len(records))
	for i, rec := range records {
		counterparty := rec.Counterparty
		if counterparty == "" {
			counterparty = "-"
		}
		fmt.Printf("%s %s %-8s %14s -> %14s  %-10s %s\n",
			common.BoxPrefix(i == len(records)-1),
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.Type,
			rec.SignedAmount.StringFixed(2),
			rec.BalanceAfter.StringFixed(2),
			rec.Source,
			counterparty)
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userId := flag.String("user", "", "User id (required)")
	topup := flag.String("topup", "", "Top up this NCR amount")
	withdraw := flag.String("withdraw", "", "Withdraw this NCR amount")
	transferTo := flag.String("to", "", "Transfer -amount NCR to this user id")
	amountFlag := flag.String("amount", "", "Transfer amount")
	note := flag.String("note", "", "Transfer note")
	txId := flag.String("tx", "", "External transaction id (generated when empty)")
	limit := flag.Int("limit", 20, "Number of history entries to show")
	flag.Parse()

	if *userId == "" {
		logger.Fatal("Missing required -user flag")
	}
	if *txId == "" {
		*txId = uuid.New().String()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	economy := api.NewEconomyService(services)
	if err := economy.HealthCheck(ctx); err != nil {
		logger.Fatal("Database health check failed", zap.Error(err))
	}

	common.PrintHeader("WALLET: "+*userId, common.WideWidth)

	run := func(op, raw string, fn func(decimal.Decimal) (*models.OperationResult, error)) {
		if raw == "" {
			return
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			logger.Fatal("Invalid amount", zap.String("op", op), zap.String("amount", raw), zap.Error(err))
		}
		result, err := fn(amount)
		if err != nil {
			logger.Fatal("Wallet operation failed", zap.String("op", op), zap.Error(err))
		}
		printResult(op, result)
	}

	run("Top-up", *topup, func(a decimal.Decimal) (*models.OperationResult, error) {
		return economy.TopUp(ctx, *userId, a, *txId)
	})
	run("Withdraw", *withdraw, func(a decimal.Decimal) (*models.OperationResult, error) {
		return economy.Withdraw(ctx, *userId, a, *txId)
	})
	if *transferTo != "" {
		run("Transfer", *amountFlag, func(a decimal.Decimal) (*models.OperationResult, error) {
			return economy.Transfer(ctx, *userId, *transferTo, a, *note)
		})
	}

	records, err := economy.GetTransactionHistory(ctx, *userId, ledger.EntryFilter{}, *limit, 0)
	if err != nil {
		logger.Fatal("Failed to get history", zap.Error(err))
	}
	printHistory(records)

	balance, err := economy.GetUserBalance(ctx, *userId, models.TokenNCR)
	if err != nil {
		logger.Fatal("Failed to get balance", zap.Error(err))
	}
	common.PrintFooter("Balance: "+common.FormatAmount(balance, models.TokenNCR), common.WideWidth)
}
