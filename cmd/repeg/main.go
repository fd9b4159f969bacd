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
	"time"

	"citizen-economy-go/internal/common"
	"citizen-economy-go/internal/config"
	"citizen-economy-go/internal/models"

	"go.uber.org/zap"
)

// minRepegInterval keeps scheduled runs from advancing the EMAs more than
// about once a day.
const minRepegInterval = 20 * time.Hour

func printUpdate(u *models.PriceUpdate) {
	fmt.Printf("┌─ Inputs\n")
	fmt.Printf("│  Reserves (fiat):   %14.2f\n", u.Inputs.ReservesFiat)
	fmt.Printf("│  NCR outstanding:   %14.2f\n", u.Inputs.NcrOutstanding)
	fmt.Printf("│  Reference price:   %14.4f\n", u.Inputs.ReferencePrice)
	fmt.Printf("│  Net mint 24h:      %14.2f\n", u.Inputs.NetMint24h)
	fmt.Printf("│  Net burn 24h:      %14.2f\n", u.Inputs.NetBurn24h)
	fmt.Printf("│  Net redemption 24h:%14.2f\n", u.Inputs.NetRedemption24h)
	common.PrintBoxSeparator(60)
	fmt.Printf("│  Coverage raw/ema:  %8.4f / %8.4f\n", u.RawCoverage, u.EmaCoverage)
	fmt.Printf("│  Flow raw/ema:      %8.4f / %8.4f\n", u.RawFlow, u.EmaFlow)
	fmt.Printf("│  Adjust cov/flow:   %8.4f / %8.4f\n", u.CovAdjust, u.FlowAdjust)
	fmt.Printf("│  Total adjust:      %8.4f\n", u.TotalAdjust)
	common.PrintBoxSeparator(60)
	fmt.Printf("%s Price: %.4f -> %.4f (proposed %.4f)\n",
		common.BoxPrefix(true), u.OldPrice, u.NewPrice, u.ProposedRaw)
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	reserves := flag.Float64("reserves", -1, "Fiat reserves backing outstanding NCR (required)")
	force := flag.Bool("force", false, "Repeg even if the last update is recent")
	flag.Parse()

	if *reserves < 0 {
		logger.Fatal("Missing or negative -reserves flag")
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

	if !*force {
		due, err := services.Pricer.RepegDue(ctx, minRepegInterval)
		if err != nil {
			logger.Fatal("Failed to read market state", zap.Error(err))
		}
		if !due {
			state, err := services.Pricer.GetCurrentPrice(ctx)
			if err != nil {
				logger.Fatal("Failed to read market state", zap.Error(err))
			}
			logger.Info("Repeg skipped, last update is recent (use -force to override)",
				zap.Time("last_updated_at", state.LastUpdatedAt),
				zap.Float64("current_price", state.CurrentPrice))
			return
		}
	}

	common.PrintHeader("NCR REPEG", common.DefaultWidth)

	update, err := services.Pricer.Repeg(ctx, *reserves)
	if err != nil {
		logger.Fatal("Repeg failed", zap.Error(err))
	}
	printUpdate(update)

	common.PrintFooter(fmt.Sprintf("NCR price is now %.4f", update.NewPrice), common.DefaultWidth)
}
