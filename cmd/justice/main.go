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
	"strings"

	"citizen-economy-go/internal/api"
	"citizen-economy-go/internal/common"
	"citizen-economy-go/internal/config"
	"citizen-economy-go/internal/justice"
	"citizen-economy-go/internal/models"

	"go.uber.org/zap"
)

func printSnapshot(ctx context.Context, economy *api.EconomyService, snapshot *models.CpSnapshot) {
	fmt.Printf("\n┌─ User: %s\n", snapshot.UserId)
	fmt.Printf("│  CP: %d\n", snapshot.CpValue)
	fmt.Printf("│  Regime: %s (policy %s)\n", snapshot.Regime, snapshot.PolicyVersion)
	common.PrintBoxSeparator(78)

	for i, action := range models.Actions {
		allowed, err := economy.CanPerform(ctx, snapshot.UserId, action)
		if err != nil {
			zap.L().Error("Failed to check action", zap.String("action", string(action)), zap.Error(err))
			continue
		}
		mark := "denied"
		if allowed {
			mark = "allowed"
		}
		fmt.Printf("%s %-15s: %s\n", common.BoxPrefix(i == len(models.Actions)-1), action, mark)
	}
}

func printViolations(violations []models.ViolationLog) {
	if len(violations) == 0 {
		fmt.Println("\nNo violations recorded")
		return
	}
	fmt.Printf("\n┌─ Violations: %d\n", len(violations))
	for i, v := range violations {
		isLast := i == len(violations)-1
		fmt.Printf("%s %s %-5s %-20s sev %d  cp %+d  (%s)\n",
			common.BoxPrefix(isLast),
			v.CreatedAt.Format("2006-01-02 15:04:05"),
			v.Category,
			v.Code,
			v.Severity,
			v.CpDelta,
			v.Source)
		if len(v.Context) > 0 {
			fmt.Printf("%s context: %v\n", common.BoxDetailPrefix(isLast), v.Context)
		}
	}
}

func publishPolicy(ctx context.Context, services *common.Services, file string) error {
	params, err := common.LoadEconomyParams(file)
	if err != nil {
		return err
	}
	if params.JusticePolicy == nil {
		return fmt.Errorf("%s has no justice_policy section", file)
	}
	published, err := services.Justice.PublishPolicy(ctx, *params.JusticePolicy)
	if err != nil {
		return err
	}
	zap.L().Info("Justice policy is now active",
		zap.String("version", published.Version),
		zap.String("policy_id", published.Id))
	return nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userId := flag.String("user", "", "User id (required)")
	add := flag.Bool("add", false, "Record a violation for the user")
	category := flag.String("category", "", "Violation category: EKO, COM, SYS or TRUST")
	code := flag.String("code", "", "Violation code, e.g. SPAM_MESSAGES")
	severity := flag.Int("severity", 1, "Violation severity (1-5)")
	source := flag.String("source", "admin", "Reporter of the violation")
	limit := flag.Int("limit", 10, "Number of recent violations to list")
	policyFile := flag.String("policy", "", "Publish the justice_policy of this economy file as the active policy")
	flag.Parse()

	if *userId == "" && *policyFile == "" {
		logger.Fatal("Missing required -user flag")
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

	if *policyFile != "" {
		if err := publishPolicy(ctx, services, *policyFile); err != nil {
			logger.Fatal("Failed to publish policy", zap.Error(err))
		}
		if *userId == "" {
			return
		}
	}

	economy := api.NewEconomyService(services)

	if *add {
		snapshot, err := economy.ReportViolation(ctx, justice.ViolationInput{
			UserId:   *userId,
			Category: models.ViolationCategory(strings.ToUpper(*category)),
			Code:     *code,
			Severity: *severity,
			Source:   *source,
		})
		if err != nil {
			logger.Fatal("Failed to record violation", zap.Error(err))
		}
		logger.Info("Violation recorded",
			zap.String("user_id", *userId),
			zap.Int64("cp", snapshot.CpValue),
			zap.String("regime", string(snapshot.Regime)))
	}

	snapshot, err := economy.GetCp(ctx, *userId)
	if err != nil {
		logger.Fatal("Failed to get CP", zap.Error(err))
	}

	violations, err := services.Justice.ListViolations(ctx, *userId, *limit)
	if err != nil {
		logger.Fatal("Failed to list violations", zap.Error(err))
	}

	common.PrintHeader("CRIMINAL RECORD", common.DefaultWidth)
	printSnapshot(ctx, economy, snapshot)
	printViolations(violations)
	common.PrintFooter(fmt.Sprintf("Regime %s at CP %d", snapshot.Regime, snapshot.CpValue), common.DefaultWidth)
}
