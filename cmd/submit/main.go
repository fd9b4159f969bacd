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
	"os"
	"strings"

	"citizen-economy-go/internal/api"
	"citizen-economy-go/internal/common"
	"citizen-economy-go/internal/config"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/quest"

	"go.uber.org/zap"
)

func printResult(r *models.SubmissionResult) {
	if r.Error != "" {
		fmt.Printf("%s Error (%s): %s\n", common.BoxPrefix(r.RiskScore == 0), r.ErrorKind, r.Error)
		if r.RiskScore > 0 {
			fmt.Printf("%s Risk score: %.2f\n", common.BoxPrefix(true), r.RiskScore)
		}
		return
	}

	fmt.Printf("┌─ Submission: %s\n", r.SubmissionId)
	fmt.Printf("│  Status:  %s\n", r.Status)
	if r.Reason != "" {
		fmt.Printf("│  Reason:  %s\n", r.Reason)
	}
	fmt.Printf("│  AI score: %.1f\n", r.AiScore)
	if len(r.Flags) > 0 {
		fmt.Printf("│  Flags:   %s\n", strings.Join(r.Flags, ", "))
	}
	common.PrintBoxSeparator(60)
	fmt.Printf("%s Reward: %s, %d XP\n", common.BoxPrefix(true), common.FormatAmount(r.FinalNcr, "NCR"), r.FinalXp)
}

// readContent loads proof text from a file when the flag starts with "@".
func readContent(arg string) (string, error) {
	if !strings.HasPrefix(arg, "@") {
		return arg, nil
	}
	data, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
	if err != nil {
		return "", fmt.Errorf("failed to read proof file: %w", err)
	}
	return string(data), nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userId := flag.String("user", "", "Submitting user id")
	questId := flag.String("quest", "", "Quest uuid")
	proofType := flag.String("type", "text", "Proof type")
	proofRef := flag.String("ref", "", "Proof reference, e.g. a URL")
	content := flag.String("content", "", "Proof text, or @file to read it from a file")
	externalScore := flag.Float64("score", -1, "Externally supplied AI score (0-100), skips the scorer")
	resolve := flag.String("resolve", "", "Resolve the pending review with this submission id")
	approve := flag.Bool("approve", false, "Approve the review given by -resolve (default rejects)")
	flag.Parse()

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

	var result *models.SubmissionResult
	if *resolve != "" {
		common.PrintHeader("REVIEW RESOLUTION", common.DefaultWidth)
		result, err = economy.ResolveReview(ctx, *resolve, *approve)
	} else {
		text, readErr := readContent(*content)
		if readErr != nil {
			logger.Fatal("Failed to load proof", zap.Error(readErr))
		}
		req := quest.SubmitRequest{
			UserId:       *userId,
			QuestUuid:    *questId,
			ProofType:    *proofType,
			ProofRef:     *proofRef,
			ProofContent: text,
		}
		if *externalScore >= 0 {
			req.ExternalAiScore = externalScore
		}
		common.PrintHeader("QUEST SUBMISSION", common.DefaultWidth)
		result, err = economy.SubmitProof(ctx, req)
	}
	if err != nil {
		logger.Fatal("Submission failed", zap.Error(err))
	}

	printResult(result)

	if *userId == "" {
		common.PrintFooter("Done", common.DefaultWidth)
		return
	}
	balance, err := economy.GetUserBalance(ctx, *userId, "NCR")
	if err != nil {
		logger.Fatal("Failed to get balance", zap.Error(err))
	}
	common.PrintFooter("NCR balance: "+common.FormatAmount(balance, "NCR"), common.DefaultWidth)
}
