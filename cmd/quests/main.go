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
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/quest"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func printQuests(quests []models.Quest) {
	for i, q := range quests {
		state := "active"
		if !q.Active {
			state = "inactive"
		}
		fmt.Printf("%s %s  %-30s %-12s %14s %6d xp  %s\n",
			common.BoxPrefix(i == len(quests)-1),
			common.ShortId(q.Uuid),
			q.Title,
			q.Category,
			common.FormatAmount(q.BaseNcr, "NCR"),
			q.BaseXp,
			state)
	}
}

func addQuest(ctx context.Context, repo *quest.Repository, services *common.Services, id, title, category, baseNcr string, baseXp int64) (string, error) {
	amount, err := decimal.NewFromString(baseNcr)
	if err != nil {
		return "", fmt.Errorf("invalid -ncr value %q: %w", baseNcr, err)
	}
	if id == "" {
		id = uuid.New().String()
	}
	err = repo.CreateQuest(ctx, models.Quest{
		Uuid:      id,
		Title:     title,
		Category:  category,
		BaseNcr:   amount,
		BaseXp:    baseXp,
		Active:    true,
		CreatedAt: services.Clock.Now(),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	add := flag.Bool("add", false, "Create a quest")
	questId := flag.String("uuid", "", "Quest uuid (generated when adding without one)")
	title := flag.String("title", "", "Quest title")
	category := flag.String("category", "general", "Quest category")
	baseNcr := flag.String("ncr", "0", "Base NCR reward")
	baseXp := flag.Int64("xp", 0, "Base XP reward")
	assignTo := flag.String("assign", "", "Assign the quest given by -uuid to this user id")
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

	repo := services.Quests.Repository()

	if *add {
		id, err := addQuest(ctx, repo, services, *questId, *title, *category, *baseNcr, *baseXp)
		if err != nil {
			logger.Fatal("Failed to create quest", zap.Error(err))
		}
		logger.Info("Quest created", zap.String("quest_uuid", id))
		*questId = id
	}

	if *assignTo != "" {
		if *questId == "" {
			logger.Fatal("-assign requires -uuid")
		}
		if _, err := repo.GetQuest(ctx, services.DbService.DB(), *questId); err != nil {
			logger.Fatal("Failed to load quest", zap.Error(err))
		}
		if err := repo.Assign(ctx, *assignTo, *questId, services.Clock.Now()); err != nil {
			logger.Fatal("Failed to assign quest", zap.Error(err))
		}
		logger.Info("Quest assigned", zap.String("quest_uuid", *questId), zap.String("user_id", *assignTo))
	}

	quests, err := repo.ListQuests(ctx)
	if err != nil {
		logger.Fatal("Failed to list quests", zap.Error(err))
	}

	common.PrintHeader("QUEST CATALOG", common.WideWidth)
	printQuests(quests)
	common.PrintFooter(fmt.Sprintf("SUMMARY: %d quests", len(quests)), common.WideWidth)
}
