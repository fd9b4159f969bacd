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

package outbox

import (
	"context"
	"sync"
	"time"

	"citizen-economy-go/internal/clock"
	"citizen-economy-go/internal/database"
	"citizen-economy-go/internal/models"

	"go.uber.org/zap"
)

// Sender drains pending outbox messages to a Publisher on a fixed interval.
type Sender struct {
	repo      *Repository
	publisher Publisher
	clock     clock.Clock
	interval  time.Duration
	batchSize int
	maxRetry  int
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewSender(db *database.Service, publisher Publisher, clk clock.Clock, cfg models.OutboxConfig) *Sender {
	s := &Sender{
		repo:      NewRepository(db.DB()),
		publisher: publisher,
		clock:     clk,
		interval:  cfg.PollInterval,
		batchSize: cfg.BatchSize,
		maxRetry:  cfg.MaxRetry,
		stopCh:    make(chan struct{}),
	}
	if s.interval <= 0 {
		s.interval = 500 * time.Millisecond
	}
	if s.batchSize <= 0 {
		s.batchSize = 100
	}
	if s.maxRetry <= 0 {
		s.maxRetry = 5
	}
	return s
}

func (s *Sender) Start(ctx context.Context) {
	zap.L().Info("Outbox sender started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("Outbox sender stopping on context cancel")
			return
		case <-s.stopCh:
			zap.L().Info("Outbox sender stopped")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

// Stop ends the Start loop. It is safe to call more than once.
func (s *Sender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// ProcessPending publishes one batch and returns the number of messages sent.
func (s *Sender) ProcessPending(ctx context.Context) int {
	messages, err := s.repo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		zap.L().Error("Failed to load pending outbox messages", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *Sender) send(ctx context.Context, msg *models.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	now := s.clock.Now()

	if err == nil {
		if updateErr := s.repo.MarkSent(ctx, msg.Id, now); updateErr != nil {
			zap.L().Error("Failed to mark outbox message sent", zap.Int64("id", msg.Id), zap.Error(updateErr))
			return false
		}
		zap.L().Debug("Outbox message published",
			zap.Int64("id", msg.Id),
			zap.String("topic", msg.Topic),
			zap.String("key", msg.MessageKey))
		return true
	}

	zap.L().Warn("Outbox publish failed", zap.Int64("id", msg.Id), zap.Int("retry_count", msg.RetryCount), zap.Error(err))

	if msg.RetryCount+1 >= s.maxRetry {
		if err := s.repo.MarkAsFailed(ctx, msg.Id, now); err != nil {
			zap.L().Error("Failed to mark outbox message failed", zap.Int64("id", msg.Id), zap.Error(err))
		} else {
			zap.L().Error("Outbox message exceeded max retries", zap.Int64("id", msg.Id), zap.Int("max_retry", s.maxRetry))
		}
		return false
	}

	if err := s.repo.IncrementRetryCount(ctx, msg.Id, now); err != nil {
		zap.L().Error("Failed to increment outbox retry count", zap.Int64("id", msg.Id), zap.Error(err))
	}
	return false
}
