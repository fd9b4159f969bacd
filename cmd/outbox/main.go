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
	"os"
	"os/signal"
	"syscall"
	"time"

	"citizen-economy-go/internal/common"
	"citizen-economy-go/internal/config"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/outbox"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func logBacklog(ctx context.Context, repo *outbox.Repository, sent int) {
	fields := []zap.Field{zap.Int("sent", sent)}
	for _, status := range []string{models.OutboxStatusPending, models.OutboxStatusFailed} {
		n, err := repo.CountByStatus(ctx, status)
		if err != nil {
			zap.L().Warn("Failed to count outbox messages", zap.String("status", status), zap.Error(err))
			continue
		}
		fields = append(fields, zap.Int(status, n))
	}
	zap.L().Info("Outbox batch published", fields...)
}

func main() {
	once := flag.Bool("once", false, "Publish one batch of pending messages and exit")
	flag.Parse()

	// The global logger must be installed before the first Fatal.
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting outbox sender",
		zap.Strings("brokers", cfg.Outbox.KafkaBrokers),
		zap.String("topic", cfg.Outbox.Topic))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	publisher, err := outbox.NewKafkaPublisher(cfg.Outbox.KafkaBrokers)
	if err != nil {
		zap.L().Fatal("Failed to create kafka publisher", zap.Error(err))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			zap.L().Warn("Failed to close kafka publisher", zap.Error(err))
		}
	}()

	sender := outbox.NewSender(services.DbService, publisher, services.Clock, cfg.Outbox)

	if *once {
		sent := sender.ProcessPending(ctx)
		logBacklog(ctx, outbox.NewRepository(services.DbService.DB()), sent)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sender.Start(gctx)
		return nil
	})

	zap.L().Info("Outbox sender running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping outbox sender...")
	sender.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Outbox sender stopped gracefully")
	case <-shutdownCtx.Done():
		cancel()
		zap.L().Warn("Forced shutdown after timeout")
	}
}
