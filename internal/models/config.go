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

package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Economy  EconomyConfig
	Scorer   ScorerConfig
	Lock     LockConfig
	Outbox   OutboxConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// EconomyConfig holds the tunables of the economic and justice core.
type EconomyConfig struct {
	TreasuryDailyLimit float64
	TreasuryUserId     string
	BasePrice          float64
	MinPrice           float64
	MaxPrice           float64
	TargetCoverage     float64
	KCoverage          float64
	KFlow              float64
	SmoothingAlpha     float64
	FlowAnchor         float64
	MaxStep            float64
	EconomyFile        string
}

// ScorerConfig holds the external AI scorer settings
type ScorerConfig struct {
	URL     string
	Timeout time.Duration
	// Strict surfaces scorer failures instead of falling back to the
	// heuristic scorer.
	Strict bool
}

// LockConfig selects the per-key lock backend
type LockConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// OutboxConfig holds event publication settings
type OutboxConfig struct {
	KafkaBrokers []string
	Topic        string
	PollInterval time.Duration
	BatchSize    int
	MaxRetry     int
}
