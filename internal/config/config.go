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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"citizen-economy-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	scorerTimeout, err := getEnvDuration("SCORER_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, err
	}

	lockTTL, err := getEnvDuration("LOCK_TTL", 10*time.Second)
	if err != nil {
		return nil, err
	}

	pollInterval, err := getEnvDuration("OUTBOX_POLL_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}

	economy := models.EconomyConfig{
		TreasuryUserId: getEnvString("NCR_TREASURY_USER_ID", "1"),
		EconomyFile:    getEnvString("ECONOMY_FILE", ""),
	}
	floats := []struct {
		key    string
		def    float64
		target *float64
	}{
		{"TREASURY_DAILY_NCR_LIMIT", 200000, &economy.TreasuryDailyLimit},
		{"NCR_BASE_PRICE_TRY", 1.0, &economy.BasePrice},
		{"NCR_MIN_PRICE_TRY", 0.3, &economy.MinPrice},
		{"NCR_MAX_PRICE_TRY", 3.0, &economy.MaxPrice},
		{"NCR_TARGET_COVERAGE", 1.2, &economy.TargetCoverage},
		{"NCR_K_COVERAGE", 0.4, &economy.KCoverage},
		{"NCR_K_FLOW", 0.2, &economy.KFlow},
		{"NCR_SMOOTHING_ALPHA", 0.3, &economy.SmoothingAlpha},
		{"NCR_FLOW_ANCHOR", 100000, &economy.FlowAnchor},
		{"NCR_MAX_STEP", 0.15, &economy.MaxStep},
	}
	for _, f := range floats {
		if *f.target, err = getEnvFloat(f.key, f.def); err != nil {
			return nil, err
		}
	}

	lockBackend := strings.ToLower(getEnvString("LOCK_BACKEND", "local"))
	if lockBackend != "local" && lockBackend != "redis" {
		return nil, fmt.Errorf("invalid LOCK_BACKEND %q: must be local or redis", lockBackend)
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "economy.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Economy: economy,
		Scorer: models.ScorerConfig{
			URL:     getEnvString("SCORER_URL", ""),
			Timeout: scorerTimeout,
			Strict:  getEnvBool("SCORER_STRICT", false),
		},
		Lock: models.LockConfig{
			Backend:       lockBackend,
			RedisAddr:     getEnvString("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnvString("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			TTL:           lockTTL,
		},
		Outbox: models.OutboxConfig{
			KafkaBrokers: getEnvList("KAFKA_BROKERS", nil),
			Topic:        getEnvString("KAFKA_TOPIC", "quest.completed"),
			PollInterval: pollInterval,
			BatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 100),
			MaxRetry:     getEnvInt("OUTBOX_MAX_RETRY", 5),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

// getEnvFloat fails on a malformed value; a silently defaulted economic
// parameter would change minting.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %q (%w)", key, value, err)
		}
		return f, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
