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

// AbuseEventType is the closed set of risk-raising observations.
type AbuseEventType string

const (
	AbuseLowQualityBurst   AbuseEventType = "LOW_QUALITY_BURST"
	AbuseDuplicateProof    AbuseEventType = "DUPLICATE_PROOF"
	AbuseTooFastCompletion AbuseEventType = "TOO_FAST_COMPLETION"
	AbuseAutoReject        AbuseEventType = "AUTO_REJECT"
	AbuseAppealRejected    AbuseEventType = "APPEAL_REJECTED"
	AbuseManualFlag        AbuseEventType = "MANUAL_FLAG"
	AbuseToxicContent      AbuseEventType = "TOXIC_CONTENT"
)

// Risk score bounds.
const (
	MinRiskScore = 0.0
	MaxRiskScore = 10.0
)

// UserRiskProfile is the per-user risk aggregate.
type UserRiskProfile struct {
	Id          string     `db:"id"`
	UserId      string     `db:"user_id"`
	RiskScore   float64    `db:"risk_score"`
	LastEventAt *time.Time `db:"last_event_at"`
	Meta        Meta       `db:"metadata"`
	Version     int64      `db:"version"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// AbuseEvent is the immutable audit row of one applied risk delta.
type AbuseEvent struct {
	Id             string         `db:"id"`
	UserId         string         `db:"user_id"`
	EventType      AbuseEventType `db:"event_type"`
	Delta          float64        `db:"delta"`
	IdempotencyKey string         `db:"idempotency_key"`
	Meta           Meta           `db:"metadata"`
	CreatedAt      time.Time      `db:"created_at"`
}
