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

import (
	"time"

	"github.com/shopspring/decimal"
)

// CitizenLevel is the user's citizenship tier.
type CitizenLevel string

const (
	LevelGhost       CitizenLevel = "ghost"
	LevelResident    CitizenLevel = "resident"
	LevelCoreCitizen CitizenLevel = "core_citizen"
	LevelSovereign   CitizenLevel = "sovereign"
	LevelPrime       CitizenLevel = "prime"
)

// MacroMode is the economy-wide operating mode.
type MacroMode string

const (
	ModeNormal        MacroMode = "NORMAL"
	ModeGrowth        MacroMode = "GROWTH"
	ModeStabilization MacroMode = "STABILIZATION"
	ModeRecovery      MacroMode = "RECOVERY"
)

// UserEconomyContext is the per-user input of the reward engine.
type UserEconomyContext struct {
	UserId        string       `json:"user_id"`
	StreakDays    int          `json:"streak_days"`
	SiyahScoreAvg float64      `json:"siyah_score_avg"`
	RiskScore     float64      `json:"risk_score"`
	CitizenLevel  CitizenLevel `json:"citizen_level"`
}

// MacroContext carries system-wide emission signals.
type MacroContext struct {
	Mode              MacroMode `json:"mode" yaml:"mode"`
	DailyEmissionUsed float64   `json:"daily_emission_used" yaml:"daily_emission_used"`
	DailyEmissionCap  float64   `json:"daily_emission_cap" yaml:"daily_emission_cap"`
	WeeklyUsed        float64   `json:"weekly_used" yaml:"weekly_used"`
	WeeklyCap         float64   `json:"weekly_cap" yaml:"weekly_cap"`
	TreasuryHealth    float64   `json:"treasury_health" yaml:"treasury_health"`
	BurnRate7d        float64   `json:"burn_rate_7d" yaml:"burn_rate_7d"`
}

// RewardBreakdown itemizes a reward computation for auditing.
type RewardBreakdown struct {
	StreakFactor    float64         `json:"streak_factor"`
	SiyahFactor     float64         `json:"siyah_factor"`
	RiskFactor      float64         `json:"risk_factor"`
	NovaFactor      float64         `json:"nova_factor"`
	ModeAdjust      float64         `json:"mode_adjust"`
	UserMultiplier  float64         `json:"user_multiplier"`
	MacroMultiplier float64         `json:"macro_multiplier"`
	BaseNcr         decimal.Decimal `json:"base_ncr"`
	BaseXp          int64           `json:"base_xp"`
	FinalNcr        decimal.Decimal `json:"final_ncr"`
	FinalXp         int64           `json:"final_xp"`
}

// Quest is a catalog entry.
type Quest struct {
	Uuid      string          `db:"uuid"`
	Title     string          `db:"title"`
	Category  string          `db:"category"`
	BaseNcr   decimal.Decimal `db:"base_ncr"`
	BaseXp    int64           `db:"base_xp"`
	Active    bool            `db:"active"`
	CreatedAt time.Time       `db:"created_at"`
}

// QuestAssignment records when a quest was handed to a user.
type QuestAssignment struct {
	UserId     string    `db:"user_id"`
	QuestUuid  string    `db:"quest_uuid"`
	AssignedAt time.Time `db:"assigned_at"`
}

// SubmissionStatus is the lifecycle state of a proof submission.
type SubmissionStatus string

const (
	SubmissionApproved      SubmissionStatus = "APPROVED"
	SubmissionPendingReview SubmissionStatus = "PENDING_REVIEW"
	SubmissionRejected      SubmissionStatus = "REJECTED"
)

// Submission is one proof handed in for a quest.
type Submission struct {
	Id          string           `db:"id"`
	UserId      string           `db:"user_id"`
	QuestUuid   string           `db:"quest_uuid"`
	ProofType   string           `db:"proof_type"`
	ProofRef    string           `db:"proof_ref"`
	ProofHash   string           `db:"proof_hash"`
	ContentLen  int              `db:"content_len"`
	AiScore     float64          `db:"ai_score"`
	ScoreSource string           `db:"score_source"`
	Status      SubmissionStatus `db:"status"`
	Reason      string           `db:"reason"`
	FinalNcr    decimal.Decimal  `db:"final_ncr"`
	FinalXp     int64            `db:"final_xp"`
	LedgerEntry string           `db:"ledger_entry_id"`
	CreatedAt   time.Time        `db:"created_at"`
	ResolvedAt  *time.Time       `db:"resolved_at"`
}

// XpEvent is a minted XP amount.
type XpEvent struct {
	Id           string    `db:"id"`
	UserId       string    `db:"user_id"`
	Amount       int64     `db:"amount"`
	Source       string    `db:"source"`
	SubmissionId string    `db:"submission_id"`
	CreatedAt    time.Time `db:"created_at"`
}
