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

// Regime is the sanction level derived from a user's CP.
type Regime string

const (
	RegimeNormal     Regime = "NORMAL"
	RegimeSoftFlag   Regime = "SOFT_FLAG"
	RegimeProbation  Regime = "PROBATION"
	RegimeRestricted Regime = "RESTRICTED"
	RegimeLockdown   Regime = "LOCKDOWN"
)

// Regimes lists every regime in increasing severity.
var Regimes = []Regime{RegimeNormal, RegimeSoftFlag, RegimeProbation, RegimeRestricted, RegimeLockdown}

// ViolationCategory groups violation codes into weight buckets.
type ViolationCategory string

const (
	CategoryEko   ViolationCategory = "EKO"
	CategoryCom   ViolationCategory = "COM"
	CategorySys   ViolationCategory = "SYS"
	CategoryTrust ViolationCategory = "TRUST"
)

// Action is a user action gated by regime.
type Action string

const (
	ActionSendMessage   Action = "SEND_MESSAGE"
	ActionStartCall     Action = "START_CALL"
	ActionCreateFlirt   Action = "CREATE_FLIRT"
	ActionWithdrawFunds Action = "WITHDRAW_FUNDS"
	ActionTopupWallet   Action = "TOPUP_WALLET"
	ActionAccessAurora  Action = "ACCESS_AURORA"
)

// Actions is the closed set of gated actions.
var Actions = []Action{
	ActionSendMessage, ActionStartCall, ActionCreateFlirt,
	ActionWithdrawFunds, ActionTopupWallet, ActionAccessAurora,
}

// Violation codes with a fixed CP floor.
const (
	CodeSysExploit            = "SYS_EXPLOIT"
	CodeTrustMultipleAccounts = "TRUST_MULTIPLE_ACCOUNTS"
)

// UserCpState is the per-user penalty aggregate.
type UserCpState struct {
	UserId        string    `db:"user_id"`
	CpValue       int64     `db:"cp_value"`
	Regime        Regime    `db:"regime"`
	Version       int64     `db:"version"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
}

// ViolationLog is an append-only record of one applied violation.
type ViolationLog struct {
	Id        string            `db:"id"`
	UserId    string            `db:"user_id"`
	Category  ViolationCategory `db:"category"`
	Code      string            `db:"code"`
	Severity  int               `db:"severity"`
	CpDelta   int64             `db:"cp_delta"`
	Source    string            `db:"source"`
	Context   Meta              `db:"context"`
	CreatedAt time.Time         `db:"created_at"`
}

// JusticePolicyParams is one version of the CP policy.
type JusticePolicyParams struct {
	Id                  string                        `db:"id" yaml:"-"`
	Version             string                        `db:"version" yaml:"version"`
	DecayPerDay         float64                       `db:"decay_per_day" yaml:"decay_per_day"`
	BaseWeights         map[ViolationCategory]float64 `db:"-" yaml:"base_weights"`
	SoftFlagThreshold   int64                         `db:"soft_flag_threshold" yaml:"soft_flag_threshold"`
	ProbationThreshold  int64                         `db:"probation_threshold" yaml:"probation_threshold"`
	RestrictedThreshold int64                         `db:"restricted_threshold" yaml:"restricted_threshold"`
	LockdownThreshold   int64                         `db:"lockdown_threshold" yaml:"lockdown_threshold"`
	SeverityMultipliers map[int]float64               `db:"severity_multipliers" yaml:"severity_multipliers"`
	OnchainAddress      string                        `db:"onchain_address" yaml:"-"`
	OnchainBlock        int64                         `db:"onchain_block" yaml:"-"`
	OnchainTx           string                        `db:"onchain_tx" yaml:"-"`
	SyncedAt            *time.Time                    `db:"synced_at" yaml:"-"`
	Active              bool                          `db:"active" yaml:"-"`
	CreatedAt           time.Time                     `db:"created_at" yaml:"-"`
}

// CpSnapshot is the read model returned by Justice.GetCp.
type CpSnapshot struct {
	UserId        string    `json:"user_id"`
	CpValue       int64     `json:"cp_value"`
	Regime        Regime    `json:"regime"`
	PolicyVersion string    `json:"policy_version"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}
