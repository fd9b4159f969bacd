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

// DailyTreasuryStat tracks the mint budget of one calendar day (UTC).
type DailyTreasuryStat struct {
	Day       string          `db:"day"`
	LimitNcr  decimal.Decimal `db:"limit_ncr"`
	IssuedNcr decimal.Decimal `db:"issued_ncr"`
	Version   int64           `db:"version"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// DampingRow maps a load ratio ceiling to a mint multiplier.
type DampingRow struct {
	MaxLoad    float64 `yaml:"max_load"`
	Multiplier float64 `yaml:"multiplier"`
}

// CapResult is the outcome of one applyCap call.
type CapResult struct {
	Day        string          `json:"day"`
	PreNcr     decimal.Decimal `json:"pre_ncr"`
	FinalNcr   decimal.Decimal `json:"final_ncr"`
	Multiplier float64         `json:"multiplier"`
	LoadRatio  float64         `json:"load_ratio"`
	LimitNcr   decimal.Decimal `json:"limit_ncr"`
	IssuedNcr  decimal.Decimal `json:"issued_ncr"`
	Reason     string          `json:"reason,omitempty"`
}

// MarketState is the singleton NCR price row.
type MarketState struct {
	CurrentPrice  float64   `db:"current_price"`
	LastPrice     float64   `db:"last_price"`
	EmaCoverage   float64   `db:"ema_coverage"`
	EmaFlowIndex  float64   `db:"ema_flow_index"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
}

// PriceInputs are the raw signals of one repeg.
type PriceInputs struct {
	ReservesFiat     float64 `json:"reserves_fiat"`
	NcrOutstanding   float64 `json:"ncr_outstanding"`
	ReferencePrice   float64 `json:"reference_price"`
	NetMint24h       float64 `json:"net_mint_24h"`
	NetBurn24h       float64 `json:"net_burn_24h"`
	NetRedemption24h float64 `json:"net_redemption_24h"`
}

// PriceUpdate is the audit record of one repeg.
type PriceUpdate struct {
	Inputs      PriceInputs `json:"inputs"`
	RawCoverage float64     `json:"raw_coverage"`
	RawFlow     float64     `json:"raw_flow"`
	EmaCoverage float64     `json:"ema_coverage"`
	EmaFlow     float64     `json:"ema_flow"`
	CovAdjust   float64     `json:"cov_adjust"`
	FlowAdjust  float64     `json:"flow_adjust"`
	TotalAdjust float64     `json:"total_adjust"`
	OldPrice    float64     `json:"old_price"`
	ProposedRaw float64     `json:"proposed_raw"`
	NewPrice    float64     `json:"new_price"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
