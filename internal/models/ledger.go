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

// TokenNCR is the only currency symbol the core manages.
const TokenNCR = "NCR"

// AmountScale is the fixed-point scale of every persisted amount.
const AmountScale = 8

// EntryType classifies a ledger journal row.
type EntryType string

const (
	EntryEarn     EntryType = "EARN"
	EntrySpend    EntryType = "SPEND"
	EntryTransfer EntryType = "TRANSFER"
	EntryRake     EntryType = "RAKE"
	EntryFee      EntryType = "FEE"
	EntryBurn     EntryType = "BURN"
	EntryDeposit  EntryType = "DEPOSIT"
	EntryWithdraw EntryType = "WITHDRAW"
	EntryReward   EntryType = "REWARD"
)

// Valid reports whether t belongs to the closed set of entry types.
func (t EntryType) Valid() bool {
	switch t {
	case EntryEarn, EntrySpend, EntryTransfer, EntryRake, EntryFee,
		EntryBurn, EntryDeposit, EntryWithdraw, EntryReward:
		return true
	}
	return false
}

// Decrements reports whether entries of this type reduce the balance.
// TRANSFER rows are always the outgoing leg; the incoming leg is an EARN.
func (t EntryType) Decrements() bool {
	switch t {
	case EntrySpend, EntryWithdraw, EntryBurn, EntryFee, EntryRake, EntryTransfer:
		return true
	}
	return false
}

// MirrorsToTreasury reports whether the treasury receives a mirrored EARN.
func (t EntryType) MirrorsToTreasury() bool {
	return t == EntryRake || t == EntryFee || t == EntryBurn
}

// Signed returns amount with the sign implied by the entry type.
func (t EntryType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t.Decrements() {
		return amount.Neg()
	}
	return amount
}

// Meta is free-form key/value metadata stored as JSON.
type Meta map[string]any

// Account holds the current balance for one (user, token) pair (hot data).
type Account struct {
	Id        string          `db:"id"`
	UserId    string          `db:"user_id"`
	Token     string          `db:"token"`
	Balance   decimal.Decimal `db:"balance"`
	Version   int64           `db:"version"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// LedgerEntry is an immutable journal record (cold data).
type LedgerEntry struct {
	Id             string          `db:"id"`
	UserId         string          `db:"user_id"`
	Amount         decimal.Decimal `db:"amount"`
	Token          string          `db:"token"`
	Type           EntryType       `db:"type"`
	Source         string          `db:"source"`
	CounterpartyId string          `db:"counterparty_id"`
	ReferenceId    string          `db:"reference_id"`
	ReferenceType  string          `db:"reference_type"`
	IdempotencyKey string          `db:"idempotency_key"`
	Meta           Meta            `db:"metadata"`
	BalanceAfter   decimal.Decimal `db:"balance_after"`
	CreatedAt      time.Time       `db:"created_at"`
}

// SignedAmount is the entry's contribution to its account balance.
func (e LedgerEntry) SignedAmount() decimal.Decimal {
	return e.Type.Signed(e.Amount)
}

// Balance is the read model returned by Ledger.GetBalance.
type Balance struct {
	UserId    string          `json:"user_id"`
	Token     string          `json:"token"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// FlowStats aggregates ledger movements for the Pricer.
type FlowStats struct {
	Outstanding   decimal.Decimal
	NetMint       decimal.Decimal
	NetBurn       decimal.Decimal
	NetRedemption decimal.Decimal
	Since         time.Time
}
