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

// TransactionRecord is one ledger entry as shown in a user's history
type TransactionRecord struct {
	Id            string          `json:"id"`
	Type          string          `json:"type"`
	Token         string          `json:"token"`
	Amount        decimal.Decimal `json:"amount"`
	SignedAmount  decimal.Decimal `json:"signed_amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Source        string          `json:"source"`
	Counterparty  string          `json:"counterparty,omitempty"`
	ReferenceId   string          `json:"reference_id,omitempty"`
	ReferenceType string          `json:"reference_type,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OperationResult is the outcome of a wallet operation. Failures carry the
// error taxonomy kind so the transport layer can map them.
type OperationResult struct {
	Success    bool            `json:"success"`
	UserId     string          `json:"user_id,omitempty"`
	Token      string          `json:"token,omitempty"`
	Amount     decimal.Decimal `json:"amount,omitempty"`
	NewBalance decimal.Decimal `json:"new_balance,omitempty"`
	EntryId    string          `json:"entry_id,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorKind  string          `json:"error_kind,omitempty"`
}

// SubmissionResult is the outcome of a quest submission for the caller.
type SubmissionResult struct {
	SubmissionId string          `json:"submission_id,omitempty"`
	Status       string          `json:"status,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	AiScore      float64         `json:"ai_score"`
	FinalNcr     decimal.Decimal `json:"final_ncr"`
	FinalXp      int64           `json:"final_xp"`
	Flags        []string        `json:"flags,omitempty"`
	Error        string          `json:"error,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	RiskScore    float64         `json:"risk_score,omitempty"`
}
