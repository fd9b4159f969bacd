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

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors shared by every component. The set is closed; transport
// layers map them with Kind.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrNotFound             = errors.New("not found")
	ErrCooldown             = errors.New("cooldown")
	ErrActionDenied         = errors.New("action denied")
	ErrConflict             = errors.New("concurrent modification detected")
	ErrExternalUnavailable  = errors.New("external service unavailable")
	ErrPolicyMissing        = errors.New("no active justice policy")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

// Querier is satisfied by both *sql.DB and *sql.Tx so repositories can run
// standalone or inside a caller's unit of work.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// ActionDeniedError carries the regime snapshot that caused a denial.
type ActionDeniedError struct {
	UserId string
	Action string
	Regime string
	Cp     int64
}

func (e *ActionDeniedError) Error() string {
	return fmt.Sprintf("action %s denied for user %s: regime=%s cp=%d", e.Action, e.UserId, e.Regime, e.Cp)
}

func (e *ActionDeniedError) Unwrap() error { return ErrActionDenied }

// CooldownError is returned when a user's risk score blocks minting.
type CooldownError struct {
	UserId    string
	RiskScore float64
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("user %s is in cooldown (risk score %.2f)", e.UserId, e.RiskScore)
}

func (e *CooldownError) Unwrap() error { return ErrCooldown }

// Invalid builds an ErrInvalidInput with a reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Kind returns the taxonomy name of err, or "internal" for anything outside
// the closed set (database unreachable and friends).
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCooldown):
		return "cooldown"
	case errors.Is(err, ErrActionDenied):
		return "action_denied"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrExternalUnavailable):
		return "external_unavailable"
	case errors.Is(err, ErrPolicyMissing):
		return "policy_missing"
	case errors.Is(err, ErrDuplicateTransaction):
		return "duplicate"
	default:
		return "internal"
	}
}
