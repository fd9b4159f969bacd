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

package ledger

const (
	queryEnsureAccount = `
		INSERT OR IGNORE INTO accounts (id, user_id, token, balance, version, created_at, updated_at)
		VALUES (?, ?, ?, '0', 1, ?, ?)`

	queryGetAccount = `
		SELECT id, user_id, token, balance, version, created_at, updated_at
		FROM accounts
		WHERE user_id = ? AND token = ?`

	queryUpdateAccountBalance = `
		UPDATE accounts
		SET balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	queryCheckIdempotencyKey = `
		SELECT id FROM ledger_entries WHERE idempotency_key = ?`

	queryInsertEntry = `
		INSERT INTO ledger_entries (id, user_id, amount, token, type, source, counterparty_id,
			reference_id, reference_type, idempotency_key, metadata, balance_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	entryColumns = `
		id, user_id, amount, token, type, source, COALESCE(counterparty_id, ''),
		COALESCE(reference_id, ''), COALESCE(reference_type, ''), COALESCE(idempotency_key, ''),
		metadata, balance_after, created_at`

	queryGetAccountEntries = `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE user_id = ? AND token = ?
		ORDER BY rowid ASC`

	queryGetAccountBalances = `
		SELECT user_id, balance
		FROM accounts
		WHERE token = ? AND user_id != ?`

	queryGetFlowEntries = `
		SELECT type, amount
		FROM ledger_entries
		WHERE token = ? AND created_at >= ? AND user_id != ?
			AND (reference_type IS NULL OR reference_type != ?)`

	queryListAccounts = `
		SELECT id, user_id, token, balance, version, created_at, updated_at
		FROM accounts
		ORDER BY user_id, token`
)
