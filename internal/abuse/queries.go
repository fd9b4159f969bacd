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

package abuse

const (
	queryEnsureProfile = `
		INSERT OR IGNORE INTO user_risk_profiles (id, user_id, risk_score, last_event_at, metadata, version, created_at, updated_at)
		VALUES (?, ?, 0, NULL, '{}', 1, ?, ?)`

	queryGetProfile = `
		SELECT id, user_id, risk_score, last_event_at, metadata, version, created_at, updated_at
		FROM user_risk_profiles
		WHERE user_id = ?`

	queryUpdateProfile = `
		UPDATE user_risk_profiles
		SET risk_score = ?, last_event_at = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	queryGetEventByKey = `
		SELECT id, user_id, event_type, delta, COALESCE(idempotency_key, ''), metadata, created_at
		FROM abuse_events
		WHERE user_id = ? AND idempotency_key = ?`

	queryInsertEvent = `
		INSERT INTO abuse_events (id, user_id, event_type, delta, idempotency_key, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryListEvents = `
		SELECT id, user_id, event_type, delta, COALESCE(idempotency_key, ''), metadata, created_at
		FROM abuse_events
		WHERE user_id = ?
		ORDER BY rowid DESC
		LIMIT ?`
)
