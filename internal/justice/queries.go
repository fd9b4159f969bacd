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

package justice

const (
	queryGetActivePolicy = `
		SELECT id, version, decay_per_day, base_eko, base_com, base_sys, base_trust,
			soft_flag_threshold, probation_threshold, restricted_threshold, lockdown_threshold,
			severity_multipliers, COALESCE(onchain_address, ''), COALESCE(onchain_block, 0),
			COALESCE(onchain_tx, ''), synced_at, active, created_at
		FROM justice_policy_params
		WHERE active = 1`

	queryDeactivatePolicies = `
		UPDATE justice_policy_params SET active = 0 WHERE active = 1`

	queryInsertPolicy = `
		INSERT INTO justice_policy_params (id, version, decay_per_day, base_eko, base_com, base_sys, base_trust,
			soft_flag_threshold, probation_threshold, restricted_threshold, lockdown_threshold,
			severity_multipliers, onchain_address, onchain_block, onchain_tx, synced_at, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`

	queryEnsureCpState = `
		INSERT OR IGNORE INTO user_cp_states (user_id, cp_value, regime, version, last_updated_at)
		VALUES (?, 0, 'NORMAL', 1, ?)`

	queryGetCpState = `
		SELECT user_id, cp_value, regime, version, last_updated_at
		FROM user_cp_states
		WHERE user_id = ?`

	queryUpdateCpState = `
		UPDATE user_cp_states
		SET cp_value = ?, regime = ?, version = version + 1, last_updated_at = ?
		WHERE user_id = ? AND version = ?`

	queryInsertViolation = `
		INSERT INTO violation_logs (id, user_id, category, code, severity, cp_delta, source, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryListViolations = `
		SELECT id, user_id, category, code, severity, cp_delta, source, context, created_at
		FROM violation_logs
		WHERE user_id = ?
		ORDER BY rowid DESC
		LIMIT ?`
)
