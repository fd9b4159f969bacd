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

package quest

const (
	queryInsertQuest = `
		INSERT INTO quests (uuid, title, category, base_ncr, base_xp, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetQuest = `
		SELECT uuid, title, category, base_ncr, base_xp, active, created_at
		FROM quests
		WHERE uuid = ?`

	queryListQuests = `
		SELECT uuid, title, category, base_ncr, base_xp, active, created_at
		FROM quests
		WHERE active = 1
		ORDER BY rowid ASC`

	queryUpsertAssignment = `
		INSERT INTO quest_assignments (user_id, quest_uuid, assigned_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, quest_uuid) DO UPDATE SET assigned_at = excluded.assigned_at`

	queryGetAssignment = `
		SELECT user_id, quest_uuid, assigned_at
		FROM quest_assignments
		WHERE user_id = ? AND quest_uuid = ?`

	queryGetEconomy = `
		SELECT user_id, streak_days, siyah_score_avg, citizen_level
		FROM user_economy
		WHERE user_id = ?`

	queryUpsertEconomy = `
		INSERT INTO user_economy (user_id, streak_days, siyah_score_avg, citizen_level, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			streak_days = excluded.streak_days,
			siyah_score_avg = excluded.siyah_score_avg,
			citizen_level = excluded.citizen_level,
			updated_at = excluded.updated_at`

	submissionColumns = `
		id, user_id, quest_uuid, proof_type, proof_ref, proof_hash, content_len,
		ai_score, score_source, status, reason, final_ncr, final_xp,
		COALESCE(ledger_entry_id, ''), created_at, resolved_at`

	queryInsertSubmission = `
		INSERT INTO quest_submissions (id, user_id, quest_uuid, proof_type, proof_ref, proof_hash, content_len,
			ai_score, score_source, status, reason, final_ncr, final_xp, ledger_entry_id, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetSubmission = `SELECT` + submissionColumns + `
		FROM quest_submissions
		WHERE id = ?`

	queryListSubmissions = `SELECT` + submissionColumns + `
		FROM quest_submissions
		WHERE user_id = ?
		ORDER BY rowid DESC
		LIMIT ?`

	queryResolveSubmission = `
		UPDATE quest_submissions
		SET status = ?, reason = ?, final_ncr = ?, final_xp = ?, ledger_entry_id = ?, resolved_at = ?
		WHERE id = ? AND status = 'PENDING_REVIEW'`

	queryCountRejectedSince = `
		SELECT COUNT(*)
		FROM quest_submissions
		WHERE user_id = ? AND status = 'REJECTED' AND created_at >= ?`

	queryFindProofMatch = `
		SELECT id
		FROM quest_submissions
		WHERE user_id = ? AND proof_hash = ? AND created_at >= ?
		ORDER BY rowid DESC
		LIMIT 1`

	queryInsertXpEvent = `
		INSERT INTO xp_events (id, user_id, amount, source, submission_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryTotalXp = `
		SELECT COALESCE(SUM(amount), 0)
		FROM xp_events
		WHERE user_id = ?`
)
