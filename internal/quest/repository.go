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

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"citizen-economy-go/internal/abuse"
	"citizen-economy-go/internal/database"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/store"

	"github.com/google/uuid"
)

// Repository reads and writes the quest tables. Methods with a Querier
// argument run inside the caller's transaction.
type Repository struct {
	db *sql.DB
}

var _ abuse.SubmissionSource = (*Repository)(nil)

func NewRepository(db *database.Service) *Repository {
	return &Repository{db: db.DB()}
}

func (r *Repository) CreateQuest(ctx context.Context, q models.Quest) error {
	if q.Uuid == "" || q.Title == "" {
		return store.Invalid("quest uuid and title are required")
	}
	if q.BaseNcr.IsNegative() || q.BaseXp < 0 {
		return store.Invalid("quest base rewards must be non-negative")
	}
	_, err := r.db.ExecContext(ctx, queryInsertQuest, q.Uuid, q.Title, q.Category, q.BaseNcr.String(), q.BaseXp, q.Active, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert quest: %w", err)
	}
	return nil
}

func (r *Repository) GetQuest(ctx context.Context, q store.Querier, questUuid string) (*models.Quest, error) {
	quest, err := scanQuest(q.QueryRowContext(ctx, queryGetQuest, questUuid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("quest %s: %w", questUuid, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quest: %w", err)
	}
	return quest, nil
}

func (r *Repository) ListQuests(ctx context.Context) ([]models.Quest, error) {
	rows, err := r.db.QueryContext(ctx, queryListQuests)
	if err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	defer rows.Close()

	var quests []models.Quest
	for rows.Next() {
		quest, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quest: %w", err)
		}
		quests = append(quests, *quest)
	}
	return quests, rows.Err()
}

func (r *Repository) Assign(ctx context.Context, userId, questUuid string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, queryUpsertAssignment, userId, questUuid, at); err != nil {
		return fmt.Errorf("failed to assign quest: %w", err)
	}
	return nil
}

// GetAssignment returns nil when the quest was never assigned to the user.
func (r *Repository) GetAssignment(ctx context.Context, userId, questUuid string) (*models.QuestAssignment, error) {
	var a models.QuestAssignment
	err := r.db.QueryRowContext(ctx, queryGetAssignment, userId, questUuid).Scan(&a.UserId, &a.QuestUuid, &a.AssignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

// GetUserEconomy returns the user's reward context; users without a row are
// fresh residents. RiskScore is left for the caller to fill.
func (r *Repository) GetUserEconomy(ctx context.Context, q store.Querier, userId string) (models.UserEconomyContext, error) {
	econ := models.UserEconomyContext{UserId: userId, CitizenLevel: models.LevelResident}
	var level string
	err := q.QueryRowContext(ctx, queryGetEconomy, userId).Scan(&econ.UserId, &econ.StreakDays, &econ.SiyahScoreAvg, &level)
	if errors.Is(err, sql.ErrNoRows) {
		return econ, nil
	}
	if err != nil {
		return econ, fmt.Errorf("failed to get user economy: %w", err)
	}
	econ.CitizenLevel = models.CitizenLevel(level)
	return econ, nil
}

func (r *Repository) UpsertUserEconomy(ctx context.Context, econ models.UserEconomyContext, now time.Time) error {
	if econ.UserId == "" {
		return store.Invalid("user id is required")
	}
	if econ.StreakDays < 0 {
		return store.Invalid("streak days must be non-negative")
	}
	_, err := r.db.ExecContext(ctx, queryUpsertEconomy, econ.UserId, econ.StreakDays, econ.SiyahScoreAvg, string(econ.CitizenLevel), now)
	if err != nil {
		return fmt.Errorf("failed to upsert user economy: %w", err)
	}
	return nil
}

func (r *Repository) InsertSubmissionTx(ctx context.Context, q store.Querier, s *models.Submission) error {
	_, err := q.ExecContext(ctx, queryInsertSubmission,
		s.Id, s.UserId, s.QuestUuid, s.ProofType, s.ProofRef, s.ProofHash, s.ContentLen,
		s.AiScore, s.ScoreSource, string(s.Status), s.Reason, s.FinalNcr.String(), s.FinalXp,
		database.NullString(s.LedgerEntry), s.CreatedAt, database.NullTime(s.ResolvedAt))
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

// ResolveSubmissionTx finalizes a PENDING_REVIEW submission. A submission
// that is no longer pending yields ErrConflict.
func (r *Repository) ResolveSubmissionTx(ctx context.Context, q store.Querier, s *models.Submission) error {
	result, err := q.ExecContext(ctx, queryResolveSubmission,
		string(s.Status), s.Reason, s.FinalNcr.String(), s.FinalXp,
		database.NullString(s.LedgerEntry), database.NullTime(s.ResolvedAt), s.Id)
	if err != nil {
		return fmt.Errorf("failed to resolve submission: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("submission %s already resolved - %w", s.Id, store.ErrConflict)
	}
	return nil
}

func (r *Repository) GetSubmission(ctx context.Context, q store.Querier, id string) (*models.Submission, error) {
	s, err := scanSubmission(q.QueryRowContext(ctx, queryGetSubmission, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return s, nil
}

func (r *Repository) ListSubmissions(ctx context.Context, userId string, limit int) ([]models.Submission, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, queryListSubmissions, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var out []models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *Repository) CountRejectedSince(ctx context.Context, userId string, since time.Time) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, queryCountRejectedSince, userId, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rejected submissions: %w", err)
	}
	return n, nil
}

func (r *Repository) FindRecentProofMatch(ctx context.Context, userId, proofHash string, since time.Time) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, queryFindProofMatch, userId, proofHash, since).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up proof hash: %w", err)
	}
	return id, nil
}

func (r *Repository) InsertXpEventTx(ctx context.Context, q store.Querier, userId string, amount int64, source, submissionId string, now time.Time) (*models.XpEvent, error) {
	event := &models.XpEvent{
		Id:           uuid.New().String(),
		UserId:       userId,
		Amount:       amount,
		Source:       source,
		SubmissionId: submissionId,
		CreatedAt:    now,
	}
	_, err := q.ExecContext(ctx, queryInsertXpEvent, event.Id, event.UserId, event.Amount, event.Source,
		database.NullString(event.SubmissionId), event.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert xp event: %w", err)
	}
	return event, nil
}

func (r *Repository) TotalXp(ctx context.Context, userId string) (int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, queryTotalXp, userId).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum xp: %w", err)
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuest(row rowScanner) (*models.Quest, error) {
	var q models.Quest
	var baseNcr string
	if err := row.Scan(&q.Uuid, &q.Title, &q.Category, &baseNcr, &q.BaseXp, &q.Active, &q.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if q.BaseNcr, err = database.ParseDecimal("base_ncr", baseNcr); err != nil {
		return nil, err
	}
	return &q, nil
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var s models.Submission
	var status, finalNcr string
	var resolvedAt sql.NullTime
	err := row.Scan(&s.Id, &s.UserId, &s.QuestUuid, &s.ProofType, &s.ProofRef, &s.ProofHash, &s.ContentLen,
		&s.AiScore, &s.ScoreSource, &status, &s.Reason, &finalNcr, &s.FinalXp,
		&s.LedgerEntry, &s.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	s.Status = models.SubmissionStatus(status)
	s.ResolvedAt = database.TimePtr(resolvedAt)
	if s.FinalNcr, err = database.ParseDecimal("final_ncr", finalNcr); err != nil {
		return nil, err
	}
	return &s, nil
}
