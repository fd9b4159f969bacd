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

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"citizen-economy-go/internal/clock"
	"citizen-economy-go/internal/database"
	"citizen-economy-go/internal/lock"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Score thresholds.
const (
	ForcedHitlThreshold = 6.0
	CooldownThreshold   = 9.0
)

// Service maintains per-user risk scores and the abuse event trail.
type Service struct {
	db          *database.Service
	locker      lock.KeyLocker
	clock       clock.Clock
	weights     Weights
	submissions SubmissionSource
}

func NewService(db *database.Service, locker lock.KeyLocker, clk clock.Clock, weights Weights, submissions SubmissionSource) *Service {
	if weights == nil {
		weights = DefaultWeights()
	}
	return &Service{
		db:          db,
		locker:      locker,
		clock:       clk,
		weights:     weights,
		submissions: submissions,
	}
}

// RegisterOptions tunes one RegisterEvent call.
type RegisterOptions struct {
	// OverrideDelta replaces the default weight; it must not be negative.
	OverrideDelta *float64
	// IdempotencyKey makes a replay of the same observation a no-op.
	IdempotencyKey string
}

func (s *Service) GetOrCreateProfile(ctx context.Context, userId string) (*models.UserRiskProfile, error) {
	return s.GetOrCreateProfileTx(ctx, s.db.DB(), userId)
}

func (s *Service) GetOrCreateProfileTx(ctx context.Context, q store.Querier, userId string) (*models.UserRiskProfile, error) {
	if userId == "" {
		return nil, store.Invalid("user id is required")
	}

	now := s.clock.Now()
	if _, err := q.ExecContext(ctx, queryEnsureProfile, uuid.New().String(), userId, now, now); err != nil {
		return nil, fmt.Errorf("failed to create risk profile: %w", err)
	}

	var profile models.UserRiskProfile
	var lastEventAt sql.NullTime
	var metaStr string
	err := q.QueryRowContext(ctx, queryGetProfile, userId).Scan(&profile.Id, &profile.UserId, &profile.RiskScore,
		&lastEventAt, &metaStr, &profile.Version, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get risk profile: %w", err)
	}
	profile.LastEventAt = database.TimePtr(lastEventAt)
	if profile.Meta, err = database.DecodeMeta(metaStr); err != nil {
		return nil, err
	}
	return &profile, nil
}

// RegisterEvent applies one event in its own transaction under the user's
// risk lock. A version conflict is retried once.
func (s *Service) RegisterEvent(ctx context.Context, userId string, event Event, opts RegisterOptions) (*models.UserRiskProfile, *models.AbuseEvent, error) {
	release, err := s.locker.Acquire(ctx, lock.RiskKey(userId))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire risk lock: %w", err)
	}
	defer release()

	var profile *models.UserRiskProfile
	var applied *models.AbuseEvent
	for attempt := 0; attempt < 2; attempt++ {
		err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
			var err error
			profile, applied, err = s.RegisterEventTx(ctx, tx, userId, event, opts)
			return err
		})
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		zap.L().Warn("Risk profile conflict, retrying", zap.String("user_id", userId), zap.Int("attempt", attempt+1))
	}
	if err != nil {
		return nil, nil, err
	}
	return profile, applied, nil
}

// RegisterEventTx applies one event inside the caller's unit of work. The
// caller holds the user's risk lock.
func (s *Service) RegisterEventTx(ctx context.Context, q store.Querier, userId string, event Event, opts RegisterOptions) (*models.UserRiskProfile, *models.AbuseEvent, error) {
	if event == nil {
		return nil, nil, store.Invalid("event is required")
	}
	if err := event.Validate(); err != nil {
		return nil, nil, err
	}

	delta, ok := s.weights[event.Type()]
	if !ok {
		return nil, nil, store.Invalid("unknown abuse event type %q", event.Type())
	}
	if opts.OverrideDelta != nil {
		if *opts.OverrideDelta < 0 || math.IsNaN(*opts.OverrideDelta) {
			return nil, nil, store.Invalid("override delta must be non-negative, got %f", *opts.OverrideDelta)
		}
		delta = *opts.OverrideDelta
	}

	profile, err := s.GetOrCreateProfileTx(ctx, q, userId)
	if err != nil {
		return nil, nil, err
	}

	if opts.IdempotencyKey != "" {
		existing, err := scanEvent(q.QueryRowContext(ctx, queryGetEventByKey, userId, opts.IdempotencyKey))
		if err == nil {
			zap.L().Debug("Abuse event already registered",
				zap.String("user_id", userId),
				zap.String("idempotency_key", opts.IdempotencyKey))
			return profile, existing, nil
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("failed to check abuse event key: %w", err)
		}
	}

	oldScore := profile.RiskScore
	newScore := ClampScore(oldScore + delta)
	now := s.clock.Now()

	meta := event.Meta()
	meta["requested_delta"] = delta
	metaStr, err := database.EncodeMeta(meta)
	if err != nil {
		return nil, nil, err
	}

	applied := &models.AbuseEvent{
		Id:             uuid.New().String(),
		UserId:         userId,
		EventType:      event.Type(),
		Delta:          newScore - oldScore,
		IdempotencyKey: opts.IdempotencyKey,
		Meta:           meta,
		CreatedAt:      now,
	}
	_, err = q.ExecContext(ctx, queryInsertEvent, applied.Id, applied.UserId, string(applied.EventType),
		applied.Delta, database.NullString(applied.IdempotencyKey), metaStr, applied.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert abuse event: %w", err)
	}

	result, err := q.ExecContext(ctx, queryUpdateProfile, newScore, now, now, profile.Id, profile.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update risk profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, nil, fmt.Errorf("risk profile update failed - %w", store.ErrConflict)
	}

	profile.RiskScore = newScore
	profile.LastEventAt = &now
	profile.UpdatedAt = now
	profile.Version++

	zap.L().Info("Abuse event registered",
		zap.String("user_id", userId),
		zap.String("event_type", string(event.Type())),
		zap.Float64("delta", applied.Delta),
		zap.Float64("old_score", oldScore),
		zap.Float64("new_score", newScore))

	return profile, applied, nil
}

// ListEvents returns a user's events most-recent-first.
func (s *Service) ListEvents(ctx context.Context, userId string, limit int) ([]models.AbuseEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.DB().QueryContext(ctx, queryListEvents, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list abuse events: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var events []models.AbuseEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan abuse event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating abuse event rows: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.AbuseEvent, error) {
	var event models.AbuseEvent
	var eventType, metaStr string
	if err := row.Scan(&event.Id, &event.UserId, &eventType, &event.Delta,
		&event.IdempotencyKey, &metaStr, &event.CreatedAt); err != nil {
		return nil, err
	}
	event.EventType = models.AbuseEventType(eventType)
	meta, err := database.DecodeMeta(metaStr)
	if err != nil {
		return nil, err
	}
	event.Meta = meta
	return &event, nil
}

// ClampScore bounds a score to [0, 10].
func ClampScore(score float64) float64 {
	return math.Max(models.MinRiskScore, math.Min(models.MaxRiskScore, score))
}

// RewardMultiplier maps a risk score to a reward factor.
func RewardMultiplier(score float64) float64 {
	switch {
	case score <= 2:
		return 1.0
	case score <= 5:
		return 0.8
	case score <= 8:
		return 0.6
	default:
		return 0.0
	}
}

func RequiresForcedHitl(score float64) bool {
	return score >= ForcedHitlThreshold
}

func RequiresCooldown(score float64) bool {
	return score >= CooldownThreshold
}
