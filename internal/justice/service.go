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

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"citizen-economy-go/internal/clock"
	"citizen-economy-go/internal/database"
	"citizen-economy-go/internal/lock"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const maxViolationsLimit = 100

// Service keeps per-user penalty scores and gates actions by regime.
type Service struct {
	db       *database.Service
	locker   lock.KeyLocker
	clock    clock.Clock
	defaults *models.JusticePolicyParams

	policy atomic.Pointer[models.JusticePolicyParams]
	loads  singleflight.Group
}

// NewService builds a Justice service. defaults is used whenever no policy
// row is active; nil selects DefaultPolicy.
func NewService(db *database.Service, locker lock.KeyLocker, clk clock.Clock, defaults *models.JusticePolicyParams) *Service {
	if defaults == nil {
		defaults = DefaultPolicy()
	}
	return &Service{
		db:       db,
		locker:   locker,
		clock:    clk,
		defaults: defaults,
	}
}

// ViolationInput is the body of AddViolation.
type ViolationInput struct {
	UserId   string
	Category models.ViolationCategory
	Code     string
	Severity int
	Source   string
	Context  models.Meta
}

// ActivePolicy returns the cached policy snapshot, loading it on first use.
// Readers should call it once per operation.
func (s *Service) ActivePolicy(ctx context.Context) (*models.JusticePolicyParams, error) {
	if p := s.policy.Load(); p != nil {
		return p, nil
	}

	v, err, _ := s.loads.Do("active", func() (any, error) {
		if p := s.policy.Load(); p != nil {
			return p, nil
		}
		p, err := s.loadActivePolicy(ctx)
		if errors.Is(err, store.ErrPolicyMissing) {
			zap.L().Warn("No active justice policy, using built-in defaults",
				zap.String("version", s.defaults.Version))
			p = s.defaults
		} else if err != nil {
			return nil, err
		}
		s.policy.Store(p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.JusticePolicyParams), nil
}

func (s *Service) loadActivePolicy(ctx context.Context) (*models.JusticePolicyParams, error) {
	var p models.JusticePolicyParams
	var eko, com, sys, trust float64
	var multipliersStr string
	var syncedAt sql.NullTime
	err := s.db.DB().QueryRowContext(ctx, queryGetActivePolicy).Scan(&p.Id, &p.Version, &p.DecayPerDay,
		&eko, &com, &sys, &trust,
		&p.SoftFlagThreshold, &p.ProbationThreshold, &p.RestrictedThreshold, &p.LockdownThreshold,
		&multipliersStr, &p.OnchainAddress, &p.OnchainBlock, &p.OnchainTx, &syncedAt, &p.Active, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrPolicyMissing
	} else if err != nil {
		return nil, fmt.Errorf("failed to load active policy: %w", err)
	}

	p.BaseWeights = map[models.ViolationCategory]float64{
		models.CategoryEko:   eko,
		models.CategoryCom:   com,
		models.CategorySys:   sys,
		models.CategoryTrust: trust,
	}
	if err := json.Unmarshal([]byte(multipliersStr), &p.SeverityMultipliers); err != nil {
		return nil, fmt.Errorf("failed to decode severity multipliers for policy %s: %w", p.Version, err)
	}
	p.SyncedAt = database.TimePtr(syncedAt)

	zap.L().Info("Loaded active justice policy", zap.String("version", p.Version))
	return &p, nil
}

// PublishPolicy stores params as the new active version, deactivating the
// previous one in the same transaction, and swaps the cached snapshot.
func (s *Service) PublishPolicy(ctx context.Context, params models.JusticePolicyParams) (*models.JusticePolicyParams, error) {
	p := params
	if err := ValidatePolicy(&p); err != nil {
		return nil, err
	}
	multipliers, err := json.Marshal(p.SeverityMultipliers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode severity multipliers: %w", err)
	}

	p.Id = uuid.New().String()
	p.Active = true
	p.CreatedAt = s.clock.Now()

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, queryDeactivatePolicies); err != nil {
			return fmt.Errorf("failed to deactivate policies: %w", err)
		}
		var onchainBlock sql.NullInt64
		if p.OnchainBlock > 0 {
			onchainBlock = sql.NullInt64{Int64: p.OnchainBlock, Valid: true}
		}
		_, err := tx.ExecContext(ctx, queryInsertPolicy, p.Id, p.Version, p.DecayPerDay,
			p.BaseWeights[models.CategoryEko], p.BaseWeights[models.CategoryCom],
			p.BaseWeights[models.CategorySys], p.BaseWeights[models.CategoryTrust],
			p.SoftFlagThreshold, p.ProbationThreshold, p.RestrictedThreshold, p.LockdownThreshold,
			string(multipliers), database.NullString(p.OnchainAddress), onchainBlock,
			database.NullString(p.OnchainTx), database.NullTime(p.SyncedAt), p.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert policy %s: %w", p.Version, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.policy.Store(&p)
	zap.L().Info("Published justice policy", zap.String("version", p.Version))
	return &p, nil
}

// GetCp returns the user's decayed CP, persisting the decay if it changed
// anything.
func (s *Service) GetCp(ctx context.Context, userId string) (*models.CpSnapshot, error) {
	if userId == "" {
		return nil, store.Invalid("user id is required")
	}
	policy, err := s.ActivePolicy(ctx)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.CpKey(userId))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cp lock: %w", err)
	}
	defer release()

	var state *models.UserCpState
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		state, err = s.loadState(ctx, tx, userId)
		if err != nil {
			return err
		}

		previousRegime := state.Regime
		changed := Decay(state, policy, s.clock.Now())
		state.Regime = RegimeFor(state.CpValue, policy)
		if !changed && state.Regime == previousRegime {
			return nil
		}
		return s.saveState(ctx, tx, state)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("Got cp",
		zap.String("user_id", userId),
		zap.Int64("cp", state.CpValue),
		zap.String("regime", string(state.Regime)))
	return snapshot(state, policy), nil
}

// AddViolation decays the current CP, appends a violation log and adds the
// computed delta, all in one transaction.
func (s *Service) AddViolation(ctx context.Context, in ViolationInput) (*models.ViolationLog, *models.CpSnapshot, error) {
	if in.UserId == "" {
		return nil, nil, store.Invalid("user id is required")
	}
	if in.Code == "" {
		return nil, nil, store.Invalid("violation code is required")
	}
	policy, err := s.ActivePolicy(ctx)
	if err != nil {
		return nil, nil, err
	}
	delta, err := CpDelta(policy, in.Category, in.Severity, in.Code)
	if err != nil {
		return nil, nil, err
	}
	contextStr, err := database.EncodeMeta(in.Context)
	if err != nil {
		return nil, nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.CpKey(in.UserId))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire cp lock: %w", err)
	}
	defer release()

	now := s.clock.Now()
	violation := &models.ViolationLog{
		Id:        uuid.New().String(),
		UserId:    in.UserId,
		Category:  in.Category,
		Code:      in.Code,
		Severity:  in.Severity,
		CpDelta:   delta,
		Source:    in.Source,
		Context:   in.Context,
		CreatedAt: now,
	}
	if violation.Context == nil {
		violation.Context = models.Meta{}
	}

	var state *models.UserCpState
	var oldCp int64
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		state, err = s.loadState(ctx, tx, in.UserId)
		if err != nil {
			return err
		}
		Decay(state, policy, now)
		oldCp = state.CpValue
		if state.CpValue == 0 {
			state.LastUpdatedAt = now
		}

		_, err = tx.ExecContext(ctx, queryInsertViolation, violation.Id, violation.UserId, string(violation.Category),
			violation.Code, violation.Severity, violation.CpDelta, violation.Source, contextStr, violation.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert violation: %w", err)
		}

		state.CpValue += delta
		state.Regime = RegimeFor(state.CpValue, policy)
		return s.saveState(ctx, tx, state)
	})
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("Violation added",
		zap.String("user_id", in.UserId),
		zap.String("category", string(in.Category)),
		zap.String("code", in.Code),
		zap.Int("severity", in.Severity),
		zap.Int64("cp_delta", delta),
		zap.Int64("old_cp", oldCp),
		zap.Int64("new_cp", state.CpValue),
		zap.String("regime", string(state.Regime)))

	return violation, snapshot(state, policy), nil
}

// ListViolations returns a user's violations most-recent-first.
func (s *Service) ListViolations(ctx context.Context, userId string, limit int) ([]models.ViolationLog, error) {
	if limit <= 0 || limit > maxViolationsLimit {
		limit = maxViolationsLimit
	}

	rows, err := s.db.DB().QueryContext(ctx, queryListViolations, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var violations []models.ViolationLog
	for rows.Next() {
		var v models.ViolationLog
		var category, contextStr string
		if err := rows.Scan(&v.Id, &v.UserId, &category, &v.Code, &v.Severity, &v.CpDelta,
			&v.Source, &contextStr, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		v.Category = models.ViolationCategory(category)
		if v.Context, err = database.DecodeMeta(contextStr); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating violation rows: %w", err)
	}
	return violations, nil
}

// RequireAction returns an *store.ActionDeniedError when the user's current
// regime forbids action.
func (s *Service) RequireAction(ctx context.Context, userId string, action models.Action) error {
	if !validAction(action) {
		return store.Invalid("unknown action %q", action)
	}
	cp, err := s.GetCp(ctx, userId)
	if err != nil {
		return err
	}
	if !IsActionAllowed(cp.Regime, action) {
		zap.L().Info("Action denied",
			zap.String("user_id", userId),
			zap.String("action", string(action)),
			zap.String("regime", string(cp.Regime)),
			zap.Int64("cp", cp.CpValue))
		return &store.ActionDeniedError{UserId: userId, Action: string(action), Regime: string(cp.Regime), Cp: cp.CpValue}
	}
	return nil
}

func (s *Service) loadState(ctx context.Context, q store.Querier, userId string) (*models.UserCpState, error) {
	if _, err := q.ExecContext(ctx, queryEnsureCpState, userId, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("failed to create cp state: %w", err)
	}

	var state models.UserCpState
	var regime string
	err := q.QueryRowContext(ctx, queryGetCpState, userId).Scan(&state.UserId, &state.CpValue, &regime,
		&state.Version, &state.LastUpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get cp state: %w", err)
	}
	state.Regime = models.Regime(regime)
	state.LastUpdatedAt = state.LastUpdatedAt.UTC()
	return &state, nil
}

func (s *Service) saveState(ctx context.Context, q store.Querier, state *models.UserCpState) error {
	result, err := q.ExecContext(ctx, queryUpdateCpState, state.CpValue, string(state.Regime),
		state.LastUpdatedAt, state.UserId, state.Version)
	if err != nil {
		return fmt.Errorf("failed to update cp state: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("cp state update failed - %w", store.ErrConflict)
	}
	state.Version++
	return nil
}

func snapshot(state *models.UserCpState, policy *models.JusticePolicyParams) *models.CpSnapshot {
	return &models.CpSnapshot{
		UserId:        state.UserId,
		CpValue:       state.CpValue,
		Regime:        state.Regime,
		PolicyVersion: policy.Version,
		LastUpdatedAt: state.LastUpdatedAt,
	}
}
