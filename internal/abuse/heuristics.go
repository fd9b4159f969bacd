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
	"time"

	"go.uber.org/zap"
)

// Heuristic windows and thresholds.
const (
	LowQualityWindow    = 24 * time.Hour
	LowQualityThreshold = 5
	TooFastThreshold    = 10 * time.Second
	DuplicateWindow     = 30 * 24 * time.Hour
)

// SubmissionSource is the read port over a user's past submissions.
type SubmissionSource interface {
	CountRejectedSince(ctx context.Context, userId string, since time.Time) (int, error)
	// FindRecentProofMatch returns the id of a submission with the same proof
	// hash created at or after since, or "" when there is none.
	FindRecentProofMatch(ctx context.Context, userId, proofHash string, since time.Time) (string, error)
}

// CheckLowQualityBurst registers LOW_QUALITY_BURST when the user has at
// least five rejected submissions in the last 24h.
func (s *Service) CheckLowQualityBurst(ctx context.Context, userId string) (bool, error) {
	if s.submissions == nil {
		return false, nil
	}

	since := s.clock.Now().Add(-LowQualityWindow)
	count, err := s.submissions.CountRejectedSince(ctx, userId, since)
	if err != nil {
		zap.L().Warn("Submission source unavailable for burst check", zap.String("user_id", userId), zap.Error(err))
		return false, nil
	}
	if count < LowQualityThreshold {
		return false, nil
	}

	if _, _, err := s.RegisterEvent(ctx, userId, LowQualityBurst{RejectedCount: count, Window: LowQualityWindow}, RegisterOptions{}); err != nil {
		return false, err
	}
	return true, nil
}

// CheckTooFastCompletion registers TOO_FAST_COMPLETION when the task was
// completed less than ten seconds after assignment.
func (s *Service) CheckTooFastCompletion(ctx context.Context, userId, taskId string, assignedAt time.Time) (bool, error) {
	if assignedAt.IsZero() {
		return false, nil
	}

	elapsed := s.clock.Now().Sub(assignedAt)
	if elapsed >= TooFastThreshold {
		return false, nil
	}
	if elapsed < 0 {
		elapsed = 0
	}

	event := TooFastCompletion{TaskId: taskId, ElapsedSeconds: elapsed.Seconds()}
	if _, _, err := s.RegisterEvent(ctx, userId, event, RegisterOptions{}); err != nil {
		return false, err
	}
	return true, nil
}

// CheckDuplicateProof registers DUPLICATE_PROOF when the same proof hash was
// submitted by the user in the last 30 days.
func (s *Service) CheckDuplicateProof(ctx context.Context, userId, taskId, proofHash string) (bool, error) {
	if s.submissions == nil || proofHash == "" {
		return false, nil
	}

	since := s.clock.Now().Add(-DuplicateWindow)
	matchId, err := s.submissions.FindRecentProofMatch(ctx, userId, proofHash, since)
	if err != nil {
		zap.L().Warn("Submission source unavailable for duplicate check", zap.String("user_id", userId), zap.Error(err))
		return false, nil
	}
	if matchId == "" {
		return false, nil
	}

	event := DuplicateProof{TaskId: taskId, ProofHash: proofHash, MatchedSubmissionId: matchId}
	if _, _, err := s.RegisterEvent(ctx, userId, event, RegisterOptions{}); err != nil {
		return false, err
	}
	return true, nil
}

// RiskScore returns the user's current score.
func (s *Service) RiskScore(ctx context.Context, userId string) (float64, error) {
	profile, err := s.GetOrCreateProfile(ctx, userId)
	if err != nil {
		return 0, err
	}
	return profile.RiskScore, nil
}
