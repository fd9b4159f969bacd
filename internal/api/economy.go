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

package api

import (
	"context"
	"errors"

	"citizen-economy-go/internal/justice"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/quest"
	"citizen-economy-go/internal/store"
)

func (s *EconomyService) SubmitProof(ctx context.Context, req quest.SubmitRequest) (*models.SubmissionResult, error) {
	outcome, err := s.svc.Quests.SubmitProof(ctx, req)
	if err != nil {
		return submissionFailure(err)
	}
	return submissionResult(outcome), nil
}

func (s *EconomyService) ResolveReview(ctx context.Context, submissionId string, approve bool) (*models.SubmissionResult, error) {
	outcome, err := s.svc.Quests.ResolveReview(ctx, submissionId, approve)
	if err != nil {
		return submissionFailure(err)
	}
	return submissionResult(outcome), nil
}

func submissionResult(o *quest.Outcome) *models.SubmissionResult {
	r := &models.SubmissionResult{
		SubmissionId: o.Submission.Id,
		Status:       string(o.Submission.Status),
		Reason:       o.Submission.Reason,
		AiScore:      o.Submission.AiScore,
		FinalNcr:     o.Submission.FinalNcr,
		FinalXp:      o.Submission.FinalXp,
	}
	for _, f := range o.Flags {
		r.Flags = append(r.Flags, string(f))
	}
	return r
}

func submissionFailure(err error) (*models.SubmissionResult, error) {
	kind := store.Kind(err)
	if kind == "internal" {
		return nil, err
	}
	r := &models.SubmissionResult{Error: err.Error(), ErrorKind: kind}
	var cooldown *store.CooldownError
	if errors.As(err, &cooldown) {
		r.RiskScore = cooldown.RiskScore
	}
	return r, nil
}

func (s *EconomyService) GetCp(ctx context.Context, userId string) (*models.CpSnapshot, error) {
	return s.svc.Justice.GetCp(ctx, userId)
}

func (s *EconomyService) ReportViolation(ctx context.Context, in justice.ViolationInput) (*models.CpSnapshot, error) {
	_, snapshot, err := s.svc.Justice.AddViolation(ctx, in)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// CanPerform reports whether the user's current regime permits action.
func (s *EconomyService) CanPerform(ctx context.Context, userId string, action models.Action) (bool, error) {
	snapshot, err := s.svc.Justice.GetCp(ctx, userId)
	if err != nil {
		return false, err
	}
	return justice.IsActionAllowed(snapshot.Regime, action), nil
}
