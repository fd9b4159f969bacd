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
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"citizen-economy-go/internal/abuse"
	"citizen-economy-go/internal/clock"
	"citizen-economy-go/internal/database"
	"citizen-economy-go/internal/ledger"
	"citizen-economy-go/internal/lock"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/outbox"
	"citizen-economy-go/internal/reward"
	"citizen-economy-go/internal/scorer"
	"citizen-economy-go/internal/store"
	"citizen-economy-go/internal/treasury"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultTopic = "quest.completed"

	// MarketplaceMinScore is the AI score from which an approved output is
	// offered to the marketplace.
	MarketplaceMinScore = 80.0

	ledgerSource        = "quest"
	ledgerReferenceType = "quest_submission"
	xpSource            = "quest"

	ReasonReviewRejected = "review_rejected"
)

// Service finalizes quest submissions. Each submission commits its risk
// check, cap debit, ledger credit, XP event and outbox message together.
type Service struct {
	db       *database.Service
	locker   lock.KeyLocker
	clock    clock.Clock
	repo     *Repository
	ledger   *ledger.Service
	abuse    *abuse.Service
	treasury *treasury.Service
	scorer   scorer.Scorer
	macro    *models.MacroContext
	topic    string
}

type Dependencies struct {
	Db       *database.Service
	Locker   lock.KeyLocker
	Clock    clock.Clock
	Repo     *Repository
	Ledger   *ledger.Service
	Abuse    *abuse.Service
	Treasury *treasury.Service
	Scorer   scorer.Scorer
	Macro    *models.MacroContext
	Topic    string
}

func NewService(deps Dependencies) *Service {
	s := &Service{
		db:       deps.Db,
		locker:   deps.Locker,
		clock:    deps.Clock,
		repo:     deps.Repo,
		ledger:   deps.Ledger,
		abuse:    deps.Abuse,
		treasury: deps.Treasury,
		scorer:   deps.Scorer,
		macro:    deps.Macro,
		topic:    deps.Topic,
	}
	if s.scorer == nil {
		s.scorer = scorer.Heuristic{}
	}
	if s.topic == "" {
		s.topic = DefaultTopic
	}
	return s
}

func (s *Service) Repository() *Repository {
	return s.repo
}

// SubmitRequest is one proof handed in for a quest. ExternalAiScore, when
// set, replaces the scorer call.
type SubmitRequest struct {
	UserId          string
	QuestUuid       string
	ProofType       string
	ProofRef        string
	ProofContent    string
	ExternalAiScore *float64
}

// Outcome reports what a submission produced. Reward, Cap and Entry are nil
// unless the submission was approved; Entry is also nil when the cap damped
// the reward to zero.
type Outcome struct {
	Submission *models.Submission
	Reward     *models.RewardBreakdown
	Cap        *models.CapResult
	Entry      *models.LedgerEntry
	XpEvent    *models.XpEvent
	Flags      []models.AbuseEventType
}

type completedEvent struct {
	SubmissionId         string    `json:"submission_id"`
	UserId               string    `json:"user_id"`
	QuestUuid            string    `json:"quest_uuid"`
	ProofType            string    `json:"proof_type"`
	ProofRef             string    `json:"proof_ref"`
	AiScore              float64   `json:"ai_score"`
	FinalNcr             string    `json:"final_ncr"`
	FinalXp              int64     `json:"final_xp"`
	LedgerEntryId        string    `json:"ledger_entry_id,omitempty"`
	MarketplaceCandidate bool      `json:"marketplace_candidate"`
	CompletedAt          time.Time `json:"completed_at"`
}

// SubmitProof scores and finalizes one submission. A user in cooldown gets a
// *store.CooldownError and nothing is written.
func (s *Service) SubmitProof(ctx context.Context, req SubmitRequest) (*Outcome, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	quest, err := s.repo.GetQuest(ctx, s.db.DB(), req.QuestUuid)
	if err != nil {
		return nil, err
	}
	if !quest.Active {
		return nil, store.Invalid("quest %s is not active", quest.Uuid)
	}

	profile, err := s.abuse.GetOrCreateProfile(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	if abuse.RequiresCooldown(profile.RiskScore) {
		zap.L().Info("Submission refused, user in cooldown",
			zap.String("user_id", req.UserId),
			zap.Float64("risk_score", profile.RiskScore))
		return nil, &store.CooldownError{UserId: req.UserId, RiskScore: profile.RiskScore}
	}

	proofHash := hashProof(req)
	flags, err := s.runHeuristics(ctx, req, proofHash)
	if err != nil {
		return nil, err
	}

	score, err := s.score(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	sub := &models.Submission{
		Id:          uuid.New().String(),
		UserId:      req.UserId,
		QuestUuid:   quest.Uuid,
		ProofType:   req.ProofType,
		ProofRef:    req.ProofRef,
		ProofHash:   proofHash,
		ContentLen:  utf8.RuneCountInString(req.ProofContent),
		AiScore:     score.Score,
		ScoreSource: score.Source,
		FinalNcr:    decimal.Zero,
		CreatedAt:   now,
	}
	completed := strings.TrimSpace(req.ProofContent) != "" || req.ProofRef != ""

	day := s.treasury.Today()
	release, err := lock.AcquireAll(ctx, s.locker,
		lock.RiskKey(req.UserId),
		lock.TreasuryDayKey(day),
		lock.AccountKey(req.UserId, models.TokenNCR))
	if err != nil {
		return nil, err
	}
	defer release()

	outcome := &Outcome{Submission: sub, Flags: flags}
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		profile, err := s.abuse.GetOrCreateProfileTx(ctx, tx, req.UserId)
		if err != nil {
			return err
		}
		if abuse.RequiresCooldown(profile.RiskScore) {
			return &store.CooldownError{UserId: req.UserId, RiskScore: profile.RiskScore}
		}

		if abuse.RequiresForcedHitl(profile.RiskScore) {
			sub.Status = models.SubmissionPendingReview
			return s.repo.InsertSubmissionTx(ctx, tx, sub)
		}

		if ok, reason := reward.ValidateRewardEligibility(completed, profile.RiskScore, sub.AiScore); !ok {
			return s.rejectTx(ctx, tx, sub, reason, false)
		}

		if err := s.mintTx(ctx, tx, sub, quest, profile.RiskScore, day, outcome); err != nil {
			return err
		}
		return s.repo.InsertSubmissionTx(ctx, tx, sub)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Quest submission finalized",
		zap.String("submission_id", sub.Id),
		zap.String("user_id", sub.UserId),
		zap.String("quest_uuid", sub.QuestUuid),
		zap.String("status", string(sub.Status)),
		zap.String("reason", sub.Reason),
		zap.Float64("ai_score", sub.AiScore),
		zap.String("final_ncr", sub.FinalNcr.String()),
		zap.Int64("final_xp", sub.FinalXp))

	return outcome, nil
}

// ResolveReview approves or rejects a PENDING_REVIEW submission. Approval
// passes the same cooldown and eligibility gates as a fresh submission.
func (s *Service) ResolveReview(ctx context.Context, submissionId string, approve bool) (*Outcome, error) {
	if submissionId == "" {
		return nil, store.Invalid("submission id is required")
	}
	pending, err := s.repo.GetSubmission(ctx, s.db.DB(), submissionId)
	if err != nil {
		return nil, err
	}
	if pending.Status != models.SubmissionPendingReview {
		return nil, store.Invalid("submission %s is %s, not pending review", submissionId, pending.Status)
	}
	userId := pending.UserId

	day := s.treasury.Today()
	release, err := lock.AcquireAll(ctx, s.locker,
		lock.RiskKey(userId),
		lock.TreasuryDayKey(day),
		lock.AccountKey(userId, models.TokenNCR))
	if err != nil {
		return nil, err
	}
	defer release()

	outcome := &Outcome{}
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		sub, err := s.repo.GetSubmission(ctx, tx, submissionId)
		if err != nil {
			return err
		}
		outcome.Submission = sub

		if !approve {
			return s.rejectTx(ctx, tx, sub, ReasonReviewRejected, true)
		}

		profile, err := s.abuse.GetOrCreateProfileTx(ctx, tx, userId)
		if err != nil {
			return err
		}
		if abuse.RequiresCooldown(profile.RiskScore) {
			return &store.CooldownError{UserId: userId, RiskScore: profile.RiskScore}
		}
		if ok, reason := reward.ValidateRewardEligibility(true, profile.RiskScore, sub.AiScore); !ok {
			return s.rejectTx(ctx, tx, sub, reason, true)
		}

		quest, err := s.repo.GetQuest(ctx, tx, sub.QuestUuid)
		if err != nil {
			return err
		}
		if err := s.mintTx(ctx, tx, sub, quest, profile.RiskScore, day, outcome); err != nil {
			return err
		}
		return s.repo.ResolveSubmissionTx(ctx, tx, sub)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Quest review resolved",
		zap.String("submission_id", submissionId),
		zap.Bool("approve", approve),
		zap.String("status", string(outcome.Submission.Status)),
		zap.String("final_ncr", outcome.Submission.FinalNcr.String()))

	return outcome, nil
}

// rejectTx marks sub REJECTED. Automatic rejections also raise the user's
// risk with an AUTO_REJECT event.
func (s *Service) rejectTx(ctx context.Context, tx *sql.Tx, sub *models.Submission, reason string, resolving bool) error {
	now := s.clock.Now()
	sub.Status = models.SubmissionRejected
	sub.Reason = reason
	sub.ResolvedAt = &now

	if reason != ReasonReviewRejected {
		event := abuse.AutoReject{SubmissionId: sub.Id, Reason: reason}
		opts := abuse.RegisterOptions{IdempotencyKey: "auto_reject:" + sub.Id}
		if _, _, err := s.abuse.RegisterEventTx(ctx, tx, sub.UserId, event, opts); err != nil {
			return err
		}
	}

	if resolving {
		return s.repo.ResolveSubmissionTx(ctx, tx, sub)
	}
	return s.repo.InsertSubmissionTx(ctx, tx, sub)
}

// mintTx computes the reward, debits the daily cap once, credits the ledger
// and stages the XP event and outbox message. It fills sub's outcome fields
// but does not persist sub.
func (s *Service) mintTx(ctx context.Context, tx *sql.Tx, sub *models.Submission, quest *models.Quest, riskScore float64, day string, outcome *Outcome) error {
	econ, err := s.repo.GetUserEconomy(ctx, tx, sub.UserId)
	if err != nil {
		return err
	}
	econ.RiskScore = riskScore

	breakdown := reward.CalculateReward(econ, quest.BaseNcr, quest.BaseXp, s.macro)
	outcome.Reward = &breakdown

	capResult, err := s.treasury.ApplyCapTx(ctx, tx, day, breakdown.FinalNcr)
	if err != nil {
		return err
	}
	outcome.Cap = capResult

	now := s.clock.Now()
	if capResult.FinalNcr.IsPositive() {
		entry, err := s.ledger.CreateEntryTx(ctx, tx, ledger.CreateEntryParams{
			UserId:         sub.UserId,
			Token:          models.TokenNCR,
			Amount:         capResult.FinalNcr,
			Type:           models.EntryEarn,
			Source:         ledgerSource,
			ReferenceId:    sub.Id,
			ReferenceType:  ledgerReferenceType,
			IdempotencyKey: "quest_submission:" + sub.Id,
			Meta: models.Meta{
				"quest_uuid":       quest.Uuid,
				"pre_cap_ncr":      breakdown.FinalNcr.String(),
				"cap_multiplier":   capResult.Multiplier,
				"user_multiplier":  breakdown.UserMultiplier,
				"macro_multiplier": breakdown.MacroMultiplier,
				"ai_score":         sub.AiScore,
			},
		})
		if err != nil {
			return err
		}
		outcome.Entry = entry
		sub.LedgerEntry = entry.Id
	}

	if breakdown.FinalXp > 0 {
		xp, err := s.repo.InsertXpEventTx(ctx, tx, sub.UserId, breakdown.FinalXp, xpSource, sub.Id, now)
		if err != nil {
			return err
		}
		outcome.XpEvent = xp
	}

	sub.Status = models.SubmissionApproved
	sub.Reason = capResult.Reason
	sub.FinalNcr = capResult.FinalNcr
	sub.FinalXp = breakdown.FinalXp
	sub.ResolvedAt = &now

	payload, err := json.Marshal(completedEvent{
		SubmissionId:         sub.Id,
		UserId:               sub.UserId,
		QuestUuid:            sub.QuestUuid,
		ProofType:            sub.ProofType,
		ProofRef:             sub.ProofRef,
		AiScore:              sub.AiScore,
		FinalNcr:             sub.FinalNcr.String(),
		FinalXp:              sub.FinalXp,
		LedgerEntryId:        sub.LedgerEntry,
		MarketplaceCandidate: sub.AiScore >= MarketplaceMinScore,
		CompletedAt:          now,
	})
	if err != nil {
		return fmt.Errorf("failed to encode completion event: %w", err)
	}
	if _, err := outbox.InsertTx(ctx, tx, s.topic, sub.UserId, string(payload), now); err != nil {
		return err
	}
	return nil
}

// runHeuristics fires the abuse checks that apply to this submission. Each
// check registers its own event under the user's risk lock.
func (s *Service) runHeuristics(ctx context.Context, req SubmitRequest, proofHash string) ([]models.AbuseEventType, error) {
	var flags []models.AbuseEventType

	fired, err := s.abuse.CheckLowQualityBurst(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	if fired {
		flags = append(flags, models.AbuseLowQualityBurst)
	}

	assignment, err := s.repo.GetAssignment(ctx, req.UserId, req.QuestUuid)
	if err != nil {
		return nil, err
	}
	if assignment != nil {
		fired, err := s.abuse.CheckTooFastCompletion(ctx, req.UserId, req.QuestUuid, assignment.AssignedAt)
		if err != nil {
			return nil, err
		}
		if fired {
			flags = append(flags, models.AbuseTooFastCompletion)
		}
	}

	fired, err = s.abuse.CheckDuplicateProof(ctx, req.UserId, req.QuestUuid, proofHash)
	if err != nil {
		return nil, err
	}
	if fired {
		flags = append(flags, models.AbuseDuplicateProof)
	}
	return flags, nil
}

func (s *Service) score(ctx context.Context, req SubmitRequest) (scorer.Result, error) {
	if req.ExternalAiScore != nil {
		v := *req.ExternalAiScore
		if math.IsNaN(v) || v < 0 || v > 100 {
			return scorer.Result{}, store.Invalid("external ai score must be in [0, 100], got %f", v)
		}
		return scorer.Result{Score: v, Source: scorer.SourceExternal}, nil
	}
	return s.scorer.Score(ctx, scorer.Request{
		UserId:       req.UserId,
		QuestUuid:    req.QuestUuid,
		ProofType:    req.ProofType,
		ProofRef:     req.ProofRef,
		ProofContent: req.ProofContent,
	})
}

func validateRequest(req SubmitRequest) error {
	switch {
	case req.UserId == "":
		return store.Invalid("user id is required")
	case req.QuestUuid == "":
		return store.Invalid("quest uuid is required")
	case req.ProofType == "":
		return store.Invalid("proof type is required")
	}
	return nil
}

// hashProof fingerprints the proof for duplicate detection. Whitespace and
// case in the content do not change the hash.
func hashProof(req SubmitRequest) string {
	content := strings.ToLower(strings.Join(strings.Fields(req.ProofContent), " "))
	if content == "" && req.ProofRef == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(req.ProofType + "\x00" + req.ProofRef + "\x00" + content))
	return hex.EncodeToString(sum[:])
}
