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
	"time"

	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/store"
)

// Event is one risk-raising observation. The set of implementations is
// closed and mirrors models.AbuseEventType.
type Event interface {
	Type() models.AbuseEventType
	Validate() error
	Meta() models.Meta
}

type LowQualityBurst struct {
	RejectedCount int
	Window        time.Duration
}

func (LowQualityBurst) Type() models.AbuseEventType { return models.AbuseLowQualityBurst }

func (e LowQualityBurst) Validate() error {
	if e.RejectedCount <= 0 {
		return store.Invalid("LOW_QUALITY_BURST requires a positive rejected count")
	}
	return nil
}

func (e LowQualityBurst) Meta() models.Meta {
	return models.Meta{"rejected_count": e.RejectedCount, "window_hours": e.Window.Hours()}
}

type DuplicateProof struct {
	TaskId              string
	ProofHash           string
	MatchedSubmissionId string
}

func (DuplicateProof) Type() models.AbuseEventType { return models.AbuseDuplicateProof }

func (e DuplicateProof) Validate() error {
	if e.ProofHash == "" {
		return store.Invalid("DUPLICATE_PROOF requires a proof hash")
	}
	return nil
}

func (e DuplicateProof) Meta() models.Meta {
	return models.Meta{"task_id": e.TaskId, "proof_hash": e.ProofHash, "matched_submission_id": e.MatchedSubmissionId}
}

type TooFastCompletion struct {
	TaskId         string
	ElapsedSeconds float64
}

func (TooFastCompletion) Type() models.AbuseEventType { return models.AbuseTooFastCompletion }

func (e TooFastCompletion) Validate() error {
	if e.TaskId == "" {
		return store.Invalid("TOO_FAST_COMPLETION requires a task id")
	}
	if e.ElapsedSeconds < 0 {
		return store.Invalid("TOO_FAST_COMPLETION requires non-negative elapsedSeconds, got %f", e.ElapsedSeconds)
	}
	return nil
}

func (e TooFastCompletion) Meta() models.Meta {
	return models.Meta{"task_id": e.TaskId, "elapsed_seconds": e.ElapsedSeconds}
}

type AutoReject struct {
	SubmissionId string
	Reason       string
}

func (AutoReject) Type() models.AbuseEventType { return models.AbuseAutoReject }

func (e AutoReject) Validate() error { return nil }

func (e AutoReject) Meta() models.Meta {
	return models.Meta{"submission_id": e.SubmissionId, "reason": e.Reason}
}

type AppealRejected struct {
	AppealId string
}

func (AppealRejected) Type() models.AbuseEventType { return models.AbuseAppealRejected }

func (e AppealRejected) Validate() error {
	if e.AppealId == "" {
		return store.Invalid("APPEAL_REJECTED requires an appeal id")
	}
	return nil
}

func (e AppealRejected) Meta() models.Meta { return models.Meta{"appeal_id": e.AppealId} }

type ManualFlag struct {
	ModeratorId string
	Note        string
}

func (ManualFlag) Type() models.AbuseEventType { return models.AbuseManualFlag }

func (e ManualFlag) Validate() error {
	if e.ModeratorId == "" {
		return store.Invalid("MANUAL_FLAG requires a moderator id")
	}
	return nil
}

func (e ManualFlag) Meta() models.Meta {
	return models.Meta{"moderator_id": e.ModeratorId, "note": e.Note}
}

type ToxicContent struct {
	ContentRef string
	Score      float64
}

func (ToxicContent) Type() models.AbuseEventType { return models.AbuseToxicContent }

func (e ToxicContent) Validate() error {
	if e.ContentRef == "" {
		return store.Invalid("TOXIC_CONTENT requires a content reference")
	}
	return nil
}

func (e ToxicContent) Meta() models.Meta {
	return models.Meta{"content_ref": e.ContentRef, "score": e.Score}
}

// Weights maps each event type to its default score delta.
type Weights map[models.AbuseEventType]float64

func DefaultWeights() Weights {
	return Weights{
		models.AbuseLowQualityBurst:   1.0,
		models.AbuseDuplicateProof:    1.0,
		models.AbuseTooFastCompletion: 2.0,
		models.AbuseAutoReject:        0.5,
		models.AbuseAppealRejected:    2.0,
		models.AbuseManualFlag:        3.0,
		models.AbuseToxicContent:      2.0,
	}
}

// Merge returns a copy of w with overrides applied.
func (w Weights) Merge(overrides map[string]float64) Weights {
	merged := make(Weights, len(w))
	for k, v := range w {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[models.AbuseEventType(k)] = v
	}
	return merged
}
