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
	"math"
	"time"

	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/store"
)

const (
	DefaultPolicyVersion = "v1.0"

	sysExploitFloor            = 60
	trustMultipleAccountsFloor = 80
)

// DefaultPolicy returns the built-in v1.0 policy used when no row is active.
func DefaultPolicy() *models.JusticePolicyParams {
	return &models.JusticePolicyParams{
		Version:     DefaultPolicyVersion,
		DecayPerDay: 1,
		BaseWeights: map[models.ViolationCategory]float64{
			models.CategoryEko:   10,
			models.CategoryCom:   15,
			models.CategorySys:   20,
			models.CategoryTrust: 25,
		},
		SoftFlagThreshold:   20,
		ProbationThreshold:  40,
		RestrictedThreshold: 60,
		LockdownThreshold:   80,
		SeverityMultipliers: map[int]float64{1: 0.5, 2: 1.0, 3: 1.5, 4: 2.0, 5: 3.0},
	}
}

// ValidatePolicy checks that a policy can drive the regime machine.
func ValidatePolicy(p *models.JusticePolicyParams) error {
	if p == nil {
		return store.Invalid("policy is required")
	}
	if p.Version == "" {
		return store.Invalid("policy version is required")
	}
	if p.DecayPerDay < 0 || math.IsNaN(p.DecayPerDay) {
		return store.Invalid("decay per day must be non-negative, got %f", p.DecayPerDay)
	}
	for _, c := range []models.ViolationCategory{models.CategoryEko, models.CategoryCom, models.CategorySys, models.CategoryTrust} {
		w, ok := p.BaseWeights[c]
		if !ok || w < 0 {
			return store.Invalid("policy %s has no valid base weight for %s", p.Version, c)
		}
	}
	for severity := 1; severity <= 5; severity++ {
		m, ok := p.SeverityMultipliers[severity]
		if !ok || m < 0 {
			return store.Invalid("policy %s has no valid multiplier for severity %d", p.Version, severity)
		}
	}
	if !(0 < p.SoftFlagThreshold && p.SoftFlagThreshold < p.ProbationThreshold &&
		p.ProbationThreshold < p.RestrictedThreshold && p.RestrictedThreshold < p.LockdownThreshold) {
		return store.Invalid("policy %s thresholds must be positive and strictly increasing", p.Version)
	}
	return nil
}

// RegimeFor maps a CP value to its regime under p.
func RegimeFor(cp int64, p *models.JusticePolicyParams) models.Regime {
	switch {
	case cp >= p.LockdownThreshold:
		return models.RegimeLockdown
	case cp >= p.RestrictedThreshold:
		return models.RegimeRestricted
	case cp >= p.ProbationThreshold:
		return models.RegimeProbation
	case cp >= p.SoftFlagThreshold:
		return models.RegimeSoftFlag
	default:
		return models.RegimeNormal
	}
}

// CpDelta computes round(baseWeight * severityMultiplier) with the fixed
// floors for exploit and multi-account codes.
func CpDelta(p *models.JusticePolicyParams, category models.ViolationCategory, severity int, code string) (int64, error) {
	base, ok := p.BaseWeights[category]
	if !ok {
		return 0, store.Invalid("invalid violation category %q", category)
	}
	if severity < 1 || severity > 5 {
		return 0, store.Invalid("severity must be between 1 and 5, got %d", severity)
	}
	multiplier, ok := p.SeverityMultipliers[severity]
	if !ok {
		return 0, store.Invalid("policy %s has no multiplier for severity %d", p.Version, severity)
	}

	delta := int64(math.Round(base * multiplier))
	switch code {
	case models.CodeSysExploit:
		delta = max(delta, sysExploitFloor)
	case models.CodeTrustMultipleAccounts:
		delta = max(delta, trustMultipleAccountsFloor)
	}
	return delta, nil
}

// Decay applies linear decay to state as of now. Whole CP units are removed;
// the unconsumed fraction of a day stays in the lastUpdatedAt anchor so
// repeated decays add up. It reports whether cp changed.
func Decay(state *models.UserCpState, p *models.JusticePolicyParams, now time.Time) bool {
	if state.CpValue <= 0 {
		state.CpValue = 0
		state.LastUpdatedAt = now
		return false
	}
	if p.DecayPerDay <= 0 || !now.After(state.LastUpdatedAt) {
		return false
	}

	elapsedDays := now.Sub(state.LastUpdatedAt).Hours() / 24
	units := int64(math.Floor(elapsedDays * p.DecayPerDay))
	if units <= 0 {
		return false
	}

	if units >= state.CpValue {
		state.CpValue = 0
		state.LastUpdatedAt = now
		return true
	}

	state.CpValue -= units
	consumed := time.Duration(float64(units) / p.DecayPerDay * float64(24*time.Hour))
	state.LastUpdatedAt = state.LastUpdatedAt.Add(consumed)
	return true
}
