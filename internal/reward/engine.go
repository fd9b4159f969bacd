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

package reward

import (
	"math"

	"citizen-economy-go/internal/models"

	"github.com/shopspring/decimal"
)

const (
	maxStreakDays     = 30
	maxUserMultiplier = 3.0
	minMacro          = 0.5
	maxMacro          = 1.5

	// MinAiQuality is the lowest AI score that can earn a reward.
	MinAiQuality = 20.0
	// MaxEligibleRisk is the risk score at which rewards stop.
	MaxEligibleRisk = 9.0
)

// Ineligibility reasons.
const (
	ReasonNotCompleted = "task_not_completed"
	ReasonRiskTooHigh  = "risk_too_high"
	ReasonLowQuality   = "quality_too_low"
)

var novaFactors = map[models.CitizenLevel]float64{
	models.LevelGhost:       0.5,
	models.LevelResident:    1.0,
	models.LevelCoreCitizen: 1.2,
	models.LevelSovereign:   1.4,
	models.LevelPrime:       1.5,
}

var modeAdjusts = map[models.MacroMode]float64{
	models.ModeNormal:        1.0,
	models.ModeGrowth:        1.2,
	models.ModeStabilization: 0.8,
	models.ModeRecovery:      0.5,
}

var macroBases = map[models.MacroMode]float64{
	models.ModeNormal:        1.0,
	models.ModeGrowth:        1.15,
	models.ModeStabilization: 0.9,
	models.ModeRecovery:      0.75,
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func StreakFactor(streakDays int) float64 {
	days := min(max(streakDays, 0), maxStreakDays)
	return round3(1.0 + float64(days)*0.01)
}

func SiyahFactor(siyahScoreAvg float64) float64 {
	return round3(0.7 + clamp(siyahScoreAvg, 0, 100)/100*0.5)
}

func RiskFactor(riskScore float64) float64 {
	return round3(math.Max(0, 1-clamp(riskScore, models.MinRiskScore, models.MaxRiskScore)/10))
}

// NovaFactor looks up the citizenship factor; unknown levels count as resident.
func NovaFactor(level models.CitizenLevel) float64 {
	if f, ok := novaFactors[level]; ok {
		return f
	}
	return novaFactors[models.LevelResident]
}

func ModeAdjust(mode models.MacroMode) float64 {
	if f, ok := modeAdjusts[mode]; ok {
		return f
	}
	return 1.0
}

// ComputeRewardMultiplier returns the clamped product of the per-user
// factors and fills their values into a breakdown.
func ComputeRewardMultiplier(user models.UserEconomyContext, mode models.MacroMode) (float64, models.RewardBreakdown) {
	b := models.RewardBreakdown{
		StreakFactor: StreakFactor(user.StreakDays),
		SiyahFactor:  SiyahFactor(user.SiyahScoreAvg),
		RiskFactor:   RiskFactor(user.RiskScore),
		NovaFactor:   NovaFactor(user.CitizenLevel),
		ModeAdjust:   ModeAdjust(mode),
	}
	product := b.StreakFactor * b.SiyahFactor * b.RiskFactor * b.NovaFactor * b.ModeAdjust
	b.UserMultiplier = clamp(product, 0, maxUserMultiplier)
	return b.UserMultiplier, b
}

func ratio(used, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return used / limit
}

// MacroMultiplier derives the system-wide factor from emission pressure,
// treasury health and burn rate. A nil context is neutral.
func MacroMultiplier(macro *models.MacroContext) float64 {
	if macro == nil {
		return 1.0
	}

	base, ok := macroBases[macro.Mode]
	if !ok {
		base = 1.0
	}

	pressure := math.Max(ratio(macro.DailyEmissionUsed, macro.DailyEmissionCap), ratio(macro.WeeklyUsed, macro.WeeklyCap))
	m := base
	if pressure > 1 {
		m = base * (1 - math.Min(0.5, pressure-1))
	} else {
		m = base * (1 + (1-pressure)*0.2)
	}

	switch {
	case macro.TreasuryHealth < 0.3:
		m *= 0.9
	case macro.TreasuryHealth > 0.8:
		m *= 1.05
	}
	if macro.BurnRate7d > 0.3 {
		m *= 1.02
	}
	return round3(clamp(m, minMacro, maxMacro))
}

// CalculateReward applies the user and macro multipliers to a base reward.
func CalculateReward(user models.UserEconomyContext, baseNcr decimal.Decimal, baseXp int64, macro *models.MacroContext) models.RewardBreakdown {
	mode := models.ModeNormal
	if macro != nil && macro.Mode != "" {
		mode = macro.Mode
	}

	multiplier, b := ComputeRewardMultiplier(user, mode)
	b.MacroMultiplier = MacroMultiplier(macro)
	b.BaseNcr = baseNcr
	b.BaseXp = baseXp

	total := decimal.NewFromFloat(multiplier).Mul(decimal.NewFromFloat(b.MacroMultiplier))
	b.FinalNcr = baseNcr.Mul(total).Round(2)
	if b.FinalNcr.IsNegative() {
		b.FinalNcr = decimal.Zero
	}

	xp := math.Floor(float64(baseXp) * multiplier)
	b.FinalXp = int64(math.Max(0, xp))
	return b
}

// ValidateRewardEligibility is the gate every minted submission passes.
func ValidateRewardEligibility(completed bool, riskScore, aiQuality float64) (bool, string) {
	switch {
	case !completed:
		return false, ReasonNotCompleted
	case riskScore >= MaxEligibleRisk:
		return false, ReasonRiskTooHigh
	case aiQuality < MinAiQuality:
		return false, ReasonLowQuality
	}
	return true, ""
}
