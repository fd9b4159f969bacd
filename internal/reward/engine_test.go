package reward

import (
	"math"
	"testing"

	"citizen-economy-go/internal/models"

	"github.com/shopspring/decimal"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func happyUser() models.UserEconomyContext {
	return models.UserEconomyContext{
		UserId:        "u",
		StreakDays:    7,
		SiyahScoreAvg: 80,
		RiskScore:     1.0,
		CitizenLevel:  models.LevelResident,
	}
}

func TestFactors(t *testing.T) {
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"streak 0", StreakFactor(0), 1.0},
		{"streak 7", StreakFactor(7), 1.07},
		{"streak capped", StreakFactor(90), 1.3},
		{"streak negative", StreakFactor(-3), 1.0},
		{"siyah 0", SiyahFactor(0), 0.7},
		{"siyah 80", SiyahFactor(80), 1.1},
		{"siyah clamped", SiyahFactor(150), 1.2},
		{"risk 1", RiskFactor(1), 0.9},
		{"risk 10", RiskFactor(10), 0},
		{"risk above range", RiskFactor(12), 0},
		{"nova ghost", NovaFactor(models.LevelGhost), 0.5},
		{"nova core", NovaFactor(models.LevelCoreCitizen), 1.2},
		{"nova prime", NovaFactor(models.LevelPrime), 1.5},
		{"nova unknown", NovaFactor("alien"), 1.0},
		{"mode growth", ModeAdjust(models.ModeGrowth), 1.2},
		{"mode recovery", ModeAdjust(models.ModeRecovery), 0.5},
	}
	for _, tt := range tests {
		if !almostEqual(tt.got, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestCalculateReward_HappyPath(t *testing.T) {
	b := CalculateReward(happyUser(), decimal.NewFromInt(10), 20, nil)

	if !almostEqual(b.UserMultiplier, 1.0593) {
		t.Errorf("Expected multiplier 1.0593, got %v", b.UserMultiplier)
	}
	if !b.FinalNcr.Equal(decimal.RequireFromString("10.59")) {
		t.Errorf("Expected final NCR 10.59, got %s", b.FinalNcr)
	}
	if b.FinalXp != 21 {
		t.Errorf("Expected final XP 21, got %d", b.FinalXp)
	}
	if b.MacroMultiplier != 1.0 {
		t.Errorf("Expected neutral macro, got %v", b.MacroMultiplier)
	}
}

func TestComputeRewardMultiplier_Range(t *testing.T) {
	maxed := models.UserEconomyContext{StreakDays: 30, SiyahScoreAvg: 100, RiskScore: 0, CitizenLevel: models.LevelPrime}
	m, _ := ComputeRewardMultiplier(maxed, models.ModeGrowth)
	// 1.3 * 1.2 * 1.0 * 1.5 * 1.2
	if !almostEqual(m, 2.808) {
		t.Errorf("Expected 2.808, got %v", m)
	}

	risky := happyUser()
	risky.RiskScore = 10
	if m, _ := ComputeRewardMultiplier(risky, models.ModeNormal); m != 0 {
		t.Errorf("Expected 0 at max risk, got %v", m)
	}
}

func TestMacroMultiplier(t *testing.T) {
	tests := []struct {
		name  string
		macro *models.MacroContext
		want  float64
	}{
		{"nil", nil, 1.0},
		{"normal idle", &models.MacroContext{Mode: models.ModeNormal, TreasuryHealth: 0.5}, 1.2},
		{"normal at cap", &models.MacroContext{Mode: models.ModeNormal, DailyEmissionUsed: 100, DailyEmissionCap: 100, TreasuryHealth: 0.5}, 1.0},
		{"over cap weekly wins", &models.MacroContext{Mode: models.ModeNormal, DailyEmissionUsed: 10, DailyEmissionCap: 100, WeeklyUsed: 130, WeeklyCap: 100, TreasuryHealth: 0.5}, 0.7},
		{"penalty floored", &models.MacroContext{Mode: models.ModeRecovery, DailyEmissionUsed: 300, DailyEmissionCap: 100, TreasuryHealth: 0.1}, 0.5},
		{"growth healthy burning", &models.MacroContext{Mode: models.ModeGrowth, DailyEmissionUsed: 50, DailyEmissionCap: 100, TreasuryHealth: 0.9, BurnRate7d: 0.4}, 1.355},
		{"stabilization weak treasury", &models.MacroContext{Mode: models.ModeStabilization, DailyEmissionUsed: 100, DailyEmissionCap: 100, TreasuryHealth: 0.2}, 0.81},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MacroMultiplier(tt.macro); !almostEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateReward_WithMacro(t *testing.T) {
	macro := &models.MacroContext{Mode: models.ModeStabilization, DailyEmissionUsed: 100, DailyEmissionCap: 100, TreasuryHealth: 0.5}
	b := CalculateReward(happyUser(), decimal.NewFromInt(100), 50, macro)

	// 1.07 * 1.1 * 0.9 * 1.0 * 0.8 = 0.84744; macro 0.9
	if !almostEqual(b.UserMultiplier, 0.84744) {
		t.Errorf("Expected multiplier 0.84744, got %v", b.UserMultiplier)
	}
	if !b.FinalNcr.Equal(decimal.RequireFromString("76.27")) {
		t.Errorf("Expected final NCR 76.27, got %s", b.FinalNcr)
	}
	if b.FinalXp != 42 {
		t.Errorf("Expected XP 42, got %d", b.FinalXp)
	}
}

func TestValidateRewardEligibility(t *testing.T) {
	tests := []struct {
		name      string
		completed bool
		risk      float64
		quality   float64
		ok        bool
		reason    string
	}{
		{"eligible", true, 1, 75, true, ""},
		{"not completed", false, 1, 75, false, ReasonNotCompleted},
		{"risk at gate", true, 9, 75, false, ReasonRiskTooHigh},
		{"low quality", true, 1, 19.9, false, ReasonLowQuality},
		{"quality at gate", true, 1, 20, true, ""},
	}
	for _, tt := range tests {
		ok, reason := ValidateRewardEligibility(tt.completed, tt.risk, tt.quality)
		if ok != tt.ok || reason != tt.reason {
			t.Errorf("%s: got (%v, %q), want (%v, %q)", tt.name, ok, reason, tt.ok, tt.reason)
		}
	}
}
