package quest

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

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

	"github.com/shopspring/decimal"
)

type testEnv struct {
	svc      *Service
	db       *database.Service
	clk      *clock.Fake
	repo     *Repository
	ledger   *ledger.Service
	abuse    *abuse.Service
	treasury *treasury.Service
}

func setupTestQuest(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenInMemory(ctx)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	clk := clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	locker := lock.NewLocal()
	repo := NewRepository(db)
	env := &testEnv{
		db:       db,
		clk:      clk,
		repo:     repo,
		ledger:   ledger.NewService(db, locker, clk, "1"),
		abuse:    abuse.NewService(db, locker, clk, abuse.DefaultWeights(), repo),
		treasury: treasury.NewService(db, locker, clk, decimal.NewFromInt(200000), treasury.DefaultDampingTable()),
	}
	env.svc = NewService(Dependencies{
		Db:       db,
		Locker:   locker,
		Clock:    clk,
		Repo:     repo,
		Ledger:   env.ledger,
		Abuse:    env.abuse,
		Treasury: env.treasury,
		Scorer:   scorer.Heuristic{},
	})
	return env
}

func (e *testEnv) addQuest(t *testing.T, id, baseNcr string, baseXp int64) {
	t.Helper()
	err := e.repo.CreateQuest(context.Background(), models.Quest{
		Uuid:      id,
		Title:     "Quest " + id,
		Category:  "content",
		BaseNcr:   decimal.RequireFromString(baseNcr),
		BaseXp:    baseXp,
		Active:    true,
		CreatedAt: e.clk.Now(),
	})
	if err != nil {
		t.Fatalf("CreateQuest failed: %v", err)
	}
}

func (e *testEnv) setEconomy(t *testing.T, userId string, streak int, siyah float64) {
	t.Helper()
	err := e.repo.UpsertUserEconomy(context.Background(), models.UserEconomyContext{
		UserId:        userId,
		StreakDays:    streak,
		SiyahScoreAvg: siyah,
		CitizenLevel:  models.LevelResident,
	}, e.clk.Now())
	if err != nil {
		t.Fatalf("UpsertUserEconomy failed: %v", err)
	}
}

func (e *testEnv) setRisk(t *testing.T, userId string, score float64) {
	t.Helper()
	_, _, err := e.abuse.RegisterEvent(context.Background(), userId,
		abuse.ManualFlag{ModeratorId: "mod", Note: "seed"},
		abuse.RegisterOptions{OverrideDelta: &score})
	if err != nil {
		t.Fatalf("RegisterEvent failed: %v", err)
	}
}

func (e *testEnv) risk(t *testing.T, userId string) float64 {
	t.Helper()
	score, err := e.abuse.RiskScore(context.Background(), userId)
	if err != nil {
		t.Fatalf("RiskScore failed: %v", err)
	}
	return score
}

func (e *testEnv) balance(t *testing.T, userId string) decimal.Decimal {
	t.Helper()
	b, err := e.ledger.GetBalance(context.Background(), userId, models.TokenNCR)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	return b.Balance
}

func (e *testEnv) pendingOutbox(t *testing.T) int {
	t.Helper()
	n, err := outbox.NewRepository(e.db.DB()).CountByStatus(context.Background(), models.OutboxStatusPending)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	return n
}

func score(v float64) *float64 { return &v }

func TestSubmitProof_HappyPath(t *testing.T) {
	env := setupTestQuest(t)
	ctx := context.Background()
	env.addQuest(t, "q1", "10", 20)
	env.setEconomy(t, "u", 7, 80)
	env.setRisk(t, "u", 1.0)

	outcome, err := env.svc.SubmitProof(ctx, SubmitRequest{
		UserId:          "u",
		QuestUuid:       "q1",
		ProofType:       "text",
		ProofContent:    "a thoughtful essay about the city",
		ExternalAiScore: score(85),
	})
	if err != nil {
		t.Fatalf("SubmitProof failed: %v", err)
	}

	sub := outcome.Submission
	if sub.Status != models.SubmissionApproved {
		t.Fatalf("Expected APPROVED, got %s (%s)", sub.Status, sub.Reason)
	}
	if outcome.Reward.UserMultiplier < 1.0592 || outcome.Reward.UserMultiplier > 1.0594 {
		t.Errorf("Expected user multiplier 1.0593, got %f", outcome.Reward.UserMultiplier)
	}
	if !sub.FinalNcr.Equal(decimal.RequireFromString("10.59")) {
		t.Errorf("Expected final 10.59, got %s", sub.FinalNcr)
	}
	if sub.FinalXp != 21 {
		t.Errorf("Expected 21 XP, got %d", sub.FinalXp)
	}
	if outcome.Cap.Multiplier != 1.0 {
		t.Errorf("Expected cap multiplier 1.0, got %f", outcome.Cap.Multiplier)
	}

	if outcome.Entry == nil || outcome.Entry.Type != models.EntryEarn {
		t.Fatalf("Expected an EARN entry, got %+v", outcome.Entry)
	}
	if !outcome.Entry.BalanceAfter.Equal(decimal.RequireFromString("10.59")) {
		t.Errorf("Expected balanceAfter 10.59, got %s", outcome.Entry.BalanceAfter)
	}
	if !env.balance(t, "u").Equal(decimal.RequireFromString("10.59")) {
		t.Errorf("Expected balance 10.59, got %s", env.balance(t, "u"))
	}

	stat, err := env.treasury.GetDailyStat(ctx, env.treasury.Today())
	if err != nil {
		t.Fatalf("GetDailyStat failed: %v", err)
	}
	if !stat.IssuedNcr.Equal(decimal.RequireFromString("10.59")) {
		t.Errorf("Expected issued 10.59, got %s", stat.IssuedNcr)
	}

	xp, err := env.repo.TotalXp(ctx, "u")
	if err != nil {
		t.Fatalf("TotalXp failed: %v", err)
	}
	if xp != 21 {
		t.Errorf("Expected 21 XP recorded, got %d", xp)
	}

	stored, err := env.repo.GetSubmission(ctx, env.db.DB(), sub.Id)
	if err != nil {
		t.Fatalf("GetSubmission failed: %v", err)
	}
	if stored.LedgerEntry != outcome.Entry.Id || stored.ScoreSource != scorer.SourceExternal {
		t.Errorf("Unexpected stored submission %+v", stored)
	}

	msgs, err := outbox.NewRepository(env.db.DB()).GetPendingMessages(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingMessages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Topic != DefaultTopic || msgs[0].MessageKey != "u" {
		t.Fatalf("Expected one quest.completed message, got %+v", msgs)
	}
	var event completedEvent
	if err := json.Unmarshal([]byte(msgs[0].Payload), &event); err != nil {
		t.Fatalf("payload decode failed: %v", err)
	}
	if event.SubmissionId != sub.Id || event.FinalNcr != "10.59" || !event.MarketplaceCandidate {
		t.Errorf("Unexpected payload %+v", event)
	}
}

func TestSubmitProof_CapDamping(t *testing.T) {
	env := setupTestQuest(t)
	ctx := context.Background()
	env.addQuest(t, "big", "100", 0)
	env.setEconomy(t, "u", 0, 60)

	now := env.clk.Now()
	_, err := env.db.DB().Exec(`INSERT INTO daily_treasury_stats (day, limit_ncr, issued_ncr, version, created_at, updated_at)
		VALUES (?, '200000', '196000', 1, ?, ?)`, env.treasury.Today(), now, now)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	outcome, err := env.svc.SubmitProof(ctx, SubmitRequest{
		UserId: "u", QuestUuid: "big", ProofType: "text", ProofContent: "proof", ExternalAiScore: score(70),
	})
	if err != nil {
		t.Fatalf("SubmitProof failed: %v", err)
	}
	if !outcome.Reward.FinalNcr.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected pre-cap 100, got %s", outcome.Reward.FinalNcr)
	}
	if outcome.Cap.Multiplier != 0.30 {
		t.Errorf("Expected cap multiplier 0.30, got %f", outcome.Cap.Multiplier)
	}
	if !outcome.Submission.FinalNcr.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("Expected final 30.00, got %s", outcome.Submission.FinalNcr)
	}

	stat, err := env.treasury.GetDailyStat(ctx, env.treasury.Today())
	if err != nil {
		t.Fatalf("GetDailyStat failed: %v", err)
	}
	if !stat.IssuedNcr.Equal(decimal.NewFromInt(196030)) {
		t.Errorf("Expected issued 196030, got %s", stat.IssuedNcr)
	}
}

func TestSubmitProof_CooldownBlocksMint(t *testing.T) {
	env := setupTestQuest(t)
	ctx := context.Background()
	env.addQuest(t, "q1", "10", 20)
	env.setRisk(t, "v", 9.5)

	_, err := env.svc.SubmitProof(ctx, SubmitRequest{
		UserId: "v", QuestUuid: "q1", ProofType: "text", ProofContent: "proof", ExternalAiScore: score(90),
	})
	var cooldown *store.CooldownError
	if !errors.As(err, &cooldown) {
		t.Fatalf("Expected CooldownError, got %v", err)
	}
	if store.Kind(err) != "cooldown" || cooldown.RiskScore != 9.5 {
		t.Errorf("Unexpected cooldown error %+v", cooldown)
	}

	if !env.balance(t, "v").IsZero() {
		t.Errorf("Expected no mint, balance %s", env.balance(t, "v"))
	}
	subs, err := env.repo.ListSubmissions(ctx, "v", 10)
	if err != nil {
		t.Fatalf("ListSubmissions failed: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("Expected no submissions, got %d", len(subs))
	}
	if env.risk(t, "v") != 9.5 {
		t.Errorf("Expected risk unchanged at 9.5, got %f", env.risk(t, "v"))
	}
	if env.pendingOutbox(t) != 0 {
		t.Error("Expected no outbox message")
	}

	_, _, err = env.abuse.RegisterEvent(ctx, "v", abuse.AutoReject{Reason: "external"}, abuse.RegisterOptions{})
	if err != nil {
		t.Fatalf("RegisterEvent failed: %v", err)
	}
	if env.risk(t, "v") != 10.0 {
		t.Errorf("Expected risk clamped at 10, got %f", env.risk(t, "v"))
	}
}

func TestSubmitProof_ForcedReviewThenApprove(t *testing.T) {
	env := setupTestQuest(t)
	ctx := context.Background()
	env.addQuest(t, "q1", "10", 0)
	env.setEconomy(t, "u", 0, 60)
	env.setRisk(t, "u", 6.5)

	outcome, err := env.svc.SubmitProof(ctx, SubmitRequest{
		UserId: "u", QuestUuid: "q1", ProofType: "text", ProofContent: "proof", ExternalAiScore: score(60),
	})
	if err != nil {
		t.Fatalf("SubmitProof failed: %v", err)
	}
	if outcome.Submission.Status != models.SubmissionPendingReview {
		t.Fatalf("Expected PENDING_REVIEW, got %s", outcome.Submission.Status)
	}
	if outcome.Entry != nil || !env.balance(t, "u").IsZero() {
		t.Fatal("Expected nothing minted while pending review")
	}

	resolved, err := env.svc.ResolveReview(ctx, outcome.Submission.Id, true)
	if err != nil {
		t.Fatalf("ResolveReview failed: %v", err)
	}
	if resolved.Submission.Status != models.SubmissionApproved {
		t.Fatalf("Expected APPROVED, got %s (%s)", resolved.Submission.Status, resolved.Submission.Reason)
	}
	if !resolved.Submission.FinalNcr.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("Expected 3.5 after risk factor 0.35, got %s", resolved.Submission.FinalNcr)
	}
	if !env.balance(t, "u").Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("Expected balance 3.5, got %s", env.balance(t, "u"))
	}
	if env.pendingOutbox(t) != 1 {
		t.Errorf("Expected one outbox message, got %d", env.pendingOutbox(t))
	}

	if _, err := env.svc.ResolveReview(ctx, outcome.Submission.Id, true); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("Expected second resolve to be invalid, got %v", err)
	}
}

func TestResolveReview_Reject(t *testing.T) {
	env := setupTestQuest(t)
	ctx := context.Background()
	env.addQuest(t, "q1", "10", 20)
	env.setRisk(t, "u", 7)

	outcome, err := env.svc.SubmitProof(ctx, SubmitRequest{
		UserId: "u", QuestUuid: "q1", ProofType: "text", ProofContent: "proof", ExternalAiScore: score(60),
	})
	if err != nil {
		t.Fatalf("SubmitProof failed: %v", err)
	}

	resolved, err := env.svc.ResolveReview(ctx, outcome.Submission.Id, false)
	if err != nil {
		t.Fatalf("ResolveReview failed: %v", err)
	}
	if resolved.Submission.Status != models.SubmissionRejected || resolved.Submission.Reason != ReasonReviewRejected {
		t.Errorf("Unexpected resolution %+v", resolved.Submission)
	}
	if env.risk(t, "u") != 7 {
		t.Errorf("Expected risk unchanged by review rejection, got %f", env.risk(t, "u"))
	}

	if _, err := env.svc.ResolveReview(ctx, "missing", true); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSubmitProof_LowQualityRejected(t *testing.T) {
	env := setupTestQuest(t)
	ctx := context.Background()
	env.addQuest(t, "q1", "10", 20)

	outcome, err := env.svc.SubmitProof(ctx, SubmitRequest{
		UserId: "u", QuestUuid: "q1", ProofType: "text", ProofContent: "meh", ExternalAiScore: score(10),
	})
	if err != nil {
		t.Fatalf("SubmitProof failed: %v", err)
	}
	if outcome.Submission.Status != models.SubmissionRejected || outcome.Submission.Reason != reward.ReasonLowQuality {
		t.Errorf("Expected quality rejection, got %+v", outcome.Submission)
	}
	if env.risk(t, "u") != 0.5 {
		t.Errorf("Expected AUTO_REJECT to add 0.5, got %f", env.risk(t, "u"))
	}
	if !env.balance(t, "u").IsZero() || env.pendingOutbox(t) != 0 {
		t.Error("Expected nothing minted or published")
	}

	stat, err := env.treasury.GetDailyStat(ctx, env.treasury.Today())
	if err == nil && !stat.IssuedNcr.IsZero() {
		t.Errorf("Expected no cap debit, issued %s", stat.IssuedNcr)
	}
}

func TestSubmitProof_EmptyProofNotCompleted(t *testing.T) {
	env := setupTestQuest(t)
	env.addQuest(t, "q1", "10", 20)

	outcome, err := env.svc.SubmitProof(context.Background(), SubmitRequest{
		UserId: "u", QuestUuid: "q1", ProofType: "text", ProofContent: "   ", ExternalAiScore: score(90),
	})
	if err != nil {
		t.Fatalf("SubmitProof failed: %v", err)
	}
	if outcome.Submission.Reason != reward.ReasonNotCompleted {
		t.Errorf("Expected task_not_completed, got %q", outcome.Submission.Reason)
	}
}

func TestSubmitProof_Heuristics(t *testing.T) {
	env := setupTestQuest(t)
	ctx := context.Background()
	env.addQuest(t, "q1", "10", 20)
	env.addQuest(t, "q2", "10", 20)

	req := SubmitRequest{UserId: "u", QuestUuid: "q1", ProofType: "text", ProofContent: "Same proof", ExternalAiScore: score(70)}
	if _, err := env.svc.SubmitProof(ctx, req); err != nil {
		t.Fatalf("first SubmitProof failed: %v", err)
	}

	req.QuestUuid = "q2"
	req.ProofContent = "  same   PROOF "
	outcome, err := env.svc.SubmitProof(ctx, req)
	if err != nil {
		t.Fatalf("second SubmitProof failed: %v", err)
	}
	if len(outcome.Flags) != 1 || outcome.Flags[0] != models.AbuseDuplicateProof {
		t.Errorf("Expected DUPLICATE_PROOF flag, got %v", outcome.Flags)
	}
	if env.risk(t, "u") != 1.0 {
		t.Errorf("Expected risk 1.0, got %f", env.risk(t, "u"))
	}

	if err := env.repo.Assign(ctx, "w", "q1", env.clk.Now().Add(-5*time.Second)); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	outcome, err = env.svc.SubmitProof(ctx, SubmitRequest{
		UserId: "w", QuestUuid: "q1", ProofType: "text", ProofContent: "fast", ExternalAiScore: score(70),
	})
	if err != nil {
		t.Fatalf("SubmitProof failed: %v", err)
	}
	if len(outcome.Flags) != 1 || outcome.Flags[0] != models.AbuseTooFastCompletion {
		t.Errorf("Expected TOO_FAST_COMPLETION flag, got %v", outcome.Flags)
	}
}

func TestSubmitProof_LowQualityBurst(t *testing.T) {
	env := setupTestQuest(t)
	ctx := context.Background()
	env.addQuest(t, "q1", "10", 20)

	for i := 0; i < 5; i++ {
		_, err := env.svc.SubmitProof(ctx, SubmitRequest{
			UserId: "u", QuestUuid: "q1", ProofType: "text",
			ProofContent: strings.Repeat("x", i+1), ExternalAiScore: score(5),
		})
		if err != nil {
			t.Fatalf("SubmitProof %d failed: %v", i, err)
		}
		env.clk.Advance(time.Minute)
	}

	outcome, err := env.svc.SubmitProof(ctx, SubmitRequest{
		UserId: "u", QuestUuid: "q1", ProofType: "text", ProofContent: "finally good", ExternalAiScore: score(80),
	})
	if err != nil {
		t.Fatalf("SubmitProof failed: %v", err)
	}
	if len(outcome.Flags) != 1 || outcome.Flags[0] != models.AbuseLowQualityBurst {
		t.Errorf("Expected LOW_QUALITY_BURST flag, got %v", outcome.Flags)
	}
}

func TestSubmitProof_HeuristicScorerFallback(t *testing.T) {
	env := setupTestQuest(t)
	env.addQuest(t, "q1", "10", 20)

	outcome, err := env.svc.SubmitProof(context.Background(), SubmitRequest{
		UserId: "u", QuestUuid: "q1", ProofType: "text", ProofContent: strings.Repeat("word ", 50),
	})
	if err != nil {
		t.Fatalf("SubmitProof failed: %v", err)
	}
	if outcome.Submission.ScoreSource != scorer.SourceHeuristic || outcome.Submission.AiScore != 75 {
		t.Errorf("Expected heuristic score 75, got %s %f", outcome.Submission.ScoreSource, outcome.Submission.AiScore)
	}
	if outcome.Submission.Status != models.SubmissionApproved {
		t.Errorf("Expected APPROVED, got %s", outcome.Submission.Status)
	}
}

func TestSubmitProof_Validation(t *testing.T) {
	env := setupTestQuest(t)
	env.addQuest(t, "q1", "10", 20)

	tests := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"missing user", SubmitRequest{QuestUuid: "q1", ProofType: "text"}, store.ErrInvalidInput},
		{"missing quest", SubmitRequest{UserId: "u", ProofType: "text"}, store.ErrInvalidInput},
		{"missing proof type", SubmitRequest{UserId: "u", QuestUuid: "q1"}, store.ErrInvalidInput},
		{"unknown quest", SubmitRequest{UserId: "u", QuestUuid: "nope", ProofType: "text"}, store.ErrNotFound},
		{"score out of range", SubmitRequest{UserId: "u", QuestUuid: "q1", ProofType: "text", ProofContent: "x", ExternalAiScore: score(150)}, store.ErrInvalidInput},
		{"score not a number", SubmitRequest{UserId: "u", QuestUuid: "q1", ProofType: "text", ProofContent: "x", ExternalAiScore: score(math.NaN())}, store.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.SubmitProof(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestHashProof(t *testing.T) {
	a := hashProof(SubmitRequest{ProofType: "text", ProofContent: "Hello  World"})
	b := hashProof(SubmitRequest{ProofType: "text", ProofContent: "hello world"})
	c := hashProof(SubmitRequest{ProofType: "link", ProofContent: "hello world"})
	if a != b {
		t.Error("Expected whitespace and case to be ignored")
	}
	if a == c {
		t.Error("Expected proof type to change the hash")
	}
	if hashProof(SubmitRequest{ProofType: "text"}) != "" {
		t.Error("Expected empty proof to have no hash")
	}
}
