package reconcile_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mossdao/gavel/model/types"
	"github.com/mossdao/gavel/model/voting"
	"github.com/mossdao/gavel/service/reconcile"
	svoting "github.com/mossdao/gavel/service/voting"
)

func testConfig() reconcile.Config {
	config := reconcile.DefaultConfig()
	config.Director3AllowList = []string{"director-3"}
	return config
}

// conflictedSession opens a session whose houses disagree: MossCoin passes at
// 80% participation, Open Source rejects at 50%.
func conflictedSession(t *testing.T, service *svoting.Service) *voting.Session {
	t.Helper()
	ctx := context.Background()
	session, err := service.OpenSession(ctx, "proposal-1", "Adopt treasury policy",
		svoting.WithEligibleWeights(1000, 100))
	assert.NoError(t, err)
	_, err = service.CastVote(ctx, session.ID, voting.Vote{VoterID: "alice", House: voting.HouseMossCoin, Choice: voting.ChoiceFor, Weight: 800})
	assert.NoError(t, err)
	_, err = service.CastVote(ctx, session.ID, voting.Vote{VoterID: "carol", House: voting.HouseOpenSource, Choice: voting.ChoiceAgainst, Weight: 50})
	assert.NoError(t, err)
	finalized, err := service.Finalize(ctx, session.ID)
	assert.NoError(t, err)
	assert.Equal(t, voting.SessionReconciliation, finalized.Status)
	return finalized
}

func TestManager_GenerateConflictSummary(t *testing.T) {
	votingService := svoting.New(svoting.DefaultConfig())
	manager := reconcile.New(testConfig(), votingService)
	session := conflictedSession(t, votingService)

	summary, err := manager.GenerateConflictSummary(session)
	assert.NoError(t, err)
	assert.Contains(t, summary.Causes, voting.CauseOpposingOutcomes)
	assert.NotContains(t, summary.Causes, voting.CauseQuorumFailure)
	assert.InDelta(t, 30, summary.ParticipationGap, 0.001)
	assert.True(t, summary.Moc.Passed)
	assert.False(t, summary.Oss.Passed)
}

func TestManager_GenerateRecommendation(t *testing.T) {
	type testCase struct {
		name    string
		summary voting.ConflictSummary
		expect  voting.Recommendation
	}

	tests := []testCase{{
		name: "participation edge favors the engaged house",
		summary: voting.ConflictSummary{
			Moc:              voting.HousePosition{House: voting.HouseMossCoin, Passed: true, QuorumReached: true, ParticipationRate: 80},
			Oss:              voting.HousePosition{House: voting.HouseOpenSource, Passed: false, QuorumReached: true, ParticipationRate: 50},
			ParticipationGap: 30,
		},
		expect: voting.RecommendFavorMoc,
	}, {
		name: "quorum asymmetry favors the quorate house",
		summary: voting.ConflictSummary{
			Moc:              voting.HousePosition{House: voting.HouseMossCoin, Passed: false, QuorumReached: false, ParticipationRate: 10},
			Oss:              voting.HousePosition{House: voting.HouseOpenSource, Passed: true, QuorumReached: true, ParticipationRate: 60},
			ParticipationGap: 50,
		},
		expect: voting.RecommendFavorOss,
	}, {
		name: "comparable engagement suggests compromise",
		summary: voting.ConflictSummary{
			Moc:              voting.HousePosition{House: voting.HouseMossCoin, Passed: true, QuorumReached: true, ParticipationRate: 55},
			Oss:              voting.HousePosition{House: voting.HouseOpenSource, Passed: false, QuorumReached: true, ParticipationRate: 50},
			ParticipationGap: 5,
		},
		expect: voting.RecommendCompromise,
	}, {
		name: "two failed verdicts reject both",
		summary: voting.ConflictSummary{
			Moc:              voting.HousePosition{House: voting.HouseMossCoin, Passed: false, QuorumReached: true, ParticipationRate: 60},
			Oss:              voting.HousePosition{House: voting.HouseOpenSource, Passed: false, QuorumReached: true, ParticipationRate: 40},
			ParticipationGap: 20,
		},
		expect: voting.RecommendRejectBoth,
	}}

	manager := reconcile.New(testConfig(), svoting.New(svoting.DefaultConfig()))
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			analysis := manager.GenerateRecommendation(&tc.summary)
			assert.Equal(t, tc.expect, analysis.Recommendation)
			assert.Greater(t, analysis.Confidence, 0.0)
			assert.NotEmpty(t, analysis.Rationale)
		})
	}
}

func TestManager_TriggerReconciliation(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	votingService := svoting.New(svoting.DefaultConfig())
	manager := reconcile.New(testConfig(), votingService,
		reconcile.WithClock(func() time.Time { return now }))
	session := conflictedSession(t, votingService)
	ctx := context.Background()

	memo, err := manager.TriggerReconciliation(ctx, session.ID)
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(memo.DocumentID, "RC-20260310-"), memo.DocumentID)
	assert.Equal(t, voting.MemoAwaitingDirector3, memo.Status)
	assert.Equal(t, voting.RecommendFavorMoc, memo.Analysis.Recommendation)
	assert.Equal(t, now.Add(72*time.Hour), memo.ExpiresAt)

	// One memo per session.
	_, err = manager.TriggerReconciliation(ctx, session.ID)
	assert.ErrorIs(t, err, types.ErrDuplicate)
}

func TestManager_TriggerReconciliationConcurrent(t *testing.T) {
	votingService := svoting.New(svoting.DefaultConfig())
	manager := reconcile.New(testConfig(), votingService)
	session := conflictedSession(t, votingService)
	ctx := context.Background()

	var wg sync.WaitGroup
	var created int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := manager.TriggerReconciliation(ctx, session.ID); err == nil {
				atomic.AddInt32(&created, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), created)
}

func TestManager_RevoteAllowsFreshReconciliation(t *testing.T) {
	votingService := svoting.New(svoting.DefaultConfig())
	manager := reconcile.New(testConfig(), votingService)
	session := conflictedSession(t, votingService)
	ctx := context.Background()
	memo, err := manager.TriggerReconciliation(ctx, session.ID)
	assert.NoError(t, err)

	_, err = manager.SubmitDirector3Decision(ctx, memo.DocumentID, voting.Director3Decision{
		DeciderID: "director-3",
		Effect:    voting.EffectRevote,
	})
	assert.NoError(t, err)

	current, err := votingService.Get(ctx, session.ID)
	assert.NoError(t, err)
	assert.Equal(t, voting.SessionRejected, current.Status)

	// The replacement session diverges again and opens a memo of its own.
	replacement := conflictedSession(t, votingService)
	second, err := manager.TriggerReconciliation(ctx, replacement.ID)
	assert.NoError(t, err)
	assert.NotEqual(t, memo.DocumentID, second.DocumentID)
	assert.Equal(t, replacement.ID, second.SessionID)
}

func TestManager_MemoIDSequence(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	votingService := svoting.New(svoting.DefaultConfig())
	manager := reconcile.New(testConfig(), votingService,
		reconcile.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	first := conflictedSession(t, votingService)
	second := conflictedSession(t, votingService)

	memoOne, err := manager.TriggerReconciliation(ctx, first.ID)
	assert.NoError(t, err)
	memoTwo, err := manager.TriggerReconciliation(ctx, second.ID)
	assert.NoError(t, err)
	assert.Equal(t, "RC-20260310-001", memoOne.DocumentID)
	assert.Equal(t, "RC-20260310-002", memoTwo.DocumentID)
}

func TestManager_SubmitDirector3Decision(t *testing.T) {
	type testCase struct {
		name          string
		effect        voting.Director3Effect
		conditions    []string
		expectSession voting.SessionStatus
	}

	tests := []testCase{{
		name:          "override to the MossCoin verdict passes",
		effect:        voting.EffectOverrideMoc,
		expectSession: voting.SessionPassed,
	}, {
		name:          "override to the Open Source verdict rejects",
		effect:        voting.EffectOverrideOss,
		expectSession: voting.SessionRejected,
	}, {
		name:          "revote rejects so a fresh session carries the new vote",
		effect:        voting.EffectRevote,
		expectSession: voting.SessionRejected,
	}, {
		name:          "veto rejects",
		effect:        voting.EffectVeto,
		expectSession: voting.SessionRejected,
	}, {
		name:          "approve with conditions passes",
		effect:        voting.EffectApproveWithConditions,
		conditions:    []string{"cap the budget at 10k"},
		expectSession: voting.SessionPassed,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			votingService := svoting.New(svoting.DefaultConfig())
			manager := reconcile.New(testConfig(), votingService)
			session := conflictedSession(t, votingService)
			ctx := context.Background()
			memo, err := manager.TriggerReconciliation(ctx, session.ID)
			assert.NoError(t, err)

			resolved, err := manager.SubmitDirector3Decision(ctx, memo.DocumentID, voting.Director3Decision{
				DeciderID:  "director-3",
				Effect:     tc.effect,
				Conditions: tc.conditions,
			})
			assert.NoError(t, err)
			assert.Equal(t, voting.MemoResolved, resolved.Status)
			assert.NotNil(t, resolved.Decision)

			current, err := votingService.Get(ctx, session.ID)
			assert.NoError(t, err)
			assert.Equal(t, tc.expectSession, current.Status)
			if len(tc.conditions) > 0 {
				assert.Equal(t, tc.conditions, current.Conditions)
			}

			// Resolved memos accept no further decisions.
			_, err = manager.SubmitDirector3Decision(ctx, memo.DocumentID, voting.Director3Decision{
				DeciderID: "director-3",
				Effect:    voting.EffectVeto,
			})
			assert.ErrorIs(t, err, types.ErrInvalidTransition)
		})
	}
}

func TestManager_SubmitDirector3DecisionAuthorization(t *testing.T) {
	votingService := svoting.New(svoting.DefaultConfig())
	manager := reconcile.New(testConfig(), votingService)
	session := conflictedSession(t, votingService)
	ctx := context.Background()
	memo, err := manager.TriggerReconciliation(ctx, session.ID)
	assert.NoError(t, err)

	_, err = manager.SubmitDirector3Decision(ctx, memo.DocumentID, voting.Director3Decision{
		DeciderID: "impostor",
		Effect:    voting.EffectVeto,
	})
	assert.ErrorIs(t, err, types.ErrAuthorization)
}

func TestManager_ExpireOldMemos(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := now
	votingService := svoting.New(svoting.DefaultConfig())
	manager := reconcile.New(testConfig(), votingService,
		reconcile.WithClock(func() time.Time { return clock }))
	session := conflictedSession(t, votingService)
	ctx := context.Background()
	memo, err := manager.TriggerReconciliation(ctx, session.ID)
	assert.NoError(t, err)

	// Within the deadline nothing expires.
	expired, err := manager.ExpireOldMemos(ctx)
	assert.NoError(t, err)
	assert.Empty(t, expired)

	clock = now.Add(73 * time.Hour)
	expired, err = manager.ExpireOldMemos(ctx)
	assert.NoError(t, err)
	assert.Len(t, expired, 1)
	assert.Equal(t, voting.MemoExpired, expired[0].Status)

	currentMemo, err := manager.Get(ctx, memo.DocumentID)
	assert.NoError(t, err)
	assert.Equal(t, voting.MemoExpired, currentMemo.Status)

	currentSession, err := votingService.Get(ctx, session.ID)
	assert.NoError(t, err)
	assert.Equal(t, voting.SessionRejected, currentSession.Status)
}

func TestConfig_Validate(t *testing.T) {
	config := reconcile.DefaultConfig()
	assert.Error(t, config.Validate(), "empty allow-list must not validate")

	config.Director3AllowList = []string{"director-3"}
	assert.NoError(t, config.Validate())
}
