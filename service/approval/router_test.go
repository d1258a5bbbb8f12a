package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mossdao/gavel/model/action"
	"github.com/mossdao/gavel/model/review"
	"github.com/mossdao/gavel/model/types"
	"github.com/mossdao/gavel/service/approval"
	"github.com/mossdao/gavel/service/messaging/memory"
)

func seedReviewers(t *testing.T, router *approval.Router) {
	t.Helper()
	ctx := context.Background()
	reviewers := []*review.Reviewer{
		{ID: "director-3", Kind: action.ReviewerHuman, Director3: true, Roles: []action.ApproverType{action.ApproverDirector3}, Available: true},
		{ID: "human-1", Kind: action.ReviewerHuman, Available: true},
		{ID: "human-2", Kind: action.ReviewerHuman, Available: true},
		{ID: "human-3", Kind: action.ReviewerHuman, Available: true},
		{ID: "human-4", Kind: action.ReviewerHuman, Available: true},
		{ID: "agent-1", Kind: action.ReviewerAgent, Available: true},
		{ID: "human-away", Kind: action.ReviewerHuman, Available: false},
	}
	for _, reviewer := range reviewers {
		assert.NoError(t, router.RegisterReviewer(ctx, reviewer))
	}
}

func lockedAction(actionType action.Type, level action.RiskLevel, timeoutAt time.Time) *action.LockedAction {
	return &action.LockedAction{
		ID:        "action-1",
		Type:      actionType,
		RiskLevel: level,
		Status:    action.StatusLocked,
		TimeoutAt: timeoutAt,
	}
}

func TestRouter_Route(t *testing.T) {
	type testCase struct {
		name            string
		level           action.RiskLevel
		expectPriority  review.Priority
		expectReviewers int
		expectStatus    review.Status
		expectPrefix    string
	}

	tests := []testCase{{
		name:            "high risk routes urgently to the director",
		level:           action.RiskHigh,
		expectPriority:  review.PriorityUrgent,
		expectReviewers: 1,
		expectStatus:    review.StatusPending,
		expectPrefix:    "[URGENT] ",
	}, {
		name:            "mid risk routes to three available humans",
		level:           action.RiskMid,
		expectPriority:  review.PriorityNormal,
		expectReviewers: 3,
		expectStatus:    review.StatusPending,
	}, {
		name:           "low risk completes without reviewers",
		level:          action.RiskLow,
		expectPriority: review.PriorityLow,
		expectStatus:   review.StatusCompleted,
	}}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			queue := memory.NewQueue[review.Notification](memory.DefaultConfig())
			router := approval.New(approval.DefaultConfig(),
				approval.WithClock(func() time.Time { return now }),
				approval.WithNotificationQueue(queue))
			seedReviewers(t, router)

			locked := lockedAction(action.TypeFundTransfer, tc.level, now.Add(48*time.Hour))
			pending, err := router.Route(context.Background(), locked, "Transfer budget", "quarterly ops budget")
			assert.NoError(t, err)
			assert.Equal(t, tc.expectPriority, pending.Priority)
			assert.Len(t, pending.ReviewerIDs, tc.expectReviewers)
			assert.Equal(t, tc.expectStatus, pending.Status)
			assert.Equal(t, tc.expectPrefix+"Transfer budget", pending.Title)
			assert.Equal(t, locked.TimeoutAt, pending.DueAt)

			// One created notification per assigned reviewer.
			assert.Equal(t, tc.expectReviewers, queue.Size())
		})
	}
}

func TestRouter_RouteMidSkipsUnavailableAndAgents(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	router := approval.New(approval.DefaultConfig(),
		approval.WithClock(func() time.Time { return now }))
	seedReviewers(t, router)

	locked := lockedAction(action.TypeCodeMerge, action.RiskMid, now.Add(72*time.Hour))
	pending, err := router.Route(context.Background(), locked, "Merge release branch", "")
	assert.NoError(t, err)
	assert.NotContains(t, pending.ReviewerIDs, "agent-1")
	assert.NotContains(t, pending.ReviewerIDs, "human-away")
}

func TestRouter_RouteToDirector3WithoutDirectors(t *testing.T) {
	router := approval.New(approval.DefaultConfig())
	locked := lockedAction(action.TypeFundTransfer, action.RiskHigh, time.Now().Add(time.Hour))
	_, err := router.RouteToDirector3(context.Background(), locked, "Transfer", "")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRouter_Escalate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	queue := memory.NewQueue[review.Notification](memory.DefaultConfig())
	router := approval.New(approval.DefaultConfig(),
		approval.WithClock(func() time.Time { return now }),
		approval.WithNotificationQueue(queue))
	seedReviewers(t, router)
	ctx := context.Background()

	locked := lockedAction(action.TypeCodeMerge, action.RiskMid, now.Add(72*time.Hour))
	pending, err := router.Route(ctx, locked, "Merge release branch", "")
	assert.NoError(t, err)

	escalated, err := router.Escalate(ctx, pending.ID, "reviewers unresponsive")
	assert.NoError(t, err)
	assert.Equal(t, review.PriorityUrgent, escalated.Priority)
	assert.Equal(t, action.RiskHigh, escalated.RiskLevel)
	assert.Contains(t, escalated.ReviewerIDs, "director-3")
}

func TestRouter_CompleteReview(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	router := approval.New(approval.DefaultConfig(),
		approval.WithClock(func() time.Time { return now }))
	seedReviewers(t, router)
	ctx := context.Background()

	locked := lockedAction(action.TypeCodeMerge, action.RiskMid, now.Add(72*time.Hour))
	pending, err := router.Route(ctx, locked, "Merge release branch", "")
	assert.NoError(t, err)

	completed, err := router.CompleteReview(ctx, pending.ID, "approved")
	assert.NoError(t, err)
	assert.Equal(t, review.StatusCompleted, completed.Status)
	assert.Equal(t, "approved", completed.Outcome)
	assert.NotNil(t, completed.CompletedAt)

	_, err = router.CompleteReview(ctx, pending.ID, "approved twice")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
}

func TestRouter_SendReminders(t *testing.T) {
	type testCase struct {
		name         string
		dueIn        time.Duration
		expectRemind bool
	}

	tests := []testCase{{
		name:         "due within the window is reminded",
		dueIn:        12 * time.Hour,
		expectRemind: true,
	}, {
		name:         "due beyond the window is skipped",
		dueIn:        48 * time.Hour,
		expectRemind: false,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
			queue := memory.NewQueue[review.Notification](memory.DefaultConfig())
			router := approval.New(approval.DefaultConfig(),
				approval.WithClock(func() time.Time { return now }),
				approval.WithNotificationQueue(queue))
			seedReviewers(t, router)
			ctx := context.Background()

			locked := lockedAction(action.TypeCodeMerge, action.RiskMid, now.Add(tc.dueIn))
			_, err := router.Route(ctx, locked, "Merge release branch", "")
			assert.NoError(t, err)

			reminded, err := router.SendReminders(ctx)
			assert.NoError(t, err)
			if !tc.expectRemind {
				assert.Empty(t, reminded)
				return
			}
			assert.Len(t, reminded, 1)
			assert.NotNil(t, reminded[0].RemindedAt)

			// A second sweep does not remind again.
			again, err := router.SendReminders(ctx)
			assert.NoError(t, err)
			assert.Empty(t, again)
		})
	}
}
