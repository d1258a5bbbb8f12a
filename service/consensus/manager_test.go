package consensus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mossdao/gavel/model/action"
	"github.com/mossdao/gavel/model/consensus"
	"github.com/mossdao/gavel/model/types"
	cmanager "github.com/mossdao/gavel/service/consensus"
)

func TestManager_Create(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	manager := cmanager.New(cmanager.DefaultConfig(),
		cmanager.WithClock(func() time.Time { return now }))

	item, err := manager.Create(context.Background(), "doc-1", "budget", action.RiskMid)
	assert.NoError(t, err)
	assert.Equal(t, consensus.StatusPending, item.Status)
	assert.True(t, item.UnreviewedByHuman)
	assert.Equal(t, now.Add(72*time.Hour), item.ReviewEndsAt)
}

func TestManager_ExplicitResolutions(t *testing.T) {
	type testCase struct {
		name         string
		resolve      func(m *cmanager.Manager, ctx context.Context, id string, signoff consensus.Signoff) (*consensus.Item, error)
		signoff      consensus.Signoff
		expectStatus consensus.Status
		expectHuman  bool
	}

	tests := []testCase{{
		name: "human veto terminates and clears the unreviewed flag",
		resolve: func(m *cmanager.Manager, ctx context.Context, id string, signoff consensus.Signoff) (*consensus.Item, error) {
			return m.Veto(ctx, id, signoff)
		},
		signoff:      consensus.Signoff{ActorID: "reviewer-1", Human: true, Reason: "conflicts with treasury policy"},
		expectStatus: consensus.StatusVetoed,
		expectHuman:  false,
	}, {
		name: "agent escalation keeps the unreviewed flag",
		resolve: func(m *cmanager.Manager, ctx context.Context, id string, signoff consensus.Signoff) (*consensus.Item, error) {
			return m.Escalate(ctx, id, signoff)
		},
		signoff:      consensus.Signoff{ActorID: "agent-1", Human: false, Reason: "large spend detected"},
		expectStatus: consensus.StatusEscalated,
		expectHuman:  true,
	}, {
		name: "human approval ends the window early",
		resolve: func(m *cmanager.Manager, ctx context.Context, id string, signoff consensus.Signoff) (*consensus.Item, error) {
			return m.Approve(ctx, id, signoff)
		},
		signoff:      consensus.Signoff{ActorID: "reviewer-2", Human: true},
		expectStatus: consensus.StatusExplicitlyApproved,
		expectHuman:  false,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
			manager := cmanager.New(cmanager.DefaultConfig(),
				cmanager.WithClock(func() time.Time { return now }))
			ctx := context.Background()
			item, err := manager.Create(ctx, "doc-1", "budget", action.RiskMid)
			assert.NoError(t, err)

			resolved, err := tc.resolve(manager, ctx, item.ID, tc.signoff)
			assert.NoError(t, err)
			assert.Equal(t, tc.expectStatus, resolved.Status)
			assert.Equal(t, tc.expectHuman, resolved.UnreviewedByHuman)
			assert.NotNil(t, resolved.ResolvedAt)

			// Terminal items accept no further signoffs.
			_, err = manager.Veto(ctx, item.ID, consensus.Signoff{ActorID: "late"})
			assert.ErrorIs(t, err, types.ErrInvalidTransition)
		})
	}
}

func TestManager_ProcessExpiredItems(t *testing.T) {
	type testCase struct {
		name         string
		level        action.RiskLevel
		advance      time.Duration
		expectStatus consensus.Status
		expectSwept  bool
	}

	tests := []testCase{{
		name:         "mid risk approves by timeout",
		level:        action.RiskMid,
		advance:      73 * time.Hour,
		expectStatus: consensus.StatusApprovedByTimeout,
		expectSwept:  true,
	}, {
		name:         "high risk escalates instead of approving",
		level:        action.RiskHigh,
		advance:      169 * time.Hour,
		expectStatus: consensus.StatusEscalated,
		expectSwept:  true,
	}, {
		name:         "high risk within the window is untouched",
		level:        action.RiskHigh,
		advance:      2 * time.Hour,
		expectStatus: consensus.StatusPending,
		expectSwept:  false,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
			clock := now
			manager := cmanager.New(cmanager.DefaultConfig(),
				cmanager.WithClock(func() time.Time { return clock }))
			ctx := context.Background()
			item, err := manager.Create(ctx, "doc-1", "budget", tc.level)
			assert.NoError(t, err)

			clock = now.Add(tc.advance)
			swept, err := manager.ProcessExpiredItems(ctx)
			assert.NoError(t, err)
			if tc.expectSwept {
				assert.Len(t, swept, 1)
			} else {
				assert.Empty(t, swept)
			}
			current, err := manager.Get(ctx, item.ID)
			assert.NoError(t, err)
			assert.Equal(t, tc.expectStatus, current.Status)
			if tc.expectStatus == consensus.StatusEscalated {
				assert.NotEmpty(t, current.Escalations)
				assert.Equal(t, "system", current.Escalations[0].ActorID)
			}
		})
	}
}

func TestManager_Labels(t *testing.T) {
	manager := cmanager.New(cmanager.DefaultConfig())
	item := &consensus.Item{Status: consensus.StatusApprovedByTimeout, UnreviewedByHuman: true}
	assert.Equal(t, []string{cmanager.UnreviewedLabel}, manager.Labels(item))

	// Still pending, no human has looked at it yet.
	pending := &consensus.Item{Status: consensus.StatusPending, UnreviewedByHuman: true}
	assert.Equal(t, []string{cmanager.UnreviewedLabel}, manager.Labels(pending))

	item.UnreviewedByHuman = false
	assert.Empty(t, manager.Labels(item))
}
