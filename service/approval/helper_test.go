package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mossdao/gavel/model/action"
	"github.com/mossdao/gavel/model/review"
	"github.com/mossdao/gavel/service/approval"
)

func TestAutoApprove(t *testing.T) {
	ctx := context.Background()
	router := approval.New(approval.DefaultConfig())
	seedReviewers(t, router)

	pending, err := router.Route(ctx, lockedAction(action.TypeFundTransfer, action.RiskHigh, time.Time{}),
		"Quarterly grant payout", "")
	assert.NoError(t, err)
	assert.Equal(t, review.StatusPending, pending.Status)

	stop := approval.AutoApprove(ctx, router, 5*time.Millisecond)
	defer stop()

	assert.Eventually(t, func() bool {
		completed, err := router.Review(ctx, pending.ID)
		return err == nil && completed.Status == review.StatusCompleted
	}, time.Second, 5*time.Millisecond)

	completed, err := router.Review(ctx, pending.ID)
	assert.NoError(t, err)
	assert.Equal(t, "approved", completed.Outcome)
}

func TestAutoDecider_Selective(t *testing.T) {
	ctx := context.Background()
	router := approval.New(approval.DefaultConfig())
	seedReviewers(t, router)

	high, err := router.Route(ctx, lockedAction(action.TypeFundTransfer, action.RiskHigh, time.Time{}),
		"Treasury move", "")
	assert.NoError(t, err)
	mid := &action.LockedAction{ID: "action-2", Type: action.TypePolicyUpdate,
		RiskLevel: action.RiskMid, Status: action.StatusLocked}
	midReview, err := router.Route(ctx, mid, "Policy tweak", "")
	assert.NoError(t, err)

	// Reject only MID reviews, leave HIGH ones for a human.
	stop := approval.AutoDecider(ctx, router,
		func(r *review.PendingReview) (string, bool) {
			if r.RiskLevel == action.RiskMid {
				return "rejected: out of budget cycle", true
			}
			return "", false
		}, 5*time.Millisecond)
	defer stop()

	assert.Eventually(t, func() bool {
		completed, err := router.Review(ctx, midReview.ID)
		return err == nil && completed.Status == review.StatusCompleted
	}, time.Second, 5*time.Millisecond)

	untouched, err := router.Review(ctx, high.ID)
	assert.NoError(t, err)
	assert.Equal(t, review.StatusPending, untouched.Status)
}
