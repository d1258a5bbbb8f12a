package approval

import (
	"context"
	"time"

	"github.com/mossdao/gavel/model/review"
	"github.com/mossdao/gavel/service/dao"
)

// DecisionFunc decides what to do with a pending review.
// Return (outcome, true) to complete the review with that outcome,
// or (_, false) to leave it pending.
type DecisionFunc func(r *review.PendingReview) (outcome string, decide bool)

// AutoDecider starts a goroutine that polls pending reviews and applies fn to
// each. It returns stop() – call it (or cancel ctx) to exit. Intended for
// tests and embedders that drive reviews programmatically.
func AutoDecider(ctx context.Context,
	router *Router,
	fn DecisionFunc,
	interval time.Duration) (stop func()) {

	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				pending, _ := router.PendingReviews(ctx,
					dao.NewParameter("Status", string(review.StatusPending)))
				for _, r := range pending {
					outcome, decide := fn(r)
					if !decide {
						continue
					}
					_, _ = router.CompleteReview(ctx, r.ID, outcome)
				}
			}
		}
	}()
	return func() { close(done) }
}

// AutoApprove completes every pending review with an approved outcome.
func AutoApprove(ctx context.Context,
	router *Router,
	interval time.Duration) func() {
	return AutoDecider(ctx, router,
		func(*review.PendingReview) (string, bool) { return "approved", true }, interval)
}

// AutoReject completes every pending review with the given rejection outcome.
func AutoReject(ctx context.Context,
	router *Router,
	outcome string,
	interval time.Duration) func() {
	return AutoDecider(ctx, router,
		func(*review.PendingReview) (string, bool) { return outcome, true }, interval)
}
