// Package approval routes locked actions to reviewers and tracks the
// resulting pending reviews.
package approval

import (
	"context"
	"log"
	"time"

	"github.com/mossdao/gavel/internal/clock"
	"github.com/mossdao/gavel/internal/idgen"
	"github.com/mossdao/gavel/model/action"
	"github.com/mossdao/gavel/model/review"
	"github.com/mossdao/gavel/model/types"
	"github.com/mossdao/gavel/service/dao"
	"github.com/mossdao/gavel/service/dao/criteria"
	"github.com/mossdao/gavel/service/dao/store"
	"github.com/mossdao/gavel/service/messaging"
)

const urgentPrefix = "[URGENT] "

// Router assigns reviewers to locked actions based on risk level.
type Router struct {
	config        Config
	reviewers     dao.Service[string, review.Reviewer]
	reviews       dao.Service[string, review.PendingReview]
	notifications messaging.Queue[review.Notification]
	now           func() time.Time
}

// Option configures the router.
type Option func(*Router)

// WithReviewerStore overrides the reviewer registry store.
func WithReviewerStore(reviewers dao.Service[string, review.Reviewer]) Option {
	return func(r *Router) { r.reviewers = reviewers }
}

// WithReviewStore overrides the pending review store.
func WithReviewStore(reviews dao.Service[string, review.PendingReview]) Option {
	return func(r *Router) { r.reviews = reviews }
}

// WithNotificationQueue attaches the reviewer notification queue.
func WithNotificationQueue(queue messaging.Queue[review.Notification]) Option {
	return func(r *Router) { r.notifications = queue }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// New creates an approval router.
func New(config Config, options ...Option) *Router {
	ret := &Router{
		config: config,
		now:    clock.Now,
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.reviewers == nil {
		ret.reviewers = store.New[string, review.Reviewer](func(r *review.Reviewer) string { return r.ID })
	}
	if ret.reviews == nil {
		ret.reviews = store.New[string, review.PendingReview](
			func(r *review.PendingReview) string { return r.ID },
			store.WithMatcher[string, review.PendingReview](matchReview))
	}
	return ret
}

func matchReview(r *review.PendingReview, parameters []*dao.Parameter) bool {
	return criteria.MatchStatus(string(r.Status), parameters) &&
		criteria.MatchTime("DueAt", r.DueAt, parameters)
}

// RegisterReviewer adds or updates a reviewer registry entry.
func (r *Router) RegisterReviewer(ctx context.Context, reviewer *review.Reviewer) error {
	return r.reviewers.Save(ctx, reviewer)
}

// Reviewer loads a registry entry.
func (r *Router) Reviewer(ctx context.Context, id string) (*review.Reviewer, error) {
	ret, err := r.reviewers.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, types.NewNotFoundError("reviewer", id)
	}
	return ret, nil
}

// Review loads a pending review.
func (r *Router) Review(ctx context.Context, id string) (*review.PendingReview, error) {
	ret, err := r.reviews.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, types.NewNotFoundError("review", id)
	}
	return ret, nil
}

// Route creates a pending review for the locked action. High risk actions go
// to the Director-3 reviewers, mid risk to the first available human
// reviewers, and low risk completes immediately without reviewers.
func (r *Router) Route(ctx context.Context, locked *action.LockedAction, title, summary string) (*review.PendingReview, error) {
	switch locked.RiskLevel {
	case action.RiskHigh:
		return r.RouteToDirector3(ctx, locked, title, summary)
	case action.RiskLow:
		return r.autoComplete(ctx, locked, title, summary)
	}
	reviewerIDs, err := r.selectHumans(ctx, r.config.MidReviewerCount)
	if err != nil {
		return nil, err
	}
	return r.create(ctx, locked, title, summary, reviewerIDs, review.PriorityNormal)
}

// RouteToDirector3 creates an urgent review assigned to every Director-3
// reviewer in the registry.
func (r *Router) RouteToDirector3(ctx context.Context, locked *action.LockedAction, title, summary string) (*review.PendingReview, error) {
	directors, err := r.directorIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(directors) == 0 {
		return nil, types.NewNotFoundError("reviewer", string(action.ApproverDirector3))
	}
	return r.create(ctx, locked, urgentPrefix+title, summary, directors, review.PriorityUrgent)
}

func (r *Router) autoComplete(ctx context.Context, locked *action.LockedAction, title, summary string) (*review.PendingReview, error) {
	now := r.now()
	ret := &review.PendingReview{
		ID:          idgen.New(),
		ActionID:    locked.ID,
		Title:       title,
		Summary:     summary,
		RiskLevel:   locked.RiskLevel,
		Priority:    review.PriorityLow,
		DueAt:       r.dueAt(locked, now),
		Status:      review.StatusCompleted,
		Outcome:     "auto",
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if err := r.reviews.Save(ctx, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func (r *Router) create(ctx context.Context, locked *action.LockedAction, title, summary string, reviewerIDs []string, priority review.Priority) (*review.PendingReview, error) {
	now := r.now()
	ret := &review.PendingReview{
		ID:          idgen.New(),
		ActionID:    locked.ID,
		Title:       title,
		Summary:     summary,
		RiskLevel:   locked.RiskLevel,
		ReviewerIDs: reviewerIDs,
		Priority:    priority,
		DueAt:       r.dueAt(locked, now),
		Status:      review.StatusPending,
		CreatedAt:   now,
	}
	if err := r.reviews.Save(ctx, ret); err != nil {
		return nil, err
	}
	r.notify(ctx, ret, review.NotifyReviewCreated)
	return ret, nil
}

// dueAt prefers the lock deadline so review and lock expire together.
func (r *Router) dueAt(locked *action.LockedAction, now time.Time) time.Time {
	if !locked.TimeoutAt.IsZero() {
		return locked.TimeoutAt
	}
	return now.Add(time.Duration(r.config.dueHours(locked.RiskLevel)) * time.Hour)
}

func (r *Router) selectHumans(ctx context.Context, count int) ([]string, error) {
	candidates, err := r.reviewers.List(ctx)
	if err != nil {
		return nil, err
	}
	var ret []string
	for _, candidate := range candidates {
		if !candidate.Available || candidate.Kind != action.ReviewerHuman {
			continue
		}
		ret = append(ret, candidate.ID)
		if len(ret) == count {
			break
		}
	}
	return ret, nil
}

func (r *Router) directorIDs(ctx context.Context) ([]string, error) {
	candidates, err := r.reviewers.List(ctx)
	if err != nil {
		return nil, err
	}
	var ret []string
	for _, candidate := range candidates {
		if !candidate.Available {
			continue
		}
		if candidate.Director3 || candidate.HasRole(action.ApproverDirector3) {
			ret = append(ret, candidate.ID)
		}
	}
	return ret, nil
}

// Escalate raises the review to urgent priority, reassigns it to the
// Director-3 reviewers and notifies them.
func (r *Router) Escalate(ctx context.Context, reviewID, reason string) (*review.PendingReview, error) {
	directors, err := r.directorIDs(ctx)
	if err != nil {
		return nil, err
	}
	ret, err := r.reviews.Mutate(ctx, reviewID, func(pending *review.PendingReview) error {
		if pending.Status != review.StatusPending {
			return types.NewInvalidTransitionError("review", reviewID, string(pending.Status), "escalate")
		}
		pending.Priority = review.PriorityUrgent
		pending.RiskLevel = action.RiskHigh
		for _, director := range directors {
			if !contains(pending.ReviewerIDs, director) {
				pending.ReviewerIDs = append(pending.ReviewerIDs, director)
			}
		}
		pending.Summary = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.notify(ctx, ret, review.NotifyReviewEscalated)
	return ret, nil
}

// CompleteReview finalizes the review with an outcome.
func (r *Router) CompleteReview(ctx context.Context, reviewID, outcome string) (*review.PendingReview, error) {
	return r.reviews.Mutate(ctx, reviewID, func(pending *review.PendingReview) error {
		if pending.Status != review.StatusPending {
			return types.NewInvalidTransitionError("review", reviewID, string(pending.Status), "complete")
		}
		now := r.now()
		pending.Status = review.StatusCompleted
		pending.Outcome = outcome
		pending.CompletedAt = &now
		return nil
	})
}

// PendingReviews lists reviews matching the supplied parameters.
func (r *Router) PendingReviews(ctx context.Context, parameters ...*dao.Parameter) ([]*review.PendingReview, error) {
	return r.reviews.List(ctx, parameters...)
}

// SendReminders publishes a reminder for every pending review due within the
// reminder window. Each review is reminded at most once.
func (r *Router) SendReminders(ctx context.Context) ([]*review.PendingReview, error) {
	candidates, err := r.reviews.List(ctx, dao.NewParameter("Status", string(review.StatusPending)))
	if err != nil {
		return nil, err
	}
	now := r.now()
	var reminded []*review.PendingReview
	for _, candidate := range candidates {
		if candidate.RemindedAt != nil {
			continue
		}
		if candidate.DueAt.Sub(now) > r.config.ReminderWindow {
			continue
		}
		updated, err := r.reviews.Mutate(ctx, candidate.ID, func(pending *review.PendingReview) error {
			remindedAt := now
			pending.RemindedAt = &remindedAt
			return nil
		})
		if err != nil {
			return reminded, err
		}
		r.notify(ctx, updated, review.NotifyReviewReminder)
		reminded = append(reminded, updated)
	}
	return reminded, nil
}

func (r *Router) notify(ctx context.Context, pending *review.PendingReview, kind string) {
	if r.notifications == nil {
		return
	}
	for _, reviewerID := range pending.ReviewerIDs {
		notification := &review.Notification{
			Kind:       kind,
			ReviewID:   pending.ID,
			ReviewerID: reviewerID,
			Title:      pending.Title,
			Summary:    pending.Summary,
			DueAt:      pending.DueAt,
			CreatedAt:  r.now(),
		}
		if err := r.notifications.Publish(ctx, notification); err != nil {
			log.Printf("failed to publish %v notification for review %v: %v", kind, pending.ID, err)
		}
	}
}

func contains(items []string, item string) bool {
	for _, candidate := range items {
		if candidate == item {
			return true
		}
	}
	return false
}
