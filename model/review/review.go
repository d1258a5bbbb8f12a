package review

import (
	"time"

	"github.com/mossdao/gavel/model/action"
)

// Reviewer is a registry entry describing who can review locked actions.
type Reviewer struct {
	ID        string                `json:"id"`
	Name      string                `json:"name,omitempty"`
	Kind      action.ReviewerKind   `json:"kind"`
	Roles     []action.ApproverType `json:"roles,omitempty"`
	Director3 bool                  `json:"director3,omitempty"`
	Available bool                  `json:"available"`
}

// HasRole reports whether the reviewer carries the given role.
func (r *Reviewer) HasRole(role action.ApproverType) bool {
	for _, candidate := range r.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// Priority orders pending reviews; Urgent is forced on Director-3 escalation.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// Status is the pending review lifecycle; the lifecycle ends at Complete.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// PendingReview routes a locked action to one or more reviewers.
type PendingReview struct {
	ID          string           `json:"id"`
	ActionID    string           `json:"actionId"`
	Title       string           `json:"title"`
	Summary     string           `json:"summary,omitempty"`
	RiskLevel   action.RiskLevel `json:"riskLevel"`
	ReviewerIDs []string         `json:"reviewerIds,omitempty"`
	Priority    Priority         `json:"priority"`
	DueAt       time.Time        `json:"dueAt"`
	RemindedAt  *time.Time       `json:"remindedAt,omitempty"`
	Status      Status           `json:"status"`
	Outcome     string           `json:"outcome,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// Notification kinds published to the review notification queue.
const (
	NotifyReviewCreated   = "review.created"
	NotifyReviewReminder  = "review.reminder"
	NotifyReviewEscalated = "review.escalated"
)

// Notification is a message for the (external) transport layer to deliver to
// a reviewer.
type Notification struct {
	Kind       string    `json:"kind"`
	ReviewID   string    `json:"reviewId"`
	ReviewerID string    `json:"reviewerId"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary,omitempty"`
	DueAt      time.Time `json:"dueAt"`
	CreatedAt  time.Time `json:"createdAt"`
}
