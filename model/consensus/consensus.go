package consensus

import (
	"time"

	"github.com/mossdao/gavel/model/action"
)

// Status is the passive consensus item lifecycle. PENDING is the only
// non-terminal state; the four terminal states are mutually exclusive.
type Status string

const (
	StatusPending            Status = "PENDING"
	StatusApprovedByTimeout  Status = "APPROVED_BY_TIMEOUT"
	StatusExplicitlyApproved Status = "EXPLICITLY_APPROVED"
	StatusVetoed             Status = "VETOED"
	StatusEscalated          Status = "ESCALATED"
)

// IsTerminal reports whether s ends the item lifecycle.
func (s Status) IsTerminal() bool { return s != StatusPending }

// Signoff records an explicit veto, escalation or approval on an item.
type Signoff struct {
	ActorID string    `json:"actorId"`
	Human   bool      `json:"human"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// Item is a document under opt-out (passive consensus) review: unless vetoed
// or escalated before ReviewEndsAt it is approved automatically. HIGH-risk
// items are never auto-approved; the expiry sweep escalates them instead.
type Item struct {
	ID                string           `json:"id"`
	DocumentID        string           `json:"documentId"`
	DocumentType      string           `json:"documentType,omitempty"`
	RiskLevel         action.RiskLevel `json:"riskLevel"`
	Status            Status           `json:"status"`
	ReviewEndsAt      time.Time        `json:"reviewEndsAt"`
	Vetoes            []Signoff        `json:"vetoes,omitempty"`
	Escalations       []Signoff        `json:"escalations,omitempty"`
	Approvals         []Signoff        `json:"approvals,omitempty"`
	UnreviewedByHuman bool             `json:"unreviewedByHuman"`
	CreatedAt         time.Time        `json:"createdAt"`
	ResolvedAt        *time.Time       `json:"resolvedAt,omitempty"`
}

// Expired reports whether the review window elapsed while still pending.
func (i *Item) Expired(now time.Time) bool {
	return i.Status == StatusPending && now.After(i.ReviewEndsAt)
}
