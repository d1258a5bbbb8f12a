package event

import (
	"time"

	"github.com/mossdao/gavel/internal/clock"
)

// Domain event names published by the engine managers and consumed by the
// (external) transport layer for client notification.
const (
	TypeLocked    = "locked"
	TypeUnlocked  = "unlocked"
	TypeApproved  = "approved"
	TypeRejected  = "rejected"
	TypeExecuted  = "executed"
	TypeEscalated = "escalated"

	TypeConsensusApproved  = "consensus:approved"
	TypeConsensusVetoed    = "consensus:vetoed"
	TypeConsensusEscalated = "consensus:escalated"

	TypeVotingFinalized = "voting:finalized"

	TypeReconciliationTriggered = "reconciliation:triggered"
	TypeDirector3Required       = "reconciliation:director3_required"
	TypeReconciliationResolved  = "reconciliation:resolved"

	TypeHighRiskUnlocked = "highrisk:unlocked"
	TypeHighRiskExecuted = "highrisk:executed"

	TypeTaskSucceeded = "task:succeeded"
	TypeTaskEscalated = "task:escalated"
	TypeTaskResolved  = "task:resolved"
)

// Context carries routing metadata alongside the typed payload.
type Context struct {
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId"`
	EventType  string `json:"eventType"`
	Actor      string `json:"actor,omitempty"`
}

// Event is a typed domain event envelope.
type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Data      T                      `json:"data"`
}

// NewEvent wraps data in an envelope stamped with the engine clock.
func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: clock.Now(),
		Metadata:  make(map[string]interface{}),
		Data:      data,
	}
}
