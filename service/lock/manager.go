// Package lock gates governance actions behind risk based approval locks.
package lock

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mossdao/gavel/internal/clock"
	"github.com/mossdao/gavel/internal/idgen"
	"github.com/mossdao/gavel/model/action"
	"github.com/mossdao/gavel/model/types"
	"github.com/mossdao/gavel/policy"
	"github.com/mossdao/gavel/service/audit"
	"github.com/mossdao/gavel/service/dao"
	"github.com/mossdao/gavel/service/dao/criteria"
	"github.com/mossdao/gavel/service/dao/store"
	"github.com/mossdao/gavel/service/event"
	"github.com/mossdao/gavel/service/executor"
	"github.com/mossdao/gavel/service/risk"
)

const entityKind = "action"

// UnlockStatus describes whether a locked action has collected every
// required approval.
type UnlockStatus struct {
	CanExecute bool                  `json:"canExecute"`
	Missing    []action.ApproverType `json:"missing"`
}

// Manager owns the lock lifecycle of governance actions.
type Manager struct {
	config     Config
	classifier *risk.Classifier
	actions    dao.Service[string, action.LockedAction]
	trail      *audit.Trail
	events     *event.Service
	now        func() time.Time
}

// Option configures the manager.
type Option func(*Manager)

// WithStore overrides the action store.
func WithStore(actions dao.Service[string, action.LockedAction]) Option {
	return func(m *Manager) { m.actions = actions }
}

// WithEventService attaches the event service for domain event publication.
func WithEventService(events *event.Service) Option {
	return func(m *Manager) { m.events = events }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a lock manager.
func New(config Config, classifier *risk.Classifier, trail *audit.Trail, options ...Option) *Manager {
	ret := &Manager{
		config:     config,
		classifier: classifier,
		trail:      trail,
		now:        clock.Now,
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.classifier == nil {
		ret.classifier = risk.New()
	}
	if ret.actions == nil {
		ret.actions = store.New[string, action.LockedAction](
			func(a *action.LockedAction) string { return a.ID },
			store.WithMatcher[string, action.LockedAction](matchAction))
	}
	return ret
}

func matchAction(a *action.LockedAction, parameters []*dao.Parameter) bool {
	return criteria.MatchStatus(string(a.Status), parameters) &&
		criteria.MatchTime("TimeoutAt", a.TimeoutAt, parameters) &&
		criteria.MatchTime("CreatedAt", a.CreatedAt, parameters)
}

// LockOption customizes a lock request.
type LockOption func(*lockRequest)

type lockRequest struct {
	documentID string
	penalty    action.Penalty
	payload    map[string]interface{}
}

// WithDocumentID associates the lock with a governed document.
func WithDocumentID(id string) LockOption {
	return func(r *lockRequest) { r.documentID = id }
}

// WithPenalty supplies the action penalty breakdown.
func WithPenalty(penalty action.Penalty) LockOption {
	return func(r *lockRequest) { r.penalty = penalty }
}

// WithPayload supplies the execution payload.
func WithPayload(payload map[string]interface{}) LockOption {
	return func(r *lockRequest) { r.payload = payload }
}

// Lock classifies the action, derives its approval requirements and persists
// it in LOCKED state. Actions the classifier does not flag still get locked
// when requested explicitly.
func (m *Manager) Lock(ctx context.Context, actionType action.Type, actor string, options ...LockOption) (*action.LockedAction, error) {
	request := &lockRequest{}
	for _, opt := range options {
		opt(request)
	}
	classification := m.classifier.Classify(actionType, request.penalty)
	level := m.classifier.EffectiveRiskLevel(actionType, request.penalty)
	tier := m.config.tier(level)
	now := m.now()
	locked := &action.LockedAction{
		ID:           idgen.New(),
		DocumentID:   request.documentID,
		Type:         actionType,
		RiskLevel:    level,
		TotalPenalty: classification.TotalPenalty,
		Reason:       classification.Reason,
		Requirements: m.requirementsFor(level),
		Payload:      request.payload,
		Status:       action.StatusLocked,
		TimeoutAt:    now.Add(time.Duration(tier.TimeoutHours) * time.Hour),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.actions.Save(ctx, locked); err != nil {
		return nil, err
	}
	m.record(ctx, audit.EventLocked, locked.ID, actor, map[string]interface{}{
		"actionType":   string(actionType),
		"riskLevel":    string(level),
		"totalPenalty": classification.TotalPenalty,
		"reason":       classification.Reason,
	})
	m.publish(event.TypeLocked, locked, actor)
	return locked, nil
}

// requirementsFor derives the approval requirements of a risk tier. High risk
// needs the director and both houses, mid risk admits any reviewer and low
// risk needs nobody.
func (m *Manager) requirementsFor(level action.RiskLevel) []action.Requirement {
	switch level {
	case action.RiskHigh:
		return []action.Requirement{
			{Approver: action.ApproverDirector3, Obligation: action.Required},
			{Approver: action.ApproverMocHouse, Obligation: action.Required},
			{Approver: action.ApproverOssHouse, Obligation: action.Required},
		}
	case action.RiskMid:
		return []action.Requirement{
			{Approver: action.ApproverAnyReviewer, Obligation: action.Optional},
		}
	}
	return nil
}

// Get loads a locked action.
func (m *Manager) Get(ctx context.Context, id string) (*action.LockedAction, error) {
	ret, err := m.actions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, types.NewNotFoundError(entityKind, id)
	}
	return ret, nil
}

// List returns locked actions matching the supplied parameters.
func (m *Manager) List(ctx context.Context, parameters ...*dao.Parameter) ([]*action.LockedAction, error) {
	return m.actions.List(ctx, parameters...)
}

// AddApproval records a reviewer decision on the lock. An approval moves the
// lock to PENDING_APPROVAL and, once every required approver signed off, to
// APPROVED. A rejection terminates the lock.
func (m *Manager) AddApproval(ctx context.Context, id string, record action.ApprovalRecord) (*action.LockedAction, error) {
	var unlocked, rejected bool
	ret, err := m.actions.Mutate(ctx, id, func(a *action.LockedAction) error {
		if a.Status != action.StatusLocked && a.Status != action.StatusPendingApproval {
			return types.NewInvalidTransitionError(entityKind, id, string(a.Status), "addApproval")
		}
		if prev := a.ApprovalBy(record.ReviewerID); prev != nil {
			return types.NewDuplicateError("approval", record.ReviewerID)
		}
		if record.DecidedAt.IsZero() {
			record.DecidedAt = m.now()
		}
		a.Approvals = append(a.Approvals, record)
		a.UpdatedAt = m.now()
		if record.Decision == action.DecisionReject {
			a.Status = action.StatusRejected
			rejected = true
			return nil
		}
		a.Status = action.StatusPendingApproval
		a.UnlockChecks++
		if len(a.MissingRequired()) == 0 {
			a.Status = action.StatusApproved
			unlocked = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	switch {
	case rejected:
		m.record(ctx, audit.EventRejected, id, record.ReviewerID, map[string]interface{}{"role": string(record.Role)})
		m.publish(event.TypeRejected, ret, record.ReviewerID)
	case unlocked:
		m.record(ctx, audit.EventApproved, id, record.ReviewerID, map[string]interface{}{"role": string(record.Role)})
		m.record(ctx, audit.EventUnlocked, id, record.ReviewerID, nil)
		m.publish(event.TypeApproved, ret, record.ReviewerID)
		m.publish(event.TypeUnlocked, ret, record.ReviewerID)
	default:
		m.record(ctx, audit.EventApproved, id, record.ReviewerID, map[string]interface{}{"role": string(record.Role)})
		m.publish(event.TypeApproved, ret, record.ReviewerID)
	}
	return ret, nil
}

// Reject terminates the lock with a rejection.
func (m *Manager) Reject(ctx context.Context, id, actor, reason string) (*action.LockedAction, error) {
	ret, err := m.actions.Mutate(ctx, id, func(a *action.LockedAction) error {
		if a.Status != action.StatusLocked && a.Status != action.StatusPendingApproval {
			return types.NewInvalidTransitionError(entityKind, id, string(a.Status), "reject")
		}
		a.Status = action.StatusRejected
		a.UpdatedAt = m.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.record(ctx, audit.EventRejected, id, actor, map[string]interface{}{"reason": reason})
	m.publish(event.TypeRejected, ret, actor)
	return ret, nil
}

// CheckUnlockStatus reports the outstanding required approvals of a lock.
// A lock with no required approvers is executable as soon as it is approved.
func (m *Manager) CheckUnlockStatus(a *action.LockedAction) *UnlockStatus {
	missing := a.MissingRequired()
	return &UnlockStatus{CanExecute: len(missing) == 0, Missing: missing}
}

// CanExecute reports whether the action may run. High risk actions
// additionally require an approval from the director role or from the
// configured Director 3 reviewer.
func (m *Manager) CanExecute(a *action.LockedAction) bool {
	if a.Status != action.StatusApproved {
		return false
	}
	if a.RiskLevel != action.RiskHigh {
		return true
	}
	if a.Approval(action.ApproverDirector3) != nil {
		return true
	}
	return m.config.Director3ID != "" && a.ApprovalBy(m.config.Director3ID) != nil
}

// Execute runs the approved action through the supplied handler and moves it
// to EXECUTED. High risk actions are re-validated against the execution gate
// right before running. Handler failures are audited and propagated, leaving
// the action in APPROVED state.
func (m *Manager) Execute(ctx context.Context, id, actor string, handler executor.Handler) (interface{}, error) {
	locked, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if locked.Status != action.StatusApproved {
		return nil, types.NewInvalidTransitionError(entityKind, id, string(locked.Status), "execute")
	}
	if gate := m.gate(ctx, locked, actor); gate != nil {
		return nil, gate
	}
	if locked.RiskLevel == action.RiskHigh && !m.CanExecute(locked) {
		return nil, types.NewAuthorizationError(actor, "execute")
	}
	output, err := handler(ctx, locked.Payload)
	if err != nil {
		m.record(ctx, audit.EventExecuted, id, actor, map[string]interface{}{"success": false, "error": err.Error()})
		return nil, fmt.Errorf("failed to execute action %v: %w", id, err)
	}
	ret, err := m.actions.Mutate(ctx, id, func(a *action.LockedAction) error {
		if a.Status != action.StatusApproved {
			return types.NewInvalidTransitionError(entityKind, id, string(a.Status), "execute")
		}
		a.Status = action.StatusExecuted
		a.UpdatedAt = m.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.record(ctx, audit.EventExecuted, id, actor, map[string]interface{}{"success": true})
	m.publish(event.TypeExecuted, ret, actor)
	return output, nil
}

// ProcessExpiredLocks applies the per tier timeout action to every
// non-terminal lock past its deadline, approved ones included, and returns
// the affected actions. High risk locks never auto approve, they escalate
// instead.
func (m *Manager) ProcessExpiredLocks(ctx context.Context) ([]*action.LockedAction, error) {
	candidates, err := m.actions.List(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	var processed []*action.LockedAction
	for _, candidate := range candidates {
		if candidate.Status.IsTerminal() || !candidate.Expired(now) {
			continue
		}
		timeout := m.config.tier(candidate.RiskLevel).OnTimeout
		if candidate.RiskLevel == action.RiskHigh && timeout == TimeoutAutoApprove {
			timeout = TimeoutEscalate
		}
		// An approved lock awaiting execution has nothing left to auto
		// approve.
		if candidate.Status == action.StatusApproved && timeout == TimeoutAutoApprove {
			continue
		}
		updated, err := m.applyTimeout(ctx, candidate.ID, timeout, now)
		if err != nil {
			return processed, err
		}
		if updated != nil {
			processed = append(processed, updated)
		}
	}
	return processed, nil
}

func (m *Manager) applyTimeout(ctx context.Context, id string, timeout TimeoutAction, now time.Time) (*action.LockedAction, error) {
	ret, err := m.actions.Mutate(ctx, id, func(a *action.LockedAction) error {
		switch timeout {
		case TimeoutAutoApprove:
			a.Status = action.StatusApproved
		case TimeoutReject:
			a.Status = action.StatusRejected
		case TimeoutEscalate:
			escalatedAt := now
			a.EscalatedAt = &escalatedAt
			tier := m.config.tier(a.RiskLevel)
			a.TimeoutAt = now.Add(time.Duration(tier.TimeoutHours) * time.Hour)
		}
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	switch timeout {
	case TimeoutAutoApprove:
		m.record(ctx, audit.EventApproved, id, "system", map[string]interface{}{"timeout": true})
		m.publish(event.TypeApproved, ret, "system")
	case TimeoutReject:
		m.record(ctx, audit.EventRejected, id, "system", map[string]interface{}{"timeout": true})
		m.publish(event.TypeRejected, ret, "system")
	case TimeoutEscalate:
		m.record(ctx, audit.EventEscalated, id, "system", map[string]interface{}{"timeout": true})
		m.publish(event.TypeEscalated, ret, "system")
	}
	return ret, nil
}

func (m *Manager) gate(ctx context.Context, a *action.LockedAction, actor string) error {
	gate := policy.FromContext(ctx)
	if gate == nil {
		return nil
	}
	if !gate.IsAllowed(string(a.Type)) {
		return types.NewAuthorizationError(actor, "execute")
	}
	switch gate.Mode {
	case policy.ModeDeny:
		return types.NewAuthorizationError(actor, "execute")
	case policy.ModeAsk:
		if a.Approval(action.ApproverDirector3) == nil {
			return types.NewAuthorizationError(actor, "execute")
		}
	}
	return nil
}

func (m *Manager) record(ctx context.Context, ev audit.Event, id, actor string, metadata map[string]interface{}) {
	if m.trail == nil {
		return
	}
	if err := m.trail.Record(ctx, ev, entityKind, id, actor, metadata); err != nil {
		log.Printf("failed to record audit %v for %v: %v", ev, id, err)
	}
}

func (m *Manager) publish(eventType string, a *action.LockedAction, actor string) {
	if m.events == nil {
		return
	}
	publisher, err := event.PublisherOf[*action.LockedAction](m.events)
	if err != nil {
		log.Printf("failed to acquire action publisher: %v", err)
		return
	}
	ev := event.NewEvent(&event.Context{EntityKind: entityKind, EntityID: a.ID, EventType: eventType, Actor: actor}, a)
	if err = publisher.Publish(context.Background(), ev); err != nil {
		log.Printf("failed to publish %v for %v: %v", eventType, a.ID, err)
	}
}
