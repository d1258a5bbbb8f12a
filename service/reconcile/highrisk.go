package reconcile

import (
	"context"
	"log"
	"time"

	"github.com/mossdao/gavel/internal/clock"
	"github.com/mossdao/gavel/internal/idgen"
	"github.com/mossdao/gavel/model/types"
	"github.com/mossdao/gavel/model/voting"
	"github.com/mossdao/gavel/service/dao"
	"github.com/mossdao/gavel/service/dao/store"
	"github.com/mossdao/gavel/service/event"
)

const highRiskEntityKind = "highRiskApproval"

// HighRiskManager tracks the three-key unlock of high risk proposals: both
// house approvals plus a Director 3 sign-off.
type HighRiskManager struct {
	config    Config
	approvals dao.Service[string, voting.HighRiskApproval]
	events    *event.Service
	now       func() time.Time
}

// HighRiskOption configures the manager.
type HighRiskOption func(*HighRiskManager)

// WithApprovalStore overrides the approval store.
func WithApprovalStore(approvals dao.Service[string, voting.HighRiskApproval]) HighRiskOption {
	return func(m *HighRiskManager) { m.approvals = approvals }
}

// WithApprovalEventService attaches the event service.
func WithApprovalEventService(events *event.Service) HighRiskOption {
	return func(m *HighRiskManager) { m.events = events }
}

// WithApprovalClock overrides the time source.
func WithApprovalClock(now func() time.Time) HighRiskOption {
	return func(m *HighRiskManager) { m.now = now }
}

// NewHighRiskManager creates a high risk approval manager.
func NewHighRiskManager(config Config, options ...HighRiskOption) *HighRiskManager {
	ret := &HighRiskManager{
		config: config,
		now:    clock.Now,
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.approvals == nil {
		ret.approvals = store.New[string, voting.HighRiskApproval](
			func(a *voting.HighRiskApproval) string { return a.ID })
	}
	return ret
}

// Create opens a locked three-key approval for a session.
func (m *HighRiskManager) Create(ctx context.Context, sessionID, actionID string) (*voting.HighRiskApproval, error) {
	ret := &voting.HighRiskApproval{
		ID:        idgen.New(),
		SessionID: sessionID,
		ActionID:  actionID,
		State:     voting.HighRiskLocked,
		CreatedAt: m.now(),
	}
	if err := m.approvals.Save(ctx, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// Get loads a high risk approval.
func (m *HighRiskManager) Get(ctx context.Context, id string) (*voting.HighRiskApproval, error) {
	ret, err := m.approvals.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, types.NewNotFoundError(highRiskEntityKind, id)
	}
	return ret, nil
}

// ApproveMocHouse records the MossCoin house key.
func (m *HighRiskManager) ApproveMocHouse(ctx context.Context, id string) (*voting.HighRiskApproval, error) {
	return m.approve(ctx, id, func(a *voting.HighRiskApproval) { a.MocApproved = true })
}

// ApproveOssHouse records the Open Source house key.
func (m *HighRiskManager) ApproveOssHouse(ctx context.Context, id string) (*voting.HighRiskApproval, error) {
	return m.approve(ctx, id, func(a *voting.HighRiskApproval) { a.OssApproved = true })
}

// ApproveDirector3 records the Director 3 key. The actor must be on the
// configured allow-list.
func (m *HighRiskManager) ApproveDirector3(ctx context.Context, id, actorID string) (*voting.HighRiskApproval, error) {
	if !m.config.allows(actorID) {
		return nil, types.NewAuthorizationError(actorID, "approveDirector3")
	}
	return m.approve(ctx, id, func(a *voting.HighRiskApproval) {
		a.Director3Approved = true
		a.Director3ID = actorID
	})
}

func (m *HighRiskManager) approve(ctx context.Context, id string, apply func(*voting.HighRiskApproval)) (*voting.HighRiskApproval, error) {
	var unlocked bool
	ret, err := m.approvals.Mutate(ctx, id, func(a *voting.HighRiskApproval) error {
		if a.State != voting.HighRiskLocked {
			return types.NewInvalidTransitionError(highRiskEntityKind, id, string(a.State), "approve")
		}
		apply(a)
		if a.Complete() {
			a.State = voting.HighRiskUnlocked
			unlockedAt := m.now()
			a.UnlockedAt = &unlockedAt
			unlocked = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if unlocked {
		m.publish(event.TypeHighRiskUnlocked, ret)
	}
	return ret, nil
}

// Unlocked reports whether the approval collected all three keys.
func (m *HighRiskManager) Unlocked(a *voting.HighRiskApproval) bool {
	return a.State == voting.HighRiskUnlocked
}

func (m *HighRiskManager) publish(eventType string, a *voting.HighRiskApproval) {
	if m.events == nil {
		return
	}
	publisher, err := event.PublisherOf[*voting.HighRiskApproval](m.events)
	if err != nil {
		log.Printf("failed to acquire high risk publisher: %v", err)
		return
	}
	ev := event.NewEvent(&event.Context{EntityKind: highRiskEntityKind, EntityID: a.ID, EventType: eventType}, a)
	if err = publisher.Publish(context.Background(), ev); err != nil {
		log.Printf("failed to publish %v for %v: %v", eventType, a.ID, err)
	}
}
