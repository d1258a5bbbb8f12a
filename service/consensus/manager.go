// Package consensus implements passive (opt-out) review: documents are
// approved automatically once their review window elapses without a veto
// or escalation.
package consensus

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mossdao/gavel/internal/clock"
	"github.com/mossdao/gavel/internal/idgen"
	"github.com/mossdao/gavel/model/action"
	"github.com/mossdao/gavel/model/consensus"
	"github.com/mossdao/gavel/model/types"
	"github.com/mossdao/gavel/service/dao"
	"github.com/mossdao/gavel/service/dao/criteria"
	"github.com/mossdao/gavel/service/dao/store"
	"github.com/mossdao/gavel/service/event"
)

const entityKind = "consensusItem"

// UnreviewedLabel tags items that resolved without any human signoff.
const UnreviewedLabel = "unreviewed-by-human"

// Config defines passive consensus settings.
type Config struct {
	// ReviewHours maps a risk tier to the review window in hours.
	ReviewHours map[action.RiskLevel]int `yaml:"reviewHours" json:"reviewHours"`
}

// DefaultConfig returns the default consensus configuration.
func DefaultConfig() Config {
	return Config{
		ReviewHours: map[action.RiskLevel]int{
			action.RiskLow:  24,
			action.RiskMid:  72,
			action.RiskHigh: 168,
		},
	}
}

// Validate checks config consistency.
func (c *Config) Validate() error {
	for level, hours := range c.ReviewHours {
		if hours <= 0 {
			return fmt.Errorf("consensus: review window for %v was %v", level, hours)
		}
	}
	return nil
}

func (c *Config) reviewHours(level action.RiskLevel) int {
	if hours, ok := c.ReviewHours[level]; ok {
		return hours
	}
	return 72
}

// Manager owns passive consensus items.
type Manager struct {
	config Config
	items  dao.Service[string, consensus.Item]
	events *event.Service
	now    func() time.Time
}

// Option configures the manager.
type Option func(*Manager)

// WithStore overrides the item store.
func WithStore(items dao.Service[string, consensus.Item]) Option {
	return func(m *Manager) { m.items = items }
}

// WithEventService attaches the event service.
func WithEventService(events *event.Service) Option {
	return func(m *Manager) { m.events = events }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a consensus manager.
func New(config Config, options ...Option) *Manager {
	ret := &Manager{
		config: config,
		now:    clock.Now,
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.items == nil {
		ret.items = store.New[string, consensus.Item](
			func(i *consensus.Item) string { return i.ID },
			store.WithMatcher[string, consensus.Item](matchItem))
	}
	return ret
}

func matchItem(i *consensus.Item, parameters []*dao.Parameter) bool {
	return criteria.MatchStatus(string(i.Status), parameters) &&
		criteria.MatchTime("ReviewEndsAt", i.ReviewEndsAt, parameters)
}

// Create opens a review window on a document. The window length is tier
// dependent and the item starts unreviewed by any human.
func (m *Manager) Create(ctx context.Context, documentID, documentType string, level action.RiskLevel) (*consensus.Item, error) {
	now := m.now()
	ret := &consensus.Item{
		ID:                idgen.New(),
		DocumentID:        documentID,
		DocumentType:      documentType,
		RiskLevel:         level,
		Status:            consensus.StatusPending,
		ReviewEndsAt:      now.Add(time.Duration(m.config.reviewHours(level)) * time.Hour),
		UnreviewedByHuman: true,
		CreatedAt:         now,
	}
	if err := m.items.Save(ctx, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// Get loads a consensus item.
func (m *Manager) Get(ctx context.Context, id string) (*consensus.Item, error) {
	ret, err := m.items.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, types.NewNotFoundError(entityKind, id)
	}
	return ret, nil
}

// List returns items matching the supplied parameters.
func (m *Manager) List(ctx context.Context, parameters ...*dao.Parameter) ([]*consensus.Item, error) {
	return m.items.List(ctx, parameters...)
}

// Veto terminates a pending item. Vetoes are only accepted while the item is
// pending; a human veto clears the unreviewed flag.
func (m *Manager) Veto(ctx context.Context, id string, signoff consensus.Signoff) (*consensus.Item, error) {
	ret, err := m.resolve(ctx, id, consensus.StatusVetoed, signoff, func(i *consensus.Item, s consensus.Signoff) {
		i.Vetoes = append(i.Vetoes, s)
	})
	if err != nil {
		return nil, err
	}
	m.publish(event.TypeConsensusVetoed, ret, signoff.ActorID)
	return ret, nil
}

// Escalate routes a pending item to human review, terminating the passive
// window.
func (m *Manager) Escalate(ctx context.Context, id string, signoff consensus.Signoff) (*consensus.Item, error) {
	ret, err := m.resolve(ctx, id, consensus.StatusEscalated, signoff, func(i *consensus.Item, s consensus.Signoff) {
		i.Escalations = append(i.Escalations, s)
	})
	if err != nil {
		return nil, err
	}
	m.publish(event.TypeConsensusEscalated, ret, signoff.ActorID)
	return ret, nil
}

// Approve records an explicit approval, ending the window early.
func (m *Manager) Approve(ctx context.Context, id string, signoff consensus.Signoff) (*consensus.Item, error) {
	ret, err := m.resolve(ctx, id, consensus.StatusExplicitlyApproved, signoff, func(i *consensus.Item, s consensus.Signoff) {
		i.Approvals = append(i.Approvals, s)
	})
	if err != nil {
		return nil, err
	}
	m.publish(event.TypeConsensusApproved, ret, signoff.ActorID)
	return ret, nil
}

func (m *Manager) resolve(ctx context.Context, id string, status consensus.Status, signoff consensus.Signoff, record func(*consensus.Item, consensus.Signoff)) (*consensus.Item, error) {
	return m.items.Mutate(ctx, id, func(i *consensus.Item) error {
		if i.Status != consensus.StatusPending {
			return types.NewInvalidTransitionError(entityKind, id, string(i.Status), string(status))
		}
		if signoff.At.IsZero() {
			signoff.At = m.now()
		}
		record(i, signoff)
		if signoff.Human {
			i.UnreviewedByHuman = false
		}
		i.Status = status
		resolvedAt := m.now()
		i.ResolvedAt = &resolvedAt
		return nil
	})
}

// ProcessExpiredItems resolves every pending item whose window elapsed.
// High risk items escalate to human review; everything else is approved by
// timeout, keeping the unreviewed flag when no human ever looked at it.
func (m *Manager) ProcessExpiredItems(ctx context.Context) ([]*consensus.Item, error) {
	candidates, err := m.items.List(ctx, dao.NewParameter("Status", string(consensus.StatusPending)))
	if err != nil {
		return nil, err
	}
	now := m.now()
	var processed []*consensus.Item
	for _, candidate := range candidates {
		if !candidate.Expired(now) {
			continue
		}
		status := consensus.StatusApprovedByTimeout
		if candidate.RiskLevel == action.RiskHigh {
			status = consensus.StatusEscalated
		}
		updated, err := m.items.Mutate(ctx, candidate.ID, func(i *consensus.Item) error {
			if i.Status != consensus.StatusPending {
				return nil
			}
			if status == consensus.StatusEscalated {
				i.Escalations = append(i.Escalations, consensus.Signoff{
					ActorID: "system",
					Reason:  "review window elapsed on a high risk document",
					At:      now,
				})
			}
			i.Status = status
			resolvedAt := now
			i.ResolvedAt = &resolvedAt
			return nil
		})
		if err != nil {
			return processed, err
		}
		switch status {
		case consensus.StatusEscalated:
			m.publish(event.TypeConsensusEscalated, updated, "system")
		default:
			m.publish(event.TypeConsensusApproved, updated, "system")
		}
		processed = append(processed, updated)
	}
	return processed, nil
}

// Labels returns presentation labels for an item; anything no human ever
// reviewed carries the unreviewed label, pending items included.
func (m *Manager) Labels(item *consensus.Item) []string {
	if item.UnreviewedByHuman {
		return []string{UnreviewedLabel}
	}
	return nil
}

func (m *Manager) publish(eventType string, item *consensus.Item, actor string) {
	if m.events == nil {
		return
	}
	publisher, err := event.PublisherOf[*consensus.Item](m.events)
	if err != nil {
		log.Printf("failed to acquire consensus publisher: %v", err)
		return
	}
	ev := event.NewEvent(&event.Context{EntityKind: entityKind, EntityID: item.ID, EventType: eventType, Actor: actor}, item)
	if err = publisher.Publish(context.Background(), ev); err != nil {
		log.Printf("failed to publish %v for %v: %v", eventType, item.ID, err)
	}
}
