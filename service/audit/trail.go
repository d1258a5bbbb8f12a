// Package audit provides the append-only audit trail recording every state
// transition in the engine. Entries are immutable history: the trail exposes
// no update or delete operations.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/mossdao/gavel/internal/clock"
	"github.com/mossdao/gavel/internal/idgen"
	"github.com/mossdao/gavel/service/dao"
	"github.com/mossdao/gavel/service/dao/criteria"
	"github.com/mossdao/gavel/service/dao/store"
)

// Event categorises an audit entry.
type Event string

const (
	EventLocked    Event = "LOCKED"
	EventApproved  Event = "APPROVED"
	EventRejected  Event = "REJECTED"
	EventUnlocked  Event = "UNLOCKED"
	EventExecuted  Event = "EXECUTED"
	EventEscalated Event = "ESCALATED"
)

// Entry is a single append-only audit record.
type Entry struct {
	ID         string                 `json:"id"`
	Event      Event                  `json:"event"`
	EntityKind string                 `json:"entityKind"`
	EntityID   string                 `json:"entityId"`
	Actor      string                 `json:"actor,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	At         time.Time              `json:"at"`
}

// Trail records audit entries to its store and, when configured, a
// line-delimited JSON writer.
type Trail struct {
	entries dao.Service[string, Entry]

	mu     sync.Mutex
	writer io.Writer
}

// Option customises a Trail.
type Option func(*Trail)

// WithWriter attaches a JSON line sink in addition to the store.
func WithWriter(w io.Writer) Option {
	return func(t *Trail) { t.writer = w }
}

// WithStore replaces the default in-memory entry store.
func WithStore(entries dao.Service[string, Entry]) Option {
	return func(t *Trail) { t.entries = entries }
}

func entryKey(e *Entry) string { return e.ID }

func matchEntry(e *Entry, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		switch parameter.Name {
		case "EntityID":
			if value, ok := parameter.Value.(string); ok && e.EntityID != value {
				return false
			}
		case "Event":
			if !criteria.MatchStatus(string(e.Event), []*dao.Parameter{{Name: "Status", Value: parameter.Value}}) {
				return false
			}
		}
	}
	return criteria.MatchTime("At", e.At, parameters)
}

// NewTrail creates an audit trail with an in-memory store by default.
func NewTrail(options ...Option) *Trail {
	ret := &Trail{}
	for _, option := range options {
		option(ret)
	}
	if ret.entries == nil {
		ret.entries = store.New[string, Entry](entryKey, store.WithMatcher[string, Entry](matchEntry))
	}
	return ret
}

// Record appends an entry. It never mutates or replaces existing history.
func (t *Trail) Record(ctx context.Context, event Event, entityKind, entityID, actor string, metadata map[string]interface{}) error {
	entry := &Entry{
		ID:         idgen.New(),
		Event:      event,
		EntityKind: entityKind,
		EntityID:   entityID,
		Actor:      actor,
		Metadata:   metadata,
		At:         clock.Now(),
	}
	if err := t.entries.Save(ctx, entry); err != nil {
		return err
	}
	if t.writer != nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if _, err := t.writer.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// List returns entries matching the supplied filters.
func (t *Trail) List(ctx context.Context, parameters ...*dao.Parameter) ([]*Entry, error) {
	return t.entries.List(ctx, parameters...)
}
