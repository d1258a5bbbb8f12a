// Package executor maintains the registry of action execution handlers.
package executor

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/viant/x"

	"github.com/mossdao/gavel/model/action"
)

// Handler executes an approved action payload and returns its output.
type Handler func(ctx context.Context, payload map[string]interface{}) (interface{}, error)

// Registry maps action types to execution handlers and keeps an associated
// type registry for typed payload decoding.
type Registry struct {
	mu       sync.RWMutex
	handlers map[action.Type]Handler
	types    *x.Registry
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[action.Type]Handler),
		types:    x.NewRegistry(),
	}
}

// Register binds a handler to an action type, replacing any previous binding.
func (r *Registry) Register(actionType action.Type, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[actionType] = handler
}

// RegisterPayloadType registers a Go type under the action type name so
// transports can decode payloads into concrete structs.
func (r *Registry) RegisterPayloadType(actionType action.Type, rType reflect.Type) {
	r.types.Register(x.NewType(rType, x.WithName(string(actionType))))
}

// PayloadType looks up a previously registered payload type.
func (r *Registry) PayloadType(actionType action.Type) reflect.Type {
	if registered := r.types.Lookup(string(actionType)); registered != nil {
		return registered.Type
	}
	return nil
}

// Lookup returns the handler for the action type.
func (r *Registry) Lookup(actionType action.Type) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[actionType]
	if !ok {
		return nil, fmt.Errorf("executor: no handler registered for action type: %v", actionType)
	}
	return handler, nil
}

// Has reports whether a handler is registered for the action type.
func (r *Registry) Has(actionType action.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[actionType]
	return ok
}
