// Package policy provides execution approval policies controlling whether
// governance actions may run automatically or require explicit sign-off.
package policy

import "context"

type contextKey string

const policyKey contextKey = "gavelPolicy"

// Mode determines how execution requests are treated.
const (
	// ModeAuto executes approved actions without further intervention.
	ModeAuto = "auto"
	// ModeAsk requires a director sign-off on the action before execution.
	ModeAsk = "ask"
	// ModeDeny blocks execution outright.
	ModeDeny = "deny"
)

// Policy represents an execution approval policy.
type Policy struct {
	Mode      string   `yaml:"mode" json:"mode"`
	AllowList []string `yaml:"allowList" json:"allowList"`
	BlockList []string `yaml:"blockList" json:"blockList"`
}

// New creates a policy with the supplied mode.
func New(mode string) *Policy {
	return &Policy{Mode: mode}
}

// IsAllowed reports whether the action type passes the allow/block lists.
// An empty allow list admits every type not present on the block list.
func (p *Policy) IsAllowed(actionType string) bool {
	if p == nil {
		return true
	}
	for _, blocked := range p.BlockList {
		if blocked == actionType {
			return false
		}
	}
	if len(p.AllowList) == 0 {
		return true
	}
	for _, allowed := range p.AllowList {
		if allowed == actionType {
			return true
		}
	}
	return false
}

// WithPolicy returns a context carrying the policy.
func WithPolicy(ctx context.Context, policy *Policy) context.Context {
	if policy == nil {
		return ctx
	}
	return context.WithValue(ctx, policyKey, policy)
}

// FromContext returns the policy associated with the context, or nil.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if policy, ok := ctx.Value(policyKey).(*Policy); ok {
		return policy
	}
	return nil
}
