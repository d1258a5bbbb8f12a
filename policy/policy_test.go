package policy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mossdao/gavel/policy"
)

func TestPolicy_IsAllowed(t *testing.T) {
	type testCase struct {
		name       string
		policy     *policy.Policy
		actionType string
		expect     bool
	}

	tests := []testCase{{
		name:       "nil policy admits everything",
		actionType: "fund_transfer",
		expect:     true,
	}, {
		name:       "empty lists admit everything",
		policy:     policy.New(policy.ModeAuto),
		actionType: "fund_transfer",
		expect:     true,
	}, {
		name:       "block list wins",
		policy:     &policy.Policy{Mode: policy.ModeAuto, AllowList: []string{"fund_transfer"}, BlockList: []string{"fund_transfer"}},
		actionType: "fund_transfer",
		expect:     false,
	}, {
		name:       "allow list admits listed type",
		policy:     &policy.Policy{Mode: policy.ModeAuto, AllowList: []string{"comment_post"}},
		actionType: "comment_post",
		expect:     true,
	}, {
		name:       "allow list excludes unlisted type",
		policy:     &policy.Policy{Mode: policy.ModeAuto, AllowList: []string{"comment_post"}},
		actionType: "fund_transfer",
		expect:     false,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, tc.policy.IsAllowed(tc.actionType))
		})
	}
}

func TestContext(t *testing.T) {
	assert.Nil(t, policy.FromContext(context.Background()))

	p := policy.New(policy.ModeAsk)
	ctx := policy.WithPolicy(context.Background(), p)
	assert.Equal(t, p, policy.FromContext(ctx))

	// A nil policy leaves the context untouched.
	assert.Nil(t, policy.FromContext(policy.WithPolicy(context.Background(), nil)))
}
