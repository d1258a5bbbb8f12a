package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mossdao/gavel/service/audit"
	"github.com/mossdao/gavel/service/dao"
)

func TestTrail_RecordAndList(t *testing.T) {
	ctx := context.Background()
	trail := audit.NewTrail()

	assert.NoError(t, trail.Record(ctx, audit.EventLocked, "action", "a1", "agent-1", nil))
	assert.NoError(t, trail.Record(ctx, audit.EventApproved, "action", "a1", "alice",
		map[string]interface{}{"role": "moc_house"}))
	assert.NoError(t, trail.Record(ctx, audit.EventLocked, "action", "a2", "agent-1", nil))

	type testCase struct {
		name        string
		parameters  []*dao.Parameter
		expectCount int
	}

	tests := []testCase{{
		name:        "everything",
		expectCount: 3,
	}, {
		name:        "by entity",
		parameters:  []*dao.Parameter{dao.NewParameter("EntityID", "a1")},
		expectCount: 2,
	}, {
		name:        "by event",
		parameters:  []*dao.Parameter{dao.NewParameter("Event", string(audit.EventLocked))},
		expectCount: 2,
	}, {
		name: "by entity and event",
		parameters: []*dao.Parameter{
			dao.NewParameter("EntityID", "a1"),
			dao.NewParameter("Event", string(audit.EventApproved)),
		},
		expectCount: 1,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			listed, err := trail.List(ctx, tc.parameters...)
			assert.NoError(t, err)
			assert.Len(t, listed, tc.expectCount)
		})
	}
}

func TestTrail_Writer(t *testing.T) {
	ctx := context.Background()
	var buffer bytes.Buffer
	trail := audit.NewTrail(audit.WithWriter(&buffer))

	assert.NoError(t, trail.Record(ctx, audit.EventLocked, "action", "a1", "agent-1", nil))
	assert.NoError(t, trail.Record(ctx, audit.EventExecuted, "action", "a1", "agent-1", nil))

	lines := strings.Split(strings.TrimSpace(buffer.String()), "\n")
	assert.Len(t, lines, 2)
	for _, line := range lines {
		var entry audit.Entry
		assert.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "a1", entry.EntityID)
		assert.NotEmpty(t, entry.ID)
	}
}
