package retry_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mossdao/gavel/model/task"
	"github.com/mossdao/gavel/model/types"
	"github.com/mossdao/gavel/service/retry"
)

func newHandler(options ...retry.Option) *retry.Handler {
	options = append(options,
		retry.WithSleep(func(ctx context.Context, delay time.Duration) error { return nil }),
		retry.WithJitter(func() float64 { return 0.5 }))
	return retry.New(retry.DefaultConfig(), options...)
}

func TestHandler_ExecuteWithRetry(t *testing.T) {
	type testCase struct {
		name            string
		failures        int
		err             error
		expectSuccess   bool
		expectEscalated bool
		expectAttempts  int
	}

	tests := []testCase{{
		name:           "immediate success",
		expectSuccess:  true,
		expectAttempts: 1,
	}, {
		name:           "transient failures recover",
		failures:       2,
		err:            fmt.Errorf("connection reset by peer"),
		expectSuccess:  true,
		expectAttempts: 3,
	}, {
		name:            "exhaustion escalates without error",
		failures:        10,
		err:             fmt.Errorf("upstream timeout"),
		expectEscalated: true,
		expectAttempts:  4,
	}, {
		name:            "terminal failure escalates on first attempt",
		failures:        10,
		err:             types.NewTerminalError(fmt.Errorf("invalid payload")),
		expectEscalated: true,
		expectAttempts:  1,
	}, {
		name:            "unknown errors are not retried",
		failures:        10,
		err:             fmt.Errorf("schema mismatch"),
		expectEscalated: true,
		expectAttempts:  1,
	}, {
		name:            "explicitly retryable wrapper is retried",
		failures:        10,
		err:             types.NewRetryableError(fmt.Errorf("schema mismatch")),
		expectEscalated: true,
		expectAttempts:  4,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := newHandler()
			calls := 0
			result, err := handler.ExecuteWithRetry(context.Background(), "sync", nil,
				func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
					calls++
					if calls <= tc.failures {
						return nil, tc.err
					}
					return "done", nil
				})
			assert.NoError(t, err)
			assert.Equal(t, tc.expectSuccess, result.Success)
			assert.Equal(t, tc.expectEscalated, result.Escalated)
			assert.Equal(t, tc.expectAttempts, result.Attempts)
			if tc.expectSuccess {
				assert.Equal(t, "done", result.Output)
			} else {
				assert.NotEmpty(t, result.LastError)
			}

			stored, err := handler.Task(context.Background(), result.TaskID)
			assert.NoError(t, err)
			if tc.expectSuccess {
				assert.Equal(t, task.StatusSucceeded, stored.Status)
			} else {
				assert.Equal(t, task.StatusEscalated, stored.Status)
			}
		})
	}
}

func TestHandler_Backoff(t *testing.T) {
	handler := newHandler()
	config := retry.DefaultConfig()

	var previous time.Duration
	for attempt := 0; attempt < 12; attempt++ {
		delay := handler.Backoff(attempt)
		assert.LessOrEqual(t, delay, time.Duration(config.MaxDelayMs)*time.Millisecond,
			"attempt %d exceeded the cap", attempt)
		assert.GreaterOrEqual(t, delay, previous, "attempt %d shrank", attempt)
		previous = delay
	}
	// With centered jitter the first delay equals the initial delay.
	assert.Equal(t, time.Duration(config.InitialDelayMs)*time.Millisecond, handler.Backoff(0))
}

func TestHandler_BackoffJitterBounds(t *testing.T) {
	config := retry.DefaultConfig()
	for _, roll := range []float64{0, 0.999} {
		handler := retry.New(config,
			retry.WithSleep(func(ctx context.Context, delay time.Duration) error { return nil }),
			retry.WithJitter(func() float64 { return roll }))
		delay := handler.Backoff(0)
		assert.GreaterOrEqual(t, delay, time.Duration(float64(config.InitialDelayMs)*0.9)*time.Millisecond)
		assert.LessOrEqual(t, delay, time.Duration(float64(config.InitialDelayMs)*1.1)*time.Millisecond)
	}
}

func TestHandler_ResumeTask(t *testing.T) {
	handler := newHandler()
	ctx := context.Background()

	result, err := handler.ExecuteWithRetry(ctx, "sync", nil,
		func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			return nil, fmt.Errorf("upstream timeout")
		})
	assert.NoError(t, err)
	assert.True(t, result.Escalated)

	// Resume restarts the attempt budget and the fixed work now succeeds.
	resumed, err := handler.ResumeTask(ctx, result.TaskID,
		func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			return "recovered", nil
		})
	assert.NoError(t, err)
	assert.True(t, resumed.Success)
	assert.Equal(t, 1, resumed.Attempts)
}

func TestHandler_ResolveEscalatedTask(t *testing.T) {
	handler := newHandler()
	ctx := context.Background()

	result, err := handler.ExecuteWithRetry(ctx, "sync", nil,
		func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			return nil, types.NewTerminalError(fmt.Errorf("invalid payload"))
		})
	assert.NoError(t, err)
	assert.True(t, result.Escalated)

	resolved, err := handler.ResolveEscalatedTask(ctx, result.TaskID, "fixed by operator")
	assert.NoError(t, err)
	assert.Equal(t, task.StatusResolved, resolved.Status)

	// Only escalated tasks can be resolved.
	_, err = handler.ResolveEscalatedTask(ctx, result.TaskID, "again")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
}

func TestIsRetryable(t *testing.T) {
	type testCase struct {
		name   string
		err    error
		expect bool
	}

	tests := []testCase{{
		name:   "nil error",
		expect: false,
	}, {
		name:   "http 429",
		err:    fmt.Errorf("upstream returned 429 too many requests"),
		expect: true,
	}, {
		name:   "http 503",
		err:    fmt.Errorf("upstream returned 503"),
		expect: true,
	}, {
		name:   "timeout",
		err:    fmt.Errorf("request timed out"),
		expect: true,
	}, {
		name:   "temporary failure",
		err:    fmt.Errorf("resource temporarily unavailable, try again"),
		expect: true,
	}, {
		name:   "validation failure",
		err:    fmt.Errorf("field amount is required"),
		expect: false,
	}, {
		name:   "terminal wrapper beats markers",
		err:    types.NewTerminalError(fmt.Errorf("connection reset")),
		expect: false,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, retry.IsRetryable(tc.err))
		})
	}
}
