// Package retry executes fallible work with exponential backoff and
// escalates exhausted tasks to human review.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/mossdao/gavel/internal/clock"
	"github.com/mossdao/gavel/internal/idgen"
	"github.com/mossdao/gavel/model/task"
	"github.com/mossdao/gavel/model/types"
	"github.com/mossdao/gavel/service/dao"
	"github.com/mossdao/gavel/service/dao/criteria"
	"github.com/mossdao/gavel/service/dao/store"
	"github.com/mossdao/gavel/service/event"
)

const entityKind = "task"

// Work is one attempt of the task body.
type Work func(ctx context.Context, payload map[string]interface{}) (interface{}, error)

// Config defines retry settings.
type Config struct {
	MaxRetries     int     `yaml:"maxRetries" json:"maxRetries"`
	InitialDelayMs int     `yaml:"initialDelayMs" json:"initialDelayMs"`
	MaxDelayMs     int     `yaml:"maxDelayMs" json:"maxDelayMs"`
	Multiplier     float64 `yaml:"multiplier" json:"multiplier"`
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialDelayMs: 1000,
		MaxDelayMs:     60000,
		Multiplier:     2.0,
	}
}

// Validate checks config consistency.
func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("retry: maxRetries was %v", c.MaxRetries)
	}
	if c.InitialDelayMs <= 0 {
		return fmt.Errorf("retry: initialDelayMs was %v", c.InitialDelayMs)
	}
	if c.MaxDelayMs < c.InitialDelayMs {
		return fmt.Errorf("retry: maxDelayMs %v was below initialDelayMs %v", c.MaxDelayMs, c.InitialDelayMs)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("retry: multiplier was %v", c.Multiplier)
	}
	return nil
}

// Handler runs retryable tasks.
type Handler struct {
	config Config
	tasks  dao.Service[string, task.RetryableTask]
	events *event.Service
	now    func() time.Time
	sleep  func(ctx context.Context, delay time.Duration) error
	jitter func() float64
}

// Option configures the handler.
type Option func(*Handler)

// WithStore overrides the task store.
func WithStore(tasks dao.Service[string, task.RetryableTask]) Option {
	return func(h *Handler) { h.tasks = tasks }
}

// WithEventService attaches the event service.
func WithEventService(events *event.Service) Option {
	return func(h *Handler) { h.events = events }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithSleep overrides the inter-attempt delay, tests pass a no-op.
func WithSleep(sleep func(ctx context.Context, delay time.Duration) error) Option {
	return func(h *Handler) { h.sleep = sleep }
}

// WithJitter overrides the jitter source with a function returning a value
// in [0, 1).
func WithJitter(jitter func() float64) Option {
	return func(h *Handler) { h.jitter = jitter }
}

// New creates a retry handler.
func New(config Config, options ...Option) *Handler {
	ret := &Handler{
		config: config,
		now:    clock.Now,
		jitter: rand.Float64,
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.sleep == nil {
		ret.sleep = func(ctx context.Context, delay time.Duration) error {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}
	if ret.tasks == nil {
		ret.tasks = store.New[string, task.RetryableTask](
			func(t *task.RetryableTask) string { return t.ID },
			store.WithMatcher[string, task.RetryableTask](matchTask))
	}
	return ret
}

func matchTask(t *task.RetryableTask, parameters []*dao.Parameter) bool {
	return criteria.MatchStatus(string(t.Status), parameters) &&
		criteria.MatchTime("CreatedAt", t.CreatedAt, parameters)
}

// Backoff computes the delay before the given zero-based retry attempt:
// the initial delay grows by the multiplier per attempt, capped at the
// maximum, with a ±10% jitter that never exceeds the cap.
func (h *Handler) Backoff(attempt int) time.Duration {
	delayMs := float64(h.config.InitialDelayMs) * math.Pow(h.config.Multiplier, float64(attempt))
	delayMs = math.Min(delayMs, float64(h.config.MaxDelayMs))
	jittered := delayMs * (0.9 + 0.2*h.jitter())
	jittered = math.Min(jittered, float64(h.config.MaxDelayMs))
	return time.Duration(jittered) * time.Millisecond
}

// ExecuteWithRetry runs the work, retrying retryable failures up to the
// configured budget. Exhaustion and terminal failures escalate the task to
// human review rather than returning an error; the returned error is
// reserved for persistence and context failures.
func (h *Handler) ExecuteWithRetry(ctx context.Context, kind string, payload map[string]interface{}, work Work) (*task.Result, error) {
	now := h.now()
	created := &task.RetryableTask{
		ID:        idgen.New(),
		Kind:      kind,
		Payload:   payload,
		Status:    task.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.tasks.Save(ctx, created); err != nil {
		return nil, err
	}
	return h.run(ctx, created.ID, payload, work, 0)
}

// ResumeTask reruns an escalated or failed task from a clean attempt budget.
func (h *Handler) ResumeTask(ctx context.Context, taskID string, work Work) (*task.Result, error) {
	resumed, err := h.tasks.Mutate(ctx, taskID, func(t *task.RetryableTask) error {
		if t.Status == task.StatusSucceeded || t.Status == task.StatusResolved {
			return types.NewInvalidTransitionError(entityKind, taskID, string(t.Status), "resume")
		}
		t.Status = task.StatusPending
		t.Attempts = 0
		t.LastError = ""
		t.NextAttemptAt = nil
		t.UpdatedAt = h.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h.run(ctx, resumed.ID, resumed.Payload, work, 0)
}

func (h *Handler) run(ctx context.Context, taskID string, payload map[string]interface{}, work Work, firstAttempt int) (*task.Result, error) {
	var lastErr error
	for attempt := firstAttempt; attempt <= h.config.MaxRetries; attempt++ {
		if attempt > firstAttempt {
			delay := h.Backoff(attempt - 1)
			next := h.now().Add(delay)
			if _, err := h.tasks.Mutate(ctx, taskID, func(t *task.RetryableTask) error {
				t.Status = task.StatusFailedRetry
				t.NextAttemptAt = &next
				t.UpdatedAt = h.now()
				return nil
			}); err != nil {
				return nil, err
			}
			if err := h.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if _, err := h.tasks.Mutate(ctx, taskID, func(t *task.RetryableTask) error {
			t.Status = task.StatusExecuting
			t.Attempts = attempt + 1
			t.UpdatedAt = h.now()
			return nil
		}); err != nil {
			return nil, err
		}
		output, err := work(ctx, payload)
		if err == nil {
			return h.succeed(ctx, taskID, attempt+1, output)
		}
		lastErr = err
		if _, mutErr := h.tasks.Mutate(ctx, taskID, func(t *task.RetryableTask) error {
			t.LastError = err.Error()
			t.UpdatedAt = h.now()
			return nil
		}); mutErr != nil {
			return nil, mutErr
		}
		if !IsRetryable(err) {
			return h.escalate(ctx, taskID, attempt+1, lastErr)
		}
	}
	return h.escalate(ctx, taskID, h.config.MaxRetries+1, lastErr)
}

func (h *Handler) succeed(ctx context.Context, taskID string, attempts int, output interface{}) (*task.Result, error) {
	updated, err := h.tasks.Mutate(ctx, taskID, func(t *task.RetryableTask) error {
		t.Status = task.StatusSucceeded
		t.Result = output
		t.NextAttemptAt = nil
		t.UpdatedAt = h.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.publish(event.TypeTaskSucceeded, updated)
	return &task.Result{TaskID: taskID, Success: true, Attempts: attempts, Output: output}, nil
}

func (h *Handler) escalate(ctx context.Context, taskID string, attempts int, cause error) (*task.Result, error) {
	updated, err := h.tasks.Mutate(ctx, taskID, func(t *task.RetryableTask) error {
		t.Status = task.StatusEscalated
		t.NextAttemptAt = nil
		t.UpdatedAt = h.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.publish(event.TypeTaskEscalated, updated)
	ret := &task.Result{TaskID: taskID, Escalated: true, Attempts: attempts}
	if cause != nil {
		ret.LastError = cause.Error()
	}
	return ret, nil
}

// ResolveEscalatedTask closes an escalated task after manual intervention.
func (h *Handler) ResolveEscalatedTask(ctx context.Context, taskID, resolution string) (*task.RetryableTask, error) {
	ret, err := h.tasks.Mutate(ctx, taskID, func(t *task.RetryableTask) error {
		if t.Status != task.StatusEscalated {
			return types.NewInvalidTransitionError(entityKind, taskID, string(t.Status), "resolve")
		}
		t.Status = task.StatusResolved
		t.Result = resolution
		t.UpdatedAt = h.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.publish(event.TypeTaskResolved, ret)
	return ret, nil
}

// Task loads a task record.
func (h *Handler) Task(ctx context.Context, taskID string) (*task.RetryableTask, error) {
	ret, err := h.tasks.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, types.NewNotFoundError(entityKind, taskID)
	}
	return ret, nil
}

// List returns tasks matching the supplied parameters.
func (h *Handler) List(ctx context.Context, parameters ...*dao.Parameter) ([]*task.RetryableTask, error) {
	return h.tasks.List(ctx, parameters...)
}

var transientMarkers = []string{
	"connection reset",
	"connection refused",
	"timeout",
	"timed out",
	"temporarily",
	"try again",
	"too many requests",
	"429",
	"500",
	"502",
	"503",
	"504",
}

// IsRetryable classifies an error as transient. Explicit wrappers win;
// otherwise the message is matched against well known transient markers.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable *types.RetryableError
	if errors.As(err, &retryable) {
		return true
	}
	var terminal *types.TerminalError
	if errors.As(err, &terminal) {
		return false
	}
	message := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

func (h *Handler) publish(eventType string, t *task.RetryableTask) {
	if h.events == nil {
		return
	}
	publisher, err := event.PublisherOf[*task.RetryableTask](h.events)
	if err != nil {
		log.Printf("failed to acquire task publisher: %v", err)
		return
	}
	ev := event.NewEvent(&event.Context{EntityKind: entityKind, EntityID: t.ID, EventType: eventType}, t)
	if err = publisher.Publish(context.Background(), ev); err != nil {
		log.Printf("failed to publish %v for %v: %v", eventType, t.ID, err)
	}
}
