package task

import "time"

// Status is the retryable task lifecycle. Succeeded and Escalated are
// terminal; an escalated task can only be closed by manual resolution.
type Status string

const (
	StatusPending     Status = "pending"
	StatusExecuting   Status = "executing"
	StatusSucceeded   Status = "succeeded"
	StatusFailedRetry Status = "failed_retrying"
	StatusEscalated   Status = "escalated"
	StatusResolved    Status = "resolved"
)

// RetryableTask tracks one unit of asynchronous work across retry attempts.
type RetryableTask struct {
	ID            string                 `json:"id"`
	Kind          string                 `json:"kind,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Status        Status                 `json:"status"`
	Attempts      int                    `json:"attempts"`
	LastError     string                 `json:"lastError,omitempty"`
	NextAttemptAt *time.Time             `json:"nextAttemptAt,omitempty"`
	Result        interface{}            `json:"result,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// Result is what ExecuteWithRetry hands back. Exhaustion never surfaces as an
// error; callers inspect Escalated and route to human review.
type Result struct {
	TaskID    string      `json:"taskId"`
	Success   bool        `json:"success"`
	Escalated bool        `json:"escalated"`
	Attempts  int         `json:"attempts"`
	Output    interface{} `json:"output,omitempty"`
	LastError string      `json:"lastError,omitempty"`
}
