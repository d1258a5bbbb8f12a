// Package fs implements a file-system backed queue vendor on top of
// viant/afs. Messages move between state directories (pending → processing →
// done|dlq) so that a crashed consumer leaves an inspectable trail.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"

	"github.com/mossdao/gavel/internal/clock"
	"github.com/mossdao/gavel/internal/idgen"
	"github.com/mossdao/gavel/service/messaging"
)

// State tracks where a message sits in its lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Config holds the file-system queue configuration.
type Config struct {
	BasePath   string
	MaxRetries int
}

// DefaultConfig returns a default queue configuration.
func DefaultConfig() Config {
	return Config{
		BasePath:   "/tmp/gavel/queue",
		MaxRetries: 3,
	}
}

// Message implements messaging.Message for the file-system queue.
type Message[T any] struct {
	ID        string    `json:"id"`
	Data      T         `json:"data"`
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	Retries   int       `json:"retries"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	queue     *Queue[T]
	mu        sync.Mutex
	processed bool
}

// T returns the message payload.
func (m *Message[T]) T() *T { return &m.Data }

// Ack moves the message document to the done directory.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.ID)
	}
	m.processed = true
	m.State = StateDone
	m.UpdatedAt = clock.Now()
	return m.queue.finish(context.Background(), m, m.queue.doneDir)
}

// Nack re-queues the message for retry, or dead-letters it once the retry
// budget is spent.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.ID)
	}
	m.processed = true
	m.Retries++
	m.UpdatedAt = clock.Now()
	if err != nil {
		m.Error = err.Error()
	}
	if m.Retries > m.queue.config.MaxRetries {
		m.State = StateFailed
		return m.queue.finish(context.Background(), m, m.queue.dlqDir)
	}
	m.State = StatePending
	return m.queue.finish(context.Background(), m, m.queue.pendingDir)
}

// Queue implements a file-system based messaging.Queue.
type Queue[T any] struct {
	fs     afs.Service
	config Config

	pendingDir    string
	processingDir string
	doneDir       string
	dlqDir        string

	mu sync.Mutex
}

// NewQueue creates a file-system queue rooted at config.BasePath.
func NewQueue[T any](fs afs.Service, config Config) (*Queue[T], error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultConfig().MaxRetries
	}
	q := &Queue[T]{
		fs:            fs,
		config:        config,
		pendingDir:    path.Join(config.BasePath, "pending"),
		processingDir: path.Join(config.BasePath, "processing"),
		doneDir:       path.Join(config.BasePath, "done"),
		dlqDir:        path.Join(config.BasePath, "dlq"),
	}
	ctx := context.Background()
	for _, dir := range []string{q.pendingDir, q.processingDir, q.doneDir, q.dlqDir} {
		exists, _ := fs.Exists(ctx, dir)
		if exists {
			continue
		}
		if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return q, nil
}

// Publish writes a pending message document.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	now := clock.Now()
	message := &Message[T]{
		ID:        idgen.New(),
		Data:      *t,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return q.write(ctx, q.pendingDir, message)
}

// Consume claims the oldest pending message by moving it to processing.
// It returns (nil, nil) when the queue is empty.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	objects, err := q.fs.List(ctx, q.pendingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	var oldest storage.Object
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		if oldest == nil || object.Name() < oldest.Name() {
			oldest = object
		}
	}
	if oldest == nil {
		return nil, nil
	}

	data, err := q.fs.DownloadWithURL(ctx, oldest.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", oldest.URL(), err)
	}
	var message Message[T]
	if err := json.Unmarshal(data, &message); err != nil {
		// a malformed document blocks the queue; park it in the DLQ
		_ = q.fs.Move(ctx, oldest.URL(), path.Join(q.dlqDir, "invalid-"+oldest.Name()))
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", oldest.URL(), err)
	}
	message.queue = q
	message.State = StateProcessing
	message.UpdatedAt = clock.Now()

	if err := q.write(ctx, q.processingDir, &message); err != nil {
		return nil, err
	}
	if err := q.fs.Delete(ctx, oldest.URL()); err != nil {
		return nil, fmt.Errorf("failed to remove pending message: %w", err)
	}
	return &message, nil
}

// Size returns the number of pending message documents.
func (q *Queue[T]) Size(ctx context.Context) int {
	objects, err := q.fs.List(ctx, q.pendingDir)
	if err != nil {
		return 0
	}
	count := 0
	for _, object := range objects {
		if !object.IsDir() && strings.HasSuffix(object.Name(), ".json") {
			count++
		}
	}
	return count
}

func (q *Queue[T]) write(ctx context.Context, dir string, message *Message[T]) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	location := path.Join(dir, q.filename(message))
	if err := q.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write message %s: %w", location, err)
	}
	return nil
}

// finish moves the message document out of processing into dir.
func (q *Queue[T]) finish(ctx context.Context, message *Message[T], dir string) error {
	if err := q.write(ctx, dir, message); err != nil {
		return err
	}
	processing := path.Join(q.processingDir, q.filename(message))
	exists, _ := q.fs.Exists(ctx, processing)
	if exists {
		return q.fs.Delete(ctx, processing)
	}
	return nil
}

func (q *Queue[T]) filename(message *Message[T]) string {
	return fmt.Sprintf("%020d-%s.json", message.CreatedAt.UnixNano(), message.ID)
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
