package event

import (
	"context"
	"log"

	"github.com/mossdao/gavel/internal/clock"
	"github.com/mossdao/gavel/service/messaging"
)

// Publisher fans typed events out to the typed queue and, when attached, the
// untyped firehose queue.
type Publisher[T any] struct {
	queue    messaging.Queue[Event[T]]
	anyQueue messaging.Queue[Event[any]]
}

// NewPublisher creates a publisher over the given queue.
func NewPublisher[T any](queue messaging.Queue[Event[T]]) *Publisher[T] {
	return &Publisher[T]{queue: queue}
}

// Publish stamps and enqueues the event. Enqueueing is best effort: when a
// queue has no consumer and its buffer fills up, the event is dropped rather
// than stalling the domain operation that published it.
func (p *Publisher[T]) Publish(ctx context.Context, event *Event[T]) error {
	event.CreatedAt = clock.Now()
	if p.anyQueue != nil {
		_ = enqueue(ctx, p.anyQueue, &Event[any]{
			Context:   event.Context,
			CreatedAt: event.CreatedAt,
			Metadata:  event.Metadata,
			Data:      event.Data,
		})
	}
	return enqueue(ctx, p.queue, event)
}

func enqueue[T any](ctx context.Context, queue messaging.Queue[T], t *T) error {
	bestEffort, ok := queue.(messaging.BestEffort[T])
	if !ok {
		return queue.Publish(ctx, t)
	}
	accepted, err := bestEffort.TryPublish(ctx, t)
	if err == nil && !accepted {
		log.Printf("event: queue full, dropped %T", *t)
	}
	return err
}

// Consume retrieves and acknowledges a single event.
func (p *Publisher[T]) Consume(ctx context.Context) (*Event[T], error) {
	msg, err := p.queue.Consume(ctx)
	if err != nil || msg == nil {
		return nil, err
	}
	if err = msg.Ack(); err != nil {
		return nil, err
	}
	return msg.T(), nil
}
