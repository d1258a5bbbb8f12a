package messaging

import (
	"context"
)

// Vendor names a queue implementation ("memory", "fs").
type Vendor string

const (
	VendorMemory Vendor = "memory"
	VendorFs     Vendor = "fs"
)

// Queue is an abstract message queue for any payload type. Domain events and
// reviewer notifications travel through queues so that emission is decoupled
// from handler execution order.
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue.
	Publish(ctx context.Context, t *T) error

	// Consume retrieves a single message from the queue.
	Consume(ctx context.Context) (Message[T], error)
}

// BestEffort is implemented by vendors that can enqueue without blocking.
type BestEffort[T any] interface {
	// TryPublish reports whether the message was accepted. A full queue
	// drops the message instead of stalling the publisher.
	TryPublish(ctx context.Context, t *T) (bool, error)
}

// Message is a message retrieved from a queue.
type Message[T any] interface {
	// T returns the payload of this message.
	T() *T

	// Ack acknowledges successful processing of this message.
	Ack() error

	// Nack indicates failure in processing this message.
	Nack(err error) error
}
