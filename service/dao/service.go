package dao

import (
	"context"
)

// Service is the narrow storage port every manager owns its entity through.
// Durable backends implement it per entity type; the reference
// implementations live in store (memory) and fsstore (file system).
//
// Mutate is the only sanctioned read-modify-write path: implementations MUST
// apply fn atomically with respect to concurrent Mutate calls on the same id,
// so that concurrent approvals or decision submissions cannot interleave.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)

	// Mutate loads the entity, applies fn under an entity-level critical
	// section and persists the result. fn returning an error aborts the
	// update and propagates unchanged.
	Mutate(ctx context.Context, id K, fn func(*T) error) (*T, error)
}
