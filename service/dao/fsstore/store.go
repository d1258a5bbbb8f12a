// Package fsstore implements a file-system backed dao.Service on top of the
// viant/afs abstraction. One JSON document per entity; suitable as a durable
// reference backend and for local inspection of engine state.
package fsstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/mossdao/gavel/service/dao"
)

// Store persists entities of type T as JSON files under basePath.
type Store[T any] struct {
	fs          afs.Service
	basePath    string
	keySelector func(*T) string
	matcher     func(*T, []*dao.Parameter) bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option customises a Store.
type Option[T any] func(*Store[T])

// WithMatcher installs a List filter evaluator.
func WithMatcher[T any](matcher func(*T, []*dao.Parameter) bool) Option[T] {
	return func(s *Store[T]) { s.matcher = matcher }
}

// New creates a file-system store rooted at basePath.
func New[T any](fs afs.Service, basePath string, keySelector func(*T) string, options ...Option[T]) *Store[T] {
	ret := &Store[T]{
		fs:          fs,
		basePath:    basePath,
		keySelector: keySelector,
		locks:       make(map[string]*sync.Mutex),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (s *Store[T]) entityPath(id string) string {
	name := strings.ReplaceAll(id, "/", "_")
	return path.Join(s.basePath, name+".json")
}

func (s *Store[T]) entityLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Save persists an entity document.
func (s *Store[T]) Save(ctx context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	id := s.keySelector(v)
	if id == "" {
		return dao.ErrInvalidID
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal entity %s: %w", id, err)
	}
	location := s.entityPath(id)
	if err := s.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save entity to %s: %w", location, err)
	}
	return nil
}

// Load reads an entity document, returning nil when absent.
func (s *Store[T]) Load(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	location := s.entityPath(id)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", location, err)
	}
	if !exists {
		return nil, nil
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", location, err)
	}
	return &v, nil
}

// Delete removes an entity document.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	location := s.entityPath(id)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil || !exists {
		return err
	}
	return s.fs.Delete(ctx, location)
}

// List downloads every entity document and applies the matcher.
func (s *Store[T]) List(ctx context.Context, parameters ...*dao.Parameter) ([]*T, error) {
	exists, err := s.fs.Exists(ctx, s.basePath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []*T{}, nil
	}
	objects, err := s.fs.List(ctx, s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.basePath, err)
	}
	out := make([]*T, 0, len(objects))
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.DownloadWithURL(ctx, object.URL())
		if err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", object.URL(), err)
		}
		if s.matcher != nil && !s.matcher(&v, parameters) {
			continue
		}
		out = append(out, &v)
	}
	return out, nil
}

// Mutate serializes per entity id: the document is re-read, fn applied and
// the result written back while the id lock is held.
func (s *Store[T]) Mutate(ctx context.Context, id string, fn func(*T) error) (*T, error) {
	l := s.entityLock(id)
	l.Lock()
	defer l.Unlock()

	v, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, dao.ErrNotFound
	}
	if err := fn(v); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

var _ dao.Service[string, any] = (*Store[any])(nil)
