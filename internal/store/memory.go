package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ecervera/temario/internal/errors"
)

// MemoryStore implements TopicStore in process memory. It backs tests and
// provides a zero-setup store for the CLI commands that only need a scratch
// catalog.
type MemoryStore struct {
	mu         sync.RWMutex
	topics     map[string]*Topic
	state      map[string]string
	generation atomic.Uint64

	locks sync.Map // string -> *sync.Mutex
}

var _ TopicStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		topics: make(map[string]*Topic),
		state:  make(map[string]string),
	}
}

// Get returns a snapshot of one topic.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[id]
	if !ok {
		return nil, errors.NotFound(id)
	}
	return t.Clone(), nil
}

// All returns snapshots of every topic.
func (s *MemoryStore) All(ctx context.Context) ([]*Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topics := make([]*Topic, 0, len(s.topics))
	for _, t := range s.topics {
		topics = append(topics, t.Clone())
	}
	return topics, nil
}

// Mutate runs fn under the topic's lock and stores the result.
func (s *MemoryStore) Mutate(ctx context.Context, id string, fn MutateFunc) error {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	s.mu.RLock()
	current, ok := s.topics[id]
	s.mu.RUnlock()

	var snapshot *Topic
	if ok {
		snapshot = current.Clone()
	}

	updated, err := fn(snapshot)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	s.mu.Lock()
	s.topics[id] = updated.Clone()
	s.mu.Unlock()
	s.generation.Add(1)
	return nil
}

// Delete removes one topic.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[id]; !ok {
		return errors.NotFound(id)
	}
	delete(s.topics, id)
	s.generation.Add(1)
	return nil
}

// Reset drops every topic and all state.
func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = make(map[string]*Topic)
	s.state = make(map[string]string)
	s.generation.Add(1)
	return nil
}

// GetState reads a state value; unset keys yield an empty string.
func (s *MemoryStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[key], nil
}

// SetState writes a state value.
func (s *MemoryStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = value
	s.generation.Add(1)
	return nil
}

// Generation returns the write counter.
func (s *MemoryStore) Generation() uint64 {
	return s.generation.Load()
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) lockFor(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
