package conversation

import (
	"context"
	"sync"
)

// MemoryStore keeps conversations in process memory. It backs tests and the
// `memory` store driver for local runs; it is not shared across processes.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]*Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Conversation)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, c *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[c.ID]; ok {
		return ErrConflict
	}
	c.Version = 1
	s.docs[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, c *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.docs[c.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != c.Version {
		return ErrConflict
	}
	c.Version++
	s.docs[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) Oldest(_ context.Context, status Status, now int64) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Conversation
	for _, c := range s.docs {
		if c.Status != status || c.Claimed(now) {
			continue
		}
		if best == nil || c.UpdatedAt < best.UpdatedAt || (c.UpdatedAt == best.UpdatedAt && c.ID < best.ID) {
			best = c
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best.Clone(), nil
}
