package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps records in process memory and evicts them after ttl.
type MemoryStore struct {
	mu    sync.Mutex
	items *cache.Cache
	newID func() string
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		items: cache.New(ttl, 2*ttl),
		newID: uuid.NewString,
	}
}

func (s *MemoryStore) Save(ctx context.Context, rec Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	if err := s.items.Add(id, rec, cache.DefaultExpiration); err != nil {
		return "", err
	}
	return id, nil
}

// Restore puts rec back under id, e.g. after a Take whose phase failed
// before doing anything irreversible.
func (s *MemoryStore) Restore(ctx context.Context, id string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items.Set(id, rec, cache.DefaultExpiration)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string, phase Phase) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lookup(id, phase)
}

func (s *MemoryStore) Take(ctx context.Context, id string, phase Phase) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(id, phase)
	if err != nil {
		return nil, err
	}
	s.items.Delete(id)
	return rec, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items.Delete(id)
	return nil
}

// Len reports the number of unexpired records.
func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}

func (s *MemoryStore) lookup(id string, phase Phase) (Record, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	v, ok := s.items.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := v.(Record)
	if !ok || rec.Phase() != phase {
		return nil, ErrNotFound
	}
	return rec, nil
}
