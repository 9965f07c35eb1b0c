package repository

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/sakashimaa/go-grocery/internal/notification/domain"
)

type feed struct {
	mu    sync.Mutex
	items []domain.Notification
}

type MemoryFeedStore struct {
	mu    sync.Mutex
	feeds map[string]*feed
	limit int
}

// NewMemoryFeedStore keeps at most limit notifications per feed; limit <= 0 means unbounded.
func NewMemoryFeedStore(limit int) *MemoryFeedStore {
	return &MemoryFeedStore{feeds: make(map[string]*feed), limit: limit}
}

func (s *MemoryFeedStore) feedFor(key string) *feed {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[key]
	if !ok {
		f = &feed{}
		s.feeds[key] = f
	}
	return f
}

// lookup never creates a feed.
func (s *MemoryFeedStore) lookup(key string) (*feed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[key]
	return f, ok
}

func (s *MemoryFeedStore) Append(_ context.Context, key string, n domain.Notification) error {
	f := s.feedFor(key)
	f.mu.Lock()
	defer f.mu.Unlock()

	n.Payload = maps.Clone(n.Payload)
	f.items = slices.Insert(f.items, 0, n)
	if s.limit > 0 && len(f.items) > s.limit {
		f.items = f.items[:s.limit]
	}
	return nil
}

func (s *MemoryFeedStore) List(_ context.Context, key string) ([]domain.Notification, error) {
	f, ok := s.lookup(key)
	if !ok {
		return []domain.Notification{}, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]domain.Notification, len(f.items))
	for i, n := range f.items {
		n.Payload = maps.Clone(n.Payload)
		result[i] = n
	}
	return result, nil
}

func (s *MemoryFeedStore) MarkRead(_ context.Context, key string, id int64) (bool, error) {
	f, ok := s.lookup(key)
	if !ok {
		return false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Read = true
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryFeedStore) Clear(_ context.Context, key string) error {
	f, ok := s.lookup(key)
	if !ok {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = nil
	return nil
}

func (s *MemoryFeedStore) Close() error { return nil }
