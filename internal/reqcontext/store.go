package reqcontext

import (
	"fmt"
	"sync"
	"time"
)

// Store holds the sticky context items of each session.
type Store struct {
	mu    sync.RWMutex
	items map[string][]SessionItem
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{items: make(map[string][]SessionItem)}
}

// Add adds or replaces a session item. Only always and manual items can be
// sticky.
func (s *Store) Add(sessionID string, item SessionItem) error {
	if item.IncludeMode != IncludeAlways && item.IncludeMode != IncludeManual {
		return fmt.Errorf("%w: %q", ErrInvalidIncludeMode, item.IncludeMode)
	}
	if err := item.Validate(); err != nil {
		return err
	}
	if item.AddedAt == 0 {
		item.AddedAt = time.Now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.items[sessionID]
	for i := range list {
		if list[i].Key() == item.Key() {
			list[i] = item
			return nil
		}
	}
	s.items[sessionID] = append(list, item)
	return nil
}

// Remove deletes an item and reports whether it existed.
func (s *Store) Remove(sessionID string, item Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.items[sessionID]
	for i := range list {
		if list[i].Key() == item.Key() {
			list = append(list[:i:i], list[i+1:]...)
			if len(list) == 0 {
				delete(s.items, sessionID)
			} else {
				s.items[sessionID] = list
			}
			return true
		}
	}
	return false
}

// List returns a copy of the session's items in insertion order.
func (s *Store) List(sessionID string) []SessionItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SessionItem(nil), s.items[sessionID]...)
}

// Clear drops every item of a session.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, sessionID)
}
