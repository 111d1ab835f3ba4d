// Package memory keeps exchange events in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/defistate/defistate-dex-go/dex"
	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
	"github.com/defistate/defistate-dex-go/storage"
	"github.com/google/uuid"
)

// EventStore is an in-memory storage.EventWriter.
type EventStore struct {
	mu     sync.RWMutex
	events []dex.Event
	byID   map[uuid.UUID]int
}

// Compile-time interface check.
var _ storage.EventWriter = (*EventStore)(nil)

func NewEventStore() *EventStore {
	return &EventStore{byID: make(map[uuid.UUID]int)}
}

// WriteEvents appends events, skipping IDs already stored.
func (s *EventStore) WriteEvents(_ context.Context, events []dex.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if _, ok := s.byID[ev.ID]; ok {
			continue
		}
		s.byID[ev.ID] = len(s.events)
		s.events = append(s.events, ev)
	}
	return nil
}

// Event returns the event with the given ID.
func (s *EventStore) Event(_ context.Context, id uuid.UUID) (dex.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return dex.Event{}, storage.ErrNotFound
	}
	return s.events[i], nil
}

// Events returns all stored events in arrival order.
func (s *EventStore) Events() []dex.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]dex.Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByPool returns the events of one pool in arrival order, which is sequence order.
func (s *EventStore) ByPool(pool poolregistry.PoolKey) []dex.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []dex.Event
	for _, ev := range s.events {
		if ev.Pool == pool {
			out = append(out, ev)
		}
	}
	return out
}

func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
