package core

import (
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/vovakirdan/wirechat-irc/internal/proto"
)

// StoreOptions configures the caches of rooms created by a RoomStore.
type StoreOptions struct {
	// MessageLifetime <= 0 keeps messages regardless of age.
	MessageLifetime time.Duration
	// MaxMessages bounds each room's cache; <= 0 means no bound.
	MaxMessages int
}

// RoomStore maps normalized room names to rooms in insertion order.
// Lookups are safe while the dispatcher and the sweep task mutate it.
type RoomStore struct {
	opts StoreOptions

	mu    sync.RWMutex
	rooms *orderedmap.OrderedMap[string, *Room]
}

// NewRoomStore builds a store pre-populated with the given rooms.
func NewRoomStore(opts StoreOptions, initial ...string) *RoomStore {
	s := &RoomStore{
		opts:  opts,
		rooms: orderedmap.New[string, *Room](),
	}
	for _, name := range initial {
		s.Upsert(name)
	}
	return s
}

// Get returns the room for name after normalizing it.
func (s *RoomStore) Get(name string) (*Room, bool) {
	key := proto.NormalizeChannel(name)
	if key == "" {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms.Get(key)
}

// Upsert returns the room for name, creating it when absent.
// Returns nil for a blank name.
func (s *RoomStore) Upsert(name string) *Room {
	key := proto.NormalizeChannel(name)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rooms.Get(key); ok {
		return r
	}
	r := NewRoom(key, NewMessageCache(s.opts.MessageLifetime, s.opts.MaxMessages))
	s.rooms.Set(key, r)
	return r
}

// Remove drops a room together with its users and messages.
func (s *RoomStore) Remove(name string) bool {
	key := proto.NormalizeChannel(name)
	s.mu.Lock()
	r, ok := s.rooms.Delete(key)
	s.mu.Unlock()

	if ok {
		r.reset()
	}
	return ok
}

// Rooms returns a snapshot in insertion order.
func (s *RoomStore) Rooms() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Room, 0, s.rooms.Len())
	for pair := s.rooms.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Names returns the room names in insertion order.
func (s *RoomStore) Names() []string {
	rooms := s.Rooms()
	names := make([]string, len(rooms))
	for i, r := range rooms {
		names[i] = r.Name
	}
	return names
}

// Len returns the number of rooms.
func (s *RoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms.Len()
}

// Sweep drops expired messages from every room and returns the total removed,
// or Unbounded when retention is not limited.
func (s *RoomStore) Sweep(now time.Time) int {
	if s.opts.MessageLifetime <= 0 {
		return Unbounded
	}
	total := 0
	for _, r := range s.Rooms() {
		if n := r.Cache().SweepExpired(now); n > 0 {
			total += n
		}
	}
	return total
}

// Clear drops every room.
func (s *RoomStore) Clear() {
	s.mu.Lock()
	rooms := s.rooms
	s.rooms = orderedmap.New[string, *Room]()
	s.mu.Unlock()

	for pair := rooms.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.reset()
	}
}
