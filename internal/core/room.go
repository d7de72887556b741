package core

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/vovakirdan/wirechat-irc/internal/proto"
)

// RoomState mirrors the last ROOMSTATE seen for a room.
type RoomState struct {
	RoomID        string
	EmoteOnly     bool
	FollowersOnly int // minutes, -1 when off
	R9K           bool
	SlowSeconds   int
	SubsOnly      bool
	UpdatedAt     time.Time
}

// Room groups the users and recent messages of one channel.
type Room struct {
	Name string

	mu    sync.RWMutex
	users map[string]*User
	state RoomState
	cache *MessageCache
}

// NewRoom constructs an empty room. The name must already be normalized.
func NewRoom(name string, cache *MessageCache) *Room {
	return &Room{
		Name:  name,
		users: make(map[string]*User),
		state: RoomState{FollowersOnly: -1},
		cache: cache,
	}
}

// Cache returns the room's message cache.
func (r *Room) Cache() *MessageCache {
	return r.cache
}

// User returns a member by login.
func (r *Room) User(id string) (*User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

// UpsertUser inserts a member or refreshes its profile and returns the
// current entry. Returns true if newly added.
func (r *Room) UpsertUser(id string, p Profile) (*User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		if u.sameProfile(p) {
			return u, false
		}
		next := u.withProfile(p)
		r.users[id] = next
		return next, false
	}
	u := (&User{ID: id}).withProfile(p)
	r.users[id] = u
	return u, true
}

// RemoveUser deletes a member. Returns true if removed.
func (r *Room) RemoveUser(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return false
	}
	delete(r.users, id)
	return true
}

// Users returns the members sorted by login.
func (r *Room) Users() []*User {
	r.mu.RLock()
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// State returns the last known room state.
func (r *Room) State() RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// ApplyState merges ROOMSTATE tags; absent tags keep their previous value.
func (r *Room) ApplyState(tags map[string]string, at time.Time) RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.state
	if v, ok := tags[proto.TagRoomID]; ok {
		s.RoomID = v
	}
	if v, ok := tags[proto.TagEmoteOnly]; ok {
		s.EmoteOnly = v == "1"
	}
	if v, ok := tags[proto.TagFollowersOnly]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.FollowersOnly = n
		}
	}
	if v, ok := tags[proto.TagR9K]; ok {
		s.R9K = v == "1"
	}
	if v, ok := tags[proto.TagSlow]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.SlowSeconds = n
		}
	}
	if v, ok := tags[proto.TagSubsOnly]; ok {
		s.SubsOnly = v == "1"
	}
	s.UpdatedAt = at
	r.state = s
	return s
}

func (r *Room) reset() {
	r.mu.Lock()
	r.users = make(map[string]*User)
	r.mu.Unlock()
	r.cache.Clear()
}
