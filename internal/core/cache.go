package core

import (
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Unbounded is returned by Sweep when retention is not limited.
const Unbounded = -1

// MessageCache keeps the recent messages of one room in arrival order.
// It is bounded by entry count and, when lifetime > 0, by age.
type MessageCache struct {
	mu         sync.RWMutex
	lifetime   time.Duration
	maxEntries int
	entries    *orderedmap.OrderedMap[string, *Message]
}

// NewMessageCache builds a cache. lifetime <= 0 keeps messages until evicted by
// size; maxEntries <= 0 disables the size bound.
func NewMessageCache(lifetime time.Duration, maxEntries int) *MessageCache {
	return &MessageCache{
		lifetime:   lifetime,
		maxEntries: maxEntries,
		entries:    orderedmap.New[string, *Message](),
	}
}

// Lifetime returns the configured retention.
func (c *MessageCache) Lifetime() time.Duration {
	return c.lifetime
}

// Add stores a message, replacing one with the same id, and evicts the oldest
// entries beyond the size bound.
func (c *MessageCache) Add(m *Message) {
	if m == nil || m.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Set(m.ID, m)
	if c.maxEntries <= 0 {
		return
	}
	for c.entries.Len() > c.maxEntries {
		oldest := c.entries.Oldest()
		if oldest == nil {
			break
		}
		c.entries.Delete(oldest.Key)
	}
}

// Get returns the message with the given id.
func (c *MessageCache) Get(id string) (*Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries.Get(id)
}

// Edit replaces the content of a cached message and stamps its edit time.
func (c *MessageCache) Edit(id, content string, at time.Time) (*Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.entries.Get(id)
	if !ok {
		return nil, false
	}
	next := *m
	next.Content = content
	next.EditedAt = at
	c.entries.Set(id, &next)
	return &next, true
}

// Remove drops a message by id.
func (c *MessageCache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries.Delete(id)
	return ok
}

// RemoveFunc drops every message matching pred and returns how many went.
func (c *MessageCache) RemoveFunc(pred func(*Message) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []string
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		if pred(pair.Value) {
			doomed = append(doomed, pair.Key)
		}
	}
	removed := 0
	for _, id := range doomed {
		// entry may already be gone
		if _, ok := c.entries.Delete(id); ok {
			removed++
		}
	}
	return removed
}

// Sweep removes messages matching pred in one pass. With unbounded retention
// it returns Unbounded without calling pred.
func (c *MessageCache) Sweep(pred func(*Message) bool) int {
	if c.lifetime <= 0 {
		return Unbounded
	}
	return c.RemoveFunc(pred)
}

// SweepExpired drops messages older than the lifetime as of now.
func (c *MessageCache) SweepExpired(now time.Time) int {
	return c.Sweep(func(m *Message) bool {
		return now.Sub(m.EffectiveTime()) > c.lifetime
	})
}

// Messages returns a snapshot, oldest first.
func (c *MessageCache) Messages() []*Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Message, 0, c.entries.Len())
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Len returns the number of cached messages.
func (c *MessageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries.Len()
}

// Clear drops every message.
func (c *MessageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = orderedmap.New[string, *Message]()
}
