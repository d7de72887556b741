package core

import "time"

// Message is the domain model for a chat message seen in a room.
type Message struct {
	ID      string
	Room    string
	Author  *User
	Content string
	// Action is set for /me messages.
	Action bool
	// CreatedAt is the local receipt time.
	CreatedAt time.Time
	// EditedAt is zero unless the message was edited.
	EditedAt time.Time
	// SentAt is the server timestamp when the frame carried one.
	SentAt time.Time
	Tags   map[string]string
}

// EffectiveTime is the timestamp retention is measured from.
func (m *Message) EffectiveTime() time.Time {
	if !m.EditedAt.IsZero() {
		return m.EditedAt
	}
	return m.CreatedAt
}

// AuthorID returns the author login or "".
func (m *Message) AuthorID() string {
	if m.Author == nil {
		return ""
	}
	return m.Author.ID
}
