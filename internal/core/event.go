package core

import (
	"context"
	"errors"
	"time"

	"github.com/vovakirdan/wirechat-irc/internal/proto"
)

// EventKind identifies an event variant.
type EventKind int

const (
	// EventReady is emitted once the session is authenticated.
	EventReady EventKind = iota
	// EventMessage notifies about a chat message in a room.
	EventMessage
	// EventJoin notifies about a user joining a room.
	EventJoin
	// EventPart notifies about a user leaving a room.
	EventPart
	// EventDisconnect notifies that the session ended.
	EventDisconnect
	// EventNotice carries a server notice.
	EventNotice
	// EventClearChat notifies about a timeout, ban or chat clear.
	EventClearChat
	// EventClearMsg notifies about a single deleted message.
	EventClearMsg
	// EventRoomState carries updated room settings.
	EventRoomState
	// EventRaw carries any frame without a dedicated variant.
	EventRaw
)

var kindNames = [...]string{
	EventReady:      "ready",
	EventMessage:    "message",
	EventJoin:       "join",
	EventPart:       "part",
	EventDisconnect: "disconnect",
	EventNotice:     "notice",
	EventClearChat:  "clearchat",
	EventClearMsg:   "clearmsg",
	EventRoomState:  "roomstate",
	EventRaw:        "raw",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Event is the closed set of notifications delivered to subscribers.
type Event interface {
	Kind() EventKind
	event()
}

// MessageMetadata describes a message the client sent.
type MessageMetadata struct {
	Nonce   string
	Room    string
	Content string
	ReplyTo string
	SentAt  time.Time
}

// Replier sends a threaded reply to a room message.
type Replier interface {
	Reply(ctx context.Context, room, parentID, text string) (MessageMetadata, error)
}

// ErrNoReplier is returned by MessageEvent.Reply when no sender is bound.
var ErrNoReplier = errors.New("reply not available")

// ReadyEvent carries the authenticated identity and when it was granted.
type ReadyEvent struct {
	Identity string
	At       time.Time
}

// MessageEvent delivers a chat message that is already cached in its room.
type MessageEvent struct {
	Room    *Room
	Author  *User
	Message *Message
	replier Replier
}

// NewMessageEvent binds a message to the sender used by Reply.
func NewMessageEvent(room *Room, msg *Message, replier Replier) *MessageEvent {
	return &MessageEvent{Room: room, Author: msg.Author, Message: msg, replier: replier}
}

// Reply answers the message in its room as a thread reply.
func (e *MessageEvent) Reply(ctx context.Context, text string) (MessageMetadata, error) {
	if e.replier == nil {
		return MessageMetadata{}, ErrNoReplier
	}
	return e.replier.Reply(ctx, e.Room.Name, e.Message.ID, text)
}

// JoinEvent notifies about a JOIN. Self is set for the client's own join.
type JoinEvent struct {
	Room string
	User string
	Self bool
}

// PartEvent notifies about a PART. Self is set for the client's own leave.
type PartEvent struct {
	Room string
	User string
	Self bool
}

// DisconnectEvent notifies that the session went down for good.
type DisconnectEvent struct {
	Reason string
	Err    error
}

// NoticeEvent carries a server notice; Room is empty for global notices.
type NoticeEvent struct {
	Room  string
	MsgID string
	Text  string
}

// ClearChatEvent is a chat clear (User empty) or a timeout/ban of User.
// Duration is zero for permanent bans and full clears.
type ClearChatEvent struct {
	Room     string
	User     string
	Duration time.Duration
	Removed  int
}

// ClearMsgEvent notifies about a deleted message.
type ClearMsgEvent struct {
	Room      string
	MessageID string
	Login     string
	Removed   bool
}

// RoomStateEvent carries the merged room settings.
type RoomStateEvent struct {
	Room  string
	State RoomState
}

// RawEvent carries a frame no other variant covers.
type RawEvent struct {
	Frame proto.Frame
	At    time.Time
}

func (*ReadyEvent) Kind() EventKind      { return EventReady }
func (*MessageEvent) Kind() EventKind    { return EventMessage }
func (*JoinEvent) Kind() EventKind       { return EventJoin }
func (*PartEvent) Kind() EventKind       { return EventPart }
func (*DisconnectEvent) Kind() EventKind { return EventDisconnect }
func (*NoticeEvent) Kind() EventKind     { return EventNotice }
func (*ClearChatEvent) Kind() EventKind  { return EventClearChat }
func (*ClearMsgEvent) Kind() EventKind   { return EventClearMsg }
func (*RoomStateEvent) Kind() EventKind  { return EventRoomState }
func (*RawEvent) Kind() EventKind        { return EventRaw }

func (*ReadyEvent) event()      {}
func (*MessageEvent) event()    {}
func (*JoinEvent) event()       {}
func (*PartEvent) event()       {}
func (*DisconnectEvent) event() {}
func (*NoticeEvent) event()     {}
func (*ClearChatEvent) event()  {}
func (*ClearMsgEvent) event()   {}
func (*RoomStateEvent) event()  {}
func (*RawEvent) event()        {}
