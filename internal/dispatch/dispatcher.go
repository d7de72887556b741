// Package dispatch turns inbound frames into typed events, applies them to the
// room store and delivers them to subscribers.
package dispatch

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-irc/internal/core"
	"github.com/vovakirdan/wirechat-irc/internal/proto"
	"github.com/vovakirdan/wirechat-irc/internal/utils"
)

// Session is the part of the session manager the dispatcher reports to.
type Session interface {
	Identity() string
	ResolveJoin(room string, ok bool) bool
	ResolveLeave(room string, ok bool) bool
}

// Handler receives events on the delivery goroutine.
type Handler func(core.Event)

type subscription struct {
	id int
	fn Handler
}

// Dispatcher applies frames synchronously in arrival order and queues the
// resulting events for Run.
type Dispatcher struct {
	store   *core.RoomStore
	session Session
	replier core.Replier
	log     *zerolog.Logger

	subMu  sync.RWMutex
	subs   []subscription
	nextID int

	mu     sync.Mutex
	events []core.Event
	wake   chan struct{}
}

// New builds a dispatcher over store. session and replier may be nil.
func New(store *core.RoomStore, session Session, replier core.Replier, logger *zerolog.Logger) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	dispLog := logger.With().Str("component", "dispatch").Logger()
	return &Dispatcher{
		store:   store,
		session: session,
		replier: replier,
		log:     &dispLog,
		wake:    make(chan struct{}, 1),
	}
}

// Subscribe registers fn for every event and returns a function removing it.
func (d *Dispatcher) Subscribe(fn Handler) (unsubscribe func()) {
	d.subMu.Lock()
	d.nextID++
	id := d.nextID
	d.subs = append(d.subs, subscription{id: id, fn: fn})
	d.subMu.Unlock()

	return func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		for i, s := range d.subs {
			if s.id == id {
				d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
				return
			}
		}
	}
}

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		d.mu.Lock()
		batch := d.events
		d.events = nil
		d.mu.Unlock()

		for _, ev := range batch {
			d.deliver(ev)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-d.wake:
		case <-ctx.Done():
			return
		}
	}
}

// Pending returns the number of events not yet delivered.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func (d *Dispatcher) emit(ev core.Event) {
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) deliver(ev core.Event) {
	d.subMu.RLock()
	subs := append([]subscription(nil), d.subs...)
	d.subMu.RUnlock()

	for _, s := range subs {
		d.call(s.fn, ev)
	}
}

func (d *Dispatcher) call(fn Handler, ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Stringer("event", ev.Kind()).Msg("event handler panicked")
		}
	}()
	fn(ev)
}

// HandleDisconnect emits the terminal DisconnectEvent of a session.
func (d *Dispatcher) HandleDisconnect(reason string, err error) {
	d.emit(&core.DisconnectEvent{Reason: reason, Err: err})
}

// HandleFrame applies f to the store and queues its event.
func (d *Dispatcher) HandleFrame(f proto.Frame, at time.Time) {
	switch f.Command() {
	case proto.RplWelcome:
		d.emit(&core.ReadyEvent{Identity: d.identity(f.Param(0)), At: at})
	case proto.CmdPrivmsg:
		d.privmsg(f, at)
	case proto.CmdJoin:
		d.join(f)
	case proto.CmdPart:
		d.part(f)
	case proto.RplNamReply:
		d.names(f)
		d.emit(&core.RawEvent{Frame: f, At: at})
	case proto.CmdNotice:
		d.notice(f)
	case proto.CmdClearChat:
		d.clearChat(f)
	case proto.CmdClearMsg:
		d.clearMsg(f)
	case proto.CmdRoomState:
		d.roomState(f, at)
	default:
		d.emit(&core.RawEvent{Frame: f, At: at})
	}
}

func (d *Dispatcher) identity(fallback string) string {
	if d.session != nil {
		if id := d.session.Identity(); id != "" {
			return id
		}
	}
	return fallback
}

func (d *Dispatcher) isSelf(login string) bool {
	return d.session != nil && login != "" && login == d.session.Identity()
}

func (d *Dispatcher) room(f proto.Frame) (*core.Room, bool) {
	r, ok := d.store.Get(f.Param(0))
	if !ok {
		d.log.Debug().Str("command", f.Command()).Str("room", f.Param(0)).Msg("frame for unknown room skipped")
	}
	return r, ok
}

func profileFromTags(f proto.Frame) core.Profile {
	var p core.Profile
	p.DisplayName, _ = f.Tag(proto.TagDisplayName)
	p.Color, _ = f.Tag(proto.TagColor)
	if raw, ok := f.Tag(proto.TagBadges); ok {
		p.Badges = core.ParseBadges(raw)
	}
	return p
}

const (
	actionPrefix = "\x01ACTION "
	actionSuffix = "\x01"
)

func (d *Dispatcher) privmsg(f proto.Frame, at time.Time) {
	r, ok := d.room(f)
	if !ok {
		return
	}
	login := strings.ToLower(f.Nick())
	author, _ := r.UpsertUser(login, profileFromTags(f))

	text := f.Trailing()
	action := false
	if strings.HasPrefix(text, actionPrefix) {
		action = true
		text = strings.TrimSuffix(strings.TrimPrefix(text, actionPrefix), actionSuffix)
	}

	id, _ := f.Tag(proto.TagID)
	if id == "" {
		id = utils.NewID()
	}

	msg := &core.Message{
		ID:        id,
		Room:      r.Name,
		Author:    author,
		Content:   text,
		Action:    action,
		CreatedAt: at,
		SentAt:    sentAt(f),
		Tags:      f.Tags(),
	}
	r.Cache().Add(msg)
	d.emit(core.NewMessageEvent(r, msg, d.replier))
}

func sentAt(f proto.Frame) time.Time {
	raw, ok := f.Tag(proto.TagSentTS)
	if !ok {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (d *Dispatcher) join(f proto.Frame) {
	name := proto.NormalizeChannel(f.Param(0))
	login := strings.ToLower(f.Nick())
	self := d.isSelf(login)

	if self {
		r := d.store.Upsert(name)
		if r != nil {
			r.UpsertUser(login, core.Profile{})
		}
		d.session.ResolveJoin(name, true)
	} else if r, ok := d.store.Get(name); ok {
		r.UpsertUser(login, core.Profile{})
	}
	d.emit(&core.JoinEvent{Room: name, User: login, Self: self})
}

func (d *Dispatcher) part(f proto.Frame) {
	name := proto.NormalizeChannel(f.Param(0))
	login := strings.ToLower(f.Nick())
	self := d.isSelf(login)

	if self {
		d.store.Remove(name)
		d.session.ResolveLeave(name, true)
	} else if r, ok := d.store.Get(name); ok {
		r.RemoveUser(login)
	}
	d.emit(&core.PartEvent{Room: name, User: login, Self: self})
}

// names handles "353 <me> = #room :a b c".
func (d *Dispatcher) names(f proto.Frame) {
	r, ok := d.store.Get(f.Param(f.NumParams() - 2))
	if !ok {
		return
	}
	for _, login := range strings.Fields(f.Trailing()) {
		r.UpsertUser(strings.ToLower(login), core.Profile{})
	}
}

func (d *Dispatcher) notice(f proto.Frame) {
	room := proto.NormalizeChannel(f.Param(0))
	if f.Param(0) == "*" {
		room = ""
	}
	msgID, _ := f.Tag(proto.TagMsgID)

	if room != "" && proto.IsJoinRefusal(msgID) && d.session != nil {
		d.log.Warn().Str("room", room).Str("msg_id", msgID).Msg("join refused")
		d.session.ResolveJoin(room, false)
	}
	d.emit(&core.NoticeEvent{Room: room, MsgID: msgID, Text: f.Trailing()})
}

func (d *Dispatcher) clearChat(f proto.Frame) {
	r, ok := d.room(f)
	if !ok {
		return
	}
	ev := &core.ClearChatEvent{Room: r.Name}
	if f.NumParams() > 1 {
		ev.User = strings.ToLower(f.Trailing())
	}
	if raw, ok := f.Tag(proto.TagBanDuration); ok {
		if secs, err := strconv.Atoi(raw); err == nil {
			ev.Duration = time.Duration(secs) * time.Second
		}
	}

	if ev.User == "" {
		ev.Removed = r.Cache().Len()
		r.Cache().Clear()
	} else {
		target := ev.User
		ev.Removed = r.Cache().RemoveFunc(func(m *core.Message) bool {
			return m.AuthorID() == target
		})
	}
	d.emit(ev)
}

func (d *Dispatcher) clearMsg(f proto.Frame) {
	r, ok := d.room(f)
	if !ok {
		return
	}
	id, _ := f.Tag(proto.TagTargetMsgID)
	login, _ := f.Tag(proto.TagLogin)
	d.emit(&core.ClearMsgEvent{
		Room:      r.Name,
		MessageID: id,
		Login:     login,
		Removed:   id != "" && r.Cache().Remove(id),
	})
}

func (d *Dispatcher) roomState(f proto.Frame, at time.Time) {
	r, ok := d.room(f)
	if !ok {
		return
	}
	state := r.ApplyState(f.Tags(), at)
	d.emit(&core.RoomStateEvent{Room: r.Name, State: state})
}
