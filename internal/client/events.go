package client

import "github.com/vovakirdan/wirechat-irc/internal/core"

// Subscribe registers fn for every event. Handlers run one at a time on the
// delivery goroutine and may call blocking client methods.
func (c *Client) Subscribe(fn func(core.Event)) (unsubscribe func()) {
	return c.dispatcher.Subscribe(fn)
}

// OnReady registers fn for ReadyEvent.
func (c *Client) OnReady(fn func(*core.ReadyEvent)) (unsubscribe func()) {
	return subscribeTo(c, fn)
}

// OnMessage registers fn for MessageEvent.
func (c *Client) OnMessage(fn func(*core.MessageEvent)) (unsubscribe func()) {
	return subscribeTo(c, fn)
}

// OnJoin registers fn for JoinEvent.
func (c *Client) OnJoin(fn func(*core.JoinEvent)) (unsubscribe func()) {
	return subscribeTo(c, fn)
}

// OnPart registers fn for PartEvent.
func (c *Client) OnPart(fn func(*core.PartEvent)) (unsubscribe func()) {
	return subscribeTo(c, fn)
}

// OnNotice registers fn for NoticeEvent.
func (c *Client) OnNotice(fn func(*core.NoticeEvent)) (unsubscribe func()) {
	return subscribeTo(c, fn)
}

// OnDisconnect registers fn for DisconnectEvent.
func (c *Client) OnDisconnect(fn func(*core.DisconnectEvent)) (unsubscribe func()) {
	return subscribeTo(c, fn)
}

func subscribeTo[E core.Event](c *Client, fn func(E)) func() {
	return c.dispatcher.Subscribe(func(ev core.Event) {
		if e, ok := ev.(E); ok {
			fn(e)
		}
	})
}
