// Package client is the public face of a chat connection: one session, one
// room store, the dispatcher between them and the retention sweep.
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-irc/internal/config"
	"github.com/vovakirdan/wirechat-irc/internal/core"
	"github.com/vovakirdan/wirechat-irc/internal/dispatch"
	"github.com/vovakirdan/wirechat-irc/internal/proto"
	"github.com/vovakirdan/wirechat-irc/internal/session"
	"github.com/vovakirdan/wirechat-irc/internal/transport"
	"github.com/vovakirdan/wirechat-irc/internal/utils"
)

// Option customizes a Client.
type Option func(*options)

type options struct {
	dialer transport.Dialer
	clock  clock.Clock
}

// WithDialer replaces the transport selected by the configuration.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithClock replaces the wall clock used for timeouts, pacing and sweeping.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// Client owns a session and the rooms it joined.
type Client struct {
	cfg   config.Config
	log   *zerolog.Logger
	clock clock.Clock

	store      *core.RoomStore
	dispatcher *dispatch.Dispatcher
	session    *session.Manager

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// frameSink forwards session callbacks to a dispatcher built after the session.
type frameSink struct {
	d *dispatch.Dispatcher
}

func (s *frameSink) HandleFrame(f proto.Frame, at time.Time) { s.d.HandleFrame(f, at) }

func (s *frameSink) HandleDisconnect(reason string, err error) { s.d.HandleDisconnect(reason, err) }

// New validates cfg and starts the delivery and sweep tasks. The session
// stays disconnected until Login.
func New(cfg config.Config, logger *zerolog.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.dialer == nil {
		d, err := dialerFor(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
		}
		o.dialer = d
	}

	clientLog := logger.With().Str("component", "client").Logger()
	c := &Client{
		cfg:   cfg,
		log:   &clientLog,
		clock: o.clock,
		store: core.NewRoomStore(core.StoreOptions{
			MessageLifetime: cfg.MessageLifetimeDuration(),
			MaxMessages:     cfg.MaxMessages,
		}, cfg.Rooms...),
	}

	sink := &frameSink{}
	c.session = session.New(sessionConfig(cfg), o.dialer, sink, logger, o.clock)
	c.dispatcher = dispatch.New(c.store, c.session, c, logger)
	sink.d = c.dispatcher

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.dispatcher.Subscribe(c.onEvent)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.dispatcher.Run(c.ctx)
	}()

	if every := cfg.SweepEvery(); every > 0 && cfg.MessageLifetimeDuration() > 0 {
		ticker := c.clock.Ticker(every)
		c.wg.Add(1)
		go c.sweepLoop(ticker)
	}

	return c, nil
}

func dialerFor(cfg config.Config) (transport.Dialer, error) {
	if cfg.Transport == config.TransportMemory {
		return transport.NewMemoryDialer(), nil
	}
	return transport.New(transport.Kind(cfg.Transport), cfg.Addr)
}

func sessionConfig(cfg config.Config) session.Config {
	return session.Config{
		DialTimeout:       cfg.DialTimeout,
		AuthTimeout:       cfg.AuthTimeout,
		RequestTimeout:    cfg.RequestTimeout,
		MaxRetries:        cfg.MaxRetries,
		ReconnectDelay:    cfg.ReconnectDelay,
		ReconnectMaxDelay: cfg.ReconnectMaxDelay,
		KeepAliveInterval: cfg.KeepAliveInterval,
		Rate:              session.RateProfile{Capacity: cfg.RateCapacity, Period: cfg.RatePeriod},
	}
}

// Login authenticates with creds, or with the configured credentials when
// creds is nil.
func (c *Client) Login(ctx context.Context, creds *session.Credentials) (session.Ready, error) {
	if creds == nil {
		creds = &session.Credentials{Username: c.cfg.Username, Token: c.cfg.Token}
	}
	return c.session.Login(ctx, *creds)
}

// Join requests membership of room; the room appears in the store once the
// server confirms.
func (c *Client) Join(ctx context.Context, room string) (bool, error) {
	return c.session.Join(ctx, room)
}

// Leave gives up membership of room.
func (c *Client) Leave(ctx context.Context, room string) (bool, error) {
	return c.session.Leave(ctx, room)
}

// Ping returns the round trip time to the server.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	return c.session.Ping(ctx)
}

// Disconnect ends the session. Rooms stay in the store and are joined again
// on the next Login.
func (c *Client) Disconnect() error {
	return c.session.Disconnect()
}

// Send posts text to room.
func (c *Client) Send(ctx context.Context, room, text string) (core.MessageMetadata, error) {
	return c.send(ctx, room, "", text)
}

// Reply posts text to room as a reply to the message parentID.
func (c *Client) Reply(ctx context.Context, room, parentID, text string) (core.MessageMetadata, error) {
	if parentID == "" {
		return core.MessageMetadata{}, fmt.Errorf("%w: empty parent id", proto.ErrInvalidParameter)
	}
	return c.send(ctx, room, parentID, text)
}

func (c *Client) send(ctx context.Context, room, parentID, text string) (core.MessageMetadata, error) {
	name := proto.NormalizeChannel(room)
	if name == "" {
		return core.MessageMetadata{}, fmt.Errorf("%w: room %q", proto.ErrInvalidParameter, room)
	}
	if strings.TrimSpace(text) == "" {
		return core.MessageMetadata{}, fmt.Errorf("%w: empty message", proto.ErrInvalidParameter)
	}

	meta := core.MessageMetadata{
		Nonce:   utils.NewID(),
		Room:    name,
		Content: text,
		ReplyTo: parentID,
	}
	tags := map[string]string{proto.TagClientNonce: meta.Nonce}
	if parentID != "" {
		tags[proto.TagReplyParentMsgID] = parentID
	}

	at, err := c.session.Send(ctx, proto.CmdPrivmsg, []string{name, text}, tags)
	if err != nil {
		return core.MessageMetadata{}, err
	}
	meta.SentAt = at
	return meta, nil
}

// Room returns a joined room by name; the name is normalized first.
func (c *Client) Room(name string) (*core.Room, bool) {
	return c.store.Get(name)
}

// Rooms returns the rooms in the order they were added.
func (c *Client) Rooms() []*core.Room {
	return c.store.Rooms()
}

// State returns the session state.
func (c *Client) State() session.State {
	return c.session.State()
}

// Identity returns the authenticated login.
func (c *Client) Identity() string {
	return c.session.Identity()
}

// Sweep drops expired messages now and returns how many were removed,
// -1 when retention is unbounded.
func (c *Client) Sweep() int {
	return c.store.Sweep(c.clock.Now())
}

// Close disconnects and stops the background tasks. It is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		_ = c.session.Disconnect()
		c.cancel()
		c.wg.Wait()
	})
	return nil
}

func (c *Client) onEvent(ev core.Event) {
	if _, ok := ev.(*core.ReadyEvent); !ok {
		return
	}
	names := c.store.Names()
	if len(names) == 0 {
		return
	}
	c.wg.Add(1)
	go c.rejoin(names)
}

func (c *Client) rejoin(names []string) {
	defer c.wg.Done()
	for _, name := range names {
		ok, err := c.session.Join(c.ctx, name)
		switch {
		case err != nil:
			c.log.Warn().Err(err).Str("room", name).Msg("join failed")
		case !ok:
			c.log.Warn().Str("room", name).Msg("join refused")
		default:
			c.log.Info().Str("room", name).Msg("joined")
		}
	}
}

func (c *Client) sweepLoop(ticker *clock.Ticker) {
	defer c.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				c.log.Debug().Int("removed", removed).Msg("expired messages swept")
			}
		}
	}
}
