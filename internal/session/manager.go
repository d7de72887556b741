// Package session owns the chat connection: connect, authenticate, reconnect
// with backoff, rate-limited command emission and request correlation.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-irc/internal/proto"
	"github.com/vovakirdan/wirechat-irc/internal/transport"
	"github.com/vovakirdan/wirechat-irc/internal/utils"
)

// Disconnect reasons passed to FrameHandler.HandleDisconnect.
const (
	ReasonRequested        = "requested"
	ReasonRetriesExhausted = "retries-exhausted"
	ReasonAuthRejected     = "auth-rejected"
)

var errServerReconnect = errors.New("server requested reconnect")

// FrameHandler consumes inbound frames in arrival order.
type FrameHandler interface {
	HandleFrame(f proto.Frame, at time.Time)
	// HandleDisconnect is called when a session ends for good.
	HandleDisconnect(reason string, err error)
}

// Config tunes timeouts, retries and rate limiting.
type Config struct {
	DialTimeout       time.Duration
	AuthTimeout       time.Duration
	RequestTimeout    time.Duration
	MaxRetries        int
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	// KeepAliveInterval <= 0 disables liveness probes.
	KeepAliveInterval time.Duration
	Rate              RateProfile
}

// DefaultConfig returns the production profile.
func DefaultConfig() Config {
	return Config{
		DialTimeout:       10 * time.Second,
		AuthTimeout:       10 * time.Second,
		RequestTimeout:    10 * time.Second,
		MaxRetries:        5,
		ReconnectDelay:    time.Second,
		ReconnectMaxDelay: 30 * time.Second,
		KeepAliveInterval: time.Minute,
		Rate:              DefaultRate,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = def.AuthTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.ReconnectMaxDelay < c.ReconnectDelay {
		c.ReconnectMaxDelay = c.ReconnectDelay
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// lifecycle spans one Login until Disconnect or a terminal failure.
type lifecycle struct {
	ctx       context.Context
	cancel    context.CancelFunc
	stopQueue func()
	wg        sync.WaitGroup
}

func (l *lifecycle) stop() {
	l.cancel()
	if l.stopQueue != nil {
		l.stopQueue()
	}
}

// Manager is the single session of a client.
type Manager struct {
	cfg     Config
	dialer  transport.Dialer
	handler FrameHandler
	clock   clock.Clock
	log     *zerolog.Logger
	queue   *Queue

	mu       sync.Mutex
	state    State
	conn     transport.Conn
	authCh   chan error
	creds    Credentials
	identity string
	readyAt  time.Time
	retries  int
	pending  map[pendingKey]*pending
	life     *lifecycle
}

// New builds a disconnected session. clk may be nil for the wall clock.
func New(cfg Config, dialer transport.Dialer, handler FrameHandler, logger *zerolog.Logger, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	sessLog := logger.With().Str("component", "session").Logger()

	m := &Manager{
		cfg:     cfg.withDefaults(),
		dialer:  dialer,
		handler: handler,
		clock:   clk,
		log:     &sessLog,
		pending: make(map[pendingKey]*pending),
	}
	queueLog := logger.With().Str("component", "queue").Logger()
	m.queue = NewQueue(m, m.cfg.Rate, clk, &queueLog)
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns the authenticated login, or "" before the first login.
func (m *Manager) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// ReadyAt returns when the session last became ready.
func (m *Manager) ReadyAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readyAt
}

// Retries returns the reconnect attempt in progress, 0 when none.
func (m *Manager) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

// Login connects and authenticates. It only starts from StateDisconnected and
// never retries on its own.
func (m *Manager) Login(ctx context.Context, creds Credentials) (Ready, error) {
	creds = creds.normalized()

	lctx, cancel := context.WithCancel(context.Background())
	life := &lifecycle{ctx: lctx, cancel: cancel}

	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		cancel()
		return Ready{}, ErrAlreadyConnected
	}
	m.creds = creds
	m.life = life
	m.retries = 0
	m.state = StateConnecting
	life.stopQueue = m.queue.Start(lctx)
	m.mu.Unlock()

	m.log.Info().Str("user", creds.Username).Bool("anonymous", strings.HasPrefix(creds.Username, proto.AnonymousPrefix)).Msg("logging in")

	ready, err := m.connect(ctx, life, creds)
	if err != nil {
		m.abort(life)
		m.log.Warn().Err(err).Msg("login failed")
		return Ready{}, err
	}

	m.mu.Lock()
	if m.life == life {
		life.wg.Add(1)
		go m.keepAlive(life)
	}
	m.mu.Unlock()

	m.log.Info().Str("identity", ready.Identity).Msg("session ready")
	return ready, nil
}

// Disconnect closes the session from any state. Pending requests resolve as
// cancelled and no reconnect follows. It is idempotent.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	life := m.life
	if life == nil {
		m.state = StateDisconnected
		m.mu.Unlock()
		return nil
	}
	m.life = nil
	conn := m.conn
	m.conn = nil
	m.authCh = nil
	m.state = StateDisconnected
	m.retries = 0
	pend := m.takePendingLocked()
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	life.stop()

	for _, p := range pend {
		p.complete(result{cancelled: true})
	}
	life.wg.Wait()

	m.log.Info().Msg("disconnected")
	m.emitDisconnect(ReasonRequested, nil)
	return nil
}

// Join requests membership of room. Concurrent joins of the same room share
// one wire command and one result.
func (m *Manager) Join(ctx context.Context, room string) (bool, error) {
	return m.roomRequest(ctx, actionJoin, proto.CmdJoin, room)
}

// Leave gives up membership of room.
func (m *Manager) Leave(ctx context.Context, room string) (bool, error) {
	return m.roomRequest(ctx, actionLeave, proto.CmdPart, room)
}

// ResolveJoin completes a pending join for room. Returns false when nothing
// was waiting.
func (m *Manager) ResolveJoin(room string, ok bool) bool {
	return m.resolve(pendingKey{action: actionJoin, target: proto.NormalizeChannel(room)}, result{ok: ok})
}

// ResolveLeave completes a pending leave for room.
func (m *Manager) ResolveLeave(room string, ok bool) bool {
	return m.resolve(pendingKey{action: actionLeave, target: proto.NormalizeChannel(room)}, result{ok: ok})
}

// Ping measures the round trip of a PING through the queue to its PONG.
func (m *Manager) Ping(ctx context.Context) (time.Duration, error) {
	key := pendingKey{action: actionPing, target: utils.NewToken()}
	line, err := proto.Encode(proto.CmdPing, []string{key.target}, nil)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if m.state != StateReady {
		m.mu.Unlock()
		return 0, ErrNotConnected
	}
	p := m.registerLocked(key)
	p.sentAt = m.clock.Now()
	m.mu.Unlock()

	m.queue.Enqueue(line, func(at time.Time, err error) {
		if err != nil {
			m.fail(key, p, err)
			return
		}
		m.mu.Lock()
		select {
		case <-p.done:
		default:
			p.sentAt = at
		}
		m.mu.Unlock()
	})

	res, err := p.wait(ctx)
	if err != nil {
		return 0, err
	}
	if res.cancelled {
		return 0, nil
	}
	if res.err != nil {
		return 0, res.err
	}

	m.mu.Lock()
	sent := p.sentAt
	m.mu.Unlock()
	return res.at.Sub(sent), nil
}

// Send queues an arbitrary command and waits until it was written.
func (m *Manager) Send(ctx context.Context, command string, params []string, tags map[string]string) (time.Time, error) {
	line, err := proto.Encode(command, params, tags)
	if err != nil {
		return time.Time{}, err
	}
	if m.State() != StateReady {
		return time.Time{}, ErrNotConnected
	}
	return m.queue.Send(ctx, line)
}

// WriteLine hands a line to the live connection; used by the queue.
func (m *Manager) WriteLine(ctx context.Context, line string) error {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()

	if conn == nil || state != StateReady {
		return ErrNotConnected
	}
	if m.log.GetLevel() <= zerolog.TraceLevel {
		m.log.Trace().Str("line", line).Msg("out")
	}
	return conn.WriteLine(ctx, line)
}

func (m *Manager) roomRequest(ctx context.Context, a action, command, room string) (bool, error) {
	name := proto.NormalizeChannel(room)
	if name == "" || strings.ContainsAny(name, " ,\r\n") {
		return false, fmt.Errorf("%w: room %q", proto.ErrInvalidParameter, room)
	}
	key := pendingKey{action: a, target: name}

	m.mu.Lock()
	if m.state != StateReady {
		m.mu.Unlock()
		return false, ErrNotConnected
	}
	p, inFlight := m.pending[key]
	if !inFlight {
		p = m.registerLocked(key)
	}
	m.mu.Unlock()

	if inFlight {
		m.log.Debug().Str("room", name).Stringer("action", a).Msg("attaching to pending request")
	} else {
		line, err := proto.Encode(command, []string{name}, nil)
		if err != nil {
			m.fail(key, p, err)
		} else {
			m.queue.Enqueue(line, func(_ time.Time, err error) {
				if err != nil {
					m.fail(key, p, err)
				}
			})
		}
	}

	res, err := p.wait(ctx)
	if err != nil {
		return false, err
	}
	if res.cancelled {
		return false, nil
	}
	return res.ok, res.err
}

// registerLocked adds a pending request with its timeout. m.mu must be held.
func (m *Manager) registerLocked(key pendingKey) *pending {
	p := newPending()
	p.timer = m.clock.AfterFunc(m.cfg.RequestTimeout, func() {
		m.fail(key, p, ErrRequestTimeout)
	})
	m.pending[key] = p
	return p
}

func (m *Manager) resolve(key pendingKey, r result) bool {
	m.mu.Lock()
	p, ok := m.pending[key]
	if ok {
		delete(m.pending, key)
	}
	m.mu.Unlock()

	if ok {
		p.complete(r)
	}
	return ok
}

func (m *Manager) fail(key pendingKey, p *pending, err error) {
	m.mu.Lock()
	if m.pending[key] == p {
		delete(m.pending, key)
	}
	m.mu.Unlock()

	if errors.Is(err, ErrCancelled) {
		p.complete(result{cancelled: true})
		return
	}
	p.complete(result{err: err})
}

func (m *Manager) takePendingLocked() []*pending {
	out := make([]*pending, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, p)
	}
	m.pending = make(map[pendingKey]*pending)
	return out
}

// abort tears down a lifecycle whose login failed.
func (m *Manager) abort(life *lifecycle) {
	m.mu.Lock()
	var conn transport.Conn
	if m.life == life {
		m.life = nil
		conn = m.conn
		m.conn = nil
		m.authCh = nil
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	life.stop()
}

func (m *Manager) emitDisconnect(reason string, err error) {
	if m.handler != nil {
		m.handler.HandleDisconnect(reason, err)
	}
}
