package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/wirechat-irc/internal/proto"
	"github.com/vovakirdan/wirechat-irc/internal/transport"
)

// connect dials and authenticates one connection for life.
func (m *Manager) connect(ctx context.Context, life *lifecycle, creds Credentials) (Ready, error) {
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(life.ctx, cancel)
	defer stop()

	m.mu.Lock()
	if m.life != life {
		m.mu.Unlock()
		return Ready{}, ErrCancelled
	}
	m.state = StateConnecting
	m.mu.Unlock()

	connectCtx := dialCtx
	if m.cfg.DialTimeout > 0 {
		var cancelDial context.CancelFunc
		connectCtx, cancelDial = context.WithTimeout(dialCtx, m.cfg.DialTimeout)
		defer cancelDial()
	}

	conn, err := m.dialer.Dial(connectCtx)
	if err != nil {
		if life.ctx.Err() != nil {
			return Ready{}, ErrCancelled
		}
		return Ready{}, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	authCh := make(chan error, 1)
	m.mu.Lock()
	if m.life != life || life.ctx.Err() != nil {
		m.mu.Unlock()
		_ = conn.Close()
		return Ready{}, ErrCancelled
	}
	m.conn = conn
	m.authCh = authCh
	m.state = StateAuthenticating
	life.wg.Add(1)
	m.mu.Unlock()

	go m.readLoop(life, conn)

	if err := m.authenticate(connectCtx, conn, creds); err != nil {
		m.dropConn(conn)
		if life.ctx.Err() != nil {
			return Ready{}, ErrCancelled
		}
		return Ready{}, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	timer := m.clock.Timer(m.cfg.AuthTimeout)
	defer timer.Stop()

	select {
	case err := <-authCh:
		if err != nil {
			m.dropConn(conn)
			return Ready{}, err
		}
		m.mu.Lock()
		ready := Ready{Identity: m.identity, At: m.readyAt}
		m.mu.Unlock()
		return ready, nil
	case <-timer.C:
		m.dropConn(conn)
		return Ready{}, ErrAuthTimeout
	case <-life.ctx.Done():
		return Ready{}, ErrCancelled
	case <-ctx.Done():
		m.dropConn(conn)
		return Ready{}, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}

func (m *Manager) authenticate(ctx context.Context, conn transport.Conn, creds Credentials) error {
	lines := make([]string, 0, 3)
	for _, cmd := range [][]string{
		{proto.CmdCap, "REQ", proto.Capabilities},
		{proto.CmdPass, creds.Token},
		{proto.CmdNick, creds.Username},
	} {
		line, err := proto.Encode(cmd[0], cmd[1:], nil)
		if err != nil {
			// never echo the token
			return fmt.Errorf("encode %s: %w", cmd[0], proto.ErrInvalidParameter)
		}
		lines = append(lines, line)
	}
	for _, line := range lines {
		if err := conn.WriteLine(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// dropConn forgets conn if it is current and closes it.
func (m *Manager) dropConn(conn transport.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		m.authCh = nil
	}
	m.mu.Unlock()
	_ = conn.Close()
}

func (m *Manager) readLoop(life *lifecycle, conn transport.Conn) {
	defer life.wg.Done()

	for {
		line, err := conn.ReadLine(life.ctx)
		if err != nil {
			m.connLost(life, conn, err)
			return
		}
		at := m.clock.Now()

		f, err := proto.Parse(line)
		if err != nil {
			m.log.Warn().Err(err).Str("line", line).Msg("discarding malformed line")
			continue
		}
		m.route(life, conn, f, at)
	}
}

// route intercepts control frames and forwards the rest to the handler.
func (m *Manager) route(life *lifecycle, conn transport.Conn, f proto.Frame, at time.Time) {
	switch f.Command() {
	case proto.CmdPing:
		line, err := proto.Encode(proto.CmdPong, f.Params(), nil)
		if err != nil {
			m.log.Warn().Err(err).Msg("cannot answer ping")
			return
		}
		if err := conn.WriteLine(life.ctx, line); err != nil {
			m.log.Warn().Err(err).Msg("failed to answer ping")
		}
		return
	case proto.CmdPong:
		m.resolve(pendingKey{action: actionPing, target: f.Trailing()}, result{ok: true, at: at})
		return
	case proto.CmdReconnect:
		m.log.Info().Msg("server requested reconnect")
		m.connLost(life, conn, errServerReconnect)
		return
	case proto.RplWelcome:
		m.markReady(conn, f.Param(0), at)
	case proto.CmdNotice:
		if proto.IsAuthFailure(f.Trailing()) {
			m.authFailed(conn, f.Trailing())
		}
	}

	if m.handler != nil {
		m.handler.HandleFrame(f, at)
	}
}

func (m *Manager) markReady(conn transport.Conn, identity string, at time.Time) {
	m.mu.Lock()
	if m.conn != conn || m.state != StateAuthenticating {
		m.mu.Unlock()
		return
	}
	if identity == "" || identity == "*" {
		identity = m.creds.Username
	}
	m.state = StateReady
	m.identity = identity
	m.readyAt = at
	m.retries = 0
	ch := m.authCh
	m.authCh = nil
	m.mu.Unlock()

	if ch != nil {
		ch <- nil
	}
}

func (m *Manager) authFailed(conn transport.Conn, text string) {
	m.mu.Lock()
	if m.conn != conn || m.state != StateAuthenticating {
		m.mu.Unlock()
		return
	}
	ch := m.authCh
	m.authCh = nil
	m.mu.Unlock()

	if ch != nil {
		ch <- fmt.Errorf("%w: %s", ErrAuthRejected, text)
	}
}

// connLost handles the end of conn that nobody asked for.
func (m *Manager) connLost(life *lifecycle, conn transport.Conn, cause error) {
	m.mu.Lock()
	if m.life != life || m.conn != conn {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = nil

	switch m.state {
	case StateAuthenticating:
		ch := m.authCh
		m.authCh = nil
		m.mu.Unlock()
		_ = conn.Close()
		if ch != nil {
			ch <- fmt.Errorf("%w: %v", ErrConnectionFailed, cause)
		}
	case StateReady:
		m.state = StateReconnecting
		life.wg.Add(1)
		m.mu.Unlock()
		_ = conn.Close()

		m.log.Warn().Err(cause).Msg("connection lost, reconnecting")
		go m.reconnect(life)
	default:
		m.mu.Unlock()
		_ = conn.Close()
	}
}

func (m *Manager) reconnect(life *lifecycle) {
	defer life.wg.Done()

	for attempt := 1; ; attempt++ {
		m.mu.Lock()
		if m.life != life {
			m.mu.Unlock()
			return
		}
		if attempt > m.cfg.MaxRetries {
			m.mu.Unlock()
			m.terminate(life, ReasonRetriesExhausted, ErrRetriesExhausted)
			return
		}
		m.retries = attempt
		m.state = StateReconnecting
		creds := m.creds
		m.mu.Unlock()

		delay := m.backoff(attempt)
		m.log.Info().Int("attempt", attempt).Int("max", m.cfg.MaxRetries).Dur("delay", delay).Msg("reconnect scheduled")

		t := m.clock.Timer(delay)
		select {
		case <-t.C:
		case <-life.ctx.Done():
			t.Stop()
			return
		}

		ready, err := m.connect(life.ctx, life, creds)
		if err == nil {
			m.log.Info().Int("attempt", attempt).Str("identity", ready.Identity).Msg("reconnected")
			return
		}
		if errors.Is(err, ErrCancelled) || life.ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrAuthRejected) {
			m.terminate(life, ReasonAuthRejected, err)
			return
		}
		m.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
	}
}

// terminate ends life without a caller asking for it and fails pending
// requests with err.
func (m *Manager) terminate(life *lifecycle, reason string, err error) {
	m.mu.Lock()
	if m.life != life {
		m.mu.Unlock()
		return
	}
	m.life = nil
	conn := m.conn
	m.conn = nil
	m.authCh = nil
	m.state = StateDisconnected
	pend := m.takePendingLocked()
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	life.stop()

	for _, p := range pend {
		p.complete(result{err: err})
	}

	m.log.Error().Err(err).Str("reason", reason).Msg("session terminated")
	m.emitDisconnect(reason, err)
}

func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.cfg.ReconnectDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.cfg.ReconnectMaxDelay {
			return m.cfg.ReconnectMaxDelay
		}
	}
	return delay
}

// keepAlive probes the connection while ready and drops it when the probe
// times out, which hands over to the reconnect path.
func (m *Manager) keepAlive(life *lifecycle) {
	defer life.wg.Done()

	if m.cfg.KeepAliveInterval <= 0 {
		return
	}
	ticker := m.clock.Ticker(m.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-life.ctx.Done():
			return
		case <-ticker.C:
		}
		if m.State() != StateReady {
			continue
		}

		rtt, err := m.Ping(life.ctx)
		switch {
		case err == nil:
			m.log.Debug().Dur("rtt", rtt).Msg("keep-alive")
		case errors.Is(err, ErrRequestTimeout):
			m.log.Warn().Msg("keep-alive timed out, dropping connection")
			m.mu.Lock()
			conn := m.conn
			m.mu.Unlock()
			if conn != nil {
				_ = conn.Close()
			}
		}
	}
}
