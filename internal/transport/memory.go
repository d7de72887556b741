package transport

import (
	"context"
	"sync"
)

// Pipe returns two connected in-memory connections.
func Pipe() (Conn, Conn) {
	ab := make(chan string, 256)
	ba := make(chan string, 256)
	shared := &pipeState{closed: make(chan struct{})}
	return &pipeConn{in: ba, out: ab, state: shared}, &pipeConn{in: ab, out: ba, state: shared}
}

type pipeState struct {
	once   sync.Once
	closed chan struct{}
}

type pipeConn struct {
	in    <-chan string
	out   chan<- string
	state *pipeState
}

func (c *pipeConn) ReadLine(ctx context.Context) (string, error) {
	select {
	case line := <-c.in:
		return line, nil
	case <-c.state.closed:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *pipeConn) WriteLine(ctx context.Context, line string) error {
	select {
	case <-c.state.closed:
		return ErrClosed
	default:
	}
	select {
	case c.out <- line:
		return nil
	case <-c.state.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *pipeConn) Close() error {
	c.state.once.Do(func() { close(c.state.closed) })
	return nil
}

// MemoryDialer hands out in-memory connections and exposes the far end of
// each one through Accept. It backs offline runs and tests.
type MemoryDialer struct {
	mu    sync.Mutex
	err   error
	dials int
	peers chan Conn
}

// NewMemoryDialer builds a dialer with room for 16 unaccepted peers.
func NewMemoryDialer() *MemoryDialer {
	return &MemoryDialer{peers: make(chan Conn, 16)}
}

// Dial returns the client end of a new pipe, or the configured failure.
func (d *MemoryDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	d.dials++
	err := d.err
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	client, server := Pipe()
	select {
	case d.peers <- server:
		return client, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Accept returns the server end of the next dialed connection.
func (d *MemoryDialer) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-d.peers:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FailWith makes every following Dial fail with err; nil restores dialing.
func (d *MemoryDialer) FailWith(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Dials returns how many times Dial was called.
func (d *MemoryDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
