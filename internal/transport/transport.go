// Package transport carries protocol lines over a duplex connection.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("transport closed")

// Conn is a line-oriented duplex connection. WriteLine may be called
// concurrently with ReadLine and with itself.
type Conn interface {
	// ReadLine blocks until the next line arrives, without its terminator.
	ReadLine(ctx context.Context) (string, error)
	// WriteLine sends one line; the terminator is appended.
	WriteLine(ctx context.Context, line string) error
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// Default endpoints.
const (
	DefaultWebSocketURL = "wss://irc-ws.chat.twitch.tv:443"
	DefaultTCPAddr      = "irc.chat.twitch.tv:6697"
)

// Kind selects the transport implementation.
type Kind string

const (
	KindWebSocket Kind = "websocket"
	KindTCP       Kind = "tcp"
)

// New returns a dialer for kind. An empty addr selects the default endpoint.
func New(kind Kind, addr string) (Dialer, error) {
	switch kind {
	case KindWebSocket, "":
		if addr == "" {
			addr = DefaultWebSocketURL
		}
		return &WebSocketDialer{URL: addr}, nil
	case KindTCP:
		if addr == "" {
			addr = DefaultTCPAddr
		}
		return &TCPDialer{Addr: addr}, nil
	default:
		return nil, errors.New("unknown transport " + string(kind))
	}
}
