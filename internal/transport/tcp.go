package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// TCPDialer connects over TLS to the chat IRC port.
type TCPDialer struct {
	Addr string
	// Insecure dials plain TCP, for local test servers.
	Insecure bool
	Timeout  time.Duration
}

// Dial opens a TLS (or plain) TCP connection.
func (d *TCPDialer) Dial(ctx context.Context) (Conn, error) {
	nd := &net.Dialer{Timeout: d.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if d.Insecure {
		conn, err = nd.DialContext(ctx, "tcp", d.Addr)
	} else {
		host, _, _ := net.SplitHostPort(d.Addr)
		td := &tls.Dialer{NetDialer: nd, Config: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}}
		conn, err = td.DialContext(ctx, "tcp", d.Addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.Addr, err)
	}
	return NewStreamConn(conn), nil
}

// streamConn frames a byte stream by CRLF.
type streamConn struct {
	conn   net.Conn
	reader *bufio.Reader

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewStreamConn wraps a net.Conn as a line connection.
func NewStreamConn(conn net.Conn) Conn {
	return &streamConn{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *streamConn) ReadLine(ctx context.Context) (string, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	// unblock the read when ctx ends, and clear the deadline again so the
	// next read is not poisoned
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Unix(1, 0))
		close(fired)
	})
	defer func() {
		if !stop() {
			<-fired
			_ = c.conn.SetReadDeadline(time.Time{})
		}
	}()

	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return "", ErrClosed
			}
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			return line, nil
		}
	}
}

func (c *streamConn) WriteLine(ctx context.Context, line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := io.WriteString(c.conn, line+"\r\n"); err != nil {
		return fmt.Errorf("tcp write: %w", err)
	}
	return nil
}

func (c *streamConn) Close() error {
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
