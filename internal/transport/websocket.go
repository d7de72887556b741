package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coder/websocket"
)

// WebSocketDialer connects to the chat WebSocket endpoint.
type WebSocketDialer struct {
	URL string
	// ReadLimit caps a single WebSocket message; 0 keeps the library default.
	ReadLimit int64
}

// Dial opens a WebSocket connection.
func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{conn: conn}, nil
}

// wsConn splits text messages into lines; one message may carry several.
type wsConn struct {
	conn *websocket.Conn

	readMu  sync.Mutex
	pending []string

	writeMu sync.Mutex

	closeOnce sync.Once
}

func (c *wsConn) ReadLine(ctx context.Context) (string, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.pending) == 0 {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return "", ErrClosed
			}
			return "", err
		}
		if typ != websocket.MessageText {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimRight(line, "\r")
			if line != "" {
				c.pending = append(c.pending, line)
			}
		}
	}

	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

func (c *wsConn) WriteLine(ctx context.Context, line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.Write(ctx, websocket.MessageText, []byte(line+"\r\n")); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("ws write: %w", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "bye")
	})
	return err
}
