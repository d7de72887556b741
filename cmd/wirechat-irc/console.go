package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/vovakirdan/wirechat-irc/internal/core"
	"github.com/vovakirdan/wirechat-irc/internal/proto"
)

// chatClient is what the console drives.
type chatClient interface {
	Join(ctx context.Context, room string) (bool, error)
	Leave(ctx context.Context, room string) (bool, error)
	Ping(ctx context.Context) (time.Duration, error)
	Send(ctx context.Context, room, text string) (core.MessageMetadata, error)
	Subscribe(fn func(core.Event)) func()
}

type console struct {
	client chatClient
	in     io.Reader

	mu   sync.Mutex
	out  io.Writer
	room string
}

func newConsole(c chatClient, room string, in io.Reader, out io.Writer) *console {
	return &console{client: c, in: in, out: out, room: proto.NormalizeChannel(room)}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// attach prints incoming events.
func (c *console) attach() {
	c.client.Subscribe(func(ev core.Event) {
		switch e := ev.(type) {
		case *core.ReadyEvent:
			c.printf("Connected as %s. Type messages and press Enter to send, /help for commands.\n", e.Identity)
		case *core.MessageEvent:
			if e.Message.Action {
				c.printf("[%s] * %s %s\n", e.Room.Name, e.Author.Name(), e.Message.Content)
				return
			}
			c.printf("[%s] %s: %s\n", e.Room.Name, e.Author.Name(), e.Message.Content)
		case *core.JoinEvent:
			if e.Self {
				c.printf("[%s] joined\n", e.Room)
			}
		case *core.PartEvent:
			if e.Self {
				c.printf("[%s] left\n", e.Room)
			}
		case *core.NoticeEvent:
			c.printf("[notice %s] %s\n", e.Room, e.Text)
		case *core.DisconnectEvent:
			c.printf("disconnected (%s)\n", e.Reason)
		}
	})
}

func (c *console) writeLoop(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !c.handle(ctx, line) {
				return
			}
		}
	}
}

// handle runs one input line and reports whether to keep reading.
func (c *console) handle(ctx context.Context, line string) bool {
	text := strings.TrimSpace(line)
	if text == "" {
		return true
	}
	if !strings.HasPrefix(text, "/") {
		c.say(ctx, text)
		return true
	}

	cmd, arg, _ := strings.Cut(text[1:], " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "quit", "exit":
		return false
	case "join":
		ok, err := c.client.Join(ctx, arg)
		switch {
		case err != nil:
			c.printf("join %s: %v\n", arg, err)
		case !ok:
			c.printf("join %s: refused\n", arg)
		default:
			c.mu.Lock()
			c.room = proto.NormalizeChannel(arg)
			c.mu.Unlock()
		}
	case "part", "leave":
		target := arg
		if target == "" {
			target = c.current()
		}
		if _, err := c.client.Leave(ctx, target); err != nil {
			c.printf("leave %s: %v\n", target, err)
		}
	case "room":
		c.mu.Lock()
		c.room = proto.NormalizeChannel(arg)
		c.mu.Unlock()
	case "me":
		c.say(ctx, "\x01ACTION "+arg+"\x01")
	case "ping":
		rtt, err := c.client.Ping(ctx)
		if err != nil {
			c.printf("ping: %v\n", err)
			return true
		}
		c.printf("pong in %s\n", rtt.Round(time.Millisecond))
	case "help":
		c.printf("/join <room>  /part [room]  /room <room>  /me <text>  /ping  /quit\n")
	default:
		c.printf("unknown command /%s\n", cmd)
	}
	return true
}

func (c *console) current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *console) say(ctx context.Context, text string) {
	room := c.current()
	if room == "" {
		c.printf("no room selected, use /join <room>\n")
		return
	}
	if _, err := c.client.Send(ctx, room, text); err != nil {
		c.printf("send: %v\n", err)
	}
}
