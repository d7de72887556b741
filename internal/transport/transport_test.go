package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestPipeDeliversLinesBothWays(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	a, b := Pipe()
	if err := a.WriteLine(ctx, "PING :x"); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := b.ReadLine(ctx)
	if err != nil || line != "PING :x" {
		t.Fatalf("unexpected read %q %v", line, err)
	}

	if err := b.WriteLine(ctx, "PONG :x"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if line, _ := a.ReadLine(ctx); line != "PONG :x" {
		t.Fatalf("unexpected read %q", line)
	}

	_ = b.Close()
	if _, err := a.ReadLine(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := a.WriteLine(ctx, "x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on write, got %v", err)
	}
}

func TestMemoryDialerFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	d := NewMemoryDialer()
	boom := errors.New("boom")
	d.FailWith(boom)
	if _, err := d.Dial(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	d.FailWith(nil)
	client, err := d.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server, err := d.Accept(ctx)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	_ = client.WriteLine(ctx, "NICK me")
	if line, _ := server.ReadLine(ctx); line != "NICK me" {
		t.Fatalf("unexpected line %q", line)
	}
	if d.Dials() != 2 {
		t.Fatalf("expected 2 dials, got %d", d.Dials())
	}
}

func TestStreamConnSplitsCRLF(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	left, right := net.Pipe()
	conn := NewStreamConn(left)
	defer conn.Close()

	go func() {
		_, _ = right.Write([]byte("PING :a\r\n\r\n:tmi.twitch.tv 001 me :Welcome\r\n"))
	}()

	first, err := conn.ReadLine(ctx)
	if err != nil || first != "PING :a" {
		t.Fatalf("unexpected first line %q %v", first, err)
	}
	second, err := conn.ReadLine(ctx)
	if err != nil || second != ":tmi.twitch.tv 001 me :Welcome" {
		t.Fatalf("unexpected second line %q %v", second, err)
	}

	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := right.Read(buf)
		done <- string(buf[:n])
	}()
	if err := conn.WriteLine(ctx, "PONG :a"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := <-done; got != "PONG :a\r\n" {
		t.Fatalf("unexpected written bytes %q", got)
	}
}

func TestNewSelectsDialer(t *testing.T) {
	d, err := New(KindTCP, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if tcp, ok := d.(*TCPDialer); !ok || tcp.Addr != DefaultTCPAddr {
		t.Fatalf("unexpected dialer %#v", d)
	}
	d, err = New(KindWebSocket, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if ws, ok := d.(*WebSocketDialer); !ok || ws.URL != DefaultWebSocketURL {
		t.Fatalf("unexpected dialer %#v", d)
	}
	if _, err := New("carrier-pigeon", ""); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestStreamConnReadsAfterCancelledRead(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conn := NewStreamConn(client)
	defer conn.Close()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := conn.ReadLine(cancelled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	go func() {
		_, _ = server.Write([]byte("PING :tmi.twitch.tv\r\n"))
	}()

	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	line, err := conn.ReadLine(ctx)
	if err != nil {
		t.Fatalf("read after cancel: %v", err)
	}
	if line != "PING :tmi.twitch.tv" {
		t.Fatalf("unexpected line %q", line)
	}
}
