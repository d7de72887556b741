package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

type recordingWriter struct {
	clk  clock.Clock
	fail func(line string) error

	mu    sync.Mutex
	lines []string
	times []time.Time
}

func (w *recordingWriter) WriteLine(_ context.Context, line string) error {
	if w.fail != nil {
		if err := w.fail(line); err != nil {
			return err
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, line)
	w.times = append(w.times, w.clk.Now())
	return nil
}

func (w *recordingWriter) snapshot() ([]string, []time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...), append([]time.Time(nil), w.times...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestQueueRespectsBucket(t *testing.T) {
	mock := clock.NewMock()
	start := mock.Now()
	w := &recordingWriter{clk: mock}
	disabledLogger := zerolog.New(nil)

	q := NewQueue(w, DefaultRate, mock, &disabledLogger)
	stop := q.Start(context.Background())
	defer stop()

	for i := 0; i < 25; i++ {
		q.Enqueue(fmt.Sprintf("PRIVMSG #room :%d", i), nil)
	}

	waitFor(t, 2*time.Second, func() bool {
		lines, _ := w.snapshot()
		return len(lines) == 20
	})
	time.Sleep(20 * time.Millisecond)
	if lines, _ := w.snapshot(); len(lines) != 20 {
		t.Fatalf("expected burst of 20, got %d", len(lines))
	}

	for step := 0; step < 2000; step++ {
		if lines, _ := w.snapshot(); len(lines) == 25 {
			break
		}
		mock.Add(100 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}

	lines, times := w.snapshot()
	if len(lines) != 25 {
		t.Fatalf("expected 25 lines, got %d", len(lines))
	}
	for i, line := range lines {
		if want := fmt.Sprintf("PRIVMSG #room :%d", i); line != want {
			t.Fatalf("line %d: expected %q, got %q", i, want, line)
		}
	}
	for i := 0; i < 20; i++ {
		if !times[i].Equal(start) {
			t.Fatalf("line %d sent at %s, expected burst at start", i, times[i].Sub(start))
		}
	}
	for k := 1; k <= 5; k++ {
		min := start.Add(time.Duration(k) * 1500 * time.Millisecond)
		if got := times[19+k]; got.Before(min) {
			t.Fatalf("line %d sent at %s, expected no earlier than %s", 19+k, got.Sub(start), min.Sub(start))
		}
	}
}

func TestQueueSendReportsTimestamp(t *testing.T) {
	mock := clock.NewMock()
	w := &recordingWriter{clk: mock}

	q := NewQueue(w, DefaultRate, mock, nil)
	stop := q.Start(context.Background())
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	at, err := q.Send(ctx, "JOIN #room")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !at.Equal(mock.Now()) {
		t.Fatalf("expected sent at %s, got %s", mock.Now(), at)
	}
}

func TestQueueWriteFailureKeepsDraining(t *testing.T) {
	boom := errors.New("boom")
	w := &recordingWriter{clk: clock.New(), fail: func(line string) error {
		if line == "bad" {
			return boom
		}
		return nil
	}}

	q := NewQueue(w, RateProfile{}, nil, nil)
	stop := q.Start(context.Background())
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := q.Send(ctx, "bad"); !errors.Is(err, ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}
	if _, err := q.Send(ctx, "good"); err != nil {
		t.Fatalf("send after failure: %v", err)
	}
	if lines, _ := w.snapshot(); len(lines) != 1 || lines[0] != "good" {
		t.Fatalf("unexpected lines %v", lines)
	}
}

func TestQueueEnqueueWhenStopped(t *testing.T) {
	q := NewQueue(&recordingWriter{clk: clock.New()}, DefaultRate, nil, nil)

	var got error
	q.Enqueue("PING :x", func(_ time.Time, err error) { got = err })
	if !errors.Is(got, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", got)
	}
}

func TestQueueStopCancelsWaitingLines(t *testing.T) {
	mock := clock.NewMock()
	w := &recordingWriter{clk: mock}

	q := NewQueue(w, RateProfile{Capacity: 1, Period: time.Minute}, mock, nil)
	stop := q.Start(context.Background())

	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		q.Enqueue(fmt.Sprintf("line %d", i), func(_ time.Time, err error) { results <- err })
	}

	if err := <-results; err != nil {
		t.Fatalf("first line: %v", err)
	}
	stop()

	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if !errors.Is(err, ErrCancelled) {
				t.Fatalf("expected ErrCancelled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("queued line never resolved")
		}
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}
