package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateProfile is a token bucket: Capacity commands, fully refilled over Period.
type RateProfile struct {
	Capacity int
	Period   time.Duration
}

var (
	// DefaultRate allows 20 commands per 30 seconds, one token every 1.5s.
	DefaultRate = RateProfile{Capacity: 20, Period: 30 * time.Second}
	// ModeratorRate applies to accounts with elevated chat limits.
	ModeratorRate = RateProfile{Capacity: 100, Period: 30 * time.Second}
)

func (p RateProfile) limit() rate.Limit {
	if p.Capacity <= 0 || p.Period <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(p.Capacity) / p.Period.Seconds())
}

// LineWriter is where the queue delivers lines.
type LineWriter interface {
	WriteLine(ctx context.Context, line string) error
}

// SendFunc receives the outcome of a queued line. sentAt is zero on failure.
type SendFunc func(sentAt time.Time, err error)

type outbound struct {
	line string
	done SendFunc
}

func (o *outbound) finish(at time.Time, err error) {
	if o.done != nil {
		o.done(at, err)
	}
}

// Queue drains outbound lines in FIFO order through a single dispatcher,
// spending one token per line and waiting on the clock when the bucket is empty.
type Queue struct {
	w       LineWriter
	limiter *rate.Limiter
	clock   clock.Clock
	log     *zerolog.Logger

	mu      sync.Mutex
	items   []*outbound
	running bool
	wake    chan struct{}
}

// NewQueue builds a stopped queue.
func NewQueue(w LineWriter, profile RateProfile, clk clock.Clock, logger *zerolog.Logger) *Queue {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Queue{
		w:       w,
		limiter: rate.NewLimiter(profile.limit(), profile.Capacity),
		clock:   clk,
		log:     logger,
		wake:    make(chan struct{}, 1),
	}
}

// Start launches the dispatcher. The returned stop cancels it, fails whatever
// is still queued with ErrCancelled and waits for the dispatcher to exit.
func (q *Queue) Start(parent context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(parent)

	q.mu.Lock()
	q.running = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.run(ctx)
	}()

	return func() {
		cancel()
		<-done
	}
}

// Enqueue appends a line; done is called once it was written or dropped.
func (q *Queue) Enqueue(line string, done SendFunc) {
	item := &outbound{line: line, done: done}

	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		item.finish(time.Time{}, ErrNotConnected)
		return
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Send enqueues a line and waits until it was written. A cancelled ctx stops
// the wait, not the send.
func (q *Queue) Send(ctx context.Context, line string) (time.Time, error) {
	type result struct {
		at  time.Time
		err error
	}
	ch := make(chan result, 1)
	q.Enqueue(line, func(at time.Time, err error) {
		ch <- result{at: at, err: err}
	})

	select {
	case r := <-ch:
		return r.at, r.err
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
}

// Len returns the number of lines waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) run(ctx context.Context) {
	defer q.drain()

	for {
		item, ok := q.next(ctx)
		if !ok {
			return
		}
		if !q.take(ctx) {
			item.finish(time.Time{}, ErrCancelled)
			return
		}
		if err := q.w.WriteLine(ctx, item.line); err != nil {
			q.log.Warn().Err(err).Msg("outbound command dropped")
			item.finish(time.Time{}, fmt.Errorf("%w: %v", ErrSendFailed, err))
			continue
		}
		item.finish(q.clock.Now(), nil)
	}
}

func (q *Queue) next(ctx context.Context) (*outbound, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// take blocks until a token is available.
func (q *Queue) take(ctx context.Context) bool {
	now := q.clock.Now()
	r := q.limiter.ReserveN(now, 1)
	if !r.OK() {
		return ctx.Err() == nil
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return true
	}

	q.log.Debug().Dur("delay", delay).Msg("rate limit reached, waiting for token")
	t := q.clock.Timer(delay)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		r.CancelAt(q.clock.Now())
		return false
	}
}

func (q *Queue) drain() {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.running = false
	q.mu.Unlock()

	for _, item := range items {
		item.finish(time.Time{}, ErrCancelled)
	}
}
