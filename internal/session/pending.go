package session

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type action int

const (
	actionJoin action = iota
	actionLeave
	actionPing
)

func (a action) String() string {
	switch a {
	case actionJoin:
		return "join"
	case actionLeave:
		return "leave"
	case actionPing:
		return "ping"
	default:
		return "unknown"
	}
}

// pendingKey correlates a request with its reply: room for join/leave,
// token for ping.
type pendingKey struct {
	action action
	target string
}

type result struct {
	ok        bool
	err       error
	cancelled bool
	at        time.Time
}

// pending is shared by every caller waiting on the same key.
type pending struct {
	done   chan struct{}
	once   sync.Once
	res    result
	timer  *clock.Timer
	sentAt time.Time // guarded by Manager.mu
}

func newPending() *pending {
	return &pending{done: make(chan struct{})}
}

func (p *pending) complete(r result) {
	p.once.Do(func() {
		p.res = r
		if p.timer != nil {
			p.timer.Stop()
		}
		close(p.done)
	})
}

func (p *pending) wait(ctx context.Context) (result, error) {
	select {
	case <-p.done:
		return p.res, nil
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}
