package auth

import (
	"context"
	"sync"
)

// RefreshGate runs at most one refresh at a time. Callers arriving while one is in
// flight are queued and receive its result, in arrival order.
type RefreshGate struct {
	mu      sync.Mutex
	running bool
	waiters []func(token string, err error)

	// OnJoin, if set, is called for every caller that joins an in-flight refresh.
	OnJoin func()
}

func NewRefreshGate() *RefreshGate {
	return &RefreshGate{}
}

// Do runs fn unless a run is already in flight, and waits for the shared result.
// fn gets a context detached from ctx's cancellation so one impatient caller does not
// fail everyone else; ctx only bounds this caller's wait.
func (g *RefreshGate) Do(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	type result struct {
		token string
		err   error
	}
	ch := make(chan result, 1)

	g.mu.Lock()
	g.waiters = append(g.waiters, func(token string, err error) {
		ch <- result{token, err}
	})
	start := !g.running
	g.running = true
	onJoin := g.OnJoin
	g.mu.Unlock()

	if start {
		go g.run(context.WithoutCancel(ctx), fn)
	} else if onJoin != nil {
		onJoin()
	}

	select {
	case r := <-ch:
		return r.token, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Join queues onDone behind the in-flight refresh. It reports false, without queueing,
// when nothing is in flight.
func (g *RefreshGate) Join(onDone func(token string, err error)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return false
	}
	g.waiters = append(g.waiters, onDone)
	return true
}

func (g *RefreshGate) run(ctx context.Context, fn func(context.Context) (string, error)) {
	var (
		token string
		err   error
	)
	defer func() {
		g.mu.Lock()
		waiters := g.waiters
		g.waiters = nil
		g.running = false
		g.mu.Unlock()

		for _, notify := range waiters {
			notify(token, err)
		}
	}()

	token, err = fn(ctx)
}

func (g *RefreshGate) InProgress() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Waiting is the number of callers queued on the current refresh.
func (g *RefreshGate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}
