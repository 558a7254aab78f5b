// Package browser maintains a bounded pool of headless browsers for
// the login strategies that need real page rendering. Headless
// instances are the most expensive resource in the engine, so the pool
// caps how many run at once; callers past the cap queue on Acquire
// instead of spawning more.
package browser

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

const DefaultMaxInstances = 2

type PoolOptions struct {
	// MaxInstances caps concurrent browsers, DefaultMaxInstances when
	// zero.
	MaxInstances int
	// Launch overrides how a browser is started, used by tests. The
	// default launches a sandboxless headless chromium.
	Launch func() (*rod.Browser, error)
}

type Pool struct {
	launch func() (*rod.Browser, error)
	tokens chan struct{}

	mu     sync.Mutex
	idle   []*rod.Browser
	closed bool
}

func NewPool(opts PoolOptions) *Pool {
	max := opts.MaxInstances
	if max <= 0 {
		max = DefaultMaxInstances
	}
	launch := opts.Launch
	if launch == nil {
		launch = launchHeadless
	}

	tokens := make(chan struct{}, max)
	for i := 0; i < max; i++ {
		tokens <- struct{}{}
	}

	return &Pool{
		launch: launch,
		tokens: tokens,
	}
}

func launchHeadless() (*rod.Browser, error) {
	controlURL, err := launcher.New().
		Headless(true).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("window-size", "1920,1080").
		Set("disable-blink-features", "AutomationControlled").
		Launch()
	if err != nil {
		return nil, err
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, err
	}
	return b, nil
}

// Lease is an exclusively held browser. Release it on every exit path.
type Lease struct {
	Browser *rod.Browser

	pool     *Pool
	released bool
}

// Acquire blocks until a browser slot frees up or ctx is cancelled.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case <-p.tokens:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	var b *rod.Browser
	if n := len(p.idle); n > 0 {
		b = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if b == nil {
		var err error
		b, err = p.launch()
		if err != nil {
			p.tokens <- struct{}{}
			return nil, err
		}
	}

	return &Lease{Browser: b, pool: p}, nil
}

// Release hands the browser back. Safe to call more than once.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true

	l.pool.mu.Lock()
	if l.pool.closed {
		l.pool.mu.Unlock()
		closeBrowser(l.Browser)
	} else {
		l.pool.idle = append(l.pool.idle, l.Browser)
		l.pool.mu.Unlock()
	}

	l.pool.tokens <- struct{}{}
}

// Discard closes the leased browser instead of reusing it, for when a
// login left it in an unknown page state.
func (l *Lease) Discard() {
	if l.released {
		return
	}
	l.released = true
	closeBrowser(l.Browser)
	l.pool.tokens <- struct{}{}
}

// Close shuts down every idle browser. Leased browsers are closed as
// they are released.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, b := range idle {
		closeBrowser(b)
	}
}

func closeBrowser(b *rod.Browser) {
	if b == nil {
		return
	}
	if err := b.Close(); err != nil {
		slog.Warn("failed to close browser", "err", err)
	}
}
