// Package headless renders pages in a bounded pool of browser sessions.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/querium-crawler/internal/crawler"
	"github.com/JakeFAU/querium-crawler/internal/metrics"
)

// ErrPoolClosed is returned by Checkout after Close.
var ErrPoolClosed = errors.New("browser pool closed")

const defaultNavTimeout = 30 * time.Second

// Session is one reusable browser. A session serves a single render at a time.
type Session interface {
	Render(ctx context.Context, rawURL string) (string, error)
	Close() error
}

// Waiter throttles renders per domain.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Pool hands out sessions exclusively. Checkout blocks while every session is
// in use; Fetch always returns its session, even when the render panics.
type Pool struct {
	idle       chan Session
	size       int
	inUse      atomic.Int32
	navTimeout time.Duration
	limiter    Waiter
	logger     *zap.Logger
	onClose    func()

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// PoolOption customizes a Pool.
type PoolOption func(*Pool)

// WithLimiter throttles renders through w before navigation.
func WithLimiter(w Waiter) PoolOption {
	return func(p *Pool) { p.limiter = w }
}

// WithNavTimeout bounds each render.
func WithNavTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.navTimeout = d
		}
	}
}

func withOnClose(fn func()) PoolOption {
	return func(p *Pool) { p.onClose = fn }
}

// NewPool wraps pre-built sessions.
func NewPool(sessions []Session, logger *zap.Logger, opts ...PoolOption) (*Pool, error) {
	if len(sessions) == 0 {
		return nil, errors.New("browser pool needs at least one session")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		idle:       make(chan Session, len(sessions)),
		size:       len(sessions),
		navTimeout: defaultNavTimeout,
		logger:     logger,
		done:       make(chan struct{}),
	}
	for _, s := range sessions {
		p.idle <- s
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Size is the number of sessions owned by the pool.
func (p *Pool) Size() int { return p.size }

// InUse is the number of sessions currently checked out.
func (p *Pool) InUse() int { return int(p.inUse.Load()) }

// Checkout takes an idle session, waiting until one is free, ctx ends or the
// pool closes.
func (p *Pool) Checkout(ctx context.Context) (Session, error) {
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}
	select {
	case s := <-p.idle:
		metrics.SetBrowserSessionsInUse(int(p.inUse.Add(1)))
		return s, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("browser checkout: %w", ctx.Err())
	}
}

// Release returns a session. Sessions released after Close are shut down.
func (p *Pool) Release(s Session) {
	if s == nil {
		return
	}
	metrics.SetBrowserSessionsInUse(int(p.inUse.Add(-1)))
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.closeSession(s)
		return
	}
	p.idle <- s
}

// Fetch renders rawURL on a pooled session.
func (p *Pool) Fetch(ctx context.Context, rawURL string) crawler.FetchResult {
	start := time.Now()
	session, err := p.Checkout(ctx)
	if err != nil {
		return crawler.Unavailable(rawURL, crawler.FetchModeDynamic, err)
	}
	defer p.Release(session)

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, rawURL); err != nil {
			return crawler.Unavailable(rawURL, crawler.FetchModeDynamic, err)
		}
	}

	renderCtx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()
	html, err := session.Render(renderCtx, rawURL)
	if err != nil {
		p.logger.Debug("Browser render failed", zap.String("url", rawURL), zap.Error(err))
		result := crawler.Unavailable(rawURL, crawler.FetchModeDynamic, err)
		result.Duration = time.Since(start)
		return result
	}
	result := crawler.Fetched(rawURL, html, http.StatusOK, crawler.FetchModeDynamic)
	result.Duration = time.Since(start)
	return result
}

// Close shuts down idle sessions and marks the pool closed. Sessions still
// checked out are closed when released.
func (p *Pool) Close(_ context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	for {
		select {
		case s := <-p.idle:
			p.closeSession(s)
			continue
		default:
		}
		break
	}
	p.mu.Unlock()
	if p.onClose != nil {
		p.onClose()
	}
	return nil
}

func (p *Pool) closeSession(s Session) {
	if err := s.Close(); err != nil {
		p.logger.Warn("Failed to close browser session", zap.Error(err))
	}
}
