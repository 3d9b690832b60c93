// Package collyfetcher implements the static crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/querium-crawler/internal/crawler"
)

const defaultTimeout = 10 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Fetcher implements crawler.Fetcher using the Colly collector. Only a 200
// response counts as available.
type Fetcher struct {
	cfg           Config
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// outcome is filled in by collector callbacks.
type outcome struct {
	status int
	body   []byte
	err    error
}

// New builds a Fetcher. Robots rules are enforced by the engine, so the
// collector itself ignores them.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(&retryTransport{
		base:   newHTTPTransport(),
		policy: NewExponentialRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax),
	})
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		logger:        logger,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) crawler.FetchResult {
	start := time.Now()
	var hooked outcome
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, &hooked)

	res, err := f.runCollector(ctx, collector, rawURL, &hooked)
	if err != nil {
		f.logger.Debug("Static fetch failed", zap.String("url", rawURL), zap.Error(err))
		result := crawler.Unavailable(rawURL, crawler.FetchModeStatic, err)
		result.StatusCode = res.status
		result.Duration = time.Since(start)
		return result
	}
	if res.status != http.StatusOK {
		result := crawler.Unavailable(rawURL, crawler.FetchModeStatic, fmt.Errorf("unexpected status %d", res.status))
		result.StatusCode = res.status
		result.Duration = time.Since(start)
		return result
	}
	result := crawler.Fetched(rawURL, string(res.body), res.status, crawler.FetchModeStatic)
	result.Duration = time.Since(start)
	return result
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, res *outcome) {
	hooks.OnResponse(func(r *colly.Response) {
		res.status = r.StatusCode
		res.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.status = r.StatusCode
		}
		res.err = err
	})
}

// runCollector returns a copy of the hooked outcome once Visit completes. The
// hooks may still be running after a cancellation, so hooked is only read on
// the completion path.
func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	rawURL string,
	hooked *outcome,
) (outcome, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return outcome{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		res := *hooked
		if res.status != 0 && res.err != nil {
			// Non-2xx responses surface through OnError; the status decides.
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("colly visit failed: %w", err)
		}
		if res.err != nil {
			return res, fmt.Errorf("colly response failed: %w", res.err)
		}
		return res, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
