// Package politeness answers whether a URL may be crawled according to the
// robots.txt of its origin.
package politeness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/querium-crawler/internal/crawler"
	"github.com/JakeFAU/querium-crawler/internal/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	maxRobotsBytes = 1 << 20
)

// Config controls robots.txt enforcement.
type Config struct {
	Respect   bool
	UserAgent string
	// Agent is the robots.txt group the rules are tested against.
	Agent   string
	Timeout time.Duration
	Client  *http.Client
}

// Resolver caches one robots.txt policy per origin for the lifetime of a run.
type Resolver struct {
	client    *http.Client
	userAgent string
	agent     string
	cache     sync.Map
	inflight  singleflight.Group
	logger    *zap.Logger
}

var allowAllRobots, _ = robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)

// New builds a RobotsPolicy respecting the config toggle.
func New(cfg Config, logger *zap.Logger) crawler.RobotsPolicy {
	if !cfg.Respect {
		return allowAllPolicy{}
	}
	return NewResolver(cfg, logger)
}

// NewResolver builds a Resolver regardless of the Respect toggle.
func NewResolver(cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	agent := cfg.Agent
	if agent == "" {
		agent = "*"
	}
	return &Resolver{
		client:    client,
		userAgent: cfg.UserAgent,
		agent:     agent,
		logger:    logger,
	}
}

// Allowed implements crawler.RobotsPolicy. Lookup failures allow the URL.
func (r *Resolver) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	data := r.policyFor(ctx, parsed)
	return data.TestAgent(parsed.RequestURI(), r.agent)
}

// Cached reports whether a policy for the URL's origin is already held.
func (r *Resolver) Cached(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	_, ok := r.cache.Load(originKey(parsed))
	return ok
}

func (r *Resolver) policyFor(ctx context.Context, parsed *url.URL) *robotstxt.RobotsData {
	key := originKey(parsed)
	if cached, ok := r.cache.Load(key); ok {
		if data, isData := cached.(*robotstxt.RobotsData); isData {
			return data
		}
	}

	val, _, _ := r.inflight.Do(key, func() (any, error) {
		if cached, ok := r.cache.Load(key); ok {
			return cached, nil
		}
		data, err := r.fetch(ctx, key)
		if err != nil {
			metrics.ObserveRobotsFailure()
			r.logger.Warn("robots fetch failed; allowing access", zap.String("origin", key), zap.Error(err))
			if ctx.Err() != nil {
				return allowAllRobots, nil
			}
			data = allowAllRobots
		}
		r.cache.Store(key, data)
		return data, nil
	})
	data, ok := val.(*robotstxt.RobotsData)
	if !ok || data == nil {
		return allowAllRobots
	}
	return data
}

func (r *Resolver) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("Failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("robots status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	if data == nil {
		return nil, errors.New("parse robots: empty policy")
	}
	return data, nil
}

func originKey(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

type allowAllPolicy struct{}

func (allowAllPolicy) Allowed(context.Context, string) bool { return true }
