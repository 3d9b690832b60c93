package headless

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls the chromedp-backed pool.
type Config struct {
	Sessions        int
	UserAgent       string
	NavTimeout      time.Duration
	ConsentWait     time.Duration
	ConsentPatterns []string
	ExecPath        string
}

// NewChromedpPool launches one browser allocator and cfg.Sessions browser
// contexts on top of it. Every session is warmed up before the pool is
// returned, so a missing Chrome binary fails here.
func NewChromedpPool(ctx context.Context, cfg Config, logger *zap.Logger, opts ...PoolOption) (*Pool, error) {
	if cfg.Sessions <= 0 {
		return nil, fmt.Errorf("browser sessions must be > 0, got %d", cfg.Sessions)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)

	sessions := make([]Session, 0, cfg.Sessions)
	for i := 0; i < cfg.Sessions; i++ {
		s, err := newChromedpSession(allocCtx, cfg)
		if err != nil {
			for _, started := range sessions {
				_ = started.Close()
			}
			allocCancel()
			return nil, fmt.Errorf("start browser session %d: %w", i, err)
		}
		sessions = append(sessions, s)
	}
	logger.Info("Browser pool ready", zap.Int("sessions", cfg.Sessions))

	opts = append([]PoolOption{WithNavTimeout(cfg.NavTimeout), withOnClose(allocCancel)}, opts...)
	return NewPool(sessions, logger, opts...)
}

type chromedpSession struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	userAgent     string
	consentWait   time.Duration
	consentXPath  string
}

func newChromedpSession(allocCtx context.Context, cfg Config) (*chromedpSession, error) {
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &chromedpSession{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		userAgent:     cfg.UserAgent,
		consentWait:   cfg.ConsentWait,
		consentXPath:  consentXPath(cfg.ConsentPatterns),
	}, nil
}

// Render opens a tab, waits for the body, dismisses a consent banner if one
// shows up within the consent wait, and returns the page markup.
func (s *chromedpSession) Render(ctx context.Context, rawURL string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithCancel(tabCtx)
	defer cancelTask()
	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	actions := chromedp.Tasks{network.Enable()}
	if s.userAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(s.userAgent))
	}
	actions = append(actions,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err := chromedp.Run(taskCtx, actions); err != nil {
		return "", fmt.Errorf("chromedp navigate: %w", err)
	}

	s.dismissConsent(taskCtx)

	var html string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("chromedp outer html: %w", err)
	}
	return html, nil
}

// dismissConsent clicks the first matching consent button. A banner that never
// appears is not an error.
func (s *chromedpSession) dismissConsent(ctx context.Context) {
	if s.consentXPath == "" || s.consentWait <= 0 {
		return
	}
	clickCtx, cancel := context.WithTimeout(ctx, s.consentWait)
	defer cancel()
	_ = chromedp.Run(clickCtx, chromedp.Click(s.consentXPath, chromedp.BySearch))
}

func (s *chromedpSession) Close() error {
	s.browserCancel()
	return nil
}

// consentXPath matches a button whose text contains any of the patterns.
func consentXPath(patterns []string) string {
	clauses := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.Contains(p, "'") {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("contains(., '%s')", p))
	}
	if len(clauses) == 0 {
		return ""
	}
	return "//button[" + strings.Join(clauses, " or ") + "]"
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
