// Package dual composes a static fetcher and a browser fetcher. Static markup
// is tried first; the browser runs only when the static result is unavailable
// or the detector flags it.
package dual

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/querium-crawler/internal/crawler"
	"github.com/JakeFAU/querium-crawler/internal/metrics"
)

// Fetcher implements crawler.Fetcher.
type Fetcher struct {
	static   crawler.Fetcher
	dynamic  crawler.Fetcher
	detector crawler.RenderDetector
	logger   *zap.Logger
}

// New builds a dual fetcher. dynamic may be nil, in which case static results
// are returned as-is.
func New(static, dynamic crawler.Fetcher, detector crawler.RenderDetector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		static:   static,
		dynamic:  dynamic,
		detector: detector,
		logger:   logger,
	}
}

// Fetch returns the first available result in static, dynamic order.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) crawler.FetchResult {
	result := f.timed(ctx, f.static, rawURL)
	if f.dynamic == nil {
		return result
	}

	reason := ""
	switch {
	case !result.Available():
		reason = "static unavailable"
	case f.detector != nil && f.detector.NeedsJS(result):
		reason = "render required"
	default:
		return result
	}
	if ctx.Err() != nil {
		return result
	}

	f.logger.Debug("Falling back to browser render",
		zap.String("url", rawURL),
		zap.String("reason", reason),
	)
	return f.timed(ctx, f.dynamic, rawURL)
}

// Close releases the browser fetcher when it holds resources.
func (f *Fetcher) Close(ctx context.Context) error {
	closer, ok := f.dynamic.(interface{ Close(context.Context) error })
	if !ok {
		return nil
	}
	if err := closer.Close(ctx); err != nil {
		return fmt.Errorf("close browser fetcher: %w", err)
	}
	return nil
}

func (f *Fetcher) timed(ctx context.Context, fetcher crawler.Fetcher, rawURL string) crawler.FetchResult {
	start := time.Now()
	result := fetcher.Fetch(ctx, rawURL)
	elapsed := result.Duration
	if elapsed == 0 {
		elapsed = time.Since(start)
	}
	outcome := "ok"
	if !result.Available() {
		outcome = "unavailable"
	}
	metrics.ObserveFetch(string(result.Mode), outcome, elapsed)
	return result
}
