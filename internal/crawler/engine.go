package crawler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/querium-crawler/internal/metrics"
)

const finalFlushTimeout = 30 * time.Second

// ErrEngineUsed is returned by Run on an Engine that has already run. The
// visited set and result buffer belong to a single run.
var ErrEngineUsed = errors.New("crawler engine already used; create a new engine per run")

// Engine is the frontier scheduler. It owns the visited set and result buffer
// for exactly one run; Run may be called once.
type Engine struct {
	cfg          Config
	fetcher      Fetcher
	robots       RobotsPolicy
	extractor    Extractor
	checkpointer Checkpointer
	pauser       pauseController
	logger       *zap.Logger
	runID        string

	visited *visitedSet
	buffer  *resultBuffer

	started    atomic.Bool
	running    atomic.Bool
	failed     atomic.Int64
	disallowed atomic.Int64
	snapshots  atomic.Int64
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRunID tags snapshots and logs with id.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// NewEngine wires the collaborators into a scheduler.
func NewEngine(
	cfg Config,
	fetcher Fetcher,
	robots RobotsPolicy,
	extractor Extractor,
	checkpointer Checkpointer,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DepthPolicy == "" {
		cfg.DepthPolicy = DepthPathSegments
	}
	e := &Engine{
		cfg:          cfg,
		fetcher:      fetcher,
		robots:       robots,
		extractor:    extractor,
		checkpointer: checkpointer,
		pauser:       &timerPauseController{},
		logger:       logger,
		visited:      newVisitedSet(cfg.MaxPages),
		buffer:       newResultBuffer(cfg.CheckpointInterval),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats reports progress counters.
func (e *Engine) Stats() Stats {
	return Stats{
		RunID:      e.runID,
		Visited:    int64(e.visited.Len()),
		Crawled:    int64(e.buffer.Crawled()),
		Failed:     e.failed.Load(),
		Disallowed: e.disallowed.Load(),
		Snapshots:  e.snapshots.Load(),
		Running:    e.running.Load(),
	}
}

// Run crawls from the seed until the frontier is exhausted, the page cap is
// reached or ctx ends, then performs the final flush. A cancelled run still
// flushes and returns the context error.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid crawler config: %w", err)
	}
	if e.fetcher == nil || e.robots == nil || e.extractor == nil || e.checkpointer == nil {
		return errors.New("crawler engine is missing a collaborator")
	}
	seed, err := normalizeSeed(e.cfg.SeedURL)
	if err != nil {
		return err
	}
	if !e.started.CompareAndSwap(false, true) {
		return ErrEngineUsed
	}
	e.running.Store(true)
	defer e.running.Store(false)

	start := time.Now()
	e.logger.Info("Crawl starting",
		zap.String("run_id", e.runID),
		zap.String("seed", seed),
		zap.Int("max_depth", e.cfg.MaxDepth),
		zap.Int("max_pages", e.cfg.MaxPages),
		zap.Int("workers", e.cfg.Workers),
	)

	front := newFrontier(e.cfg.FrontierCapacity)
	front.TryPush(FrontierEntry{URL: seed, Depth: 0})

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.work(ctx, front, id)
		}(i)
	}
	wg.Wait()

	flushErr := e.finalFlush(ctx)
	stats := e.Stats()
	e.logger.Info("Crawl finished",
		zap.String("run_id", e.runID),
		zap.Int64("visited", stats.Visited),
		zap.Int64("crawled", stats.Crawled),
		zap.Int64("failed", stats.Failed),
		zap.Int64("disallowed", stats.Disallowed),
		zap.Duration("elapsed", time.Since(start)),
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("crawl interrupted: %w", ctxErr)
	}
	return flushErr
}

// Close releases collaborators that hold resources, such as browser sessions.
func (e *Engine) Close(ctx context.Context) error {
	closer, ok := e.fetcher.(interface{ Close(context.Context) error })
	if !ok {
		return nil
	}
	if err := closer.Close(ctx); err != nil {
		return fmt.Errorf("close fetcher: %w", err)
	}
	return nil
}

func (e *Engine) work(ctx context.Context, front *frontier, id int) {
	for {
		entry, ok := front.Next(ctx)
		if !ok {
			return
		}
		e.dispatch(ctx, front, entry, id)
		front.Done()
	}
}

func (e *Engine) dispatch(ctx context.Context, front *frontier, entry FrontierEntry, workerID int) {
	if entry.Depth > e.cfg.MaxDepth {
		return
	}
	if e.visited.Claim(entry.URL) != claimNew {
		return
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if r := recover(); r != nil {
			e.failed.Add(1)
			metrics.ObservePage(entry.URL, "failed")
			e.logger.Error("Worker panicked",
				zap.Int("worker", workerID),
				zap.String("url", entry.URL),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	if !e.robots.Allowed(ctx, entry.URL) {
		e.disallowed.Add(1)
		metrics.ObservePage(entry.URL, "disallowed")
		e.logger.Debug("Blocked by robots.txt", zap.String("url", entry.URL))
		return
	}

	result := e.fetcher.Fetch(ctx, entry.URL)
	if !result.Available() {
		e.fail(ctx, entry, "fetch failed", result.Err)
		return
	}

	record, err := e.extractor.Extract(entry.URL, result.HTML)
	if err != nil {
		e.fail(ctx, entry, "extract failed", err)
		return
	}

	metrics.ObservePage(entry.URL, "crawled")
	e.logger.Info("Crawled page",
		zap.String("url", entry.URL),
		zap.Int("depth", entry.Depth),
		zap.String("mode", string(result.Mode)),
		zap.Int("links", len(record.Links)),
	)
	e.collect(ctx, record)
	e.enqueueLinks(front, entry, record.Links)
}

func (e *Engine) fail(ctx context.Context, entry FrontierEntry, msg string, err error) {
	e.failed.Add(1)
	metrics.ObservePage(entry.URL, "failed")
	e.logger.Warn(msg, zap.String("url", entry.URL), zap.Error(err))
	e.pauser.Pause(ctx, e.cfg.FailurePause)
}

func (e *Engine) collect(ctx context.Context, record PageRecord) {
	crawled, batch := e.buffer.Append(record)
	if batch == nil {
		return
	}
	snapshot := Snapshot{RunID: e.runID, Seq: crawled, Records: batch}
	if _, err := e.checkpointer.Flush(ctx, snapshot); err != nil {
		e.buffer.Restore(batch)
		e.logger.Error("Checkpoint failed; records kept for the final flush",
			zap.Int("seq", crawled),
			zap.Int("records", len(batch)),
			zap.Error(err),
		)
		return
	}
	e.snapshots.Add(1)
}

func (e *Engine) enqueueLinks(front *frontier, parent FrontierEntry, links []string) {
	depth, ok := e.cfg.DepthPolicy.childDepth(parent, e.cfg.MaxDepth)
	if !ok {
		return
	}
	for _, link := range links {
		if e.visited.Full() {
			return
		}
		if !crawlable(link) || e.visited.Seen(link) {
			continue
		}
		if !front.TryPush(FrontierEntry{URL: link, Depth: depth}) {
			e.logger.Debug("Frontier full; dropping remaining links",
				zap.String("parent", parent.URL),
				zap.Int("queued", front.Len()),
			)
			return
		}
	}
}

func (e *Engine) finalFlush(ctx context.Context) error {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
	defer cancel()

	records := e.buffer.Drain()
	snapshot := Snapshot{RunID: e.runID, Seq: e.buffer.Crawled(), Final: true, Records: records}
	written, err := e.checkpointer.Flush(flushCtx, snapshot)
	if err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	e.snapshots.Add(1)
	e.logger.Info("Final results flushed", zap.Int("records", written))
	return nil
}
