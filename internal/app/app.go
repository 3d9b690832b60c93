// Package app builds the crawl pipeline from configuration and owns the
// lifetime of every long-lived service it creates.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/querium-crawler/internal/api"
	"github.com/JakeFAU/querium-crawler/internal/checkpoint"
	"github.com/JakeFAU/querium-crawler/internal/clock/system"
	"github.com/JakeFAU/querium-crawler/internal/config"
	"github.com/JakeFAU/querium-crawler/internal/crawler"
	"github.com/JakeFAU/querium-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/querium-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/querium-crawler/internal/fetcher/dual"
	"github.com/JakeFAU/querium-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/querium-crawler/internal/headless/detector"
	"github.com/JakeFAU/querium-crawler/internal/id/uuid"
	"github.com/JakeFAU/querium-crawler/internal/logging"
	"github.com/JakeFAU/querium-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/querium-crawler/internal/politeness"
	gcppublisher "github.com/JakeFAU/querium-crawler/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/querium-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/querium-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/querium-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/querium-crawler/internal/storage/postgres"
)

// App contains the application's dependencies for one crawl run.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	runID  string
	engine *crawler.Engine
	ops    *api.Server

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// New builds every collaborator named by cfg. On error, anything already
// opened is closed before returning.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var ids crawler.IDGenerator = uuid.New()
	runID, err := ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	a := &App{
		cfg:    cfg,
		logger: logging.ForRun(logger, runID, cfg.Crawler.SeedURL),
		runID:  runID,
	}
	if started, tsErr := uuid.StartedAt(runID); tsErr == nil {
		a.logger.Info("Run created", zap.Time("started_at", started))
	}
	defer func() {
		if err != nil {
			if closeErr := a.Close(context.WithoutCancel(ctx)); closeErr != nil {
				a.logger.Warn("Cleanup after failed init", zap.Error(closeErr))
			}
		}
	}()

	writer, err := a.buildCheckpointWriter(ctx)
	if err != nil {
		return nil, err
	}

	robots := politeness.New(politeness.Config{
		Respect:   cfg.Crawler.RespectRobots,
		UserAgent: cfg.Crawler.UserAgent,
		Agent:     cfg.Crawler.RobotsAgent,
		Timeout:   cfg.HTTP.Timeout,
	}, a.logger.Named("robots"))

	fetcher := a.buildFetcher(ctx)
	extractor := extract.New(system.New(), a.logger.Named("extract"))

	a.engine = crawler.NewEngine(
		cfg.EngineConfig(),
		fetcher,
		robots,
		extractor,
		writer,
		a.logger.Named("engine"),
		crawler.WithRunID(runID),
	)
	a.closers = append(a.closers, closer{name: "engine", fn: a.engine.Close})

	if cfg.Server.Addr != "" {
		a.ops = api.NewServer(a.engine, a.logger.Named("api"))
	}
	return a, nil
}

// RunID identifies this run in logs, snapshots and notifications.
func (a *App) RunID() string {
	return a.runID
}

// Stats reports the engine's progress counters.
func (a *App) Stats() crawler.Stats {
	return a.engine.Stats()
}

// Run crawls until the engine finishes, the optional run timeout elapses or
// ctx ends. The ops server, when configured, lives exactly as long as the run.
func (a *App) Run(ctx context.Context) error {
	runCtx := ctx
	if a.cfg.Crawler.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.cfg.Crawler.RunTimeout)
		defer cancel()
	}

	var wg sync.WaitGroup
	opsCtx, stopOps := context.WithCancel(ctx)
	if a.ops != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.ops.ListenAndServe(opsCtx, a.cfg.Server.Addr); err != nil {
				a.logger.Error("Ops server failed", zap.Error(err))
			}
		}()
	}

	err := a.engine.Run(runCtx)
	stopOps()
	wg.Wait()

	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		a.logger.Warn("Run timeout reached", zap.Duration("run_timeout", a.cfg.Crawler.RunTimeout))
		return nil
	}
	return err
}

// Close shuts services down in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) buildFetcher(ctx context.Context) crawler.Fetcher {
	cfg := a.cfg
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		Timeout:        cfg.HTTP.Timeout,
		MaxRetries:     cfg.HTTP.MaxRetries,
		BackoffInitial: cfg.HTTP.BackoffInitial,
		BackoffMax:     cfg.HTTP.BackoffMax,
	}, a.logger.Named("static"))

	detect := detector.NewHeuristic(detector.Config{
		Keywords:     cfg.Detector.Keywords,
		MinHTMLBytes: cfg.Detector.MinHTMLBytes,
		Selectors:    cfg.Detector.Selectors,
	})

	var dynamic crawler.Fetcher
	if cfg.Browser.Enabled {
		pool, err := headless.NewChromedpPool(ctx, headless.Config{
			Sessions:        cfg.Browser.Sessions,
			UserAgent:       cfg.Crawler.UserAgent,
			NavTimeout:      cfg.Browser.NavTimeout,
			ConsentWait:     cfg.Browser.ConsentWait,
			ConsentPatterns: cfg.Browser.ConsentPatterns,
			ExecPath:        cfg.Browser.ExecPath,
		}, a.logger.Named("browser"),
			headless.WithLimiter(ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Browser.DomainQPS})),
		)
		if err != nil {
			a.logger.Warn("Browser pool unavailable; crawling with static fetches only", zap.Error(err))
		} else {
			dynamic = pool
		}
	}
	return dual.New(static, dynamic, detect, a.logger.Named("fetch"))
}

func (a *App) buildCheckpointWriter(ctx context.Context) (*checkpoint.Writer, error) {
	cfg := a.cfg
	blobs, err := a.buildBlobStore(ctx)
	if err != nil {
		return nil, err
	}

	var opts []checkpoint.Option
	if cfg.DB.DSN != "" {
		store, err := pgstore.NewPageStore(ctx, pgstore.PageStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init page store: %w", err)
		}
		a.closers = append(a.closers, closer{name: "page store", fn: func(context.Context) error {
			store.Close()
			return nil
		}})
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure page schema: %w", err)
		}
		opts = append(opts, checkpoint.WithRecordStore(store))
	}

	if cfg.PubSub.Topic != "" {
		pub, err := gcppublisher.Open(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, closer{name: "pubsub", fn: func(context.Context) error { return pub.Close() }})
		opts = append(opts, checkpoint.WithPublisher(pub))
	}

	writer, err := checkpoint.New(blobs, checkpoint.Config{
		Prefix:    cfg.Checkpoint.Prefix,
		PerRunDir: cfg.Checkpoint.PerRunDir,
		Topic:     cfg.PubSub.Topic,
	}, a.logger.Named("checkpoint"), opts...)
	if err != nil {
		return nil, fmt.Errorf("init checkpoint writer: %w", err)
	}
	return writer, nil
}

func (a *App) buildBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	cp := a.cfg.Checkpoint
	switch cp.Backend {
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cp.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local checkpoint store: %w", err)
		}
		return store, nil
	case config.BackendGCS:
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: cp.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs checkpoint store: %w", err)
		}
		a.closers = append(a.closers, closer{name: "gcs", fn: func(context.Context) error { return store.Close() }})
		return store, nil
	case config.BackendMemory:
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cp.Backend)
	}
}
