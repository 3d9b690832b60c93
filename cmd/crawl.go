package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/querium-crawler/internal/config"
	"github.com/JakeFAU/querium-crawler/internal/logging"
)

const closeTimeout = 30 * time.Second

// crawlFlags maps command-line flags onto config keys.
var crawlFlags = map[string]string{
	"seed":             "crawler.seed_url",
	"max-depth":        "crawler.max_depth",
	"max-pages":        "crawler.max_pages",
	"workers":          "crawler.workers",
	"save-interval":    "crawler.save_interval",
	"browser-sessions": "browser.sessions",
	"no-browser":       "browser.enabled",
	"output":           "checkpoint.dir",
	"ops-addr":         "server.addr",
}

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl from a seed URL",
		Long: `Runs one crawl from the seed URL until the frontier is exhausted, the page
cap is reached, the run timeout elapses or the process receives SIGINT/SIGTERM.
Buffered records are always flushed to final_results.json before exit.`,
		RunE: runCrawlCommand,
	}

	flags := cmd.Flags()
	flags.String("seed", "", "seed URL (absolute http or https)")
	flags.Int("max-depth", 3, "maximum crawl depth")
	flags.Int("max-pages", 100, "maximum number of pages to visit")
	flags.Int("workers", 10, "number of concurrent workers")
	flags.Int("save-interval", 10, "records per partial checkpoint")
	flags.Int("browser-sessions", 2, "number of headless browser sessions")
	flags.Bool("no-browser", false, "disable the headless browser fallback")
	flags.String("output", "./output", "checkpoint directory for the local backend")
	flags.String("ops-addr", "", "listen address for the ops HTTP server")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadCrawlConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		if syncErr := logging.Sync(logger); syncErr != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), syncErr)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if cerr := application.Close(closeCtx); cerr != nil {
			logger.Warn("Failed to close application", zap.Error(cerr))
		}
	}()

	runErr := application.Run(ctx)
	stats := application.Stats()
	logger.Info("Crawl command finished",
		zap.String("run_id", application.RunID()),
		zap.Int64("crawled", stats.Crawled),
		zap.Int64("failed", stats.Failed),
		zap.Int64("snapshots", stats.Snapshots),
	)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run crawler: %w", runErr)
	}
	return nil
}

func loadCrawlConfig(cmd *cobra.Command) (config.Config, error) {
	v := viper.New()
	for name, key := range crawlFlags {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if name == "no-browser" {
			noBrowser, err := cmd.Flags().GetBool(name)
			if err != nil {
				return config.Config{}, fmt.Errorf("read --%s: %w", name, err)
			}
			v.Set(key, !noBrowser)
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return config.Config{}, fmt.Errorf("bind --%s: %w", name, err)
		}
	}

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("read --config: %w", err)
	}
	cfg, err := config.LoadFrom(v, path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
