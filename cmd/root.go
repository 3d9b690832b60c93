// Package cmd defines the command-line interface of the crawler.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/querium-crawler/internal/app"
	"github.com/JakeFAU/querium-crawler/internal/config"
	"github.com/JakeFAU/querium-crawler/internal/crawler"
)

// Runner is the part of app.App the commands use. Tests swap in a fake.
type Runner interface {
	RunID() string
	Run(ctx context.Context) error
	Stats() crawler.Stats
	Close(ctx context.Context) error
}

// newApp is a variable so tests can replace the application factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "querium-crawler",
		Short: "A concurrent crawler that writes page records to checkpoint files.",
		Long: `querium-crawler starts from a seed URL, honours robots.txt, fetches pages
statically or through a pool of headless browsers when the markup needs
JavaScript, and writes structured page records to JSON checkpoints.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "path to a YAML config file")
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
