package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/querium-crawler/internal/crawler"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
crawler:
  seed_url: https://example.com
  max_depth: 1
  max_pages: 25
  workers: 4
  save_interval: 5
  failure_pause: 250ms
  depth_policy: increment
  respect_robots: false
  run_timeout: 2m
http:
  timeout: 3s
  max_retries: 2
  backoff_initial: 50ms
browser:
  enabled: false
  consent_patterns: ["Agree"]
detector:
  keywords: ["enable javascript"]
  min_html_bytes: 512
checkpoint:
  backend: gcs
  gcs_bucket: crawl-results
  prefix: querium
  per_run_dir: true
pubsub:
  project_id: proj
  topic: snapshots
server:
  addr: ":9090"
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", cfg.Crawler.SeedURL)
	assert.Equal(t, 1, cfg.Crawler.MaxDepth)
	assert.Equal(t, 25, cfg.Crawler.MaxPages)
	assert.Equal(t, 4, cfg.Crawler.Workers)
	assert.Equal(t, 1000, cfg.Crawler.FrontierCapacity, "unset keys keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Crawler.FailurePause)
	assert.False(t, cfg.Crawler.RespectRobots)
	assert.Equal(t, 2*time.Minute, cfg.Crawler.RunTimeout)
	assert.Equal(t, 3*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 5*time.Second, cfg.HTTP.BackoffMax)
	assert.False(t, cfg.Browser.Enabled)
	assert.Equal(t, []string{"Agree"}, cfg.Browser.ConsentPatterns)
	assert.Equal(t, []string{"enable javascript"}, cfg.Detector.Keywords)
	assert.Equal(t, 512, cfg.Detector.MinHTMLBytes)
	assert.Equal(t, BackendGCS, cfg.Checkpoint.Backend)
	assert.True(t, cfg.Checkpoint.PerRunDir)
	assert.Equal(t, "snapshots", cfg.PubSub.Topic)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.False(t, cfg.Logging.Development)

	engine := cfg.EngineConfig()
	assert.Equal(t, crawler.DepthIncrement, engine.DepthPolicy)
	assert.Equal(t, 5, engine.CheckpointInterval)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.Set("crawler.seed_url", "https://example.com")
	cfg, err := LoadFrom(v, "")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Crawler.MaxDepth)
	assert.Equal(t, 100, cfg.Crawler.MaxPages)
	assert.Equal(t, 10, cfg.Crawler.Workers)
	assert.Equal(t, 10, cfg.Crawler.SaveInterval)
	assert.Equal(t, time.Second, cfg.Crawler.FailurePause)
	assert.Equal(t, "path_segments", cfg.Crawler.DepthPolicy)
	assert.Equal(t, DefaultUserAgent, cfg.Crawler.UserAgent)
	assert.True(t, cfg.Crawler.RespectRobots)
	assert.Equal(t, "*", cfg.Crawler.RobotsAgent)
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 5, cfg.HTTP.MaxRetries)
	assert.True(t, cfg.Browser.Enabled)
	assert.Equal(t, 2, cfg.Browser.Sessions)
	assert.Equal(t, []string{"Accept", "Aceitar"}, cfg.Browser.ConsentPatterns)
	assert.Equal(t, []string{"javascript required"}, cfg.Detector.Keywords)
	assert.Equal(t, BackendLocal, cfg.Checkpoint.Backend)
	assert.Equal(t, "./output", cfg.Checkpoint.Dir)
	assert.Equal(t, "pages", cfg.DB.Table)
	assert.Empty(t, cfg.Server.Addr)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CRAWLER_CRAWLER_SEED_URL", "https://env.example.com")
	t.Setenv("CRAWLER_CRAWLER_WORKERS", "3")
	t.Setenv("CRAWLER_HTTP_TIMEOUT", "7s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Crawler.SeedURL)
	assert.Equal(t, 3, cfg.Crawler.Workers)
	assert.Equal(t, 7*time.Second, cfg.HTTP.Timeout)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		v := viper.New()
		v.Set("crawler.seed_url", "https://example.com")
		cfg, err := LoadFrom(v, "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing seed", mutate: func(c *Config) { c.Crawler.SeedURL = "" }},
		{name: "zero pages", mutate: func(c *Config) { c.Crawler.MaxPages = 0 }},
		{name: "zero workers", mutate: func(c *Config) { c.Crawler.Workers = 0 }},
		{name: "bad depth policy", mutate: func(c *Config) { c.Crawler.DepthPolicy = "bfs" }},
		{name: "negative run timeout", mutate: func(c *Config) { c.Crawler.RunTimeout = -time.Second }},
		{name: "zero http timeout", mutate: func(c *Config) { c.HTTP.Timeout = 0 }},
		{name: "negative retries", mutate: func(c *Config) { c.HTTP.MaxRetries = -1 }},
		{name: "browser without sessions", mutate: func(c *Config) { c.Browser.Sessions = 0 }},
		{name: "negative qps", mutate: func(c *Config) { c.Browser.DomainQPS = -1 }},
		{name: "local without dir", mutate: func(c *Config) { c.Checkpoint.Dir = " " }},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Checkpoint.Backend = BackendGCS }},
		{name: "unknown backend", mutate: func(c *Config) { c.Checkpoint.Backend = "s3" }},
		{name: "topic without project", mutate: func(c *Config) { c.PubSub.Topic = "t" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	t.Run("browser disabled needs no sessions", func(t *testing.T) {
		t.Parallel()
		cfg := base()
		cfg.Browser.Enabled = false
		cfg.Browser.Sessions = 0
		require.NoError(t, cfg.Validate())
	})
}
