// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/querium-crawler/internal/crawler"
)

// DefaultUserAgent identifies the crawler as a desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Checkpoint backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CrawlerConfig governs the frontier scheduler.
type CrawlerConfig struct {
	SeedURL          string        `mapstructure:"seed_url"`
	MaxDepth         int           `mapstructure:"max_depth"`
	MaxPages         int           `mapstructure:"max_pages"`
	Workers          int           `mapstructure:"workers"`
	FrontierCapacity int           `mapstructure:"frontier_capacity"`
	SaveInterval     int           `mapstructure:"save_interval"`
	FailurePause     time.Duration `mapstructure:"failure_pause"`
	DepthPolicy      string        `mapstructure:"depth_policy"`
	UserAgent        string        `mapstructure:"user_agent"`
	RespectRobots    bool          `mapstructure:"respect_robots"`
	RobotsAgent      string        `mapstructure:"robots_agent"`
	RunTimeout       time.Duration `mapstructure:"run_timeout"`
}

// HTTPConfig configures the static fetcher.
type HTTPConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
}

// BrowserConfig configures the headless session pool.
type BrowserConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Sessions        int           `mapstructure:"sessions"`
	NavTimeout      time.Duration `mapstructure:"nav_timeout"`
	ConsentWait     time.Duration `mapstructure:"consent_wait"`
	ConsentPatterns []string      `mapstructure:"consent_patterns"`
	DomainQPS       float64       `mapstructure:"domain_qps"`
	ExecPath        string        `mapstructure:"exec_path"`
}

// DetectorConfig tunes when static markup is re-rendered.
type DetectorConfig struct {
	Keywords     []string `mapstructure:"keywords"`
	MinHTMLBytes int      `mapstructure:"min_html_bytes"`
	Selectors    []string `mapstructure:"selectors"`
}

// CheckpointConfig chooses where snapshots are written.
type CheckpointConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	Prefix    string `mapstructure:"prefix"`
	PerRunDir bool   `mapstructure:"per_run_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls the optional Postgres record mirror.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for snapshot notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the ops HTTP server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	return LoadFrom(viper.New(), path)
}

// LoadFrom reads into v, which may already carry bound command-line flags.
func LoadFrom(v *viper.Viper, path string) (Config, error) {
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.seed_url", "")
	v.SetDefault("crawler.max_depth", 3)
	v.SetDefault("crawler.max_pages", 100)
	v.SetDefault("crawler.workers", 10)
	v.SetDefault("crawler.frontier_capacity", 1000)
	v.SetDefault("crawler.save_interval", 10)
	v.SetDefault("crawler.failure_pause", time.Second)
	v.SetDefault("crawler.depth_policy", string(crawler.DepthPathSegments))
	v.SetDefault("crawler.user_agent", DefaultUserAgent)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.robots_agent", "*")
	v.SetDefault("crawler.run_timeout", time.Duration(0))
	v.SetDefault("http.timeout", 10*time.Second)
	v.SetDefault("http.max_retries", 5)
	v.SetDefault("http.backoff_initial", 100*time.Millisecond)
	v.SetDefault("http.backoff_max", 5*time.Second)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.sessions", 2)
	v.SetDefault("browser.nav_timeout", 30*time.Second)
	v.SetDefault("browser.consent_wait", 10*time.Second)
	v.SetDefault("browser.consent_patterns", []string{"Accept", "Aceitar"})
	v.SetDefault("browser.domain_qps", 0.0)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("detector.keywords", []string{"javascript required"})
	v.SetDefault("detector.min_html_bytes", 0)
	v.SetDefault("detector.selectors", []string{})
	v.SetDefault("checkpoint.backend", BackendLocal)
	v.SetDefault("checkpoint.dir", "./output")
	v.SetDefault("checkpoint.prefix", "")
	v.SetDefault("checkpoint.per_run_dir", false)
	v.SetDefault("checkpoint.gcs_bucket", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "pages")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("server.addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("crawler: %w", err)
	}
	if c.Crawler.RunTimeout < 0 {
		return errors.New("crawler.run_timeout must be >= 0")
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return errors.New("http.max_retries must be >= 0")
	}
	if c.Browser.Enabled && c.Browser.Sessions <= 0 {
		return errors.New("browser.sessions must be > 0 when the browser is enabled")
	}
	if c.Browser.DomainQPS < 0 {
		return errors.New("browser.domain_qps must be >= 0")
	}
	switch c.Checkpoint.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Checkpoint.Dir) == "" {
			return errors.New("checkpoint.dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Checkpoint.GCSBucket == "" {
			return errors.New("checkpoint.gcs_bucket must be set for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown checkpoint.backend %q", c.Checkpoint.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

// EngineConfig converts the crawler section into the scheduler's settings.
func (c Config) EngineConfig() crawler.Config {
	return crawler.Config{
		SeedURL:            c.Crawler.SeedURL,
		MaxDepth:           c.Crawler.MaxDepth,
		MaxPages:           c.Crawler.MaxPages,
		Workers:            c.Crawler.Workers,
		FrontierCapacity:   c.Crawler.FrontierCapacity,
		CheckpointInterval: c.Crawler.SaveInterval,
		FailurePause:       c.Crawler.FailurePause,
		DepthPolicy:        crawler.DepthPolicy(c.Crawler.DepthPolicy),
	}
}
