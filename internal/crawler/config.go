package crawler

import (
	"fmt"
	"time"
)

// DepthPolicy decides the depth recorded for links discovered on a page.
type DepthPolicy string

const (
	// DepthPathSegments records the number of "/" in the discovering URL's path.
	DepthPathSegments DepthPolicy = "path_segments"
	// DepthIncrement records the discovering entry's depth plus one.
	DepthIncrement DepthPolicy = "increment"
)

// Config holds the settings for one crawl run.
type Config struct {
	SeedURL            string
	MaxDepth           int
	MaxPages           int
	Workers            int
	FrontierCapacity   int
	CheckpointInterval int
	FailurePause       time.Duration
	DepthPolicy        DepthPolicy
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.SeedURL == "" {
		return fmt.Errorf("seed url must be set")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth must be >= 0")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be > 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.FrontierCapacity <= 0 {
		return fmt.Errorf("frontier capacity must be > 0")
	}
	if c.CheckpointInterval <= 0 {
		return fmt.Errorf("checkpoint interval must be > 0")
	}
	if c.FailurePause < 0 {
		return fmt.Errorf("failure pause must be >= 0")
	}
	switch c.DepthPolicy {
	case "", DepthPathSegments, DepthIncrement:
	default:
		return fmt.Errorf("unknown depth policy %q", c.DepthPolicy)
	}
	return nil
}
