package crawler

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotAvailable marks a page that could not be fetched by any strategy.
var ErrNotAvailable = errors.New("page not available")

// FetchMode identifies which strategy produced a FetchResult.
type FetchMode string

const (
	// FetchModeStatic is a plain HTTP retrieval.
	FetchModeStatic FetchMode = "static"
	// FetchModeDynamic is a headless browser render.
	FetchModeDynamic FetchMode = "dynamic"
)

// FetchResult is either a page body or an unavailable marker carrying the cause.
type FetchResult struct {
	URL        string
	HTML       string
	StatusCode int
	Mode       FetchMode
	Duration   time.Duration
	Err        error
}

// Fetched builds an available result.
func Fetched(rawURL, html string, status int, mode FetchMode) FetchResult {
	return FetchResult{URL: rawURL, HTML: html, StatusCode: status, Mode: mode}
}

// Unavailable builds a result that wraps ErrNotAvailable around cause.
func Unavailable(rawURL string, mode FetchMode, cause error) FetchResult {
	err := ErrNotAvailable
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrNotAvailable, cause)
	}
	return FetchResult{URL: rawURL, Mode: mode, Err: err}
}

// Available reports whether the result carries markup.
func (r FetchResult) Available() bool {
	return r.Err == nil
}

// FrontierEntry is a URL awaiting a fetch attempt.
type FrontierEntry struct {
	URL   string
	Depth int
}

// PageRecord is the structured output for one crawled page.
type PageRecord struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	Links     []string `json:"links"`
	PubTime   *string  `json:"pub_time"`
	CrawlTime string   `json:"crawl_time"`
}

// Snapshot is one batch of records handed to a Checkpointer.
type Snapshot struct {
	RunID   string
	Seq     int
	Final   bool
	Records []PageRecord
}

// Stats summarizes engine progress.
type Stats struct {
	RunID      string `json:"run_id"`
	Visited    int64  `json:"visited"`
	Crawled    int64  `json:"crawled"`
	Failed     int64  `json:"failed"`
	Disallowed int64  `json:"disallowed"`
	Snapshots  int64  `json:"snapshots"`
	Running    bool   `json:"running"`
}
