package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a URL. Implementations never panic on network failure;
// they return Unavailable instead.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) FetchResult
}

// RobotsPolicy answers whether a URL may be crawled.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// RenderDetector decides whether static markup needs a browser render.
type RenderDetector interface {
	NeedsJS(result FetchResult) bool
}

// Extractor converts markup into a PageRecord.
type Extractor interface {
	Extract(pageURL, html string) (PageRecord, error)
}

// Checkpointer persists a snapshot and reports how many records were written.
type Checkpointer interface {
	Flush(ctx context.Context, snapshot Snapshot) (int, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RecordStore mirrors flushed page records into a queryable store.
type RecordStore interface {
	StoreRecords(ctx context.Context, runID string, records []PageRecord) error
}

// Publisher pushes snapshot notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
