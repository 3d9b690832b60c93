// Package checkpoint writes crawl snapshots as JSON files to a blob store and
// optionally mirrors and announces them.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/querium-crawler/internal/crawler"
	"github.com/JakeFAU/querium-crawler/internal/metrics"
)

const (
	contentType   = "application/json; charset=utf-8"
	finalFileName = "final_results.json"
)

// Config controls where snapshots land.
type Config struct {
	// Prefix is prepended to every object path.
	Prefix string
	// PerRunDir nests snapshots under the run ID.
	PerRunDir bool
	// Topic receives a Notification per snapshot when a publisher is set.
	Topic string
}

// Notification is published after a snapshot is written.
type Notification struct {
	RunID   string `json:"run_id"`
	URI     string `json:"uri"`
	Seq     int    `json:"seq"`
	Records int    `json:"records"`
	Final   bool   `json:"final"`
}

// Writer implements crawler.Checkpointer.
type Writer struct {
	blobs     crawler.BlobStore
	records   crawler.RecordStore
	publisher crawler.Publisher
	cfg       Config
	logger    *zap.Logger
}

// Option customizes a Writer.
type Option func(*Writer)

// WithRecordStore mirrors every flushed record into store.
func WithRecordStore(store crawler.RecordStore) Option {
	return func(w *Writer) { w.records = store }
}

// WithPublisher announces every snapshot on cfg.Topic.
func WithPublisher(p crawler.Publisher) Option {
	return func(w *Writer) { w.publisher = p }
}

// New builds a Writer over blobs.
func New(blobs crawler.BlobStore, cfg Config, logger *zap.Logger, opts ...Option) (*Writer, error) {
	if blobs == nil {
		return nil, errors.New("checkpoint blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{blobs: blobs, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Flush writes snapshot.Records and returns how many were written. Only the
// blob write can fail a flush; mirror and notification failures are logged.
func (w *Writer) Flush(ctx context.Context, snapshot crawler.Snapshot) (int, error) {
	data, err := Encode(snapshot.Records)
	if err != nil {
		metrics.ObserveCheckpointError()
		return 0, err
	}
	objectPath := w.ObjectPath(snapshot)
	uri, err := w.blobs.PutObject(ctx, objectPath, contentType, bytes.NewReader(data))
	if err != nil {
		metrics.ObserveCheckpointError()
		return 0, fmt.Errorf("write snapshot %s: %w", objectPath, err)
	}

	written := len(snapshot.Records)
	kind := "partial"
	if snapshot.Final {
		kind = "final"
	}
	metrics.ObserveCheckpoint(kind, written)
	w.logger.Info("Checkpoint written",
		zap.String("uri", uri),
		zap.String("kind", kind),
		zap.Int("records", written),
	)

	w.mirror(ctx, snapshot)
	w.announce(ctx, snapshot, uri, written)
	return written, nil
}

// ObjectPath names the snapshot: partial_results_<seq>.json for periodic
// flushes and final_results.json for the last one.
func (w *Writer) ObjectPath(snapshot crawler.Snapshot) string {
	name := fmt.Sprintf("partial_results_%d.json", snapshot.Seq)
	if snapshot.Final {
		name = finalFileName
	}
	parts := make([]string, 0, 3)
	if prefix := strings.Trim(w.cfg.Prefix, "/"); prefix != "" {
		parts = append(parts, prefix)
	}
	if w.cfg.PerRunDir && snapshot.RunID != "" {
		parts = append(parts, snapshot.RunID)
	}
	parts = append(parts, name)
	return path.Join(parts...)
}

func (w *Writer) mirror(ctx context.Context, snapshot crawler.Snapshot) {
	if w.records == nil || len(snapshot.Records) == 0 {
		return
	}
	if err := w.records.StoreRecords(ctx, snapshot.RunID, snapshot.Records); err != nil {
		w.logger.Warn("Failed to mirror checkpoint records",
			zap.Int("records", len(snapshot.Records)),
			zap.Error(err),
		)
	}
}

func (w *Writer) announce(ctx context.Context, snapshot crawler.Snapshot, uri string, written int) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	note := Notification{
		RunID:   snapshot.RunID,
		URI:     uri,
		Seq:     snapshot.Seq,
		Records: written,
		Final:   snapshot.Final,
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, note); err != nil {
		w.logger.Warn("Failed to publish checkpoint notification",
			zap.String("topic", w.cfg.Topic),
			zap.String("uri", uri),
			zap.Error(err),
		)
	}
}

// Encode renders records as a pretty-printed JSON array with non-ASCII text
// and markup characters left as-is. A nil slice encodes as [].
func Encode(records []crawler.PageRecord) ([]byte, error) {
	if records == nil {
		records = []crawler.PageRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}
