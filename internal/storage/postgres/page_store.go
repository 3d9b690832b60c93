// Package postgres mirrors flushed page records into Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/querium-crawler/internal/crawler"
)

const defaultTable = "pages"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PageStoreConfig controls the Postgres connection pool used for page rows.
type PageStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txBeginner interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// PageStore implements crawler.RecordStore. Rows are keyed by (run_id, url),
// so replaying a snapshot is harmless.
type PageStore struct {
	pool  txBeginner
	table string
}

// NewPageStore creates a Postgres-backed PageStore using the provided config.
func NewPageStore(ctx context.Context, cfg PageStoreConfig) (*PageStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewPageStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPageStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPageStoreWithPool(pool txBeginner, table string) (*PageStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PageStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the page table when it does not exist.
func (s *PageStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id     TEXT NOT NULL,
	url        TEXT NOT NULL,
	title      TEXT NOT NULL,
	body_text  TEXT NOT NULL,
	links      JSONB NOT NULL,
	pub_time   TEXT,
	crawl_time TEXT NOT NULL,
	PRIMARY KEY (run_id, url)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create page table: %w", err)
	}
	return nil
}

// StoreRecords inserts records in one transaction.
func (s *PageStore) StoreRecords(ctx context.Context, runID string, records []crawler.PageRecord) (err error) {
	if s == nil || s.pool == nil {
		return errors.New("page store is not configured")
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin page insert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (run_id, url, title, body_text, links, pub_time, crawl_time)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (run_id, url) DO NOTHING`, s.table)

	for _, rec := range records {
		links, marshalErr := json.Marshal(nonNil(rec.Links))
		if marshalErr != nil {
			return fmt.Errorf("marshal links: %w", marshalErr)
		}
		if _, err = tx.Exec(ctx, query,
			runID, rec.URL, rec.Title, rec.Text, links, pubTimeArg(rec.PubTime), rec.CrawlTime,
		); err != nil {
			return fmt.Errorf("insert page %s: %w", rec.URL, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit page insert: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PageStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func pubTimeArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nonNil(links []string) []string {
	if links == nil {
		return []string{}
	}
	return links
}
