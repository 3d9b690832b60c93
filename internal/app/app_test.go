package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/querium-crawler/internal/app"
	"github.com/JakeFAU/querium-crawler/internal/config"
	"github.com/JakeFAU/querium-crawler/internal/crawler"
)

func TestAppCrawlsSiteIntoLocalCheckpoints(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html><head><title>Home</title></head><body>
				<p>Welcome</p><a href="/a">A</a><a href="/missing">M</a></body></html>`)
		case "/a":
			fmt.Fprint(w, `<html><head><title>A</title></head><body><p>Page A</p><a href="/">home</a></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := loadConfig(t, map[string]any{
		"crawler.seed_url":   srv.URL + "/",
		"crawler.workers":    2,
		"checkpoint.dir":     dir,
		"checkpoint.backend": config.BackendLocal,
	})

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })
	require.NotEmpty(t, a.RunID())

	require.NoError(t, a.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, "final_results.json"))
	require.NoError(t, err)
	var records []crawler.PageRecord
	require.NoError(t, json.Unmarshal(data, &records))

	urls := make([]string, 0, len(records))
	for _, rec := range records {
		urls = append(urls, rec.URL)
	}
	assert.ElementsMatch(t, []string{srv.URL + "/", srv.URL + "/a"}, urls)

	stats := a.Stats()
	assert.Equal(t, a.RunID(), stats.RunID)
	assert.EqualValues(t, 2, stats.Crawled)
	assert.EqualValues(t, 1, stats.Failed)
	assert.False(t, stats.Running)
}

func TestAppRunTimeoutStillFlushes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := loadConfig(t, map[string]any{
		"crawler.seed_url":    srv.URL + "/slow",
		"crawler.run_timeout": "200ms",
		"checkpoint.dir":      dir,
	})

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })

	require.NoError(t, a.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, "final_results.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestAppCancelledRunReturnsContextError(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t, map[string]any{
		"crawler.seed_url":   "http://127.0.0.1:1/",
		"checkpoint.backend": config.BackendMemory,
	})
	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, a.Run(ctx), context.Canceled)
}

func TestAppNewFailsOnBadDatabaseDSN(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t, map[string]any{
		"crawler.seed_url":   "https://example.com",
		"checkpoint.backend": config.BackendMemory,
		"db.dsn":             "postgres://localhost:notaport/db",
	})
	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "init page store")
}

func TestAppNewFailsOnUnwritableDir(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "plain-file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	cfg := loadConfig(t, map[string]any{
		"crawler.seed_url": "https://example.com",
		"checkpoint.dir":   filepath.Join(file, "nested"),
	})
	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "init local checkpoint store")
}

func loadConfig(t *testing.T, overrides map[string]any) config.Config {
	t.Helper()
	v := viper.New()
	v.Set("browser.enabled", false)
	v.Set("crawler.failure_pause", "0s")
	v.Set("http.max_retries", 0)
	v.Set("logging.development", false)
	for k, val := range overrides {
		v.Set(k, val)
	}
	cfg, err := config.LoadFrom(v, "")
	require.NoError(t, err)
	return cfg
}
