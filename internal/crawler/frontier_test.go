package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrontierTryPushRespectsCapacity(t *testing.T) {
	t.Parallel()

	front := newFrontier(1)
	require.True(t, front.TryPush(FrontierEntry{URL: "https://a.example"}))
	require.False(t, front.TryPush(FrontierEntry{URL: "https://b.example"}))
	require.Equal(t, 1, front.Len())

	entry, ok := front.Next(context.Background())
	require.True(t, ok)
	require.Equal(t, "https://a.example", entry.URL)
	front.Done()

	select {
	case <-front.Exhausted():
	case <-time.After(time.Second):
		t.Fatal("frontier should be exhausted once the only entry is done")
	}
	_, ok = front.Next(context.Background())
	require.False(t, ok)
}

func TestFrontierStaysOpenWhileEntriesInFlight(t *testing.T) {
	t.Parallel()

	front := newFrontier(4)
	require.True(t, front.TryPush(FrontierEntry{URL: "https://a.example"}))
	_, ok := front.Next(context.Background())
	require.True(t, ok)

	// The in-flight entry discovers a child before finishing.
	require.True(t, front.TryPush(FrontierEntry{URL: "https://a.example/child", Depth: 1}))
	front.Done()

	entry, ok := front.Next(context.Background())
	require.True(t, ok)
	require.Equal(t, 1, entry.Depth)
	front.Done()
	<-front.Exhausted()
}

func TestFrontierNextHonorsContext(t *testing.T) {
	t.Parallel()

	front := newFrontier(1)
	require.True(t, front.TryPush(FrontierEntry{URL: "https://a.example"}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := front.Next(ctx)
	require.False(t, ok)
}

func TestResultBufferSwapsOnInterval(t *testing.T) {
	t.Parallel()

	buf := newResultBuffer(2)
	n, batch := buf.Append(PageRecord{URL: "a"})
	require.Equal(t, 1, n)
	require.Nil(t, batch)

	n, batch = buf.Append(PageRecord{URL: "b"})
	require.Equal(t, 2, n)
	require.Len(t, batch, 2)
	require.Empty(t, buf.Drain())

	_, _ = buf.Append(PageRecord{URL: "c"})
	buf.Restore(batch)
	drained := buf.Drain()
	require.Equal(t, []string{"a", "b", "c"}, []string{drained[0].URL, drained[1].URL, drained[2].URL})
	require.Equal(t, 3, buf.Crawled())
}

func TestPathDepth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want int
	}{
		{"https://example.com", 0},
		{"https://example.com/", 1},
		{"https://example.com/a/b", 2},
		{"https://example.com/a/b/", 3},
		{"https://example.com/a?x=/y", 1},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, pathDepth(tt.url), tt.url)
	}

	parent := FrontierEntry{URL: "https://example.com/a/b", Depth: 7}
	depth, ok := DepthPathSegments.childDepth(parent, 3)
	require.Equal(t, 2, depth)
	require.True(t, ok)
	_, ok = DepthPathSegments.childDepth(parent, 2)
	require.False(t, ok, "parent at the path depth limit yields no children")
	_, ok = DepthPathSegments.childDepth(FrontierEntry{URL: "https://example.com"}, 0)
	require.False(t, ok)

	depth, ok = DepthIncrement.childDepth(parent, 8)
	require.Equal(t, 8, depth)
	require.True(t, ok)
	_, ok = DepthIncrement.childDepth(parent, 7)
	require.False(t, ok)
}

func TestCrawlableAndSeed(t *testing.T) {
	t.Parallel()

	require.True(t, crawlable("https://example.com/x"))
	require.True(t, crawlable("HTTP://example.com"))
	require.False(t, crawlable("mailto:a@example.com"))
	require.False(t, crawlable("/relative"))

	seed, err := normalizeSeed("  https://example.com/start ")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/start", seed)
	_, err = normalizeSeed("example.com")
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := baseConfig("https://example.com")
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.MaxPages = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.DepthPolicy = "bfs"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.MaxDepth = -1
	require.Error(t, bad.Validate())
}
