package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := crawlerPagesTotal
	Init()
	if crawlerPagesTotal == nil || crawlerPagesTotal != first {
		t.Fatal("Init() should build collectors exactly once")
	}
}

func TestObservers(t *testing.T) {
	ObservePage("https://observers.example/a", "crawled")
	if val := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("observers.example", "crawled")); val != 1 {
		t.Errorf("expected one crawled page, got %f", val)
	}

	before := testutil.ToFloat64(crawlerCheckpointRecordsTotal.WithLabelValues("partial"))
	ObserveCheckpoint("partial", 3)
	if val := testutil.ToFloat64(crawlerCheckpointRecordsTotal.WithLabelValues("partial")); val != before+3 {
		t.Errorf("expected checkpoint records to grow by 3, got %f", val-before)
	}

	SetBrowserSessionsInUse(2)
	if val := testutil.ToFloat64(crawlerBrowserSessionsInUse); val != 2 {
		t.Errorf("expected 2 sessions in use, got %f", val)
	}

	ObserveFetch("static", "ok", 150*time.Millisecond)
	if val := testutil.ToFloat64(crawlerFetchTotal.WithLabelValues("static", "ok")); val < 1 {
		t.Errorf("expected static fetch to be counted, got %f", val)
	}
}

func TestLabelSetFoldsOverflowIntoOther(t *testing.T) {
	t.Parallel()

	set := newLabelSet(3)
	for i := 0; i < 3; i++ {
		site := fmt.Sprintf("host%d.example", i)
		if got := set.label(site); got != site {
			t.Fatalf("label(%q) = %q; want it admitted", site, got)
		}
	}
	if got := set.label("host3.example"); got != OtherSite {
		t.Errorf("label past the limit = %q; want %q", got, OtherSite)
	}
	if got := set.label("host1.example"); got != "host1.example" {
		t.Errorf("admitted host relabeled as %q", got)
	}
	if len(set.seen) != 3 {
		t.Errorf("label set grew to %d entries", len(set.seen))
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
