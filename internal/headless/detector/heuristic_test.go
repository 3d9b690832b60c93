package detector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/querium-crawler/internal/crawler"
)

func page(html string) crawler.FetchResult {
	return crawler.Fetched("https://example.com", html, 200, crawler.FetchModeStatic)
}

func TestHeuristicDefaults(t *testing.T) {
	t.Parallel()

	d := NewHeuristic(Config{})
	tests := []struct {
		name   string
		result crawler.FetchResult
		want   bool
	}{
		{name: "plain page", result: page("<html><body><p>hello</p></body></html>"), want: false},
		{name: "keyword", result: page("<noscript>JavaScript Required to view</noscript>"), want: true},
		{name: "keyword mixed case", result: page("please note: JAVASCRIPT REQUIRED"), want: true},
		{name: "partial keyword", result: page("javascript is nice but not required"), want: false},
		{name: "empty body", result: page(""), want: false},
		{name: "unavailable", result: crawler.Unavailable("https://example.com", crawler.FetchModeStatic, errors.New("boom")), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, d.NeedsJS(tt.result))
		})
	}
}

func TestHeuristicConfigured(t *testing.T) {
	t.Parallel()

	d := NewHeuristic(Config{
		Keywords:     []string{" lazy ", ""},
		MinHTMLBytes: 10,
		Selectors:    []string{"#content", " "},
	})
	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "small body triggers", body: "hi", want: true},
		{name: "keyword triggers", body: "<html>lazy markup</html>", want: true},
		{name: "missing selector triggers", body: `<html><body><div id="other"></div></body></html>`, want: true},
		{name: "all conditions satisfied", body: `<div id="content">ok</div> and enough bytes`, want: false},
		{name: "default keyword replaced", body: `<div id="content">javascript required</div>`, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, d.NeedsJS(page(tt.body)))
		})
	}
}

func TestNilHeuristic(t *testing.T) {
	t.Parallel()

	var d *Heuristic
	assert.False(t, d.NeedsJS(page("javascript required")))
}
