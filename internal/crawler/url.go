package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// normalizeSeed validates that the seed is an absolute http(s) URL.
func normalizeSeed(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse seed url: %w", err)
	}
	if !isHTTPScheme(parsed.Scheme) || parsed.Host == "" {
		return "", fmt.Errorf("seed url %q must be absolute http(s)", raw)
	}
	return trimmed, nil
}

// crawlable reports whether a discovered link can be fetched at all.
func crawlable(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return isHTTPScheme(parsed.Scheme) && parsed.Host != ""
}

// pathDepth counts the "/" characters of the URL path. "https://a.com" is 0,
// "https://a.com/" is 1, "https://a.com/x/y" is 2.
func pathDepth(rawURL string) int {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	return strings.Count(parsed.Path, "/")
}

// childDepth returns the depth recorded for links found on parent and whether
// they may be enqueued at all. Under path_segments, links are followed only
// while the parent's own path depth is below maxDepth.
func (p DepthPolicy) childDepth(parent FrontierEntry, maxDepth int) (int, bool) {
	if p == DepthIncrement {
		depth := parent.Depth + 1
		return depth, depth <= maxDepth
	}
	depth := pathDepth(parent.URL)
	return depth, depth < maxDepth
}

func isHTTPScheme(scheme string) bool {
	scheme = strings.ToLower(scheme)
	return scheme == "http" || scheme == "https"
}
