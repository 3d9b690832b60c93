// Package detector decides when static markup must be re-rendered in a browser.
package detector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/querium-crawler/internal/crawler"
)

// DefaultKeywords flags pages that tell the visitor to enable scripts.
var DefaultKeywords = []string{"javascript required"}

// Config tunes the heuristic.
type Config struct {
	// Keywords are matched case-insensitively against the markup.
	Keywords []string
	// MinHTMLBytes flags bodies shorter than this. Zero disables the check.
	MinHTMLBytes int
	// Selectors must all match at least one element, or the page is flagged.
	Selectors []string
}

// Heuristic implements crawler.RenderDetector using simple HTML signals.
type Heuristic struct {
	minHTMLBytes int
	selectors    []string
	keywords     []string
}

// NewHeuristic builds a detector. An empty keyword list falls back to
// DefaultKeywords.
func NewHeuristic(cfg Config) *Heuristic {
	keywords := cfg.Keywords
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lower := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		lower = append(lower, kw)
	}
	selectors := make([]string, 0, len(cfg.Selectors))
	for _, sel := range cfg.Selectors {
		if sel = strings.TrimSpace(sel); sel != "" {
			selectors = append(selectors, sel)
		}
	}
	return &Heuristic{
		minHTMLBytes: cfg.MinHTMLBytes,
		selectors:    selectors,
		keywords:     lower,
	}
}

// NeedsJS reports whether an available static result should be rendered
// again. Unavailable results are never flagged here.
func (h *Heuristic) NeedsJS(result crawler.FetchResult) bool {
	if h == nil || !result.Available() {
		return false
	}
	switch {
	case h.bodyBelowThreshold(result.HTML):
		return true
	case h.containsKeywords(result.HTML):
		return true
	default:
		return h.missingSelectors(result.HTML)
	}
}

func (h *Heuristic) bodyBelowThreshold(body string) bool {
	return h.minHTMLBytes > 0 && len(body) < h.minHTMLBytes
}

func (h *Heuristic) containsKeywords(body string) bool {
	if body == "" || len(h.keywords) == 0 {
		return false
	}
	lowerBody := strings.ToLower(body)
	for _, kw := range h.keywords {
		if strings.Contains(lowerBody, kw) {
			return true
		}
	}
	return false
}

func (h *Heuristic) missingSelectors(body string) bool {
	if len(h.selectors) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return true
	}
	for _, sel := range h.selectors {
		if doc.Find(sel).Length() == 0 {
			return true
		}
	}
	return false
}
