// Package extract turns fetched markup into crawler.PageRecord values.
package extract

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/querium-crawler/internal/crawler"
)

// NoTitle is the title of a page without a <title> element.
const NoTitle = "No Title"

const textSelector = "p, h1, h2, h3, h4, h5, h6"

// pubTimeNames are meta names tried in order after article:published_time.
var pubTimeNames = []string{"pubdate", "publishdate", "timestamp", "date"}

// Extractor implements crawler.Extractor with goquery.
type Extractor struct {
	clock  crawler.Clock
	logger *zap.Logger
}

// New builds an Extractor stamping crawl times from clock.
func New(clock crawler.Clock, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{clock: clock, logger: logger}
}

// Extract parses html fetched from pageURL.
func (e *Extractor) Extract(pageURL, html string) (crawler.PageRecord, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return crawler.PageRecord{}, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return crawler.PageRecord{}, fmt.Errorf("parse html: %w", err)
	}

	return crawler.PageRecord{
		URL:       pageURL,
		Title:     title(doc),
		Text:      bodyText(doc),
		Links:     links(doc, base),
		PubTime:   e.pubTime(pageURL, doc),
		CrawlTime: formatTimestamp(e.clock.Now(), true),
	}, nil
}

func title(doc *goquery.Document) string {
	sel := doc.Find("title").First()
	if sel.Length() == 0 {
		return NoTitle
	}
	return strings.TrimSpace(sel.Text())
}

func bodyText(doc *goquery.Document) string {
	var parts []string
	doc.Find(textSelector).Each(func(_ int, s *goquery.Selection) {
		if piece := strings.TrimSpace(s.Text()); piece != "" {
			parts = append(parts, piece)
		}
	})
	return strings.Join(parts, " ")
}

// links resolves every anchor href against base. The result is deduplicated
// and sorted so extraction is repeatable.
func links(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		seen[base.ResolveReference(ref).String()] = struct{}{}
	})
	out := make([]string, 0, len(seen))
	for link := range seen {
		out = append(out, link)
	}
	sort.Strings(out)
	return out
}

func (e *Extractor) pubTime(pageURL string, doc *goquery.Document) *string {
	raw, ok := rawPubTime(doc)
	if !ok {
		return nil
	}
	normalized, err := normalizeISO(raw)
	if err != nil {
		e.logger.Warn("Could not parse publication time",
			zap.String("url", pageURL),
			zap.String("value", raw),
		)
		return nil
	}
	return &normalized
}

func rawPubTime(doc *goquery.Document) (string, bool) {
	if content, ok := doc.Find(`meta[property="article:published_time"]`).First().Attr("content"); ok {
		return content, content != ""
	}
	for _, name := range pubTimeNames {
		sel := doc.Find(fmt.Sprintf("meta[name=%q]", name)).First()
		if sel.Length() == 0 {
			continue
		}
		content, _ := sel.Attr("content")
		return content, content != ""
	}
	return "", false
}
