// Package crawler implements the concurrent crawl engine: the frontier
// scheduler, the visited set and result buffer it owns, and the shared types
// and interfaces that the fetchers, politeness resolver, extractor and
// checkpoint writer plug into.
package crawler
