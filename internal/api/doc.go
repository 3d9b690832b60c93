// Package api hosts the ops HTTP server that runs alongside a crawl.
// Routes:
//   - GET /healthz and /readyz for container probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/crawl/status for the run's progress counters.
package api
