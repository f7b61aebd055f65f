// Package httpapi exposes the broker over HTTP.
//
// Routes:
//   - GET /api/scrape/{keys}?token=   NDJSON stream, one line per key then "end"
//   - GET /api/summary/{keys}?token=  one-line text summary per key
//   - GET /api/status?token=          broker and pool snapshot
//   - GET /healthz, GET /metrics
//   - /debug/*?token=                 net/http/pprof (opt-in)
package httpapi
