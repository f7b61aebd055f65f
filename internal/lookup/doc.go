// Package lookup resolves a normalized flight designator to flight.Info by
// scraping FlightAware: omnisearch for the ident, the live flight page for
// the trackpoll token, then the trackpoll JSON summary.
//
// Calls are slow and the remote side is rate-sensitive, so every outbound
// request waits on a shared token bucket.
package lookup
