// Package storage persists an audit trail of finished batches.
//
// Drivers:
//   - "file": JSON Lines, one record per batch, compacted on Prune
//   - "sqlite": SQLite database via modernc.org/sqlite (pure Go)
package storage
