// Package flight holds the flight-designator domain: key normalization for
// submitted batches, designator extraction from free text, the lookup result
// type and its one-line human summary.
package flight
