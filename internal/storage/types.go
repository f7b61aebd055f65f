package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// BatchRecord describes one finished client request.
// Keep it compact and schema-stable.
type BatchRecord struct {
	At        time.Time `json:"at"`
	RequestID string    `json:"request_id"`
	Endpoint  string    `json:"endpoint"`
	Keys      []string  `json:"keys"`
	OK        int       `json:"ok"`
	Failed    int       `json:"failed"`
	Abandoned int       `json:"abandoned"`
	TookMS    int64     `json:"took_ms"`
}
