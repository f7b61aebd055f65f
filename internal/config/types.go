package config

import (
	"runtime"
	"strings"
)

// Config is the on-disk shape. Durations are Go duration strings
// (e.g. "100ms", "2m"); zero or empty means "use the default".
type Config struct {
	Server       ServerConfig       `json:"server"`
	Broker       BrokerConfig       `json:"broker"`
	Lookup       LookupConfig       `json:"lookup"`
	Logging      LoggingConfig      `json:"logging"`
	Storage      *StorageConfig     `json:"storage,omitempty"`
	Housekeeping HousekeepingConfig `json:"housekeeping"`
}

// ServerConfig controls the HTTP listener.
//
// Security note: tokens are shared secrets. They are never logged; only
// their count is.
type ServerConfig struct {
	Addr              string `json:"addr,omitempty"` // default ":5000"
	ReadHeaderTimeout string `json:"read_header_timeout,omitempty"`
	IdleTimeout       string `json:"idle_timeout,omitempty"`
	ShutdownTimeout   string `json:"shutdown_timeout,omitempty"`
	// StreamTimeout caps one streaming response; when it fires the stream
	// is closed with an end message.
	StreamTimeout string `json:"stream_timeout,omitempty"`

	Tokens []string `json:"tokens"`

	// Pprof mounts /debug on the main router. Requires a token.
	Pprof bool `json:"pprof,omitempty"`
}

type BrokerConfig struct {
	// Workers defaults to the number of CPUs.
	Workers    int    `json:"workers,omitempty"`
	IdlePoll   string `json:"idle_poll,omitempty"`
	StreamPoll string `json:"stream_poll,omitempty"`

	BusyThreshold int    `json:"busy_threshold,omitempty"`
	NormalTTL     string `json:"normal_ttl,omitempty"`
	BusyTTL       string `json:"busy_ttl,omitempty"`

	LookupTimeout string `json:"lookup_timeout,omitempty"`
	HistorySize   int    `json:"history_size,omitempty"`
}

type LookupConfig struct {
	BaseURL    string  `json:"base_url,omitempty"`
	UserAgent  string  `json:"user_agent,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
	IdentTTL   string  `json:"ident_ttl,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Format  string      `json:"format,omitempty"` // "console" (default) or "json"
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the optional batch audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/audit.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	Retention   string `json:"retention,omitempty"`
}

// HousekeepingConfig holds cron specs (robfig/cron syntax, descriptors
// such as "@every 1m" allowed). Empty disables the job.
type HousekeepingConfig struct {
	StatsSpec string `json:"stats_spec,omitempty"`
	PruneSpec string `json:"prune_spec,omitempty"`
}

// Default values.
const (
	DefaultAddr              = ":5000"
	DefaultReadHeaderTimeout = "10s"
	DefaultIdleTimeout       = "60s"
	DefaultShutdownTimeout   = "10s"
	DefaultStreamTimeout     = "480s"

	DefaultIdlePoll      = "100ms"
	DefaultStreamPoll    = "50ms"
	DefaultBusyThreshold = 15
	DefaultNormalTTL     = "2m"
	DefaultBusyTTL       = "5m"
	DefaultLookupTimeout = "60s"

	DefaultBaseURL    = "https://www.flightaware.com"
	DefaultUserAgent  = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultRatePerSec = 2
	DefaultBurst      = 2
	DefaultIdentTTL   = "168h"
	DefaultTimeout    = "20s"

	DefaultRetention = "720h"
	DefaultStatsSpec = "@every 1m"
	DefaultPruneSpec = "@daily"
)

// ApplyDefaults fills every empty field in place.
func (c *Config) ApplyDefaults() {
	s := &c.Server
	setDefault(&s.Addr, DefaultAddr)
	setDefault(&s.ReadHeaderTimeout, DefaultReadHeaderTimeout)
	setDefault(&s.IdleTimeout, DefaultIdleTimeout)
	setDefault(&s.ShutdownTimeout, DefaultShutdownTimeout)
	setDefault(&s.StreamTimeout, DefaultStreamTimeout)

	b := &c.Broker
	if b.Workers <= 0 {
		b.Workers = runtime.NumCPU()
	}
	setDefault(&b.IdlePoll, DefaultIdlePoll)
	setDefault(&b.StreamPoll, DefaultStreamPoll)
	if b.BusyThreshold <= 0 {
		b.BusyThreshold = DefaultBusyThreshold
	}
	setDefault(&b.NormalTTL, DefaultNormalTTL)
	setDefault(&b.BusyTTL, DefaultBusyTTL)
	setDefault(&b.LookupTimeout, DefaultLookupTimeout)

	l := &c.Lookup
	setDefault(&l.BaseURL, DefaultBaseURL)
	setDefault(&l.UserAgent, DefaultUserAgent)
	if l.RatePerSec <= 0 {
		l.RatePerSec = DefaultRatePerSec
	}
	if l.Burst <= 0 {
		l.Burst = DefaultBurst
	}
	setDefault(&l.IdentTTL, DefaultIdentTTL)
	setDefault(&l.Timeout, DefaultTimeout)

	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "console")

	if c.Storage != nil {
		setDefault(&c.Storage.Retention, DefaultRetention)
		setDefault(&c.Housekeeping.PruneSpec, DefaultPruneSpec)
	}
	setDefault(&c.Housekeeping.StatsSpec, DefaultStatsSpec)
}

// JobDisabled reports whether a housekeeping spec switches its job off.
func JobDisabled(spec string) bool {
	switch strings.ToLower(strings.TrimSpace(spec)) {
	case "", "off", "none", "disabled":
		return true
	}
	return false
}

func setDefault(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}
