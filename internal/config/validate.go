package config

import (
	"errors"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// CronParser is the cron expression parser shared by validation and the scheduler.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate rejects configs that cannot be served. It expects defaults and
// environment overrides to be applied already.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	if len(AccessTokens(c)) == 0 {
		return ErrNoTokens
	}

	durations := []struct{ path, raw string }{
		{"server.read_header_timeout", c.Server.ReadHeaderTimeout},
		{"server.idle_timeout", c.Server.IdleTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"server.stream_timeout", c.Server.StreamTimeout},
		{"broker.idle_poll", c.Broker.IdlePoll},
		{"broker.stream_poll", c.Broker.StreamPoll},
		{"broker.normal_ttl", c.Broker.NormalTTL},
		{"broker.busy_ttl", c.Broker.BusyTTL},
		{"broker.lookup_timeout", c.Broker.LookupTimeout},
		{"lookup.ident_ttl", c.Lookup.IdentTTL},
		{"lookup.timeout", c.Lookup.Timeout},
	}
	if c.Storage != nil {
		durations = append(durations,
			struct{ path, raw string }{"storage.busy_timeout", c.Storage.BusyTimeout},
			struct{ path, raw string }{"storage.retention", c.Storage.Retention},
		)
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	if c.Broker.Workers < 0 {
		return fieldErrorf("broker.workers", "must be >= 0, got %d", c.Broker.Workers)
	}
	if c.Broker.BusyThreshold < 0 {
		return fieldErrorf("broker.busy_threshold", "must be >= 0, got %d", c.Broker.BusyThreshold)
	}
	if c.Broker.HistorySize < 0 {
		return fieldErrorf("broker.history_size", "must be >= 0, got %d", c.Broker.HistorySize)
	}
	if c.Lookup.RatePerSec < 0 {
		return fieldErrorf("lookup.rate_per_sec", "must be >= 0, got %g", c.Lookup.RatePerSec)
	}
	if c.Lookup.Burst < 0 {
		return fieldErrorf("lookup.burst", "must be >= 0, got %d", c.Lookup.Burst)
	}
	if u, err := url.Parse(c.Lookup.BaseURL); c.Lookup.BaseURL != "" && (err != nil || u.Scheme == "" || u.Host == "") {
		return fieldErrorf("lookup.base_url", "not an absolute url: %q", c.Lookup.BaseURL)
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fieldErrorf("logging.format", "unknown format %q", c.Logging.Format)
	}

	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(c.Storage.Path) == "" {
				return fieldErrorf("storage.path", "required by driver %q", c.Storage.Driver)
			}
		default:
			return fieldErrorf("storage.driver", "unknown driver %q", c.Storage.Driver)
		}
	}

	for _, j := range []struct{ path, spec string }{
		{"housekeeping.stats_spec", c.Housekeeping.StatsSpec},
		{"housekeeping.prune_spec", c.Housekeeping.PruneSpec},
	} {
		if JobDisabled(j.spec) {
			continue
		}
		if _, err := CronParser.Parse(j.spec); err != nil {
			return &FieldError{Path: j.path, Err: err}
		}
	}
	return nil
}

// AccessTokens returns the non-empty configured tokens.
func AccessTokens(c *Config) []string {
	out := make([]string, 0, len(c.Server.Tokens))
	for _, t := range c.Server.Tokens {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
