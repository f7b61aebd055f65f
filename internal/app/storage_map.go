package app

import (
	"fmt"
	"strings"
	"time"

	"flightbroker/internal/broker"
	"flightbroker/internal/config"
	"flightbroker/internal/lookup"
	"flightbroker/internal/storage"
	"flightbroker/internal/transport/httpapi"
	logx "flightbroker/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = "./data/flightbroker"
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

type serverSettings struct {
	listen   httpapi.ServerConfig
	stream   time.Duration
	shutdown time.Duration
}

func mapServer(cfg *config.Config) (serverSettings, error) {
	s := cfg.Server
	var (
		out serverSettings
		err error
	)
	out.listen.Addr = s.Addr
	if out.listen.ReadHeaderTimeout, err = config.ParseDurationOrDefault("server.read_header_timeout", s.ReadHeaderTimeout, 10*time.Second); err != nil {
		return out, err
	}
	if out.listen.IdleTimeout, err = config.ParseDurationOrDefault("server.idle_timeout", s.IdleTimeout, time.Minute); err != nil {
		return out, err
	}
	if out.stream, err = config.ParseDurationOrDefault("server.stream_timeout", s.StreamTimeout, httpapi.DefaultStreamTimeout); err != nil {
		return out, err
	}
	if out.shutdown, err = config.ParseDurationOrDefault("server.shutdown_timeout", s.ShutdownTimeout, 10*time.Second); err != nil {
		return out, err
	}
	return out, nil
}

func mapBroker(cfg *config.Config) (broker.Config, error) {
	b := cfg.Broker
	out := broker.Config{
		Pool: broker.PoolConfig{Workers: b.Workers, HistorySize: b.HistorySize},
		TTL:  broker.TTLPolicy{BusyThreshold: b.BusyThreshold},
	}
	fields := []struct {
		path string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"broker.idle_poll", b.IdlePoll, 100 * time.Millisecond, &out.Pool.IdlePoll},
		{"broker.lookup_timeout", b.LookupTimeout, time.Minute, &out.Pool.LookupTimeout},
		{"broker.stream_poll", b.StreamPoll, 50 * time.Millisecond, &out.StreamPoll},
		{"broker.normal_ttl", b.NormalTTL, broker.DefaultNormalTTL, &out.TTL.NormalTTL},
		{"broker.busy_ttl", b.BusyTTL, broker.DefaultBusyTTL, &out.TTL.BusyTTL},
	}
	for _, f := range fields {
		d, err := config.ParseDurationOrDefault(f.path, f.raw, f.def)
		if err != nil {
			return broker.Config{}, err
		}
		*f.dst = d
	}
	return out, nil
}

func mapLookup(cfg *config.Config) (lookup.Config, error) {
	l := cfg.Lookup
	identTTL, err := config.ParseDurationOrDefault("lookup.ident_ttl", l.IdentTTL, 7*24*time.Hour)
	if err != nil {
		return lookup.Config{}, err
	}
	timeout, err := config.ParseDurationOrDefault("lookup.timeout", l.Timeout, 20*time.Second)
	if err != nil {
		return lookup.Config{}, err
	}
	return lookup.Config{
		BaseURL:    l.BaseURL,
		UserAgent:  l.UserAgent,
		RatePerSec: l.RatePerSec,
		Burst:      l.Burst,
		IdentTTL:   identTTL,
		Timeout:    timeout,
	}, nil
}

type housekeepingSettings struct {
	StatsSpec string
	PruneSpec string
	Retention time.Duration
}

func mapHousekeeping(cfg *config.Config) (housekeepingSettings, error) {
	var out housekeepingSettings
	if !config.JobDisabled(cfg.Housekeeping.StatsSpec) {
		out.StatsSpec = strings.TrimSpace(cfg.Housekeeping.StatsSpec)
	}
	if !config.JobDisabled(cfg.Housekeeping.PruneSpec) {
		out.PruneSpec = strings.TrimSpace(cfg.Housekeeping.PruneSpec)
	}
	if cfg.Storage != nil {
		d, err := config.ParseDurationOrDefault("storage.retention", cfg.Storage.Retention, 30*24*time.Hour)
		if err != nil {
			return out, err
		}
		out.Retention = d
	}
	return out, nil
}
