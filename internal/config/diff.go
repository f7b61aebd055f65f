package config

import (
	"reflect"
	"slices"
	"sort"
	"strings"

	logx "flightbroker/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections and safe
// structured attrs for logging. Token values are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	prev, next := oldCfg.Server, newCfg.Server
	tokensChanged := !slices.Equal(AccessTokens(oldCfg), AccessTokens(newCfg))
	prev.Tokens, next.Tokens = nil, nil
	if tokensChanged || !reflect.DeepEqual(prev, next) {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.addr", next.Addr),
			logx.Int("server.token_count", len(AccessTokens(newCfg))),
			logx.Bool("server.tokens_changed", tokensChanged),
			logx.String("server.stream_timeout", next.StreamTimeout),
			logx.Bool("server.pprof", next.Pprof),
		)
		if prev.Addr != next.Addr || prev.Pprof != next.Pprof {
			attrs = append(attrs, logx.Bool("server.restart_required", true))
		}
	}

	if oldCfg.Broker != newCfg.Broker {
		changed = append(changed, "broker")
		b := newCfg.Broker
		attrs = append(attrs,
			logx.Int("broker.workers", b.Workers),
			logx.Bool("broker.workers_changed", oldCfg.Broker.Workers != b.Workers),
			logx.Int("broker.busy_threshold", b.BusyThreshold),
			logx.String("broker.normal_ttl", b.NormalTTL),
			logx.String("broker.busy_ttl", b.BusyTTL),
		)
	}

	if oldCfg.Lookup != newCfg.Lookup {
		changed = append(changed, "lookup")
		l := newCfg.Lookup
		attrs = append(attrs,
			logx.String("lookup.base_url", l.BaseURL),
			logx.Any("lookup.rate_per_sec", l.RatePerSec),
			logx.Int("lookup.burst", l.Burst),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		var driver string
		var pathSet bool
		if newCfg.Storage != nil {
			driver = strings.TrimSpace(newCfg.Storage.Driver)
			pathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
		}
		attrs = append(attrs,
			logx.String("storage.driver", driver),
			logx.Bool("storage.path_set", pathSet),
		)
	}

	if oldCfg.Housekeeping != newCfg.Housekeeping {
		changed = append(changed, "housekeeping")
		attrs = append(attrs,
			logx.String("housekeeping.stats_spec", newCfg.Housekeeping.StatsSpec),
			logx.String("housekeeping.prune_spec", newCfg.Housekeeping.PruneSpec),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
