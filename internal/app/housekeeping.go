package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"flightbroker/internal/broker"
	"flightbroker/internal/config"
	"flightbroker/internal/storage"
	logx "flightbroker/pkg/logx"
)

// housekeeping runs periodic jobs: broker stats logging and audit pruning.
type housekeeping struct {
	mu  sync.Mutex
	cfg housekeepingSettings
	log logx.Logger

	broker *broker.Broker
	store  storage.Store

	c   *cron.Cron
	ctx context.Context

	lastLookups uint64
	now         func() time.Time
}

func newHousekeeping(cfg housekeepingSettings, b *broker.Broker, store storage.Store, log logx.Logger) *housekeeping {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &housekeeping{cfg: cfg, broker: b, store: store, log: log, now: time.Now}
}

func (h *housekeeping) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.c != nil {
		return nil
	}
	h.ctx = ctx
	return h.startLocked()
}

func (h *housekeeping) startLocked() error {
	c, jobs, err := h.build(h.cfg)
	if err != nil {
		return err
	}
	c.Start()
	h.c = c
	h.log.Info("housekeeping started", logx.Int("jobs", jobs), logx.String("stats_spec", h.cfg.StatsSpec), logx.String("prune_spec", h.cfg.PruneSpec))
	return nil
}

func (h *housekeeping) build(cfg housekeepingSettings) (*cron.Cron, int, error) {
	cl := cronLogger{h.log}
	c := cron.New(
		cron.WithParser(config.CronParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	jobs := 0
	if cfg.StatsSpec != "" {
		if _, err := c.AddFunc(cfg.StatsSpec, h.logStats); err != nil {
			return nil, 0, fmt.Errorf("housekeeping.stats_spec: %w", err)
		}
		jobs++
	}
	if cfg.PruneSpec != "" && h.store != nil && cfg.Retention > 0 {
		if _, err := c.AddFunc(cfg.PruneSpec, func() { h.prune(h.ctx) }); err != nil {
			return nil, 0, fmt.Errorf("housekeeping.prune_spec: %w", err)
		}
		jobs++
	}
	return c, jobs, nil
}

func (h *housekeeping) Stop(ctx context.Context) {
	h.mu.Lock()
	c := h.c
	h.c = nil
	h.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Apply re-registers the jobs when a spec or the retention changed. On a
// bad spec the running jobs are kept.
func (h *housekeeping) Apply(cfg housekeepingSettings) error {
	h.mu.Lock()
	if h.cfg == cfg {
		h.mu.Unlock()
		return nil
	}
	if h.c == nil {
		h.cfg = cfg
		h.mu.Unlock()
		return nil
	}
	next, jobs, err := h.build(cfg)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	old := h.c
	h.cfg = cfg
	h.c = next
	next.Start()
	h.mu.Unlock()

	// running jobs may take h.mu; wait outside it
	<-old.Stop().Done()
	h.log.Info("housekeeping reloaded", logx.Int("jobs", jobs))
	return nil
}

func (h *housekeeping) logStats() {
	snap := h.broker.Snapshot()
	fields := []logx.Field{
		logx.Int("queue_len", snap.QueueLen),
		logx.Int("pending", snap.Pending),
		logx.Int("in_progress", snap.InProgress),
		logx.Bool("busy", snap.Busy),
		logx.Int("cache_entries", snap.CacheEntries),
		logx.Int("workers", snap.Pool.Workers),
		logx.Uint64("lookups", snap.Pool.Lookups),
		logx.Uint64("cache_hits", snap.Pool.CacheHits),
		logx.Uint64("failures", snap.Pool.Failures),
	}
	h.mu.Lock()
	idle := snap.QueueLen == 0 && snap.Pool.Lookups == h.lastLookups
	h.lastLookups = snap.Pool.Lookups
	h.mu.Unlock()
	if idle {
		h.log.Debug("broker stats", fields...)
		return
	}
	h.log.Info("broker stats", fields...)
}

func (h *housekeeping) prune(ctx context.Context) {
	h.mu.Lock()
	retention := h.cfg.Retention
	h.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	start := time.Now()
	cutoff := h.now().Add(-retention)
	n, err := h.store.Prune(ctx, cutoff)
	if err != nil {
		h.log.Warn("audit prune failed", logx.Err(err))
		return
	}
	h.log.Info("audit pruned", logx.Int("removed", n), logx.Time("before", cutoff), logx.Duration("took", time.Since(start)))
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
