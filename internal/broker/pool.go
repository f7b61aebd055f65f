package broker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"flightbroker/internal/runtime/supervisor"
	logx "flightbroker/pkg/logx"
)

// LookupFunc resolves one normalized key. Any error, or a nil value, is a
// failed lookup.
type LookupFunc func(ctx context.Context, key string) (any, error)

var errNoData = errors.New("lookup returned no data")

// PoolConfig controls the worker pool.
type PoolConfig struct {
	// Workers defaults to the number of CPUs.
	Workers int
	// IdlePoll bounds how long an idle worker sleeps before rescanning.
	IdlePoll time.Duration
	// LookupTimeout caps a single live lookup.
	LookupTimeout time.Duration
	HistorySize   int
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.IdlePoll <= 0 {
		c.IdlePoll = 100 * time.Millisecond
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = 60 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
	return c
}

// HistoryItem describes one resolved item, for diagnostics.
type HistoryItem struct {
	RequestID  string        `json:"request_id"`
	Key        string        `json:"key"`
	Source     Source        `json:"source"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Pool runs a fixed number of workers that drain the queue.
type Pool struct {
	mu     sync.Mutex
	cfg    PoolConfig
	log    logx.Logger
	queue  *Queue
	cache  *Cache
	lookup LookupFunc

	sup    *supervisor.Supervisor
	parent context.Context

	inFlight atomic.Int32
	hits     atomic.Uint64
	lookups  atomic.Uint64
	failures atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

func NewPool(cfg PoolConfig, q *Queue, c *Cache, lookup LookupFunc, log logx.Logger) *Pool {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pool{
		cfg:    cfg.withDefaults(),
		log:    log,
		queue:  q,
		cache:  c,
		lookup: lookup,
	}
}

func (p *Pool) Config() PoolConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Start launches the workers. It is idempotent.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sup != nil {
		return
	}
	p.parent = ctx
	cfg := p.cfg
	p.sup = supervisor.New(ctx,
		supervisor.WithLogger(p.log),
		// A broken worker must never take the process down.
		supervisor.WithCancelOnError(false),
	)
	for i := 0; i < cfg.Workers; i++ {
		idx := i
		p.sup.GoRestart(fmt.Sprintf("worker.%d", idx), func(c context.Context) error {
			return p.worker(c, cfg.IdlePoll)
		}, supervisor.WithRestartBackoff(100*time.Millisecond, 5*time.Second))
	}
	p.log.Info("pool started", logx.Int("workers", cfg.Workers), logx.Duration("idle_poll", cfg.IdlePoll))
}

// Stop cancels the workers and waits for them (bounded by ctx).
// In-flight lookups see a canceled context and resolve with an error.
func (p *Pool) Stop(ctx context.Context) {
	p.mu.Lock()
	sup := p.sup
	p.sup = nil
	p.mu.Unlock()
	if sup == nil {
		return
	}
	start := time.Now()
	if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.log.Warn("pool stop incomplete", logx.Err(err))
	}
	p.log.Info("pool stopped", logx.Duration("took", time.Since(start)))
}

// Apply swaps the config; a changed worker count restarts the workers
// under the context given to Start. ctx only bounds the wait for the old ones.
func (p *Pool) Apply(ctx context.Context, cfg PoolConfig) {
	cfg = cfg.withDefaults()
	p.mu.Lock()
	prev := p.cfg
	p.cfg = cfg
	running := p.sup != nil
	parent := p.parent
	p.mu.Unlock()

	if running && (prev.Workers != cfg.Workers || prev.IdlePoll != cfg.IdlePoll) {
		p.log.Info("pool restarting", logx.Int("workers", cfg.Workers), logx.Int("prev_workers", prev.Workers))
		p.Stop(ctx)
		p.Start(parent)
	}
}

func (p *Pool) Supervisor() *supervisor.Supervisor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sup
}

func (p *Pool) worker(ctx context.Context, idle time.Duration) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		it, ok := p.queue.Claim()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.queue.Available():
			case <-time.After(idle):
			}
			continue
		}
		p.process(ctx, it)
	}
}

// process resolves one claimed item: cache first, then a live lookup.
// Failed lookups never touch the cache.
func (p *Pool) process(ctx context.Context, it *Item) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		p.log.Error("process.panic", logx.String("key", it.Key), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		if it.State() == Completed {
			return
		}
		p.failures.Add(1)
		if err := p.queue.Resolve(it, ErrorResult(NotFoundMessage), SourceLookup); err != nil {
			p.log.Error("resolve failed", logx.String("request_id", it.RequestID), logx.String("key", it.Key), logx.Err(err))
		}
	}()

	start := time.Now()
	queueDelay := max(0, start.Sub(it.EnqueuedAt))

	if v, ok := p.cache.Get(it.Key); ok {
		p.hits.Add(1)
		p.finish(it, Result{Value: v}, SourceCache, start, queueDelay, nil)
		return
	}

	p.lookups.Add(1)
	v, err := p.call(ctx, it.Key)
	if err != nil {
		lookupDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		p.failures.Add(1)
		p.finish(it, ErrorResult(NotFoundMessage), SourceLookup, start, queueDelay, err)
		return
	}
	lookupDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	p.cache.Put(it.Key, v)
	p.finish(it, Result{Value: v}, SourceLookup, start, queueDelay, nil)
}

// call runs the lookup with a timeout and turns panics into errors.
func (p *Pool) call(ctx context.Context, key string) (v any, err error) {
	timeout := p.Config().LookupTimeout
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = fmt.Errorf("lookup panic: %v", r)
			p.log.Error("lookup.panic", logx.String("key", key), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	v, err = p.lookup(lctx, key)
	if err == nil && v == nil {
		err = errNoData
	}
	return v, err
}

func (p *Pool) finish(it *Item, r Result, src Source, start time.Time, queueDelay time.Duration, cause error) {
	dur := time.Since(start)
	if err := p.queue.Resolve(it, r, src); err != nil {
		p.log.Error("resolve failed", logx.String("request_id", it.RequestID), logx.String("key", it.Key), logx.Err(err))
		return
	}
	itemsResolved.WithLabelValues(string(src), outcome(r)).Inc()

	h := HistoryItem{RequestID: it.RequestID, Key: it.Key, Source: src, Started: start, QueueDelay: queueDelay, Duration: dur}
	fields := []logx.Field{
		logx.String("request_id", it.RequestID),
		logx.String("key", it.Key),
		logx.String("source", string(src)),
		logx.Duration("queue_delay", queueDelay),
		logx.Duration("dur", dur),
	}
	switch {
	case cause != nil:
		h.Error = cause.Error()
		p.log.Warn("lookup.failed", append(fields, logx.Err(cause))...)
	case dur >= 750*time.Millisecond:
		p.log.Info("item.completed", fields...)
	default:
		p.log.Debug("item.completed", fields...)
	}

	p.hmu.Lock()
	p.history = append(p.history, h)
	if limit := p.Config().HistorySize; len(p.history) > limit {
		p.history = p.history[len(p.history)-limit:]
	}
	p.hmu.Unlock()
}

// PoolStats is a point-in-time view of pool activity.
type PoolStats struct {
	Workers   int                 `json:"workers"`
	InFlight  int                 `json:"in_flight"`
	CacheHits uint64              `json:"cache_hits"`
	Lookups   uint64              `json:"lookups"`
	Failures  uint64              `json:"failures"`
	History   []HistoryItem       `json:"history,omitempty"`
	Runtime   supervisor.Snapshot `json:"runtime"`
}

func (p *Pool) Stats() PoolStats {
	st := PoolStats{
		Workers:   p.Config().Workers,
		InFlight:  int(p.inFlight.Load()),
		CacheHits: p.hits.Load(),
		Lookups:   p.lookups.Load(),
		Failures:  p.failures.Load(),
		Runtime:   p.Supervisor().Snapshot(),
	}
	p.hmu.Lock()
	st.History = append([]HistoryItem(nil), p.history...)
	p.hmu.Unlock()
	return st
}
