package broker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"flightbroker/internal/eventbus"
	"flightbroker/internal/flight"
	logx "flightbroker/pkg/logx"
)

type Config struct {
	Pool PoolConfig
	TTL  TTLPolicy
	// StreamPoll is the longest a Batch waits between scans of its items.
	StreamPoll time.Duration
}

// Broker owns the process-wide queue, cache and worker pool.
type Broker struct {
	log logx.Logger
	bus eventbus.Bus

	queue *Queue
	cache *Cache
	pool  *Pool

	streamPoll atomic.Int64
	newID      func() string
}

func New(cfg Config, lookup LookupFunc, log logx.Logger, bus eventbus.Bus) *Broker {
	if log.IsZero() {
		log = logx.Nop()
	}
	q := NewQueue()
	c := NewCache(cfg.TTL, q.Len)
	b := &Broker{
		log:   log,
		bus:   bus,
		queue: q,
		cache: c,
		pool:  NewPool(cfg.Pool, q, c, lookup, log.With(logx.Comp("pool"))),
		newID: uuid.NewString,
	}
	b.streamPoll.Store(int64(streamPollOrDefault(cfg.StreamPoll)))
	return b
}

func streamPollOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 50 * time.Millisecond
	}
	return d
}

func (b *Broker) Queue() *Queue { return b.queue }
func (b *Broker) Cache() *Cache { return b.cache }
func (b *Broker) Pool() *Pool   { return b.pool }

func (b *Broker) Start(ctx context.Context) { b.pool.Start(ctx) }
func (b *Broker) Stop(ctx context.Context)  { b.pool.Stop(ctx) }

// Apply hot-swaps tunables. The TTL policy takes effect on the next read.
func (b *Broker) Apply(ctx context.Context, cfg Config) {
	b.cache.SetPolicy(cfg.TTL)
	b.streamPoll.Store(int64(streamPollOrDefault(cfg.StreamPoll)))
	b.pool.Apply(ctx, cfg.Pool)
}

// Submit creates one item per key under a fresh request id and enqueues
// them all. Duplicate keys are separate items.
func (b *Broker) Submit(keys []flight.Key) *Batch {
	id := b.newID()
	items := make([]*Item, 0, len(keys))
	for _, k := range keys {
		items = append(items, NewItem(id, k.Normalized, k.Raw))
	}
	batch := newBatch(id, items, time.Duration(b.streamPoll.Load()), b.bus)
	b.queue.Enqueue(items...)
	batchesSubmitted.Inc()
	b.log.Debug("batch submitted", logx.String("request_id", id), logx.Int("keys", len(items)), logx.Int("queue_len", b.queue.Len()))
	return batch
}

// Snapshot is a diagnostics view of the broker.
type Snapshot struct {
	QueueLen     int       `json:"queue_len"`
	Pending      int       `json:"pending"`
	InProgress   int       `json:"in_progress"`
	Busy         bool      `json:"busy"`
	CacheEntries int       `json:"cache_entries"`
	TTL          TTLPolicy `json:"ttl"`
	Pool         PoolStats `json:"pool"`
}

func (b *Broker) Snapshot() Snapshot {
	pending, inProgress := b.queue.Counts()
	policy := b.cache.Policy()
	return Snapshot{
		QueueLen:     pending + inProgress,
		Pending:      pending,
		InProgress:   inProgress,
		Busy:         policy.Busy(pending + inProgress),
		CacheEntries: b.cache.Len(),
		TTL:          policy,
		Pool:         b.pool.Stats(),
	}
}
