package broker

import (
	"sync"
	"time"
)

// Defaults for the load-aware TTL.
const (
	DefaultBusyThreshold = 15
	DefaultNormalTTL     = 2 * time.Minute
	DefaultBusyTTL       = 5 * time.Minute
)

// TTLPolicy decides whether a cached entry may be served.
// Under load (queue length >= BusyThreshold) entries live up to BusyTTL;
// otherwise up to NormalTTL.
type TTLPolicy struct {
	BusyThreshold int
	NormalTTL     time.Duration
	BusyTTL       time.Duration
}

func (p TTLPolicy) withDefaults() TTLPolicy {
	if p.BusyThreshold <= 0 {
		p.BusyThreshold = DefaultBusyThreshold
	}
	if p.NormalTTL <= 0 {
		p.NormalTTL = DefaultNormalTTL
	}
	if p.BusyTTL <= 0 {
		p.BusyTTL = DefaultBusyTTL
	}
	return p
}

func (p TTLPolicy) Busy(queueLen int) bool { return queueLen >= p.BusyThreshold }

// Valid reports whether an entry of the given age may be served at the
// given queue length.
func (p TTLPolicy) Valid(age time.Duration, queueLen int) bool {
	if p.Busy(queueLen) && age < p.BusyTTL {
		return true
	}
	return age < p.NormalTTL
}

// Entry is the latest successful result for a key.
type Entry struct {
	Key       string
	Value     any
	CreatedAt time.Time
}

// Cache keeps one entry per key (last write wins). Stale entries are never
// removed; they are ignored on read and overwritten by the next success.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	policy TTLPolicy
	load   func() int
	now    func() time.Time
}

// NewCache builds a cache whose busy state is read from load at every Get.
func NewCache(policy TTLPolicy, load func() int) *Cache {
	if load == nil {
		load = func() int { return 0 }
	}
	return &Cache{
		entries: map[string]Entry{},
		policy:  policy.withDefaults(),
		load:    load,
		now:     time.Now,
	}
}

// Get returns the cached value for key if it is valid right now.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	policy := c.policy
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !policy.Valid(c.now().Sub(e.CreatedAt), c.load()) {
		return nil, false
	}
	return e.Value, true
}

// Put stores value for key, replacing any previous entry.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	c.entries[key] = Entry{Key: key, Value: value, CreatedAt: c.now()}
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) Policy() TTLPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

// SetPolicy swaps the TTL policy (config hot-reload).
func (c *Cache) SetPolicy(p TTLPolicy) {
	c.mu.Lock()
	c.policy = p.withDefaults()
	c.mu.Unlock()
}
