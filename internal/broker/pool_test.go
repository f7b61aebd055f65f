package broker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"flightbroker/internal/eventbus"
	"flightbroker/internal/flight"
	logx "flightbroker/pkg/logx"
)

func keys(ss ...string) []flight.Key {
	out := make([]flight.Key, 0, len(ss))
	for _, s := range ss {
		out = append(out, flight.Key{Raw: s, Normalized: s})
	}
	return out
}

func startBroker(t *testing.T, lookup LookupFunc, bus eventbus.Bus) *Broker {
	t.Helper()
	b := New(Config{
		Pool:       PoolConfig{Workers: 2, IdlePoll: 10 * time.Millisecond, LookupTimeout: time.Second},
		StreamPoll: 10 * time.Millisecond,
	}, lookup, logx.Nop(), bus)
	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)
	t.Cleanup(func() {
		cancel()
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		b.Stop(sctx)
	})
	return b
}

func drain(t *testing.T, batch *Batch) []*Item {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var out []*Item
	for {
		done, err := batch.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v (got %d items)", err, len(out))
		}
		if done == nil {
			return out
		}
		out = append(out, done...)
	}
}

func TestPoolCachesSuccessWithinTTL(t *testing.T) {
	var calls atomic.Int32
	b := startBroker(t, func(ctx context.Context, key string) (any, error) {
		calls.Add(1)
		return map[string]string{"flight": key}, nil
	}, nil)

	first := drain(t, b.Submit(keys("AA1")))
	if len(first) != 1 || first[0].Source() != SourceLookup {
		t.Fatalf("first: %+v", first)
	}
	second := drain(t, b.Submit(keys("AA1")))
	if len(second) != 1 || second[0].Source() != SourceCache {
		t.Fatalf("second source=%s", second[0].Source())
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("lookup called %d times", n)
	}
	if r, _ := second[0].Result(); !r.OK() {
		t.Fatalf("cached result: %+v", r)
	}
}

func TestPoolFailuresAreNotCached(t *testing.T) {
	var calls atomic.Int32
	b := startBroker(t, func(ctx context.Context, key string) (any, error) {
		calls.Add(1)
		return nil, errors.New("upstream down")
	}, nil)

	for i := 0; i < 2; i++ {
		items := drain(t, b.Submit(keys("ZZ9")))
		r, ok := items[0].Result()
		if !ok || r.Err != NotFoundMessage {
			t.Fatalf("result=%+v ok=%v", r, ok)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("lookup called %d times, want 2", n)
	}
	if b.Cache().Len() != 0 {
		t.Fatal("failure was cached")
	}
}

func TestPoolRecoversLookupPanic(t *testing.T) {
	b := startBroker(t, func(ctx context.Context, key string) (any, error) {
		if key == "BAD1" {
			panic("parser blew up")
		}
		return key, nil
	}, nil)

	items := drain(t, b.Submit(keys("BAD1", "OK1")))
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	for _, it := range items {
		r, _ := it.Result()
		if it.Key == "BAD1" && r.Err != NotFoundMessage {
			t.Fatalf("panic result: %+v", r)
		}
		if it.Key == "OK1" && !r.OK() {
			t.Fatalf("ok result: %+v", r)
		}
	}
	if st := b.Pool().Stats(); st.Failures != 1 || st.Lookups != 2 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestPoolPanicAfterClaimStillCompletes(t *testing.T) {
	b := startBroker(t, func(ctx context.Context, key string) (any, error) { return key, nil }, nil)
	b.Cache().Put("AA1", "stale")
	b.Cache().load = func() int { panic("load gauge broke") }

	items := drain(t, b.Submit(keys("AA1")))
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	if r, done := items[0].Result(); !done || r.Err != NotFoundMessage {
		t.Fatalf("result: %+v done=%v", r, done)
	}
	if n := b.Queue().Len(); n != 0 {
		t.Fatalf("queue len=%d", n)
	}
	if st := b.Pool().Stats(); st.Failures != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestPoolNilValueIsFailure(t *testing.T) {
	b := startBroker(t, func(ctx context.Context, key string) (any, error) { return nil, nil }, nil)
	items := drain(t, b.Submit(keys("AA1")))
	if r, _ := items[0].Result(); r.OK() {
		t.Fatalf("nil value must fail: %+v", r)
	}
}

func TestPoolApplyRestartsWorkers(t *testing.T) {
	b := startBroker(t, func(ctx context.Context, key string) (any, error) { return key, nil }, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b.Apply(ctx, Config{Pool: PoolConfig{Workers: 3, IdlePoll: 10 * time.Millisecond}})
	if w := b.Pool().Config().Workers; w != 3 {
		t.Fatalf("workers=%d", w)
	}
	if items := drain(t, b.Submit(keys("AA1", "BB2"))); len(items) != 2 {
		t.Fatalf("got %d items after restart", len(items))
	}
}
