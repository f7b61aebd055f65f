package broker

import (
	"context"
	"testing"
	"time"

	"flightbroker/internal/eventbus"
	logx "flightbroker/pkg/logx"
)

func TestBatchYieldsEachItemOnce(t *testing.T) {
	bus := eventbus.New()
	finished, unsub := bus.Subscribe(4, EventBatchFinished)
	defer unsub()

	b := startBroker(t, func(ctx context.Context, key string) (any, error) {
		if key == "BB2" {
			time.Sleep(30 * time.Millisecond)
		}
		return key, nil
	}, bus)

	batch := b.Submit(keys("AA1", "BB2", "AA1"))
	if batch.ID == "" {
		t.Fatal("empty request id")
	}
	items := drain(t, batch)
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	seen := map[*Item]bool{}
	for _, it := range items {
		if seen[it] {
			t.Fatal("item reported twice")
		}
		seen[it] = true
		if it.RequestID != batch.ID {
			t.Fatalf("request id %q != %q", it.RequestID, batch.ID)
		}
	}
	if done, err := batch.Next(context.Background()); done != nil || err != nil {
		t.Fatalf("drained batch: %v %v", done, err)
	}

	batch.Close()
	batch.Close()
	select {
	case e := <-finished:
		ev := e.Data.(BatchEvent)
		if len(ev.Keys) != 3 || ev.OK != 3 || ev.Abandoned != 0 {
			t.Fatalf("event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no batch event")
	}
	select {
	case e := <-finished:
		t.Fatalf("duplicate batch event: %+v", e)
	default:
	}
}

func TestBatchNextHonoursContext(t *testing.T) {
	block := make(chan struct{})
	b := startBroker(t, func(ctx context.Context, key string) (any, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return key, nil
	}, nil)
	defer close(block)

	batch := b.Submit(keys("AA1"))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := batch.Next(ctx); err == nil {
		t.Fatal("expected context error")
	}
	if batch.Remaining() != 1 {
		t.Fatalf("remaining=%d", batch.Remaining())
	}
}

func TestSnapshotReportsLoad(t *testing.T) {
	b := New(Config{}, func(ctx context.Context, key string) (any, error) { return key, nil }, logx.Nop(), nil)
	b.Submit(keys("A1", "B2"))
	snap := b.Snapshot()
	if snap.QueueLen != 2 || snap.Pending != 2 || snap.Busy {
		t.Fatalf("snapshot: %+v", snap)
	}
}
