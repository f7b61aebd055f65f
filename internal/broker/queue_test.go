package broker

import (
	"errors"
	"sync"
	"testing"
)

func TestQueueClaimsInOrder(t *testing.T) {
	q := NewQueue()
	a, b, c := NewItem("r1", "AA1", "aa1"), NewItem("r1", "BB2", "bb2"), NewItem("r2", "CC3", "cc3")
	q.Enqueue(a, b)
	q.Enqueue(c)

	for _, want := range []*Item{a, b, c} {
		got, ok := q.Claim()
		if !ok || got != want {
			t.Fatalf("claim: got %v ok=%v, want %s", got, ok, want.Key)
		}
		if got.State() != InProgress {
			t.Fatalf("state=%s", got.State())
		}
	}
	if _, ok := q.Claim(); ok {
		t.Fatal("expected nothing claimable")
	}
	if q.Len() != 3 {
		t.Fatalf("in-progress items must stay queued, len=%d", q.Len())
	}
}

func TestQueueNoDoubleClaim(t *testing.T) {
	q := NewQueue()
	const n = 200
	for i := 0; i < n; i++ {
		q.Enqueue(NewItem("r", "AA1", "AA1"))
	}

	var (
		mu   sync.Mutex
		seen = map[*Item]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				it, ok := q.Claim()
				if !ok {
					return
				}
				mu.Lock()
				seen[it]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("claimed %d distinct items, want %d", len(seen), n)
	}
	for it, c := range seen {
		if c != 1 {
			t.Fatalf("item %p claimed %d times", it, c)
		}
	}
}

func TestQueueResolveRemovesAndNotifies(t *testing.T) {
	q := NewQueue()
	it := NewItem("r", "AA1", "AA1")
	done := 0
	it.onDone = func() { done++ }
	q.Enqueue(it)

	if err := q.Resolve(it, Result{Value: "x"}, SourceLookup); !errors.Is(err, ErrNotClaimed) {
		t.Fatalf("resolve pending: err=%v", err)
	}
	if _, ok := q.Claim(); !ok {
		t.Fatal("claim failed")
	}
	if err := q.Resolve(it, Result{Value: "x"}, SourceLookup); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("len=%d after resolve", q.Len())
	}
	if done != 1 {
		t.Fatalf("onDone called %d times", done)
	}
	if r, ok := it.Result(); !ok || r.Value != "x" {
		t.Fatalf("result=%+v ok=%v", r, ok)
	}
	if err := q.Resolve(it, ErrorResult("again"), SourceLookup); !errors.Is(err, ErrNotClaimed) {
		t.Fatalf("second resolve: err=%v", err)
	}
	if r, _ := it.Result(); r.Value != "x" {
		t.Fatal("completed result was overwritten")
	}
}

func TestQueueCounts(t *testing.T) {
	q := NewQueue()
	q.Enqueue(NewItem("r", "A1", "A1"), NewItem("r", "B2", "B2"), NewItem("r", "C3", "C3"))
	q.Claim()
	p, ip := q.Counts()
	if p != 2 || ip != 1 {
		t.Fatalf("pending=%d in_progress=%d", p, ip)
	}
}

func TestResultJSON(t *testing.T) {
	b, err := ErrorResult(NotFoundMessage).MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"error":"Flight data not found or could not be scraped."}` {
		t.Fatalf("got %s", b)
	}
	b, _ = Result{Value: map[string]int{"a": 1}}.MarshalJSON()
	if string(b) != `{"a":1}` {
		t.Fatalf("got %s", b)
	}
}
