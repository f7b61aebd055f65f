package broker

import (
	"errors"
	"sync"
	"time"
)

var ErrNotClaimed = errors.New("item is not in progress")

// Queue is the shared, ordered set of unresolved items across all batches.
// An item is a member until it is Completed.
type Queue struct {
	mu    sync.Mutex
	items []*Item

	avail chan struct{}
	now   func() time.Time
}

func NewQueue() *Queue {
	return &Queue{avail: make(chan struct{}, 1), now: time.Now}
}

// Enqueue appends items in order and wakes an idle worker.
func (q *Queue) Enqueue(items ...*Item) {
	if len(items) == 0 {
		return
	}
	now := q.now()
	q.mu.Lock()
	for _, it := range items {
		if it.EnqueuedAt.IsZero() {
			it.EnqueuedAt = now
		}
		q.items = append(q.items, it)
	}
	n := len(q.items)
	q.mu.Unlock()

	queueItems.Set(float64(n))
	q.signal()
}

// Claim marks the first Pending item InProgress and returns it.
// The scan and the mark happen under one lock, so an item is handed to
// exactly one caller.
func (q *Queue) Claim() (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var claimed *Item
	more := false
	for _, it := range q.items {
		if claimed == nil {
			if it.transition(Pending, InProgress) {
				claimed = it
			}
			continue
		}
		if it.State() == Pending {
			more = true
			break
		}
	}
	if more {
		// Chain the wake-up so a burst is picked up by several idle workers.
		q.signal()
	}
	return claimed, claimed != nil
}

// Resolve completes a claimed item and removes it from the queue in one
// step, so the queue never holds a Completed item.
func (q *Queue) Resolve(it *Item, r Result, src Source) error {
	q.mu.Lock()
	onDone, ok := it.complete(r, src, q.now())
	if !ok {
		q.mu.Unlock()
		return ErrNotClaimed
	}
	for i, cur := range q.items {
		if cur == it {
			copy(q.items[i:], q.items[i+1:])
			q.items[len(q.items)-1] = nil
			q.items = q.items[:len(q.items)-1]
			break
		}
	}
	n := len(q.items)
	q.mu.Unlock()

	queueItems.Set(float64(n))
	if onDone != nil {
		onDone()
	}
	return nil
}

// Len counts pending and in-progress items system-wide.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Counts splits Len by state.
func (q *Queue) Counts() (pending, inProgress int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.State() == Pending {
			pending++
		} else {
			inProgress++
		}
	}
	return pending, inProgress
}

// Available is signalled when new work may be claimable.
func (q *Queue) Available() <-chan struct{} { return q.avail }

func (q *Queue) signal() {
	select {
	case q.avail <- struct{}{}:
	default:
	}
}
