package broker

import (
	"context"
	"sync"
	"time"

	"flightbroker/internal/eventbus"
)

// EventBatchFinished is published on the bus when a batch closes.
const EventBatchFinished = "broker.batch.finished"

// BatchEvent is published once per batch when its stream ends.
type BatchEvent struct {
	RequestID string        `json:"request_id"`
	Origin    string        `json:"origin,omitempty"`
	Keys      []string      `json:"keys"`
	OK        int           `json:"ok"`
	Failed    int           `json:"failed"`
	Abandoned int           `json:"abandoned"`
	Duration  time.Duration `json:"duration"`
}

// Batch is the submitting request's own view of its items.
// It is not safe for concurrent use.
type Batch struct {
	ID      string
	Started time.Time
	// Origin labels the submitter in the finished event (e.g. "scrape").
	Origin string

	items []*Item
	view  []*Item

	wake chan struct{}
	poll time.Duration
	bus  eventbus.Bus

	ok, failed int
	closeOnce  sync.Once
}

func newBatch(id string, items []*Item, poll time.Duration, bus eventbus.Bus) *Batch {
	b := &Batch{
		ID:      id,
		Started: time.Now(),
		items:   items,
		view:    append([]*Item(nil), items...),
		wake:    make(chan struct{}, 1),
		poll:    poll,
		bus:     bus,
	}
	for _, it := range items {
		it.onDone = b.notify
	}
	return b
}

func (b *Batch) notify() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Items returns every item of the batch in submission order.
func (b *Batch) Items() []*Item { return b.items }

// Remaining counts items not yet returned by Next.
func (b *Batch) Remaining() int { return len(b.view) }

// Next blocks until at least one unreported item is Completed and returns
// those items, dropping them from the view. It returns (nil, nil) once
// every item has been reported, or ctx.Err() if ctx ends first.
func (b *Batch) Next(ctx context.Context) ([]*Item, error) {
	if len(b.view) == 0 {
		return nil, nil
	}
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()
	for {
		var done []*Item
		kept := b.view[:0]
		for _, it := range b.view {
			if it.State() == Completed {
				done = append(done, it)
				continue
			}
			kept = append(kept, it)
		}
		for i := len(kept); i < len(b.view); i++ {
			b.view[i] = nil
		}
		b.view = kept
		if len(done) > 0 {
			for _, it := range done {
				if r, _ := it.Result(); r.OK() {
					b.ok++
				} else {
					b.failed++
				}
			}
			return done, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.wake:
		case <-ticker.C:
		}
	}
}

// Close publishes the batch summary once. Items still unreported count as
// abandoned; the workers will complete them anyway.
func (b *Batch) Close() {
	b.closeOnce.Do(func() {
		if b.bus == nil {
			return
		}
		keys := make([]string, len(b.items))
		for i, it := range b.items {
			keys[i] = it.Key
		}
		b.bus.Publish(eventbus.Event{Type: EventBatchFinished, Data: BatchEvent{
			RequestID: b.ID,
			Origin:    b.Origin,
			Keys:      keys,
			OK:        b.ok,
			Failed:    b.failed,
			Abandoned: len(b.view),
			Duration:  time.Since(b.Started),
		}})
	})
}
