package app

import (
	"context"
	"time"

	"flightbroker/internal/broker"
	"flightbroker/internal/eventbus"
	"flightbroker/internal/storage"
	logx "flightbroker/pkg/logx"
)

// auditRecorder writes every finished batch to the store.
type auditRecorder struct {
	store storage.Store
	log   logx.Logger
}

func (r *auditRecorder) Run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			ev, ok := e.Data.(broker.BatchEvent)
			if !ok {
				continue
			}
			r.record(ctx, e.Time, ev)
		}
	}
}

func (r *auditRecorder) record(ctx context.Context, at time.Time, ev broker.BatchEvent) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	err := r.store.AppendBatch(wctx, storage.BatchRecord{
		At:        at,
		RequestID: ev.RequestID,
		Endpoint:  ev.Origin,
		Keys:      ev.Keys,
		OK:        ev.OK,
		Failed:    ev.Failed,
		Abandoned: ev.Abandoned,
		TookMS:    ev.Duration.Milliseconds(),
	})
	if err != nil {
		r.log.Warn("audit append failed", logx.String("request_id", ev.RequestID), logx.Err(err))
	}
}
