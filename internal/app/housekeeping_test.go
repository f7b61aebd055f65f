package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"flightbroker/internal/broker"
	"flightbroker/internal/storage"
	logx "flightbroker/pkg/logx"
)

func TestHousekeepingPrune(t *testing.T) {
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "hk")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	for _, at := range []time.Time{now.Add(-48 * time.Hour), now.Add(-time.Hour)} {
		if err := st.AppendBatch(ctx, storage.BatchRecord{At: at, RequestID: at.String(), Endpoint: "scrape"}); err != nil {
			t.Fatal(err)
		}
	}

	b := broker.New(broker.Config{}, func(context.Context, string) (any, error) { return nil, nil }, logx.Nop(), nil)
	h := newHousekeeping(housekeepingSettings{PruneSpec: "@daily", Retention: 24 * time.Hour}, b, st, logx.Nop())
	h.now = func() time.Time { return now }
	h.prune(ctx)

	recs, err := st.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || !recs[0].At.Equal(now.Add(-time.Hour)) {
		t.Fatalf("after prune: %+v", recs)
	}
}

func TestHousekeepingApplyRestartsCron(t *testing.T) {
	b := broker.New(broker.Config{}, func(context.Context, string) (any, error) { return nil, nil }, logx.Nop(), nil)
	h := newHousekeeping(housekeepingSettings{StatsSpec: "@every 1h"}, b, nil, logx.Nop())
	if err := h.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := h.c
	if err := h.Apply(housekeepingSettings{StatsSpec: "@every 1h"}); err != nil {
		t.Fatal(err)
	}
	if h.c != first {
		t.Fatal("unchanged settings restarted the scheduler")
	}
	if err := h.Apply(housekeepingSettings{StatsSpec: "@every 2h"}); err != nil {
		t.Fatal(err)
	}
	second := h.c
	if second == first || len(second.Entries()) != 1 {
		t.Fatal("scheduler not rebuilt")
	}
	if err := h.Apply(housekeepingSettings{StatsSpec: "not a spec"}); err == nil {
		t.Fatal("bad spec accepted")
	}
	if h.c != second || h.cfg.StatsSpec != "@every 2h" {
		t.Fatal("bad spec replaced running jobs")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h.Stop(ctx)
	if h.c != nil {
		t.Fatal("stop left scheduler")
	}
	h.logStats()
}
