package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"flightbroker/internal/config"
)

func writeConfig(t *testing.T, upstream string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`{
  "server": {"addr": "127.0.0.1:0", "tokens": ["t1"], "shutdown_timeout": "2s"},
  "broker": {"workers": 2, "idle_poll": "10ms", "stream_poll": "10ms"},
  "lookup": {"base_url": %q, "rate_per_sec": 100, "burst": 10, "timeout": "2s"},
  "logging": {"level": "error", "console": false, "file": {"enabled": false, "path": ""}},
  "storage": {"driver": "file", "path": %q},
  "housekeeping": {"stats_spec": "off", "prune_spec": "@hourly"}
}`, upstream, filepath.Join(dir, "fb"))
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func startApp(t *testing.T) *App {
	t.Helper()
	upstream := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(upstream.Close)

	m := config.NewManager(writeConfig(t, upstream.URL))
	m.SetEnv(func(string) string { return "" })
	a, err := newWithManager(m)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		cancel()
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, StopUnknown)
		cancel()
	})
	return a
}

func TestAppServesAndAudits(t *testing.T) {
	a := startApp(t)
	base := "http://" + a.Addr()

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/api/scrape/AA1,BB2?token=t1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scrape: %d", resp.StatusCode)
	}

	var msgs []map[string]any
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("line %q: %v", line, err)
		}
		msgs = append(msgs, m)
	}
	if len(msgs) != 3 {
		t.Fatalf("want 3 messages, got %d: %v", len(msgs), msgs)
	}
	for _, m := range msgs[:2] {
		if m["type"] != "flight_data" || m["status"] != "completed" {
			t.Fatalf("item: %v", m)
		}
		res, _ := m["result"].(map[string]any)
		if res["error"] != "Flight data not found or could not be scraped." {
			t.Fatalf("result: %v", m["result"])
		}
	}
	if msgs[2]["type"] != "end" {
		t.Fatalf("last: %v", msgs[2])
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		recs, err := a.store.Recent(context.Background(), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) == 1 {
			r := recs[0]
			if r.Endpoint != "scrape" || r.Failed != 2 || len(r.Keys) != 2 {
				t.Fatalf("record: %+v", r)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit record not written (have %d)", len(recs))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestAppRejectsBadToken(t *testing.T) {
	a := startApp(t)
	resp, err := http.Get("http://" + a.Addr() + "/api/scrape/AA1?token=nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("want 403, got %d", resp.StatusCode)
	}
}

func TestMapHousekeepingDisabled(t *testing.T) {
	cfg := &config.Config{Housekeeping: config.HousekeepingConfig{StatsSpec: "off", PruneSpec: "@daily"}}
	hk, err := mapHousekeeping(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if hk.StatsSpec != "" || hk.PruneSpec != "@daily" || hk.Retention != 0 {
		t.Fatalf("got %+v", hk)
	}
}

func TestMapStorageConfig(t *testing.T) {
	if _, on, err := mapStorageConfig(&config.Config{}); on || err != nil {
		t.Fatalf("nil storage: on=%v err=%v", on, err)
	}
	if _, _, err := mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "sqlite"}}); err == nil {
		t.Fatal("sqlite without path accepted")
	}
	sc, on, err := mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "SQLite", Path: "x.db"}})
	if err != nil || !on || sc.Driver != "sqlite" || sc.BusyTimeout != time.Second {
		t.Fatalf("got %+v on=%v err=%v", sc, on, err)
	}
}
