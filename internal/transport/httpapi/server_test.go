package httpapi

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	logx "flightbroker/pkg/logx"
)

func TestServerStartStop(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "ok") })
	s := NewServer(ServerConfig{Addr: "127.0.0.1:0", ReadHeaderTimeout: time.Second}, mux, logx.Nop())
	s.Start(context.Background())

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server not ready")
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(b) != "ok" {
		t.Fatalf("body=%q", b)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if s.Supervisor() != nil {
		t.Fatal("supervisor must be cleared after stop")
	}
}
