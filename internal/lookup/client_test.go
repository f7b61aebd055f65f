package lookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	logx "flightbroker/pkg/logx"
)

const flightPage = `<html><head>
<script>window.foo = 1;</script>
<script type="text/javascript">var trackpollGlobals = {"TOKEN":"tok-123","INTERVAL":60};
var other = 2;</script>
</head><body></body></html>`

const trackpollBody = `{"version":"1","flights":{
  "UAL123-1700000000-airline-0123":{
    "airline":{"shortName":"United"},
    "codeShare":{"ident":"UA123"},
    "origin":{"friendlyName":"San Francisco Intl","iata":"SFO"},
    "destination":{"friendlyName":"Newark Liberty Intl","iata":null},
    "takeoffTimes":{"scheduled":1700000000},
    "landingTimes":{"scheduled":null}
  },
  "UAL123-second":{"airline":{"shortName":"Other"}}
}}`

type fakeSource struct {
	omni, page, poll atomic.Int32
	omniBody         string
}

func (f *fakeSource) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ajax/ignoreall/omnisearch/flight.rvt", func(w http.ResponseWriter, r *http.Request) {
		f.omni.Add(1)
		if r.URL.Query().Get("q") == "" || r.Header.Get("User-Agent") == "" {
			t.Errorf("omnisearch missing query or user agent: %s", r.URL)
		}
		_, _ = w.Write([]byte(f.omniBody))
	})
	mux.HandleFunc("/live/flight/UAL123", func(w http.ResponseWriter, r *http.Request) {
		f.page.Add(1)
		_, _ = w.Write([]byte(flightPage))
	})
	mux.HandleFunc("/ajax/trackpoll.rvt", func(w http.ResponseWriter, r *http.Request) {
		f.poll.Add(1)
		if got := r.URL.Query().Get("token"); got != "tok-123" {
			t.Errorf("trackpoll token = %q", got)
		}
		_, _ = w.Write([]byte(trackpollBody))
	})
	return mux
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: srv.URL, RatePerSec: 1000, Burst: 1000}, srv.Client(), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestLookupMapsTrackpoll(t *testing.T) {
	src := &fakeSource{omniBody: `{"data":[{"ident":"UAL123"}]}`}
	srv := httptest.NewServer(src.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv)

	info, err := c.Lookup(context.Background(), "UA123")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if info.Airline != "United" || info.Identifier != "UA123" {
		t.Fatalf("unexpected header fields: %+v", info)
	}
	if info.Link != srv.URL+"/live/flight/UAL123" {
		t.Fatalf("link = %q", info.Link)
	}
	if info.Origin.Airport != "San Francisco Intl" || info.Origin.IATA != "SFO" {
		t.Fatalf("origin = %+v", info.Origin)
	}
	if info.Origin.DepartureTime == nil || *info.Origin.DepartureTime != 1700000000 {
		t.Fatalf("departure time = %v", info.Origin.DepartureTime)
	}
	if info.Destination.IATA != "???" || info.Destination.ArrivalTime != nil {
		t.Fatalf("destination defaults not applied: %+v", info.Destination)
	}
}

func TestLookupMemoizesIdent(t *testing.T) {
	src := &fakeSource{omniBody: `{"data":[{"ident":"UAL123"}]}`}
	srv := httptest.NewServer(src.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv)

	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	for i := 0; i < 2; i++ {
		if _, err := c.Lookup(context.Background(), "UA123"); err != nil {
			t.Fatalf("Lookup: %v", err)
		}
	}
	if got := src.omni.Load(); got != 1 {
		t.Fatalf("omnisearch calls = %d, want 1", got)
	}
	if got := src.poll.Load(); got != 2 {
		t.Fatalf("trackpoll calls = %d, want 2", got)
	}

	now = now.Add(8 * 24 * time.Hour)
	if _, err := c.Lookup(context.Background(), "UA123"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got := src.omni.Load(); got != 2 {
		t.Fatalf("expired ident should be searched again, calls = %d", got)
	}
}

func TestLookupNotFound(t *testing.T) {
	src := &fakeSource{omniBody: `{"data":[]}`}
	srv := httptest.NewServer(src.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.Lookup(context.Background(), "ZZ999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if src.page.Load() != 0 {
		t.Fatal("flight page must not be fetched without an ident")
	}
}

func TestLookupUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.Lookup(context.Background(), "UA123")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want StatusError 429", err)
	}
}

func TestFirstValueEmpty(t *testing.T) {
	for _, in := range []string{`null`, `{}`, `{"a":null}`, `{"a":{}}`} {
		if _, err := firstValue([]byte(in)); !errors.Is(err, ErrNotFound) {
			t.Errorf("firstValue(%s) err = %v, want ErrNotFound", in, err)
		}
	}
}

func TestTrackpollTokenMissing(t *testing.T) {
	if _, err := trackpollToken([]byte(`<html><script>var x = 1;</script></html>`)); err == nil {
		t.Fatal("expected error without trackpoll globals")
	}
}
