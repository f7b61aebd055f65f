package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flightbroker/internal/broker"
	"flightbroker/internal/flight"
	"flightbroker/internal/storage"
	logx "flightbroker/pkg/logx"
)

// DefaultStreamTimeout caps one streaming response.
const DefaultStreamTimeout = 480 * time.Second

// Broker is the part of *broker.Broker the handlers use.
type Broker interface {
	Submit(keys []flight.Key) *broker.Batch
	Snapshot() broker.Snapshot
}

// AuditReader lists recently finished batches for /api/status.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]storage.BatchRecord, error)
}

type Handler struct {
	broker Broker
	tokens *Tokens
	audit  AuditReader
	log    logx.Logger

	streamTimeout atomic.Int64
	profiler      bool
	started       time.Time
	now           func() time.Time
}

type Option func(*Handler)

func WithAudit(a AuditReader) Option { return func(h *Handler) { h.audit = a } }

func WithStreamTimeout(d time.Duration) Option {
	return func(h *Handler) { h.SetStreamTimeout(d) }
}

// WithProfiler mounts chi's pprof routes under /debug (token required).
func WithProfiler(enabled bool) Option { return func(h *Handler) { h.profiler = enabled } }

func NewHandler(b Broker, tokens *Tokens, log logx.Logger, opts ...Option) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &Handler{
		broker:  b,
		tokens:  tokens,
		log:     log,
		started: time.Now(),
		now:     time.Now,
	}
	h.streamTimeout.Store(int64(DefaultStreamTimeout))
	for _, o := range opts {
		o(h)
	}
	return h
}

// SetStreamTimeout applies on the next request.
func (h *Handler) SetStreamTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultStreamTimeout
	}
	h.streamTimeout.Store(int64(d))
}

func (h *Handler) StreamTimeout() time.Duration { return time.Duration(h.streamTimeout.Load()) }

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(recoverer(h.log))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		plainText(w, http.StatusOK, "ok")
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(requireToken(h.tokens))
		r.Get("/scrape/{keys}", h.scrape)
		r.Get("/summary", h.summary)
		r.Get("/summary/{keys}", h.summary)
		r.Get("/status", h.status)
	})

	if h.profiler {
		r.With(requireToken(h.tokens)).Mount("/debug", middleware.Profiler())
	}
	return r
}

// parseKeys rejects the whole request with 400 when any key is malformed.
func (h *Handler) parseKeys(w http.ResponseWriter, r *http.Request) ([]flight.Key, bool) {
	raw := chi.URLParam(r, "keys")
	// chi routes on RawPath when it is set, so only then is the param
	// still escaped. r.URL.Path is already decoded once.
	if r.URL.RawPath != "" {
		u, err := url.PathUnescape(raw)
		if err != nil {
			plainText(w, http.StatusBadRequest, "invalid flight number list")
			return nil, false
		}
		raw = u
	}
	keys, err := flight.ParseList(raw)
	if err != nil {
		plainText(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return keys, true
}
