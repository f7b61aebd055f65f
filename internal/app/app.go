package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"flightbroker/internal/broker"
	"flightbroker/internal/config"
	"flightbroker/internal/eventbus"
	"flightbroker/internal/lookup"
	"flightbroker/internal/runtime/supervisor"
	"flightbroker/internal/storage"
	"flightbroker/internal/transport/httpapi"
	logx "flightbroker/pkg/logx"
	"flightbroker/pkg/systemd"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	lookup  *lookup.Client
	broker  *broker.Broker
	tokens  *httpapi.Tokens
	handler *httpapi.Handler
	server  *httpapi.Server
	house   *housekeeping

	shutdownTimeout atomic.Int64
}

// New loads the configuration and wires every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	return newWithManager(config.NewManager(cfgPath))
}

func newWithManager(cfgm *config.Manager) (*App, error) {
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	log = log.With(logx.Comp("app"))

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.Comp("storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	lcfg, err := mapLookup(cfg)
	if err != nil {
		return nil, closeOnErr(store, err)
	}
	client, err := lookup.New(lcfg, &http.Client{Timeout: lcfg.Timeout}, log.With(logx.Comp("lookup")))
	if err != nil {
		return nil, closeOnErr(store, err)
	}

	bcfg, err := mapBroker(cfg)
	if err != nil {
		return nil, closeOnErr(store, err)
	}
	b := broker.New(bcfg, lookupFunc(client), log.With(logx.Comp("broker")), bus)

	srvCfg, err := mapServer(cfg)
	if err != nil {
		return nil, closeOnErr(store, err)
	}
	tokens := httpapi.NewTokens(config.AccessTokens(cfg))
	opts := []httpapi.Option{
		httpapi.WithStreamTimeout(srvCfg.stream),
		httpapi.WithProfiler(cfg.Server.Pprof),
	}
	if store != nil {
		opts = append(opts, httpapi.WithAudit(store))
	}
	handler := httpapi.NewHandler(b, tokens, log.With(logx.Comp("http")), opts...)
	server := httpapi.NewServer(srvCfg.listen, handler.Routes(), log.With(logx.Comp("http")))

	hk, err := mapHousekeeping(cfg)
	if err != nil {
		return nil, closeOnErr(store, err)
	}
	house := newHousekeeping(hk, b, store, log.With(logx.Comp("housekeeping")))

	a := &App{
		cfgPath: cfgm.Path(),
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		lookup:  client,
		broker:  b,
		tokens:  tokens,
		handler: handler,
		server:  server,
		house:   house,
	}
	a.shutdownTimeout.Store(int64(srvCfg.shutdown))
	return a, nil
}

func closeOnErr(store storage.Store, err error) error {
	if store != nil {
		_ = store.Close()
	}
	return err
}

// lookupFunc adapts the lookup client to the broker. A typed nil result
// must not reach the broker as a non-nil interface.
func lookupFunc(c *lookup.Client) broker.LookupFunc {
	return func(ctx context.Context, key string) (any, error) {
		info, err := c.Lookup(ctx, key)
		if err != nil || info == nil {
			return nil, err
		}
		return info, nil
	}
}

// Addr is the bound listen address once the server is up.
func (a *App) Addr() string { return a.server.Addr() }

// Ready is closed once the listener is bound.
func (a *App) Ready() <-chan struct{} { return a.server.Ready() }

func (a *App) Broker() *broker.Broker { return a.broker }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	c := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.Comp("config")))
	// Reject reloads that would not map cleanly onto the running services.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapServer(cfg); err != nil {
			return err
		}
		if _, err := mapBroker(cfg); err != nil {
			return err
		}
		if _, err := mapLookup(cfg); err != nil {
			return err
		}
		_, err := mapHousekeeping(cfg)
		return err
	})

	a.broker.Start(c)
	a.server.Start(c)

	if err := a.house.Start(c); err != nil {
		return err
	}

	if a.store != nil {
		events, unsub := a.bus.Subscribe(256, broker.EventBatchFinished)
		rec := &auditRecorder{store: a.store, log: a.log.With(logx.Comp("audit"))}
		a.sup.Go("audit.record", func(c context.Context) error {
			defer unsub()
			return rec.Run(c, events)
		})
	}

	// Optional: log events for observability/debug.
	events, unsub := a.bus.Subscribe(128, broker.EventBatchFinished)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				if ev, ok := e.Data.(broker.BatchEvent); ok {
					a.log.Debug("batch finished",
						logx.String("request_id", ev.RequestID),
						logx.String("origin", ev.Origin),
						logx.Int("ok", ev.OK),
						logx.Int("failed", ev.Failed),
						logx.Int("abandoned", ev.Abandoned),
						logx.Duration("took", ev.Duration),
					)
				}
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		if err := systemd.Watchdog(c); err != nil {
			a.log.Warn("systemd watchdog stopped", logx.Err(err))
		}
		return nil
	})

	select {
	case <-a.server.Ready():
	case <-c.Done():
		return fmt.Errorf("app: start aborted: %w", context.Cause(c))
	case <-time.After(5 * time.Second):
		a.log.Warn("http listener not ready yet; continuing")
	}

	if _, err := systemd.Ready(); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}
	a.log.Info("app started", logx.String("addr", a.server.Addr()), logx.String("config", a.cfgPath))
	return nil
}

func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	// Track last applied config to generate a safe diff summary.
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(c context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready() }()

	a.logs.Apply(mapLogging(next))
	a.tokens.Set(config.AccessTokens(next))

	if srv, err := mapServer(next); err != nil {
		a.log.Warn("invalid server config; keeping previous", logx.Err(err))
	} else {
		a.handler.SetStreamTimeout(srv.stream)
		a.shutdownTimeout.Store(int64(srv.shutdown))
	}

	if bc, err := mapBroker(next); err != nil {
		a.log.Warn("invalid broker config; keeping previous", logx.Err(err))
	} else {
		applyCtx, cancel := context.WithTimeout(c, 5*time.Second)
		a.broker.Apply(applyCtx, bc)
		cancel()
	}

	if hk, err := mapHousekeeping(next); err != nil {
		a.log.Warn("invalid housekeeping config; keeping previous", logx.Err(err))
	} else if err := a.house.Apply(hk); err != nil {
		a.log.Warn("housekeeping reload failed", logx.Err(err))
	}

	for _, s := range sections {
		switch s {
		case "server":
			if prev.Server.Addr != next.Server.Addr || prev.Server.Pprof != next.Server.Pprof ||
				prev.Server.ReadHeaderTimeout != next.Server.ReadHeaderTimeout ||
				prev.Server.IdleTimeout != next.Server.IdleTimeout {
				a.log.Warn("server listener config changed; restart required for changes to take effect")
			}
		case "lookup", "storage":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}

	// Keep the final log line concise (details are in the attrs).
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// fn must honor stepCtx; anything past this point is a leak.
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
				}
			}()
		}
	}

	// The server drains open streams first; they still need the broker.
	step("http", time.Duration(a.shutdownTimeout.Load()), func(c context.Context) error { a.server.Stop(c); return nil })

	a.sup.Cancel()

	step("housekeeping", 2*time.Second, func(c context.Context) error { a.house.Stop(c); return nil })
	step("broker", 3*time.Second, func(c context.Context) error { a.broker.Stop(c); return nil })
	// Wait for supervised goroutines (audit recorder, config watch/reload) before closing storage.
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
