// Package app wires configuration, logging, the publish queue and its
// observers, and the HTTP surface into one process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"threadq/internal/config"
	"threadq/internal/egress"
	"threadq/internal/eventbus"
	"threadq/internal/eventbus/natsbridge"
	"threadq/internal/httpapi"
	"threadq/internal/notifier"
	"threadq/internal/publisher"
	"threadq/internal/queue"
	rtsup "threadq/internal/runtime/supervisor"
	"threadq/internal/storage"
	kit "threadq/internal/transport"
	"threadq/internal/transport/telegram"
	logx "threadq/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  storage.Store
	pruner *storage.Pruner
	bridge *natsbridge.Bridge
	notify *notifier.Service

	pub    publisher.Publisher
	queue  *queue.Service
	server *httpapi.Server
}

// New loads the configuration and builds every component without starting
// anything that listens or dials.
func New(ctx context.Context, cfgm *config.ConfigManager) (*App, error) {
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// One bot serves both log alerts and publish notifications.
	var (
		alerts logx.AlertSender
		sender *telegram.Sender
	)
	if tc := mapTelegram(cfg); tc.Token != "" {
		sender, err = telegram.New(tc, logx.NewConsole(cfg.Logging.Level))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		alerts = kit.Alerter{Sender: sender, Target: sender.Target(), Prefix: "threadq"}
	}
	logSvc, root := logx.New(mapLogging(cfg), alerts)
	log := root.With(logx.String("comp", "app"))

	pub, prober, err := newPublisher(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	q := queue.New(mapQueue(cfg), pub, root.With(logx.String("comp", "queue")), bus)

	var describe queue.Egress
	if cfg.Egress.Enabled {
		describe = egress.New(mapEgress(cfg))
		q.WithEgress(describe)
	}

	a := &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		pub:    pub,
		queue:  q,
		server: httpapi.New(mapServer(cfg), q, prober, describe, root.With(logx.String("comp", "http"))),
	}
	if sender != nil {
		a.notify = notifier.New(mapNotifier(cfg), sender, sender.Target(), root.With(logx.String("comp", "notifier")), bus)
	}

	if err := a.openStorage(ctx, cfg, root); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	if nc, ok := mapEvents(cfg); ok {
		br, err := natsbridge.Connect(nc, root.With(logx.String("comp", "events")))
		if err != nil {
			a.closeStorage()
			_ = logSvc.Close()
			return nil, fmt.Errorf("events: %w", err)
		}
		a.bridge = br
	}
	return a, nil
}

func (a *App) openStorage(ctx context.Context, cfg *config.Config, root logx.Logger) error {
	sc, enabled, err := mapStorage(cfg)
	if err != nil || !enabled {
		return err
	}
	st, err := storage.Open(ctx, sc, root)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	pr, err := storage.NewPruner(st, sc, root)
	if err != nil {
		_ = st.Close()
		return err
	}
	a.store, a.pruner = st, pr
	a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	return nil
}

func (a *App) closeStorage() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

func (a *App) Queue() *queue.Service { return a.queue }

func (a *App) Handler() *httpapi.Server { return a.server }

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if a.store != nil {
		a.sup.Go("storage.record", func(c context.Context) error {
			return storage.RecordOutcomes(c, a.bus, a.store, a.log.With(logx.String("comp", "storage")))
		})
		if a.pruner != nil {
			if err := a.pruner.Start(a.sup.Context()); err != nil {
				return err
			}
		}
	}
	if a.bridge != nil {
		a.sup.Go("events.nats", func(c context.Context) error { return a.bridge.Run(c, a.bus) })
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	if a.notify != nil {
		a.notify.Start(a.sup.Context())
	}
	a.queue.Start(a.sup.Context())

	a.sup.GoRestart("http.serve", a.server.Run,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.String("publisher", a.pub.Name()),
		logx.String("config", a.cfgm.Path()),
	)
	return nil
}

// reloadLoop applies the live-reloadable sections: logging, worker cooldown
// and the check rate limit. Other sections log that a restart is required.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
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
			a.apply(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) apply(prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogging(next))
	a.queue.SetCooldown(mapQueue(next).Cooldown)
	a.server.SetCheckRate(next.Check.RatePerSec, next.Check.Burst)
	if a.notify != nil {
		a.notify.Apply(mapNotifier(next))
		if a.sup != nil {
			a.notify.Start(a.sup.Context())
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if restart {
		a.log.Warn("some changed sections take effect after restart", logx.String("changed", strings.Join(sections, ",")))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStorage()
		if a.bridge != nil {
			_ = a.bridge.Close()
		}
		return a.logs.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	// step bounds each shutdown stage so one component cannot stall the stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
			max = time.Until(dl)
		}
		if max > 0 {
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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("queue", 2*time.Second, func(c context.Context) error { a.queue.Stop(c); return nil })
	step("notifier", time.Second, func(c context.Context) error {
		if a.notify != nil {
			a.notify.Stop(c)
		}
		return nil
	})
	step("pruner", time.Second, func(c context.Context) error {
		if a.pruner != nil {
			a.pruner.Stop(c)
		}
		return nil
	})
	step("supervisor", 6*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("events", time.Second, func(context.Context) error {
		if a.bridge != nil {
			return a.bridge.Close()
		}
		return nil
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}
