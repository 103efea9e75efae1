// Package app wires the configuration into running components and owns
// their start and stop order.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"

	"wrestfed/internal/config"
	"wrestfed/internal/ingest"
	"wrestfed/internal/notifier"
	"wrestfed/internal/observability/metrics"
	"wrestfed/internal/pipeline"
	"wrestfed/internal/runtime/supervisor"
	"wrestfed/internal/storage"
	"wrestfed/internal/task/scheduler"
	kit "wrestfed/internal/transport"
	telegram "wrestfed/internal/transport/telegram/adapter"
	"wrestfed/internal/transport/telegram/router"
	"wrestfed/internal/vk"
	logx "wrestfed/pkg/logx"
)

// IngestJob is the schedule name of the fetch, persist and notify cycle.
const IngestJob = "vk-ingest"

type App struct {
	cfgm     *config.ConfigManager
	settings config.Settings
	sup      *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter
	store   storage.Store
	lease   *pipeline.RedisLease
	pipe    *pipeline.Pipeline
	sched   *scheduler.Service
	metrics *metrics.Service
	cmdm    *router.CommandManager
	ops     router.Ops

	updates chan kit.Update
}

// New loads the config, derives the immutable settings and builds every
// component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	s, err := config.Derive(cfg)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	ad, err := telegram.New(mapTelegramConfig(s), logx.NewConsole("info").With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	logSvc, root := logx.New(mapLogConfig(cfg, s), ad)
	log := root.With(logx.String("comp", "app"))

	reg := metrics.NewRegistry()
	store, err := storage.Open(ctx, mapStorageConfig(s), root)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", s.Storage.Driver))

	a := &App{
		cfgm:     cfgm,
		settings: s,
		log:      log,
		logs:     logSvc,
		adapter:  ad,
		store:    store,
		updates:  make(chan kit.Update, 256),
	}
	if err := a.build(ctx, root, reg); err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, root logx.Logger, reg *prometheus.Registry) error {
	s := a.settings

	fetcher := vk.New(mapVKConfig(s), nil, vk.NewMetrics(reg), root)
	persister := ingest.NewPersister(a.store, mapIngestDefaults(s), root)
	notif := notifier.New(mapNotifierConfig(s), a.adapter, root)

	var lease pipeline.Lease
	if s.Lease.Enabled {
		a.lease = pipeline.NewRedisLease(mapLeaseConfig(s))
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.lease.Ping(pctx)
		cancel()
		if err != nil {
			_ = a.lease.Close()
			return fmt.Errorf("lease redis %s: %w", s.Lease.Addr, err)
		}
		lease = a.lease
		a.log.Info("cycle lease enabled", logx.String("addr", s.Lease.Addr), logx.String("key", s.Lease.Key))
	}
	a.pipe = pipeline.New(mapPipelineConfig(s), fetcher, persister, notif, lease, root)

	a.sched = scheduler.New(mapSchedulerConfig(s), root)
	if err := a.sched.AddSchedule(IngestJob, s.Scheduler.Schedule, s.Scheduler.CycleTimeout, a.runCycle); err != nil {
		return fmt.Errorf("scheduler.schedule: %w", err)
	}

	a.metrics = metrics.New(mapMetricsConfig(s), reg, a.store.Ping, root)

	a.ops = router.Ops{
		Events:    a.store,
		Scheduler: a.sched,
		Cycles:    a.pipe,
		Notifier:  notif,
		Job:       IngestJob,
		Location:  s.Scheduler.Timezone,
	}
	a.cmdm = router.NewCommandManager(root, a.adapter, s.Telegram.OwnerUserIDs, 30*time.Second)
	return nil
}

// runCycle is the scheduled job. A skipped cycle is not a failure.
func (a *App) runCycle(ctx context.Context) error {
	res := a.pipe.Run(ctx)
	return res.Err
}

// Done is closed when the app supervisor context is cancelled.
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
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.metrics.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.cmdm.SetRegistry(a.sup.Context(), a.ops.Commands())
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	} else {
		a.log.Warn("scheduler disabled; cycles run only via /ingest")
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started",
		logx.String("schedule", a.settings.Scheduler.Schedule),
		logx.Int64("group_id", a.settings.VK.GroupID),
		logx.Bool("lease", a.lease != nil),
	)
	return nil
}

// reloadLoop applies logging changes from config reloads. Every other
// section feeds the immutable Settings and needs a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
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

			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			if pending := config.RestartRequired(sections); len(pending) > 0 {
				a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(pending, ",")))
			}
			s, err := config.Derive(newCfg)
			if err != nil {
				a.log.Warn("invalid config; keeping previous logging", logx.Err(err))
				continue
			}
			a.logs.Apply(mapLogConfig(newCfg, s))
			a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	}

	// Scheduler first so no new cycle starts while the rest winds down.
	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("metrics", time.Second, a.metrics.Stop)
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("lease", time.Second, func(context.Context) error {
		if a.lease != nil {
			return a.lease.Close()
		}
		return nil
	})
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}
