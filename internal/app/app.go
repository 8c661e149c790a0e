package app

import (
	"context"
	"fmt"
	"time"

	"jambot/internal/config"
	"jambot/internal/eventbus"
	"jambot/internal/httpapi"
	"jambot/internal/jam"
	"jambot/internal/notifier"
	rtsup "jambot/internal/runtime/supervisor"
	"jambot/internal/storage"
	"jambot/internal/task/scheduler"
	kit "jambot/internal/transport"
	telegram "jambot/internal/transport/telegram/adapter"
	"jambot/internal/transport/telegram/router"
	logx "jambot/pkg/logx"
	"jambot/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   *storage.SQLStore
	adapter *telegram.Adapter

	jams   *jam.Service
	cmds   *jam.Commands
	sched  *scheduler.Service
	notif  *notifier.Service
	router *router.Router
	http   *httpapi.Server
	sd     *systemd.Notifier

	updates chan kit.Update
}

// New loads the config and builds every component. Storage is opened here,
// with retries, so an unreachable database fails startup.
func New(ctx context.Context, cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("INFO")

	cfgm := config.NewManager(cfgPath, bootLog)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	// Bootstrap with the Telegram sink off, set the target, then apply the
	// final config so Apply does not warn about a missing target.
	logCfg := mapLoggingConfig(cfg)
	tgEnabled := logCfg.Telegram.Enabled
	logCfg.Telegram.Enabled = false
	logs, log := logx.New(logCfg, ad)
	logs.SetTelegramTarget(cfg.GroupLogChatID(), cfg.Logging.Telegram.ThreadID)
	logCfg.Telegram.Enabled = tgEnabled
	logs.Apply(logCfg)

	appLog := log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log)

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.OpenWithRetry(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Jam.Timezone)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("jam.timezone: %w", err)
	}

	bus := eventbus.New()
	notif := notifier.New(mapNotifierConfig(cfg), ad, log.With(logx.String("comp", "notifier")), bus)
	jams := jam.NewService(jam.Deps{
		Store:    store,
		Notifier: notif,
		Bus:      bus,
		Location: loc,
	}, log.With(logx.String("comp", "jam")))
	cmds := jam.NewCommands(jams, ad, log.With(logx.String("comp", "jam.commands")))

	sched := scheduler.New(mapSchedulerConfig(cfg), store, log.With(logx.String("comp", "scheduler")), bus)

	a := &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logs,
		bus:     bus,
		store:   store,
		adapter: ad,
		jams:    jams,
		cmds:    cmds,
		sched:   sched,
		notif:   notif,
		router:  router.New(ad, 30*time.Second, log.With(logx.String("comp", "router"))),
		sd:      systemd.New(log),
		updates: make(chan kit.Update, 256),
	}
	if err := a.registerJobs(cfg); err != nil {
		_ = store.Close()
		return nil, err
	}
	a.router.SetCommands(a.commands())
	a.router.OnPollAnswer(a.onPollAnswer)

	if cfg.HTTP.Enabled {
		h := httpapi.NewRouter(jams, sched, runtimeStatus{a}, log.With(logx.String("comp", "http")))
		if cfg.HTTP.Pprof {
			httpapi.MountPprof(h)
		}
		a.http = httpapi.NewServer(cfg.HTTP.Addr, h, log.With(logx.String("comp", "http")))
	}
	return a, nil
}

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
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.sup.Go("jam.service", a.jams.Run)
	n, err := a.jams.Load(run)
	if err != nil {
		return fmt.Errorf("load polls: %w", err)
	}
	a.log.Info("polls loaded", logx.Int("count", n))

	// The notifier outlives the run context so Stop can drain it.
	a.notif.Start(context.WithoutCancel(run))

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("telegram.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 15*time.Second)
		defer cancel()
		if err := a.router.UpdateMenu(mctx, a.adapter); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	})

	a.sched.Start(run)

	if a.http != nil {
		a.sup.Go("http.api", a.http.Run)
	}

	a.sup.Go0("eventbus.log", a.logEvents)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go("systemd.watchdog", a.sd.Watchdog)
	a.sd.Status(fmt.Sprintf("%d polls loaded", n))
	a.sd.Ready()

	a.log.Info("app started")
	return nil
}

func (a *App) logEvents(c context.Context) {
	events, unsub := a.bus.Subscribe(128)
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
}

func (a *App) Stop(ctx context.Context, reason string) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", reason))
	a.sd.Stopping()

	// Bounded shutdown step; never extends the caller's deadline.
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
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 2*time.Second, a.adapter.Stop)
	a.sup.Cancel()
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
