package app

import (
	"context"
	"reflect"
	"time"

	"jambot/internal/config"
	logx "jambot/pkg/logx"
)

// reloadLoop applies published configs. Logging, scheduler specs and
// notifier limits change live; the rest needs a restart.
func (a *App) reloadLoop(c context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(c, last, cfg)
			last = cfg
		}
	}
}

func (a *App) applyConfig(c context.Context, prev, cfg *config.Config) {
	a.sd.Reloading()
	defer a.sd.Ready()

	if prev != nil {
		for name, changed := range map[string]bool{
			"storage":        !reflect.DeepEqual(prev.Storage, cfg.Storage),
			"telegram.token": prev.Telegram.Token != cfg.Telegram.Token,
			"jam.timezone":   prev.Jam.Timezone != cfg.Jam.Timezone,
			"http":           prev.HTTP != cfg.HTTP,
		} {
			if changed {
				a.log.Warn("config change needs a restart to take effect", logx.String("section", name))
			}
		}
	}

	a.logs.SetTelegramTarget(cfg.GroupLogChatID(), cfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLoggingConfig(cfg))

	a.notif.Apply(mapNotifierConfig(cfg))

	sc := mapSchedulerConfig(cfg)
	sc.Timezone = a.jams.Location().String()
	wasEnabled := a.sched.Enabled()
	a.sched.Apply(sc)
	if err := a.registerJobs(cfg); err != nil {
		a.log.Warn("scheduler jobs not updated", logx.Err(err))
	}
	switch {
	case wasEnabled && !sc.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !wasEnabled && sc.Enabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(c)
	}

	a.log.Info("config applied", logx.String("path", a.cfgm.Path()))
}
