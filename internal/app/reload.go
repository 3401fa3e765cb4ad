package app

import (
	"context"

	"campbot/internal/config"
	logx "campbot/pkg/logx"
)

// reloadLoop applies published config changes to the running services.
// Only logging, content policy, and the scheduler tick are hot-swappable;
// everything else needs a restart.
func (a *App) reloadLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.subCh:
			if !ok {
				return
			}
			a.applyReload(cfg)
		}
	}
}

func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(mapLoggingConfig(cfg))
	a.validator.Apply(mapPolicyConfig(cfg))

	sc, err := mapSchedulerConfig(cfg)
	if err != nil {
		a.log.Warn("scheduler config rejected on reload", logx.Err(err))
	} else {
		a.sched.Apply(sc)
	}

	a.log.Info("config reloaded",
		logx.String("log_level", cfg.Logging.Level),
		logx.Int("blocklist", len(cfg.Policy.Blocklist)),
		logx.String("tick", cfg.Scheduler.Tick))
}
