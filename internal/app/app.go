// Package app assembles the campaign engine: config, logging, storage,
// the domain services, the dispatch pipeline, and the operator surface.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"campbot/internal/adapters"
	"campbot/internal/adapters/sim"
	"campbot/internal/adapters/telegram"
	"campbot/internal/analytics"
	"campbot/internal/campaign"
	"campbot/internal/command"
	"campbot/internal/config"
	"campbot/internal/consent"
	"campbot/internal/dispatch"
	"campbot/internal/policy"
	"campbot/internal/quota"
	"campbot/internal/ratelimit"
	"campbot/internal/scheduler"
	"campbot/internal/storage"
	logx "campbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service

	store storage.Store

	registry  *consent.Registry
	validator *policy.Validator
	limiter   *ratelimit.Limiter
	tracker   *quota.Tracker
	campaigns *campaign.Store

	mux   *adapters.Mux
	tg    *telegram.Adapter // nil when no token is configured
	disp  *dispatch.Service
	sched *scheduler.Service
	agg   *analytics.Aggregator

	cron        *cron.Cron
	watchCancel context.CancelFunc
	subCh       chan *config.Config
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, log: log, logs: logs}

	// Storage (optional).
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.store = st
		if st != nil {
			log.Info("storage enabled", logx.String("driver", sc.Driver))
		}
	}

	loc, err := mapQuotaLocation(cfg)
	if err != nil {
		return nil, err
	}

	// Domain services. A nil store is accepted everywhere and simply
	// disables write-through.
	var (
		consentStore consent.Store
		quotaStore   quota.Store
		persister    campaign.Persister
		attemptLog   dispatch.Log
	)
	if a.store != nil {
		consentStore = a.store
		quotaStore = a.store
		persister = a.store
		attemptLog = a.store
	}

	a.registry = consent.NewRegistry(consentStore, log.With(logx.String("comp", "consent")))
	a.validator = policy.New(mapPolicyConfig(cfg))
	a.limiter = ratelimit.New()
	a.tracker = quota.NewTracker(loc, quotaStore, log.With(logx.String("comp", "quota")))
	a.campaigns = campaign.NewStore(persister, log.With(logx.String("comp", "campaigns")))

	// Platform adapters.
	a.mux = adapters.NewMux()
	simLog := log.With(logx.String("comp", "sim"))
	a.mux.Register("facebook", sim.New(200*time.Millisecond, simLog))
	a.mux.Register("instagram", sim.New(200*time.Millisecond, simLog))
	if cfg.Telegram.Token != "" {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			Owners:      cfg.Telegram.OwnerUserIDs,
			PollTimeout: pollTimeout,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		a.tg = tg
		a.mux.Register("telegram", tg)
	} else {
		log.Warn("telegram token not configured, telegram platform and operator commands disabled")
	}

	// Dispatch and scheduler. OnSent closes over the scheduler variable so
	// the two can reference each other.
	dispCfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.disp = dispatch.New(dispCfg, dispatch.Deps{
		Adapter:   a.mux,
		Validator: a.validator,
		Consent:   a.registry,
		Limiter:   a.limiter,
		Quota:     a.tracker,
		Campaigns: a.campaigns,
		Log:       attemptLog,
		OnSent: func(campaignID, target string, at time.Time) {
			a.sched.MarkSent(campaignID, target, at)
		},
	}, log.With(logx.String("comp", "dispatch")))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.sched = scheduler.New(schedCfg, scheduler.Deps{
		Campaigns: a.campaigns,
		Consent:   a.registry,
		Validator: a.validator,
		Dispatch:  a.disp,
	}, log.With(logx.String("comp", "scheduler")))

	// Analytics reads the persisted attempt log; without storage it has
	// nothing to aggregate and reports empty summaries.
	var source analytics.Source = emptySource{}
	if a.store != nil {
		source = a.store
	}
	a.agg = analytics.New(source, a.campaigns, log.With(logx.String("comp", "analytics")))

	if a.tg != nil {
		router := command.New(command.Deps{
			Campaigns: a.campaigns,
			Consent:   a.registry,
			Analytics: a.agg,
			Scheduler: a.sched,
		}, log.With(logx.String("comp", "commands")))
		a.tg.BindCommands(func(ctx context.Context, from telegram.Sender, text string) string {
			return router.Handle(ctx, command.Actor{ID: from.ID, Username: from.Username}, text)
		})
	}

	if err := a.restore(); err != nil {
		return nil, err
	}
	return a, nil
}

// restore seeds the in-memory state from storage.
func (a *App) restore() error {
	if a.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	approvals, err := a.store.ListApprovals(ctx)
	if err != nil {
		return err
	}
	a.registry.Restore(approvals)

	rows, err := a.store.ListCampaigns(ctx)
	if err != nil {
		return err
	}
	a.campaigns.Restore(rows)

	counters, err := a.store.ListQuota(ctx)
	if err != nil {
		return err
	}
	a.tracker.Restore(counters)

	sent, err := a.store.LastSent(ctx)
	if err != nil {
		return err
	}
	a.sched.RestoreLastSent(sent)

	a.log.Info("state restored",
		logx.Int("approvals", len(approvals)),
		logx.Int("campaigns", len(rows)),
		logx.Int("quota_counters", len(counters)),
		logx.Int("last_sent", len(sent)))
	return nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	a.disp.Start(ctx)
	if cfg.Scheduler.Enabled {
		if err := a.sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		a.log.Info("scheduler autostart disabled, use /sched start")
	}
	if a.tg != nil {
		a.tg.Start(ctx)
	}

	// Config hot reload.
	watchCtx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel
	a.subCh = a.cfgm.Subscribe(4)
	go a.reloadLoop(watchCtx)
	go func() {
		if err := a.cfgm.Watch(watchCtx); err != nil && watchCtx.Err() == nil {
			a.log.Warn("config watcher exited", logx.Err(err))
		}
	}()

	// Daily quota counter cleanup.
	if a.store != nil && cfg.Quota.PruneAfterDays > 0 {
		keep := cfg.Quota.PruneAfterDays
		a.cron = cron.New(cron.WithLocation(a.tracker.Location()))
		_, err := a.cron.AddFunc("@daily", func() { a.pruneQuota(keep) })
		if err != nil {
			return err
		}
		a.cron.Start()
	}

	a.log.Info("engine started",
		logx.Bool("scheduler", cfg.Scheduler.Enabled),
		logx.Any("platforms", a.mux.Platforms()))
	return nil
}

func (a *App) pruneQuota(keepDays int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cutoff := time.Now().In(a.tracker.Location()).AddDate(0, 0, -keepDays)
	day := quota.DayKey(cutoff, a.tracker.Location())
	n, err := a.store.PruneQuota(ctx, day)
	if err != nil {
		a.log.Warn("quota prune failed", logx.Err(err))
		return
	}
	dropped := a.tracker.DropBefore(day)
	a.log.Info("quota counters pruned",
		logx.String("before", day),
		logx.Int64("stored", n),
		logx.Int("in_memory", dropped))
}

func (a *App) Stop(ctx context.Context) error {
	if a.cron != nil {
		cronCtx := a.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}
	if a.watchCancel != nil {
		a.watchCancel()
	}
	if a.subCh != nil {
		a.cfgm.Unsubscribe(a.subCh)
	}
	if a.tg != nil {
		a.tg.Stop(ctx)
	}
	a.sched.Stop(ctx)
	a.disp.Stop(ctx)

	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	a.log.Info("engine stopped")
	_ = a.logs.Close()
	return err
}

// emptySource backs analytics when storage is disabled.
type emptySource struct{}

func (emptySource) ListAttempts(context.Context, string, time.Time, time.Time) ([]dispatch.Attempt, error) {
	return nil, nil
}
